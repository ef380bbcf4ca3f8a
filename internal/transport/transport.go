package transport

import (
	"context"
	"fmt"
)

// ConnState describes the transport connection lifecycle.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is one piece of recognized text. Final marks a completed sentence,
// otherwise the text is an in-progress revision.
type Result struct {
	Text  string
	Final bool
}

// Error wraps a transport failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport moves audio to the backend and transcriptions back.
//
// The results channel closes when the transport goes down. State changes
// are published best-effort on the states channel; a slow consumer only
// misses intermediate transitions.
type Transport interface {
	// Start establishes the backend connection. Language selects the
	// transcription language, "auto" for server-side detection.
	Start(ctx context.Context, language string) error

	// Send delivers one utterance payload. It returns an *Error on
	// failure and never retries.
	Send(ctx context.Context, audioData []byte, sampleRate int) error

	// Results returns the channel of recognized text.
	Results() <-chan Result

	// States returns the channel of connection state changes.
	States() <-chan ConnState

	// Close tears the connection down.
	Close() error
}
