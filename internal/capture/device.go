package capture

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDeviceUnavailable indicates the audio source could not be opened
	// or disappeared while capturing.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrEncodingUnsupported indicates a requested output format the
	// pipeline cannot produce.
	ErrEncodingUnsupported = errors.New("audio encoding unsupported")
)

// Chunk is one interval worth of raw PCM audio.
type Chunk struct {
	Data     []byte
	Captured time.Time
}

// Device is an audio source producing PCM chunks at a fixed interval.
//
// The chunk channel closes when the device stops, either from Stop, context
// cancellation, or a capture failure. After the channel closes, Err reports
// the failure, or nil for a clean stop.
type Device interface {
	// Start begins capturing. It returns ErrDeviceUnavailable if the
	// source cannot be opened.
	Start(ctx context.Context) error

	// Stop halts capturing and closes the chunk channel.
	Stop() error

	// Chunks returns the channel delivering captured audio.
	Chunks() <-chan Chunk

	// Level returns the most recent input loudness on a 0-255 scale.
	Level() float64

	// Err returns the capture failure that closed the chunk channel,
	// or nil.
	Err() error
}
