package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/longduongbao29/Translator-app-sub001/internal/protocol"
)

// SocketConfig configures the WebSocket transport.
type SocketConfig struct {
	Endpoint       string
	APIKey         string
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
}

// SocketTransport streams utterances to the backend over a WebSocket using
// binary frames, and receives transcription messages as JSON text frames.
type SocketTransport struct {
	config SocketConfig
	logger *slog.Logger

	results chan Result
	states  chan ConnState

	mu       sync.Mutex
	conn     *websocket.Conn
	language string
	cancel   context.CancelFunc
	closed   bool

	wg sync.WaitGroup
}

// NewSocketTransport creates a WebSocket transport. Start must be called
// before Send.
func NewSocketTransport(config SocketConfig, logger *slog.Logger) *SocketTransport {
	if logger == nil {
		logger = slog.Default()
	}

	return &SocketTransport{
		config:  config,
		logger:  logger,
		results: make(chan Result, 16),
		states:  make(chan ConnState, 8),
	}
}

// Start dials the backend and begins reading transcription messages.
func (t *SocketTransport) Start(ctx context.Context, language string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return &Error{Op: "start", Err: errors.New("already connected")}
	}
	if t.closed {
		return &Error{Op: "start", Err: errors.New("transport closed")}
	}

	t.publishState(StateConnecting)
	t.logger.Info("Connecting to transcription backend", "endpoint", t.config.Endpoint)

	dialCtx, cancel := context.WithTimeout(ctx, t.config.ConnectTimeout)
	defer cancel()

	opts := &websocket.DialOptions{}
	if t.config.APIKey != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + t.config.APIKey}}
	}

	conn, _, err := websocket.Dial(dialCtx, t.config.Endpoint, opts)
	if err != nil {
		t.publishState(StateError)
		return &Error{Op: "connect", Err: err}
	}

	t.conn = conn
	t.language = language

	readCtx, readCancel := context.WithCancel(context.Background())
	t.cancel = readCancel

	t.wg.Add(1)
	go t.readLoop(readCtx, conn)

	t.publishState(StateConnected)
	t.logger.Info("Connected to transcription backend")

	return nil
}

// Send encodes one utterance into a binary frame and writes it.
func (t *SocketTransport) Send(ctx context.Context, audioData []byte, sampleRate int) error {
	t.mu.Lock()
	conn := t.conn
	language := t.language
	t.mu.Unlock()

	if conn == nil {
		return &Error{Op: "send", Err: errors.New("not connected")}
	}

	frame, err := protocol.EncodeFrame(protocol.NewMetadata(sampleRate, language), audioData)
	if err != nil {
		return &Error{Op: "send", Err: err}
	}

	writeCtx, cancel := context.WithTimeout(ctx, t.config.SendTimeout)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageBinary, frame); err != nil {
		t.publishState(StateError)
		return &Error{Op: "send", Err: err}
	}

	t.logger.Debug("Sent utterance", "bytes", len(audioData), "sample_rate", sampleRate)
	return nil
}

// Results returns the channel of recognized text. It closes when the
// connection goes down.
func (t *SocketTransport) Results() <-chan Result {
	return t.results
}

// States returns the channel of connection state changes.
func (t *SocketTransport) States() <-chan ConnState {
	return t.states
}

// Close shuts the connection down and waits for the read loop to exit.
func (t *SocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	cancel := t.cancel
	t.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()

	if conn == nil {
		// Never connected, the read loop will not close the channel.
		close(t.results)
	}

	return nil
}

func (t *SocketTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer t.wg.Done()
	defer close(t.results)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			t.handleReadError(ctx, err)
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			t.logger.Warn("Ignoring malformed server message", "error", err)
			continue
		}

		switch {
		case msg.Status == protocol.StatusConnected:
			t.logger.Debug("Backend handshake complete")
		case msg.IsTranscription():
			select {
			case t.results <- Result{Text: msg.Text, Final: msg.IsFinal()}:
			case <-ctx.Done():
				return
			}
		default:
			// Status notifications like recording markers are not
			// part of the transcription stream.
		}
	}
}

func (t *SocketTransport) handleReadError(ctx context.Context, err error) {
	status := websocket.CloseStatus(err)
	switch {
	case ctx.Err() != nil, status == websocket.StatusNormalClosure:
		t.publishState(StateDisconnected)
		t.logger.Info("Disconnected from transcription backend")
	default:
		t.publishState(StateError)
		t.logger.Error("Connection to transcription backend lost",
			"error", fmt.Sprintf("%v", err))
	}
}

// publishState never blocks. When the consumer lags, intermediate
// transitions are dropped.
func (t *SocketTransport) publishState(state ConnState) {
	select {
	case t.states <- state:
	default:
	}
}
