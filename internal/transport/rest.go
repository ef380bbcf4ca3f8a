package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// RESTConfig configures the HTTP transport. Format names the payload
// encoding the caller delivers ("wav" or "pcm") and only affects the
// upload filename.
type RESTConfig struct {
	Endpoint    string
	APIKey      string
	SendTimeout time.Duration
	Format      string
}

// RESTTransport posts each utterance to a transcription HTTP endpoint.
// The payload is uploaded exactly as received; encoding it is the
// caller's job. Every response is a completed sentence, so all results
// are final. There is no persistent connection and no retry on failure.
type RESTTransport struct {
	config  RESTConfig
	client  *http.Client
	logger  *slog.Logger
	results chan Result
	states  chan ConnState

	mu       sync.Mutex
	language string
	closed   bool
}

// NewRESTTransport creates an HTTP transport.
func NewRESTTransport(config RESTConfig, logger *slog.Logger) *RESTTransport {
	if logger == nil {
		logger = slog.Default()
	}

	return &RESTTransport{
		config:  config,
		client:  &http.Client{Timeout: config.SendTimeout},
		logger:  logger,
		results: make(chan Result, 16),
		states:  make(chan ConnState, 8),
	}
}

// Start records the language and reports the transport ready. HTTP needs no
// standing connection.
func (t *RESTTransport) Start(ctx context.Context, language string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return &Error{Op: "start", Err: errors.New("transport closed")}
	}

	t.language = language
	t.publishState(StateConnected)
	return nil
}

// Send posts one utterance and queues the transcribed text as a final
// result.
func (t *RESTTransport) Send(ctx context.Context, audioData []byte, sampleRate int) error {
	t.mu.Lock()
	language := t.language
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return &Error{Op: "send", Err: errors.New("transport closed")}
	}

	text, err := t.post(ctx, audioData, language)
	if err != nil {
		t.publishState(StateError)
		return &Error{Op: "send", Err: err}
	}

	if text == "" {
		return nil
	}

	select {
	case t.results <- Result{Text: text, Final: true}:
	default:
		t.logger.Warn("Dropping transcription, result channel full")
	}

	return nil
}

func (t *RESTTransport) post(ctx context.Context, audioData []byte, language string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := "utterance.wav"
	if t.config.Format == "pcm" {
		filename = "utterance.pcm"
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if language != "" && language != "auto" {
		if err := writer.WriteField("language", language); err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return result.Text, nil
}

// Results returns the channel of recognized text.
func (t *RESTTransport) Results() <-chan Result {
	return t.results
}

// States returns the channel of connection state changes.
func (t *RESTTransport) States() <-chan ConnState {
	return t.states
}

// Close marks the transport down.
func (t *RESTTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	close(t.results)
	t.publishState(StateDisconnected)
	return nil
}

func (t *RESTTransport) publishState(state ConnState) {
	select {
	case t.states <- state:
	default:
	}
}
