package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/longduongbao29/Translator-app-sub001/internal/audio"
	"github.com/longduongbao29/Translator-app-sub001/internal/capture"
	"github.com/longduongbao29/Translator-app-sub001/internal/config"
	"github.com/longduongbao29/Translator-app-sub001/internal/transport"
)

func testSessionConfig() *config.Config {
	return &config.Config{
		Capture: config.CaptureConfig{
			Source:          "test",
			SampleRate:      16000,
			Channels:        1,
			BitDepth:        16,
			ChunkIntervalMs: 1000,
			Format:          "pcm",
		},
		VAD: config.VADConfig{
			Sensitivity:      25,
			SampleIntervalMs: 10,
			LookbackSeconds:  3,
		},
		Segmenter: config.SegmenterConfig{
			SilenceTimeoutMs:    100,
			MinChunkBytes:       4,
			MaxUtteranceSeconds: 30,
		},
		Transport: config.TransportConfig{
			Mode:                  "socket",
			Language:              "auto",
			ConnectTimeoutSeconds: 2,
			SendTimeoutSeconds:    2,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDevice struct {
	chunks chan capture.Chunk

	mu      sync.RWMutex
	level   float64
	err     error
	stopCnt int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{chunks: make(chan capture.Chunk, 4)}
}

func (d *fakeDevice) Start(ctx context.Context) error { return nil }

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	d.stopCnt++
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) stopped() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stopCnt > 0
}

func (d *fakeDevice) Chunks() <-chan capture.Chunk { return d.chunks }

func (d *fakeDevice) Level() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.level
}

func (d *fakeDevice) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

func (d *fakeDevice) setLevel(level float64) {
	d.mu.Lock()
	d.level = level
	d.mu.Unlock()
}

func (d *fakeDevice) fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
	close(d.chunks)
}

type fakeTransport struct {
	results chan transport.Result
	states  chan transport.ConnState

	mu            sync.Mutex
	sends         [][]byte
	sendDeadlines int
	sendErr       error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		results: make(chan transport.Result, 4),
		states:  make(chan transport.ConnState, 4),
	}
}

func (t *fakeTransport) Start(ctx context.Context, language string) error { return nil }

func (t *fakeTransport) Send(ctx context.Context, audioData []byte, sampleRate int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	data := make([]byte, len(audioData))
	copy(data, audioData)
	t.sends = append(t.sends, data)
	if _, ok := ctx.Deadline(); ok {
		t.sendDeadlines++
	}
	return nil
}

func (t *fakeTransport) Results() <-chan transport.Result { return t.results }

func (t *fakeTransport) States() <-chan transport.ConnState { return t.states }

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) sendCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sends)
}

func (t *fakeTransport) sentAudio(i int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sends[i]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestSessionFlushesOnSilence(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTransport()

	s, err := New(testSessionConfig(), dev, tr, nil, Callbacks{}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	defer s.Stop()

	// Voice begins, an utterance opens.
	dev.setLevel(200)
	time.Sleep(50 * time.Millisecond)

	chunk := bytes.Repeat([]byte{0x0A, 0x0B}, 1600)
	dev.chunks <- capture.Chunk{Data: chunk, Captured: time.Now()}
	time.Sleep(30 * time.Millisecond)

	// Silence sets in, the flush should fire after the timeout.
	dev.setLevel(0)

	if !waitFor(t, 2*time.Second, func() bool { return tr.sendCount() == 1 }) {
		t.Fatal("Utterance never delivered after silence timeout")
	}

	if !bytes.Equal(tr.sentAudio(0), chunk) {
		t.Error("Delivered audio does not match the captured chunk")
	}

	// Every delivery runs under the configured send timeout.
	tr.mu.Lock()
	deadlines := tr.sendDeadlines
	tr.mu.Unlock()
	if deadlines != 1 {
		t.Errorf("Expected the send context to carry a deadline, got %d of 1", deadlines)
	}
}

func TestSessionDiscardsOnDeviceFailure(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTransport()

	var mu sync.Mutex
	var gotErr error
	callbacks := Callbacks{
		OnError: func(err error) {
			mu.Lock()
			gotErr = err
			mu.Unlock()
		},
	}

	s, err := New(testSessionConfig(), dev, tr, nil, callbacks, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	defer s.Stop()

	dev.setLevel(200)
	time.Sleep(50 * time.Millisecond)
	dev.chunks <- capture.Chunk{Data: bytes.Repeat([]byte{1, 2}, 800), Captured: time.Now()}
	time.Sleep(30 * time.Millisecond)

	// Device dies mid-utterance. The buffered audio must be discarded.
	dev.fail(capture.ErrDeviceUnavailable)

	ok := waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	})
	if !ok {
		t.Fatal("Device failure never reported")
	}

	mu.Lock()
	if !errors.Is(gotErr, capture.ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", gotErr)
	}
	mu.Unlock()

	time.Sleep(200 * time.Millisecond)
	if tr.sendCount() != 0 {
		t.Error("Truncated utterance must never be delivered")
	}

	if !waitFor(t, 2*time.Second, func() bool { return !s.GetStats().Running }) {
		t.Error("Session still reports running after device failure")
	}
}

func TestSessionDiscardsOnTransportDrop(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTransport()

	errCh := make(chan error, 1)
	stateCh := make(chan transport.ConnState, 4)
	callbacks := Callbacks{
		OnError:        func(err error) { errCh <- err },
		OnStatusChange: func(state transport.ConnState) { stateCh <- state },
	}

	s, err := New(testSessionConfig(), dev, tr, nil, callbacks, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	defer s.Stop()

	dev.setLevel(200)
	time.Sleep(50 * time.Millisecond)
	dev.chunks <- capture.Chunk{Data: bytes.Repeat([]byte{1, 2}, 800), Captured: time.Now()}
	time.Sleep(30 * time.Millisecond)

	// Backend connection dies mid-utterance: the transport publishes its
	// error state and then closes the result channel.
	tr.states <- transport.StateError
	close(tr.results)

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Transport loss never reported")
	}

	// The queued error state must reach the caller even though the loop
	// observed the closed result channel first.
	select {
	case state := <-stateCh:
		if state != transport.StateError {
			t.Errorf("Expected error state, got %v", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Error state never reported")
	}

	select {
	case state := <-stateCh:
		t.Errorf("Expected exactly one state change, also got %v", state)
	case <-time.After(100 * time.Millisecond):
	}

	if tr.sendCount() != 0 {
		t.Error("Utterance must be discarded when the transport drops")
	}

	if !waitFor(t, 2*time.Second, func() bool { return !s.GetStats().Running }) {
		t.Error("Session still reports running after transport loss")
	}
	if !dev.stopped() {
		t.Error("Device not released after transport loss")
	}
}

func TestSessionStopFlushesOpenUtterance(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTransport()

	s, err := New(testSessionConfig(), dev, tr, nil, Callbacks{}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}

	dev.setLevel(200)
	time.Sleep(50 * time.Millisecond)
	dev.chunks <- capture.Chunk{Data: bytes.Repeat([]byte{1, 2}, 800), Captured: time.Now()}
	time.Sleep(30 * time.Millisecond)

	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}

	if tr.sendCount() != 1 {
		t.Errorf("Expected trailing utterance on stop, got %d sends", tr.sendCount())
	}
}

func TestSessionTranscriptionCallback(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTransport()

	type received struct {
		text  string
		final bool
	}
	got := make(chan received, 4)

	callbacks := Callbacks{
		OnTranscription: func(text string, final bool) {
			got <- received{text, final}
		},
	}

	s, err := New(testSessionConfig(), dev, tr, nil, callbacks, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	defer s.Stop()

	tr.results <- transport.Result{Text: "hello there", Final: true}

	select {
	case r := <-got:
		if r.text != "hello there" || !r.final {
			t.Errorf("Unexpected transcription callback: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Transcription callback never invoked")
	}
}

func TestSessionStatusCallback(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTransport()

	got := make(chan transport.ConnState, 4)
	callbacks := Callbacks{
		OnStatusChange: func(state transport.ConnState) { got <- state },
	}

	s, err := New(testSessionConfig(), dev, tr, nil, callbacks, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	defer s.Stop()

	tr.states <- transport.StateError

	select {
	case state := <-got:
		if state != transport.StateError {
			t.Errorf("Expected error state, got %v", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Status callback never invoked")
	}
}

func TestSessionWAVEncodedOnceOverREST(t *testing.T) {
	uploads := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		var buf bytes.Buffer
		buf.ReadFrom(file)
		uploads <- buf.Bytes()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	cfg := testSessionConfig()
	cfg.Capture.Format = "wav"
	cfg.Transport.Mode = "rest"
	cfg.Transport.RestEndpoint = srv.URL

	dev := newFakeDevice()
	tr := transport.NewRESTTransport(transport.RESTConfig{
		Endpoint:    srv.URL,
		SendTimeout: 2 * time.Second,
		Format:      "wav",
	}, testLogger())

	s, err := New(cfg, dev, tr, nil, Callbacks{}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	defer s.Stop()

	dev.setLevel(200)
	time.Sleep(50 * time.Millisecond)

	pcm := bytes.Repeat([]byte{0x0A, 0x0B}, 1600)
	dev.chunks <- capture.Chunk{Data: pcm, Captured: time.Now()}
	time.Sleep(30 * time.Millisecond)
	dev.setLevel(0)

	var uploaded []byte
	select {
	case uploaded = <-uploads:
	case <-time.After(2 * time.Second):
		t.Fatal("Utterance never uploaded")
	}

	decoded, rate, err := audio.DecodeWAV(uploaded)
	if err != nil {
		t.Fatalf("Uploaded audio is not valid WAV: %v", err)
	}
	if rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}

	// The PCM payload must be the raw captured audio, not a second,
	// nested WAV container.
	if bytes.HasPrefix(decoded, []byte("RIFF")) {
		t.Fatal("WAV payload contains a nested RIFF header")
	}
	if !bytes.Equal(decoded, pcm) {
		t.Error("Decoded payload does not match the captured audio")
	}
}

func TestSessionSensitivityChangeKeepsSampling(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTransport()

	s, err := New(testSessionConfig(), dev, tr, nil, Callbacks{}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	defer s.Stop()

	// The threshold change restarts the sampling cadence mid-capture.
	if err := s.SetSensitivity(40); err != nil {
		t.Fatalf("Failed to set sensitivity: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	// Sampling keeps running against the new threshold: a voice episode
	// after the restart still opens, seals and delivers an utterance.
	dev.setLevel(200)
	time.Sleep(50 * time.Millisecond)
	dev.chunks <- capture.Chunk{Data: bytes.Repeat([]byte{1, 2}, 800), Captured: time.Now()}
	time.Sleep(30 * time.Millisecond)
	dev.setLevel(0)

	if !waitFor(t, 2*time.Second, func() bool { return tr.sendCount() == 1 }) {
		t.Fatal("Utterance never delivered after sensitivity change")
	}
}

func TestSessionUnsupportedFormat(t *testing.T) {
	cfg := testSessionConfig()
	cfg.Capture.Format = "mp3"

	_, err := New(cfg, newFakeDevice(), newFakeTransport(), nil, Callbacks{}, testLogger())
	if !errors.Is(err, capture.ErrEncodingUnsupported) {
		t.Errorf("Expected ErrEncodingUnsupported, got %v", err)
	}
}

func TestSessionSensitivity(t *testing.T) {
	s, err := New(testSessionConfig(), newFakeDevice(), newFakeTransport(), nil, Callbacks{}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if got := s.Sensitivity(); got != 25 {
		t.Errorf("Expected sensitivity 25, got %d", got)
	}

	if err := s.SetSensitivity(40); err != nil {
		t.Fatalf("Failed to set sensitivity: %v", err)
	}
	if got := s.Sensitivity(); got != 40 {
		t.Errorf("Expected sensitivity 40, got %d", got)
	}

	if err := s.SetSensitivity(5); err == nil {
		t.Error("Expected error for out-of-range sensitivity")
	}
}
