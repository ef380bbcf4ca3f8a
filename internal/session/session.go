package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/longduongbao29/Translator-app-sub001/internal/audio"
	"github.com/longduongbao29/Translator-app-sub001/internal/capture"
	"github.com/longduongbao29/Translator-app-sub001/internal/config"
	"github.com/longduongbao29/Translator-app-sub001/internal/metrics"
	"github.com/longduongbao29/Translator-app-sub001/internal/segmenter"
	"github.com/longduongbao29/Translator-app-sub001/internal/transport"
	"github.com/longduongbao29/Translator-app-sub001/internal/vad"
)

// Callbacks notify the embedding application of pipeline events. All
// callbacks run on the session's event loop goroutine and must return
// quickly. Nil callbacks are skipped.
type Callbacks struct {
	OnTranscription func(text string, final bool)
	OnError         func(err error)
	OnStatusChange  func(state transport.ConnState)
	OnVolumeChange  func(level float64)
}

// Stats is a point-in-time snapshot of the running pipeline.
type Stats struct {
	Running   bool              `json:"running"`
	StartedAt time.Time         `json:"started_at,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	LastError string            `json:"last_error,omitempty"`
	Detector  vad.DetectorStats `json:"detector"`
	Segmenter segmenter.Stats   `json:"segmenter"`
	Level     float64           `json:"level"`
}

// Session runs the capture-to-transport pipeline.
type Session struct {
	config    *config.Config
	device    capture.Device
	detector  *vad.Detector
	seg       *segmenter.Segmenter
	transport transport.Transport
	metrics   *metrics.Metrics
	callbacks Callbacks
	logger    *slog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	resetTick chan struct{}

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	lastErr   error
}

// New assembles a session from its parts. The metrics argument may be nil.
func New(cfg *config.Config, device capture.Device, tr transport.Transport,
	m *metrics.Metrics, callbacks Callbacks, logger *slog.Logger) (*Session, error) {

	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Capture.Format {
	case "wav", "pcm":
	default:
		return nil, fmt.Errorf("%w: %s", capture.ErrEncodingUnsupported, cfg.Capture.Format)
	}

	detector, err := vad.NewDetector(cfg.VAD.Sensitivity, cfg.VAD.GetLookback())
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	seg := segmenter.New(segmenter.Config{
		SilenceTimeout:       cfg.Segmenter.GetSilenceTimeout(),
		MaxUtteranceDuration: cfg.Segmenter.GetMaxUtteranceDuration(),
		MinChunkBytes:        cfg.Segmenter.MinChunkBytes,
		SampleRate:           cfg.Capture.SampleRate,
	})

	return &Session{
		config:    cfg,
		device:    device,
		detector:  detector,
		seg:       seg,
		transport: tr,
		metrics:   m,
		callbacks: callbacks,
		logger:    logger,
		resetTick: make(chan struct{}, 1),
	}, nil
}

// Start opens the device and the transport, then launches the event loop.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("session already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)

	if err := s.device.Start(loopCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	if err := s.transport.Start(ctx, s.config.Transport.Language); err != nil {
		cancel()
		s.device.Stop()
		return fmt.Errorf("failed to start transport: %w", err)
	}

	s.cancel = cancel
	s.running = true
	s.startedAt = time.Now()

	s.wg.Add(1)
	go s.runLoop(loopCtx)

	s.logger.Info("Session started",
		"language", s.config.Transport.Language,
		"sensitivity", s.detector.Sensitivity(),
		"silence_timeout", s.config.Segmenter.GetSilenceTimeout())

	return nil
}

// Stop shuts the pipeline down, flushing any open utterance first.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.logger.Info("Session stopped")
	return nil
}

// SetSensitivity adjusts the voice threshold of the running detector and
// restarts the sampling cadence, so the new threshold applies on a fresh
// tick. Chunks already buffered are unaffected.
func (s *Session) SetSensitivity(sensitivity int) error {
	if err := s.detector.SetSensitivity(sensitivity); err != nil {
		return err
	}

	select {
	case s.resetTick <- struct{}{}:
	default:
	}

	return nil
}

// Sensitivity returns the current voice threshold.
func (s *Session) Sensitivity() int {
	return s.detector.Sensitivity()
}

// GetStats snapshots the pipeline state.
func (s *Session) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Running:   s.running,
		Detector:  s.detector.GetStats(),
		Segmenter: s.seg.GetStats(),
		Level:     s.device.Level(),
	}
	if s.running {
		stats.StartedAt = s.startedAt
		stats.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}
	if s.lastErr != nil {
		stats.LastError = s.lastErr.Error()
	}
	return stats
}

// runLoop is the pipeline's only decision point. Sample ticks drive the
// detector and the state machine, chunks feed the open utterance, and a
// single-shot timer fires the silence flush.
func (s *Session) runLoop(ctx context.Context) {
	defer s.wg.Done()

	sampleTicker := time.NewTicker(s.config.VAD.GetSampleInterval())
	defer sampleTicker.Stop()

	// Armed once per silence onset, stopped when voice resumes.
	silenceTimer := time.NewTimer(time.Hour)
	if !silenceTimer.Stop() {
		<-silenceTimer.C
	}
	defer silenceTimer.Stop()

	chunks := s.device.Chunks()
	results := s.transport.Results()
	states := s.transport.States()

	for {
		select {
		case <-ctx.Done():
			s.finalFlush()
			s.shutdown()
			return

		case now := <-sampleTicker.C:
			s.onSampleTick(now, silenceTimer)

		case <-s.resetTick:
			sampleTicker.Reset(s.config.VAD.GetSampleInterval())

		case chunk, ok := <-chunks:
			if !ok {
				s.onDeviceDown()
				return
			}
			s.onChunk(chunk)

		case now := <-silenceTimer.C:
			if u, flushed := s.seg.FlushIfDue(now); flushed {
				if u != nil {
					s.deliverNow(u)
				} else if s.metrics != nil {
					s.metrics.RecordEmptyUtterance()
				}
			}

		case result, ok := <-results:
			if !ok {
				s.onTransportDown()
				return
			}
			if s.callbacks.OnTranscription != nil {
				s.callbacks.OnTranscription(result.Text, result.Final)
			}

		case state := <-states:
			if s.callbacks.OnStatusChange != nil {
				s.callbacks.OnStatusChange(state)
			}
		}
	}
}

func (s *Session) onSampleTick(now time.Time, silenceTimer *time.Timer) {
	level := s.device.Level()
	isVoice := s.detector.Sample(level, now)

	if s.metrics != nil {
		s.metrics.RecordTick(isVoice, level)
	}
	if s.callbacks.OnVolumeChange != nil {
		s.callbacks.OnVolumeChange(level)
	}

	switch s.seg.OnSample(isVoice, now) {
	case segmenter.EventUtteranceOpened:
		s.logger.Debug("Utterance opened", "level", level)
	case segmenter.EventSilenceOnset:
		if deadline, ok := s.seg.SilenceDeadline(); ok {
			silenceTimer.Reset(time.Until(deadline))
		}
	case segmenter.EventVoiceResumed:
		stopTimer(silenceTimer)
	}

	// The duration cap flushes regardless of silence.
	if u, flushed := s.seg.FlushIfDue(now); flushed {
		stopTimer(silenceTimer)
		if u != nil {
			s.deliverNow(u)
		} else if s.metrics != nil {
			s.metrics.RecordEmptyUtterance()
		}
	}
}

func (s *Session) onChunk(chunk capture.Chunk) {
	now := chunk.Captured
	accepted := s.seg.AddChunk(chunk.Data, s.detector.HasRecentVoice(now), now)

	if s.metrics != nil {
		s.metrics.RecordChunk(accepted)
	}
}

// onDeviceDown handles the capture channel closing. A device failure
// discards the open utterance so a truncated recording is never sent; a
// clean drain flushes it. Either way the session's resources are released.
func (s *Session) onDeviceDown() {
	if err := s.device.Err(); err != nil {
		s.seg.Abort()
		s.setErr(err)
		s.logger.Error("Capture device lost, open utterance discarded", "error", err)
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(err)
		}
		s.shutdown()
		return
	}

	s.logger.Info("Capture drained")
	s.finalFlush()
	s.shutdown()
}

// onTransportDown handles the result channel closing while capturing. The
// open utterance is discarded, nothing partial ever goes out on a dead
// connection, and capture stops.
func (s *Session) onTransportDown() {
	s.seg.Abort()

	// The transport publishes its terminal state before closing the
	// result channel; forward it so the error status is not lost.
	s.drainStates()

	err := fmt.Errorf("transport connection lost")
	s.setErr(err)
	s.logger.Error("Transport lost, open utterance discarded")
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}

	s.shutdown()
}

// drainStates forwards connection states already queued by the transport.
func (s *Session) drainStates() {
	for {
		select {
		case state := <-s.transport.States():
			if s.callbacks.OnStatusChange != nil {
				s.callbacks.OnStatusChange(state)
			}
		default:
			return
		}
	}
}

// shutdown releases the device, the transport and the loop context. Every
// exit path of the event loop runs it, so no timer, device lock or socket
// outlives the session.
func (s *Session) shutdown() {
	s.cancel()
	s.device.Stop()
	s.transport.Close()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// finalFlush seals and delivers whatever is still buffered.
func (s *Session) finalFlush() {
	if u := s.seg.ForceFlush(time.Now()); u != nil {
		s.deliverNow(u)
	}
}

// deliverNow delivers under the configured send timeout, independent of
// the loop context.
func (s *Session) deliverNow(u *segmenter.Utterance) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Transport.GetSendTimeout())
	defer cancel()
	s.deliver(ctx, u)
}

// deliver encodes the utterance in the configured format and hands it to
// the transport. Failed sends are reported and dropped, never retried.
func (s *Session) deliver(ctx context.Context, u *segmenter.Utterance) {
	payload := u.Audio
	if s.config.Capture.Format == "wav" {
		wavData, err := audio.EncodeWAV(u.Audio, u.SampleRate)
		if err != nil {
			s.setErr(err)
			s.logger.Error("Failed to encode utterance", "utterance_id", u.ID, "error", err)
			if s.callbacks.OnError != nil {
				s.callbacks.OnError(err)
			}
			return
		}
		payload = wavData
	}

	start := time.Now()
	err := s.transport.Send(ctx, payload, u.SampleRate)

	if s.metrics != nil {
		s.metrics.RecordSend(time.Since(start), err)
		if err == nil {
			s.metrics.RecordUtterance(u.Duration, len(u.Audio))
		}
	}

	if err != nil {
		s.setErr(err)
		s.logger.Error("Failed to deliver utterance",
			"utterance_id", u.ID,
			"bytes", len(payload),
			"error", err)
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(err)
		}
		return
	}

	s.logger.Info("Utterance delivered",
		"utterance_id", u.ID,
		"duration", u.Duration.Round(time.Millisecond),
		"chunks", u.Chunks,
		"bytes", len(payload))
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// stopTimer stops a timer and drains a pending fire, keeping it safe to
// Reset.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
