package segmenter

import (
	"sync"
	"time"
)

// State represents the current segmentation state
type State int

const (
	StateIdle State = iota
	StateRecording
	StateFlushing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// Event describes a state transition caused by a voice-activity sample.
// The session loop uses it to arm or cancel the silence timer.
type Event int

const (
	EventNone Event = iota
	EventUtteranceOpened
	EventSilenceOnset
	EventVoiceResumed
)

// Config contains segmentation tuning constants
type Config struct {
	SilenceTimeout       time.Duration
	MaxUtteranceDuration time.Duration
	MinChunkBytes        int
	SampleRate           int
}

// Segmenter decides when an utterance starts and ends. All methods take
// explicit timestamps; the caller drives them from its event loop, so no
// method blocks and no internal timers exist.
type Segmenter struct {
	config Config

	state        State
	open         *utteranceBuffer
	lastVoice    time.Time
	silenceSince time.Time // zero while voice is ongoing

	// Statistics
	utterancesSealed uint64
	emptyUtterances  uint64
	chunksAccepted   uint64
	chunksDropped    uint64

	mu sync.RWMutex
}

// Stats represents segmenter statistics for monitoring
type Stats struct {
	State            string `json:"state"`
	UtterancesSealed uint64 `json:"utterances_sealed"`
	EmptyUtterances  uint64 `json:"empty_utterances"`
	ChunksAccepted   uint64 `json:"chunks_accepted"`
	ChunksDropped    uint64 `json:"chunks_dropped"`
	OpenChunks       int    `json:"open_chunks"`
	OpenBytes        int    `json:"open_bytes"`
}

// New creates a segmenter. Zero durations select the product defaults:
// 1s silence timeout, 30s utterance cap.
func New(config Config) *Segmenter {
	if config.SilenceTimeout <= 0 {
		config.SilenceTimeout = time.Second
	}

	if config.MaxUtteranceDuration <= 0 {
		config.MaxUtteranceDuration = 30 * time.Second
	}

	return &Segmenter{
		config: config,
		state:  StateIdle,
	}
}

// OnSample feeds one voice-activity classification into the state machine.
// The first voice tick after idle opens a new utterance; the first silent
// tick after voice marks silence onset so the caller can arm the flush
// timer once.
func (s *Segmenter) OnSample(isVoice bool, now time.Time) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isVoice {
		s.lastVoice = now

		if s.state == StateIdle {
			s.open = newUtteranceBuffer(now)
			s.state = StateRecording
			s.silenceSince = time.Time{}
			return EventUtteranceOpened
		}

		if !s.silenceSince.IsZero() {
			s.silenceSince = time.Time{}
			return EventVoiceResumed
		}

		return EventNone
	}

	if s.state == StateRecording && s.silenceSince.IsZero() {
		s.silenceSince = now
		return EventSilenceOnset
	}

	return EventNone
}

// SilenceDeadline reports when the open utterance must flush, measured from
// the last voice tick. Valid only while recording through a silence span.
func (s *Segmenter) SilenceDeadline() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateRecording || s.silenceSince.IsZero() {
		return time.Time{}, false
	}

	return s.lastVoice.Add(s.config.SilenceTimeout), true
}

// AddChunk offers a raw recorder chunk to the open utterance. It is
// accepted only if an utterance is open, voice is recent, and the chunk
// exceeds the minimum size; anything else is dropped so silence-only audio
// never reaches the transcription payload.
func (s *Segmenter) AddChunk(data []byte, recentVoice bool, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording || s.open == nil || !recentVoice || len(data) <= s.config.MinChunkBytes {
		s.chunksDropped++
		return false
	}

	s.open.append(data)
	s.chunksAccepted++
	return true
}

// FlushIfDue seals the open utterance when the silence deadline has passed
// or the utterance exceeded its duration cap. The second return value
// reports whether a flush happened; a nil utterance with a true flag means
// an empty utterance was dropped.
func (s *Segmenter) FlushIfDue(now time.Time) (*Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording || s.open == nil {
		return nil, false
	}

	silenceDue := !s.silenceSince.IsZero() && !now.Before(s.lastVoice.Add(s.config.SilenceTimeout))
	maxDue := now.Sub(s.open.startedAt) >= s.config.MaxUtteranceDuration

	if !silenceDue && !maxDue {
		return nil, false
	}

	return s.sealLocked(now), true
}

// ForceFlush seals whatever is buffered regardless of deadlines. Used on
// graceful stop so trailing speech is not lost.
func (s *Segmenter) ForceFlush(now time.Time) *Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording || s.open == nil {
		return nil
	}

	return s.sealLocked(now)
}

// Abort discards the open utterance without delivery. Called when the
// capture device fails mid-utterance: a truncated buffer is never sent.
func (s *Segmenter) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open = nil
	s.silenceSince = time.Time{}
	s.state = StateIdle
}

// State returns the current state
func (s *Segmenter) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// GetStats returns current segmenter statistics
func (s *Segmenter) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		State:            s.state.String(),
		UtterancesSealed: s.utterancesSealed,
		EmptyUtterances:  s.emptyUtterances,
		ChunksAccepted:   s.chunksAccepted,
		ChunksDropped:    s.chunksDropped,
	}

	if s.open != nil {
		stats.OpenChunks = len(s.open.chunks)
		stats.OpenBytes = s.open.bytes
	}

	return stats
}

// sealLocked finalizes the open utterance and resets to idle.
// Caller holds s.mu.
func (s *Segmenter) sealLocked(now time.Time) *Utterance {
	s.state = StateFlushing

	utterance := s.open.seal(now, s.config.SampleRate)
	s.open = nil
	s.silenceSince = time.Time{}
	s.state = StateIdle

	if utterance == nil {
		s.emptyUtterances++
		return nil
	}

	s.utterancesSealed++
	return utterance
}
