package vad

import (
	"fmt"
	"sync"
	"time"
)

// Sensitivity threshold bounds on the 0-255 loudness scale.
const (
	MinSensitivity = 10
	MaxSensitivity = 50
)

// DefaultLookback is the trailing window within which a voice tick keeps
// counting as "recent voice".
const DefaultLookback = 3 * time.Second

// Detector classifies loudness samples as voice or silence and tracks
// recent voice activity. A single loud sample counts as recent voice for
// the full lookback duration; there is no hysteresis beyond time-based
// pruning of the window.
type Detector struct {
	sensitivity int
	lookback    time.Duration

	// Trailing voice-activity window, ordered oldest first.
	window    []time.Time
	lastVoice time.Time

	// Statistics
	ticksSampled uint64
	voiceTicks   uint64

	mu sync.RWMutex
}

// DetectorStats represents detector statistics for monitoring
type DetectorStats struct {
	Sensitivity     int       `json:"sensitivity"`
	TicksSampled    uint64    `json:"ticks_sampled"`
	VoiceTicks      uint64    `json:"voice_ticks"`
	VoicePercentage float64   `json:"voice_percentage"`
	WindowSize      int       `json:"window_size"`
	LastVoice       time.Time `json:"last_voice,omitempty"`
}

// NewDetector creates a detector with the given sensitivity threshold.
// A non-positive lookback selects DefaultLookback.
func NewDetector(sensitivity int, lookback time.Duration) (*Detector, error) {
	if sensitivity < MinSensitivity || sensitivity > MaxSensitivity {
		return nil, fmt.Errorf("sensitivity must be between %d and %d, got %d",
			MinSensitivity, MaxSensitivity, sensitivity)
	}

	if lookback <= 0 {
		lookback = DefaultLookback
	}

	return &Detector{
		sensitivity: sensitivity,
		lookback:    lookback,
	}, nil
}

// Sample classifies one loudness reading taken at now. A voice result
// records now into the trailing window and updates the last-voice
// timestamp; a silence result leaves prior voice ticks untouched.
func (d *Detector) Sample(loudness float64, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ticksSampled++

	isVoice := loudness > float64(d.sensitivity)
	if isVoice {
		d.voiceTicks++
		d.window = append(d.window, now)
		d.lastVoice = now
	}

	d.prune(now)
	return isVoice
}

// HasRecentVoice reports whether any voice tick remains within the
// lookback window of now. Entries older than the lookback are evicted.
func (d *Detector) HasRecentVoice(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.prune(now)
	return len(d.window) > 0
}

// LastVoice returns the most recent voice timestamp, if any.
func (d *Detector) LastVoice() (time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.lastVoice, !d.lastVoice.IsZero()
}

// SetSensitivity updates the threshold. The change applies from the next
// sample; chunks already classified are never revisited.
func (d *Detector) SetSensitivity(sensitivity int) error {
	if sensitivity < MinSensitivity || sensitivity > MaxSensitivity {
		return fmt.Errorf("sensitivity must be between %d and %d, got %d",
			MinSensitivity, MaxSensitivity, sensitivity)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.sensitivity = sensitivity
	return nil
}

// Sensitivity returns the current threshold.
func (d *Detector) Sensitivity() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.sensitivity
}

// Lookback returns the trailing window duration.
func (d *Detector) Lookback() time.Duration {
	return d.lookback
}

// Reset clears the activity window and statistics.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.window = nil
	d.lastVoice = time.Time{}
	d.ticksSampled = 0
	d.voiceTicks = 0
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	voicePercentage := float64(0)
	if d.ticksSampled > 0 {
		voicePercentage = float64(d.voiceTicks) / float64(d.ticksSampled) * 100
	}

	return DetectorStats{
		Sensitivity:     d.sensitivity,
		TicksSampled:    d.ticksSampled,
		VoiceTicks:      d.voiceTicks,
		VoicePercentage: voicePercentage,
		WindowSize:      len(d.window),
		LastVoice:       d.lastVoice,
	}
}

// prune evicts window entries older than the lookback. Caller holds d.mu.
func (d *Detector) prune(now time.Time) {
	cutoff := now.Add(-d.lookback)

	i := 0
	for i < len(d.window) && !d.window[i].After(cutoff) {
		i++
	}

	if i > 0 {
		d.window = append(d.window[:0], d.window[i:]...)
	}
}
