package segmenter

import (
	"time"

	"github.com/google/uuid"
)

// Utterance is one continuous span of detected speech, sealed into a single
// audio payload ready for transport.
type Utterance struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	SealedAt   time.Time     `json:"sealed_at"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sample_rate"`
	Chunks     int           `json:"chunks"`
	Audio      []byte        `json:"-"`
}

// utteranceBuffer accumulates accepted chunks for the utterance currently
// being recorded. It is exclusively owned by the segmenter until sealed.
type utteranceBuffer struct {
	id        string
	startedAt time.Time
	chunks    [][]byte
	bytes     int
}

func newUtteranceBuffer(now time.Time) *utteranceBuffer {
	return &utteranceBuffer{
		id:        uuid.NewString(),
		startedAt: now,
	}
}

// append copies data into the buffer. Chunks arrive from a reused recorder
// buffer, so ownership is taken by copying.
func (b *utteranceBuffer) append(data []byte) {
	chunk := make([]byte, len(data))
	copy(chunk, data)

	b.chunks = append(b.chunks, chunk)
	b.bytes += len(chunk)
}

// seal concatenates the buffered chunks into one Utterance. Returns nil when
// no chunk was accepted: silence-only utterances are never delivered.
func (b *utteranceBuffer) seal(now time.Time, sampleRate int) *Utterance {
	if len(b.chunks) == 0 {
		return nil
	}

	audio := make([]byte, 0, b.bytes)
	for _, chunk := range b.chunks {
		audio = append(audio, chunk...)
	}

	return &Utterance{
		ID:         b.id,
		StartedAt:  b.startedAt,
		SealedAt:   now,
		Duration:   now.Sub(b.startedAt),
		SampleRate: sampleRate,
		Chunks:     len(b.chunks),
		Audio:      audio,
	}
}
