package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/longduongbao29/Translator-app-sub001/internal/audio"
)

// readFrame is the granularity of reads from the source. Short frames keep
// the level meter responsive and bound how long Stop waits on a read.
const readFrameInterval = 100 * time.Millisecond

// PCMConfig describes the raw stream a PCMDevice reads.
type PCMConfig struct {
	SampleRate    int
	Channels      int
	ChunkInterval time.Duration
}

// PCMDevice captures 16-bit little-endian PCM from an io.Reader, such as a
// sound server pipe or a recording process's stdout, and groups it into
// fixed-interval chunks.
type PCMDevice struct {
	config PCMConfig
	reader io.Reader
	logger *slog.Logger

	chunks chan Chunk
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	level   float64
	err     error
	started bool
}

// NewPCMDevice creates a device reading from r.
func NewPCMDevice(r io.Reader, config PCMConfig, logger *slog.Logger) *PCMDevice {
	if logger == nil {
		logger = slog.Default()
	}

	return &PCMDevice{
		config: config,
		reader: r,
		logger: logger,
		chunks: make(chan Chunk, 4),
	}
}

// Start begins reading from the source.
func (d *PCMDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("device already started")
	}
	if d.reader == nil {
		return ErrDeviceUnavailable
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.started = true

	d.wg.Add(1)
	go d.readLoop(ctx)

	d.logger.Info("Capture started",
		"sample_rate", d.config.SampleRate,
		"channels", d.config.Channels,
		"chunk_interval", d.config.ChunkInterval)

	return nil
}

// Stop halts capturing. The chunk channel closes once the read loop exits.
func (d *PCMDevice) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.wg.Wait()

	d.logger.Info("Capture stopped")
	return nil
}

// Chunks returns the channel delivering captured audio.
func (d *PCMDevice) Chunks() <-chan Chunk {
	return d.chunks
}

// Level returns the most recent input loudness on a 0-255 scale.
func (d *PCMDevice) Level() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.level
}

// Err returns the failure that ended capturing, or nil for a clean stop.
func (d *PCMDevice) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

func (d *PCMDevice) readLoop(ctx context.Context) {
	defer d.wg.Done()
	defer close(d.chunks)

	bytesPerSecond := d.config.SampleRate * d.config.Channels * 2
	frameBytes := bytesPerSecond * int(readFrameInterval) / int(time.Second)
	chunkBytes := bytesPerSecond * int(d.config.ChunkInterval) / int(time.Second)

	frame := make([]byte, frameBytes)
	pending := make([]byte, 0, chunkBytes)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := io.ReadFull(d.reader, frame)
		if n > 0 {
			d.updateLevel(frame[:n])
			pending = append(pending, frame[:n]...)
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Source drained cleanly, deliver the remainder.
				d.emit(ctx, pending)
				return
			}

			d.setErr(fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
			d.logger.Error("Capture read failed", "error", err)
			return
		}

		for len(pending) >= chunkBytes {
			if !d.emit(ctx, pending[:chunkBytes]) {
				return
			}
			pending = pending[chunkBytes:]
		}
	}
}

// emit copies data into a Chunk and delivers it. Returns false when the
// context ended before delivery.
func (d *PCMDevice) emit(ctx context.Context, data []byte) bool {
	if len(data) == 0 {
		return true
	}

	chunk := Chunk{
		Data:     make([]byte, len(data)),
		Captured: time.Now(),
	}
	copy(chunk.Data, data)

	select {
	case d.chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *PCMDevice) updateLevel(data []byte) {
	samples, err := audio.BytesToSamples(data)
	if err != nil {
		return
	}

	level := audio.MeterLevel(samples)

	d.mu.Lock()
	d.level = level
	d.mu.Unlock()
}

func (d *PCMDevice) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}
