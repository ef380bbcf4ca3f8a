package audio

import (
	"fmt"
	"math"
)

// MaxLevel is the upper bound of the loudness scale. Analyzer buffers carry
// unsigned byte magnitudes, so every level in the pipeline lives in [0, 255].
const MaxLevel = 255

// AverageLevel computes the scalar average loudness of an analyzer byte
// buffer. An empty buffer (no audio source attached) reports zero.
func AverageLevel(buf []byte) float64 {
	if len(buf) == 0 {
		return 0
	}

	var sum uint64
	for _, b := range buf {
		sum += uint64(b)
	}

	return float64(sum) / float64(len(buf))
}

// RMSLevel computes the root-mean-square energy of PCM-16 samples,
// normalized to [0.0, 1.0].
func RMSLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}

	rms := math.Sqrt(energy / float64(len(samples)))
	return rms / 32768.0
}

// MeterLevel maps PCM-16 samples onto the 0-255 loudness scale used by the
// voice activity detector.
func MeterLevel(samples []int16) float64 {
	return RMSLevel(samples) * MaxLevel
}

// BytesToSamples converts little-endian PCM-16 bytes into samples.
// The input length must be even.
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even, got %d bytes", len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}

	return samples, nil
}

// SamplesToBytes converts PCM-16 samples into little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(uint16(s) >> 8)
	}

	return data
}
