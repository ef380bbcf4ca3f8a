// Package audio provides loudness metering and WAV encoding for the capture
// pipeline. Loudness is reported on a 0-255 scale so analyzer byte buffers
// and PCM-derived levels share the sensitivity threshold's units.
package audio
