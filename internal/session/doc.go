// Package session wires capture, voice activity detection, segmentation
// and transport into one running pipeline. All pipeline decisions happen
// on a single event loop goroutine.
package session
