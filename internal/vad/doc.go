// Package vad provides loudness-threshold voice activity detection.
// It classifies periodic loudness samples against a runtime-tunable
// sensitivity threshold and tracks a trailing window of recent voice
// activity timestamps.
package vad
