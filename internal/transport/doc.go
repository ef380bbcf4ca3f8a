// Package transport delivers sealed utterance audio to the transcription
// backend and streams recognized text back. Connections are never retried:
// a failed transport surfaces its error and stays down until the caller
// builds a new one.
package transport
