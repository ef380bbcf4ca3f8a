// Package protocol implements the binary frame format and JSON messages
// spoken over the transcription WebSocket.
package protocol
