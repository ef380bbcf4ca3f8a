package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// LanguageAuto requests server-side language detection. Automatic detection
// is signalled by omitting the language field entirely.
const LanguageAuto = "auto"

// maxMetadataSize bounds the metadata section of an inbound frame.
const maxMetadataSize = 4096

// Server message types.
const (
	MessageTypeRealtime     = "realtime"
	MessageTypeFullSentence = "fullSentence"
	StatusConnected         = "connected"
)

// Metadata describes the audio payload of a frame.
type Metadata struct {
	SampleRate int    `json:"sampleRate"`
	Language   string `json:"language,omitempty"`
}

// NewMetadata builds frame metadata. The language field is left empty for
// automatic detection.
func NewMetadata(sampleRate int, language string) Metadata {
	if language == LanguageAuto {
		language = ""
	}
	return Metadata{
		SampleRate: sampleRate,
		Language:   language,
	}
}

// EncodeFrame assembles a binary audio frame: a 4-byte little-endian
// metadata length, the metadata JSON, then the raw audio payload.
func EncodeFrame(meta Metadata, payload []byte) ([]byte, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame metadata: %w", err)
	}

	frame := make([]byte, 4+len(metaJSON)+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(metaJSON)))
	copy(frame[4:], metaJSON)
	copy(frame[4+len(metaJSON):], payload)

	return frame, nil
}

// DecodeFrame splits a binary audio frame into its metadata and payload.
func DecodeFrame(frame []byte) (Metadata, []byte, error) {
	var meta Metadata

	if len(frame) < 4 {
		return meta, nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}

	metaLen := binary.LittleEndian.Uint32(frame)
	if metaLen > maxMetadataSize {
		return meta, nil, fmt.Errorf("frame metadata too large: %d bytes", metaLen)
	}
	if uint32(len(frame)-4) < metaLen {
		return meta, nil, fmt.Errorf("frame truncated: metadata length %d exceeds frame", metaLen)
	}

	if err := json.Unmarshal(frame[4:4+metaLen], &meta); err != nil {
		return meta, nil, fmt.Errorf("failed to unmarshal frame metadata: %w", err)
	}

	return meta, frame[4+metaLen:], nil
}

// ServerMessage is a JSON message received from the transcription server.
// Transcription messages carry type and text, the handshake carries status.
type ServerMessage struct {
	Type   string `json:"type,omitempty"`
	Text   string `json:"text,omitempty"`
	Status string `json:"status,omitempty"`
}

// ParseServerMessage decodes an inbound text message.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("failed to parse server message: %w", err)
	}
	return msg, nil
}

// IsTranscription reports whether the message carries transcription text.
func (m ServerMessage) IsTranscription() bool {
	return m.Type == MessageTypeRealtime || m.Type == MessageTypeFullSentence
}

// IsFinal reports whether the message closes a sentence.
func (m ServerMessage) IsFinal() bool {
	return m.Type == MessageTypeFullSentence
}
