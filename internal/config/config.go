package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Capture   CaptureConfig   `yaml:"capture"`
	VAD       VADConfig       `yaml:"vad"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Transport TransportConfig `yaml:"transport"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CaptureConfig contains capture device parameters
type CaptureConfig struct {
	Source          string `yaml:"source"`            // "stdin" or a file path
	SampleRate      int    `yaml:"sample_rate"`       // Hz
	Channels        int    `yaml:"channels"`          // mono only
	BitDepth        int    `yaml:"bit_depth"`         // PCM-16 only
	ChunkIntervalMs int    `yaml:"chunk_interval_ms"` // recorder chunk cadence
	Format          string `yaml:"format"`            // "wav" or "pcm"
}

// VADConfig contains voice activity detection configuration
type VADConfig struct {
	Sensitivity      int     `yaml:"sensitivity"`        // loudness threshold, 10-50
	SampleIntervalMs int     `yaml:"sample_interval_ms"` // sampling tick cadence
	LookbackSeconds  float64 `yaml:"lookback_seconds"`   // trailing voice window
}

// SegmenterConfig contains utterance segmentation configuration
type SegmenterConfig struct {
	SilenceTimeoutMs    int     `yaml:"silence_timeout_ms"`
	MinChunkBytes       int     `yaml:"min_chunk_bytes"`
	MaxUtteranceSeconds float64 `yaml:"max_utterance_seconds"`
}

// TransportConfig contains transcription transport configuration
type TransportConfig struct {
	Mode                  string `yaml:"mode"`     // "socket" or "rest"
	Endpoint              string `yaml:"endpoint"` // ws:// or wss:// URL for socket mode
	RestEndpoint          string `yaml:"rest_endpoint"`
	APIKey                string `yaml:"api_key"`
	Language              string `yaml:"language"` // "auto" or ISO-639 code
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
	SendTimeoutSeconds    int    `yaml:"send_timeout_seconds"`
}

// HTTPConfig contains the monitoring API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (cc *CaptureConfig) Validate() error {
	if cc.Source == "" {
		return fmt.Errorf("source cannot be empty (use \"stdin\" or a file path)")
	}

	if cc.SampleRate != 8000 && cc.SampleRate != 16000 && cc.SampleRate != 48000 {
		return fmt.Errorf("sample_rate must be 8000, 16000 or 48000 Hz, got %d", cc.SampleRate)
	}

	if cc.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", cc.Channels)
	}

	if cc.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", cc.BitDepth)
	}

	if cc.ChunkIntervalMs < 100 || cc.ChunkIntervalMs > 10000 {
		return fmt.Errorf("chunk_interval_ms must be between 100 and 10000, got %d", cc.ChunkIntervalMs)
	}

	validFormats := map[string]bool{"wav": true, "pcm": true}
	if !validFormats[cc.Format] {
		return fmt.Errorf("format must be 'wav' or 'pcm', got '%s'", cc.Format)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Sensitivity < 10 || v.Sensitivity > 50 {
		return fmt.Errorf("sensitivity must be between 10 and 50, got %d", v.Sensitivity)
	}

	if v.SampleIntervalMs < 10 || v.SampleIntervalMs > 1000 {
		return fmt.Errorf("sample_interval_ms must be between 10 and 1000, got %d", v.SampleIntervalMs)
	}

	if v.LookbackSeconds <= 0 {
		return fmt.Errorf("lookback_seconds must be positive, got %f", v.LookbackSeconds)
	}

	return nil
}

// Validate validates segmenter configuration
func (s *SegmenterConfig) Validate() error {
	if s.SilenceTimeoutMs < 100 {
		return fmt.Errorf("silence_timeout_ms must be at least 100, got %d", s.SilenceTimeoutMs)
	}

	if s.MinChunkBytes < 0 {
		return fmt.Errorf("min_chunk_bytes cannot be negative, got %d", s.MinChunkBytes)
	}

	if s.MaxUtteranceSeconds <= float64(s.SilenceTimeoutMs)/1000 {
		return fmt.Errorf("max_utterance_seconds (%f) must be greater than silence_timeout_ms (%d ms)",
			s.MaxUtteranceSeconds, s.SilenceTimeoutMs)
	}

	return nil
}

// Validate validates transport configuration
func (t *TransportConfig) Validate() error {
	switch t.Mode {
	case "socket":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty in socket mode")
		}
	case "rest":
		if t.RestEndpoint == "" {
			return fmt.Errorf("rest_endpoint cannot be empty in rest mode")
		}
	default:
		return fmt.Errorf("mode must be 'socket' or 'rest', got '%s'", t.Mode)
	}

	if t.Language == "" {
		return fmt.Errorf("language cannot be empty (use \"auto\" or an ISO-639 code)")
	}

	if t.ConnectTimeoutSeconds < 1 {
		return fmt.Errorf("connect_timeout_seconds must be at least 1, got %d", t.ConnectTimeoutSeconds)
	}

	if t.SendTimeoutSeconds < 1 {
		return fmt.Errorf("send_timeout_seconds must be at least 1, got %d", t.SendTimeoutSeconds)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkInterval returns the recorder chunk cadence as a time.Duration
func (cc *CaptureConfig) GetChunkInterval() time.Duration {
	return time.Duration(cc.ChunkIntervalMs) * time.Millisecond
}

// GetSampleInterval returns the VAD sampling cadence as a time.Duration
func (v *VADConfig) GetSampleInterval() time.Duration {
	return time.Duration(v.SampleIntervalMs) * time.Millisecond
}

// GetLookback returns the trailing voice window as a time.Duration
func (v *VADConfig) GetLookback() time.Duration {
	return time.Duration(v.LookbackSeconds * float64(time.Second))
}

// GetSilenceTimeout returns the silence timeout as a time.Duration
func (s *SegmenterConfig) GetSilenceTimeout() time.Duration {
	return time.Duration(s.SilenceTimeoutMs) * time.Millisecond
}

// GetMaxUtteranceDuration returns the utterance duration cap as a time.Duration
func (s *SegmenterConfig) GetMaxUtteranceDuration() time.Duration {
	return time.Duration(s.MaxUtteranceSeconds * float64(time.Second))
}

// GetConnectTimeout returns the transport connect timeout as a time.Duration
func (t *TransportConfig) GetConnectTimeout() time.Duration {
	return time.Duration(t.ConnectTimeoutSeconds) * time.Second
}

// GetSendTimeout returns the transport send timeout as a time.Duration
func (t *TransportConfig) GetSendTimeout() time.Duration {
	return time.Duration(t.SendTimeoutSeconds) * time.Second
}
