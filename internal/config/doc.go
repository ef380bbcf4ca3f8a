// Package config provides configuration loading and validation for the voice
// capture segmenter. It handles YAML-based configuration with per-section
// struct validation and duration helpers for all tunable pipeline constants.
package config
