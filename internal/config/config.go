// Package config provides the configuration schema and YAML loader for the
// Voxwire client.
package config

import (
	"log/slog"

	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/session"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a slog level. Unset or unknown values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for Voxwire.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
}

// ServerConfig holds network and logging settings for the local HTTP surface
// (health and metrics endpoints).
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// SessionConfig holds the streaming session settings.
type SessionConfig struct {
	// APIKey authenticates against the remote service. Required.
	APIKey string `yaml:"api_key"`

	// Model overrides the generative model (default gemini-2.0-flash-exp).
	Model string `yaml:"model"`

	// BaseURL overrides the WebSocket endpoint prefix.
	BaseURL string `yaml:"base_url"`

	// SystemInstruction is an optional system prompt.
	SystemInstruction string `yaml:"system_instruction"`

	// Generation tunes response generation. Zero-valued fields default.
	Generation GenerationConfig `yaml:"generation"`
}

// GenerationConfig mirrors the session generation tuning knobs.
type GenerationConfig struct {
	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	TopK            int     `yaml:"top_k"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// AudioConfig holds the capture settings.
type AudioConfig struct {
	// SampleRate in Hz (default 44100).
	SampleRate int `yaml:"sample_rate"`

	// Channels is the capture channel count (default 1).
	Channels int `yaml:"channels"`

	// Device-side enhancement flags. Unset means enabled.
	EchoCancellation *bool `yaml:"echo_cancellation"`
	NoiseSuppression *bool `yaml:"noise_suppression"`
	AutoGainControl  *bool `yaml:"auto_gain_control"`

	// LatencyHint is passed to the device (default "interactive").
	LatencyHint string `yaml:"latency_hint"`

	// BlockSize is the per-block sample count (default 4096).
	BlockSize int `yaml:"block_size"`

	// InputPath is the PCM source for the file-backed capture device.
	// Empty means stdin.
	InputPath string `yaml:"input_path"`
}

// Capture converts the YAML audio section into a capture configuration,
// resolving unset enhancement flags to enabled.
func (a AudioConfig) Capture() audio.Config {
	return audio.Config{
		SampleRate:       a.SampleRate,
		Channels:         a.Channels,
		EchoCancellation: boolOr(a.EchoCancellation, true),
		NoiseSuppression: boolOr(a.NoiseSuppression, true),
		AutoGainControl:  boolOr(a.AutoGainControl, true),
		LatencyHint:      a.LatencyHint,
	}
}

// SessionSettings converts the YAML session section into a session
// configuration.
func (s SessionConfig) SessionSettings() session.Config {
	return session.Config{
		SystemInstruction: s.SystemInstruction,
		Generation: session.GenerationConfig{
			Temperature:     s.Generation.Temperature,
			TopP:            s.Generation.TopP,
			TopK:            s.Generation.TopK,
			MaxOutputTokens: s.Generation.MaxOutputTokens,
		},
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
