package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Session
	if cfg.Session.APIKey == "" {
		errs = append(errs, errors.New("session.api_key is required"))
	}
	if cfg.Session.BaseURL != "" && !strings.HasPrefix(cfg.Session.BaseURL, "ws") {
		errs = append(errs, fmt.Errorf("session.base_url %q must be a ws:// or wss:// URL", cfg.Session.BaseURL))
	}
	gen := cfg.Session.Generation
	if gen.Temperature < 0 || gen.Temperature > 2 {
		errs = append(errs, fmt.Errorf("session.generation.temperature %.2f is out of range [0, 2]", gen.Temperature))
	}
	if gen.TopP < 0 || gen.TopP > 1 {
		errs = append(errs, fmt.Errorf("session.generation.top_p %.2f is out of range [0, 1]", gen.TopP))
	}
	if gen.TopK < 0 {
		errs = append(errs, fmt.Errorf("session.generation.top_k %d must not be negative", gen.TopK))
	}
	if gen.MaxOutputTokens < 0 {
		errs = append(errs, fmt.Errorf("session.generation.max_output_tokens %d must not be negative", gen.MaxOutputTokens))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 {
		errs = append(errs, fmt.Errorf("audio.channels %d must not be negative", cfg.Audio.Channels))
	}
	if cfg.Audio.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must not be negative", cfg.Audio.BlockSize))
	}
	switch cfg.Audio.LatencyHint {
	case "", "interactive", "balanced", "playback":
	default:
		errs = append(errs, fmt.Errorf("audio.latency_hint %q is invalid; valid values: interactive, balanced, playback", cfg.Audio.LatencyHint))
	}

	return errors.Join(errs...)
}
