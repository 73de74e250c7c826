package config

import (
	"strings"
	"testing"

	"github.com/voxwire/voxwire/pkg/audio"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
session:
  api_key: test-key
  model: gemini-2.0-flash-exp
  system_instruction: "be brief"
  generation:
    temperature: 0.5
    top_k: 10
audio:
  sample_rate: 16000
  channels: 1
  echo_cancellation: false
  block_size: 2048
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader = %v, want nil", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Session.APIKey != "test-key" {
		t.Errorf("api_key = %q, want test-key", cfg.Session.APIKey)
	}
	if cfg.Session.Generation.Temperature != 0.5 {
		t.Errorf("temperature = %v, want 0.5", cfg.Session.Generation.Temperature)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sample_rate = %d, want 16000", cfg.Audio.SampleRate)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	bad := `
session:
  api_key: k
  shenanigans: true
`
	if _, err := LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Error("LoadFromReader = nil for unknown field, want error")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Server.LogLevel = "verbose"
	cfg.Session.BaseURL = "http://not-a-socket"
	cfg.Session.Generation.Temperature = 3
	cfg.Audio.SampleRate = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate = nil, want joined errors")
	}
	for _, want := range []string{
		"server.log_level",
		"session.api_key",
		"session.base_url",
		"session.generation.temperature",
		"audio.sample_rate",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestAudioConfig_CaptureDefaultsFlagsOn(t *testing.T) {
	t.Parallel()

	var a AudioConfig
	got := a.Capture()
	if !got.EchoCancellation || !got.NoiseSuppression || !got.AutoGainControl {
		t.Errorf("Capture flags = %+v, want all enabled when unset", got)
	}

	off := false
	a.EchoCancellation = &off
	if a.Capture().EchoCancellation {
		t.Error("EchoCancellation = true, want explicit false respected")
	}
}

func TestAudioConfig_CaptureMapsFields(t *testing.T) {
	t.Parallel()

	a := AudioConfig{SampleRate: 16000, Channels: 2, LatencyHint: "balanced"}
	want := audio.Config{
		SampleRate:       16000,
		Channels:         2,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		LatencyHint:      "balanced",
	}
	if got := a.Capture(); got != want {
		t.Errorf("Capture = %+v, want %+v", got, want)
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()

	if LogDebug.Level().String() != "DEBUG" {
		t.Errorf("debug level = %v", LogDebug.Level())
	}
	if LogLevel("").Level().String() != "INFO" {
		t.Errorf("unset level = %v, want INFO", LogLevel("").Level())
	}
}
