// Package audio implements the capture-side half of Voxwire: a block-based
// processing pipeline that owns one capture device stream, computes per-block
// quality metrics, and recovers automatically from device failures with
// exponential backoff.
//
// The two boundary abstractions are:
//
//   - [Device] — acquires a capture stream for a given [Config].
//   - [Stream] — delivers fixed-size sample blocks until stopped or failed.
//
// Production device adapters (e.g. audio/rawfile) implement these; tests use
// the mock package.
package audio

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a [Pipeline].
type Status int

const (
	// StatusInactive means no capture stream is held. Initial state, and the
	// state after Cleanup.
	StatusInactive Status = iota

	// StatusInitializing means an Initialize call is acquiring the device.
	StatusInitializing

	// StatusActive means blocks are being captured and processed.
	StatusActive

	// StatusRecovering means a recoverable failure occurred and the pipeline
	// is between backoff and re-acquisition.
	StatusRecovering

	// StatusError is the terminal failure state. Sticky until an explicit new
	// Initialize call.
	StatusError
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusInitializing:
		return "initializing"
	case StatusActive:
		return "active"
	case StatusRecovering:
		return "recovering"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Default capture parameters.
const (
	DefaultSampleRate  = 44100
	DefaultChannels    = 1
	DefaultLatencyHint = "interactive"
	DefaultBlockSize   = 4096
)

// Config describes the capture constraints requested from the device.
// It is immutable for the duration of a pipeline run; Initialize merges the
// caller's values over [DefaultConfig].
type Config struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is the capture channel count.
	Channels int

	// EchoCancellation, NoiseSuppression and AutoGainControl request the
	// corresponding device-side processing.
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool

	// LatencyHint is passed to the device ("interactive", "balanced",
	// "playback").
	LatencyHint string
}

// DefaultConfig returns the default capture configuration: 44.1 kHz mono with
// all device-side enhancement enabled.
func DefaultConfig() Config {
	return Config{
		SampleRate:       DefaultSampleRate,
		Channels:         DefaultChannels,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		LatencyHint:      DefaultLatencyHint,
	}
}

// merged fills zero-valued fields of c from [DefaultConfig]. The boolean
// enhancement flags are taken as given: false is a valid caller choice.
func (c Config) merged() Config {
	def := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = def.Channels
	}
	if c.LatencyHint == "" {
		c.LatencyHint = def.LatencyHint
	}
	return c
}

// Metrics holds the per-block quality measurements.
type Metrics struct {
	// RMS is sqrt(mean of squared samples).
	RMS float64

	// Peak is the largest absolute sample amplitude in the block.
	Peak float64

	// Average is the mean of squared samples — the RMS radicand, not the
	// mean absolute amplitude. Kept with this definition deliberately; see
	// ComputeMetrics.
	Average float64

	// Clipping is true iff Peak exceeds 0.99 of full scale.
	Clipping bool

	// SNR is 10·log10(RMS² / noiseFloor²) in dB, with a fixed 1e-4 noise
	// floor.
	SNR float64
}

// Block is one fixed-size chunk of captured audio plus its metrics.
// Ownership of Samples transfers to the consumer on emission; the pipeline
// does not retain or reuse the slice.
type Block struct {
	// Samples are float amplitude values in [-1, 1].
	Samples []float32

	// Metrics are the measurements computed over Samples.
	Metrics Metrics

	// Timestamp is when the block was processed.
	Timestamp time.Time

	// Channels is the channel count the block was captured with.
	Channels int
}

// ErrorKind classifies pipeline failures. Each kind has a fixed
// recoverability.
type ErrorKind int

const (
	// KindContextCreationFailed means the capture context could not be
	// created. Not recoverable.
	KindContextCreationFailed ErrorKind = iota

	// KindStreamCreationFailed means the device refused to provide a stream.
	// Recoverable.
	KindStreamCreationFailed

	// KindPipelineSetupFailed means the processing stage could not be wired.
	// Not recoverable.
	KindPipelineSetupFailed

	// KindStreamEnded means an active stream terminated unexpectedly.
	// Recoverable.
	KindStreamEnded

	// KindUnknown covers unclassified failures, including per-block
	// processing panics. Recoverable.
	KindUnknown
)

// String returns the human-readable name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindContextCreationFailed:
		return "context_creation_failed"
	case KindStreamCreationFailed:
		return "stream_creation_failed"
	case KindPipelineSetupFailed:
		return "pipeline_setup_failed"
	case KindStreamEnded:
		return "stream_ended"
	default:
		return "unknown"
	}
}

// Recoverable reports whether failures of this kind may be retried.
// Context creation and pipeline wiring failures are fatal; the rest are
// retryable.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindContextCreationFailed, KindPipelineSetupFailed:
		return false
	}
	return true
}

// Error is a classified pipeline failure.
type Error struct {
	// Kind classifies the failure and fixes its recoverability.
	Kind ErrorKind

	// Err is the underlying cause. May be nil.
	Err error
}

// NewError wraps err with the given kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("audio: %s", e.Kind)
	}
	return fmt.Sprintf("audio: %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether the pipeline may retry after this error.
func (e *Error) Recoverable() bool { return e.Kind.Recoverable() }
