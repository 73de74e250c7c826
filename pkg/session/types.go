// Package session implements the streaming session manager: a resilient
// duplex WebSocket client for a BidiGenerateContent-style generative endpoint.
//
// The [Manager] owns exactly one connection at a time and drives a connection
// automaton (Disconnected, Connecting, Connected, Reconnecting, Error). It
// enforces an outbound rate limit over a sliding window, queues undelivered
// frames in FIFO order with head retry, issues periodic liveness pings, and
// reconnects with exponential backoff after unexpected closes. Status,
// message and error events are broadcast through typed dispatchers.
package session

import (
	"fmt"
	"time"
)

// ─── Connection status ─────────────────────────────────────────────────────────

// Status is the connection state of a [Manager].
type Status int

const (
	// StatusDisconnected is the initial inert state, also reached by Cleanup.
	StatusDisconnected Status = iota

	// StatusConnecting means a dial and setup handshake are in flight.
	StatusConnecting

	// StatusConnected means the session is live and frames flow.
	StatusConnected

	// StatusReconnecting means the connection was lost and the backoff loop
	// is attempting to restore it.
	StatusReconnecting

	// StatusError is the sticky terminal state after a non-recoverable
	// failure or an exhausted reconnect budget. Only a new Connect leaves it.
	StatusError
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ─── Session configuration ─────────────────────────────────────────────────────

// Generation defaults applied by [GenerationConfig.merged].
const (
	DefaultTemperature     = 0.7
	DefaultTopP            = 1.0
	DefaultTopK            = 40
	DefaultMaxOutputTokens = 1024
)

// GenerationConfig tunes the remote model's response generation. Zero-valued
// fields are replaced with the defaults at connect time, so the zero value
// asks for default behaviour. A literal zero temperature cannot be requested;
// none of the supported endpoints distinguish it from the default.
type GenerationConfig struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// merged returns a copy with defaults filled into zero-valued fields.
func (g GenerationConfig) merged() GenerationConfig {
	if g.Temperature == 0 {
		g.Temperature = DefaultTemperature
	}
	if g.TopP == 0 {
		g.TopP = DefaultTopP
	}
	if g.TopK == 0 {
		g.TopK = DefaultTopK
	}
	if g.MaxOutputTokens == 0 {
		g.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return g
}

// Config is supplied once per Connect call and retained for the lifetime of
// the session, including automatic reconnects.
type Config struct {
	// Generation tunes response generation. Zero-valued fields default.
	Generation GenerationConfig

	// SystemInstruction is an optional system prompt sent with the setup
	// handshake.
	SystemInstruction string
}

// ─── Events and errors ─────────────────────────────────────────────────────────

// Message is an inbound model turn. Text is the concatenation of the turn's
// text parts; Interrupted reports that the model's turn was cut short.
type Message struct {
	Text        string
	Interrupted bool
}

// ConnectionError describes a session failure: transport-level, parse-level
// or reported by the remote service.
type ConnectionError struct {
	// Message is a human-readable description.
	Message string

	// Code is the remote status code. Zero for local errors.
	Code int

	// Recoverable reports whether the automaton may retry past this error.
	// Remote errors are recoverable iff Code >= 500.
	Recoverable bool

	// Err is the underlying cause, if any.
	Err error
}

// NewConnectionError wraps err as a local recoverable-or-not session error.
func NewConnectionError(msg string, recoverable bool, err error) *ConnectionError {
	return &ConnectionError{Message: msg, Recoverable: recoverable, Err: err}
}

// remoteError builds a ConnectionError from a remote-reported failure.
// Codes >= 500 indicate service-side trouble worth retrying.
func remoteError(msg string, code int) *ConnectionError {
	return &ConnectionError{Message: msg, Code: code, Recoverable: code >= 500}
}

func (e *ConnectionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("session: %s (code %d)", e.Message, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("session: %s: %v", e.Message, e.Err)
	}
	return "session: " + e.Message
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ConnectionError) Unwrap() error { return e.Err }

// ─── Outbound queue entry ──────────────────────────────────────────────────────

// QueuedMessage is an opaque framed outbound payload awaiting delivery.
type QueuedMessage struct {
	// Payload is the full JSON frame as written to the wire.
	Payload []byte

	// EnqueuedAt records when the frame entered the queue.
	EnqueuedAt time.Time
}
