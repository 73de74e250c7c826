package audio

import "context"

// Device is the entry point for a capture-hardware adapter. Implementations
// wrap a platform capture API and expose a uniform [Stream] abstraction.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Open acquires a capture stream honouring the given constraints. The
	// supplied ctx governs the lifetime of the acquisition attempt only; once
	// open, the Stream remains alive until [Stream.Stop] is called.
	//
	// Classify failures by returning an [*Error]; unclassified errors are
	// treated as stream creation failures.
	Open(ctx context.Context, cfg Config) (Stream, error)
}

// Stream is one active capture session delivering fixed-size sample blocks.
//
// Implementations must be safe for concurrent use.
type Stream interface {
	// Blocks returns the channel on which captured blocks arrive, one slice
	// per processing callback. The channel is closed when the stream ends,
	// whether by Stop or by device failure; check [Stream.Err] afterwards to
	// tell the two apart.
	Blocks() <-chan []float32

	// Err returns the failure that terminated the stream, or nil after a
	// clean Stop. Only valid once Blocks is closed.
	Err() error

	// Stop releases the device. Idempotent.
	Stop() error
}
