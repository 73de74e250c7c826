// Package mock provides in-memory implementations of [audio.Device] and
// [audio.Stream] for unit tests.
//
// The mocks record every call so tests can assert on call counts and
// arguments, and expose exported fields that control return values. Open
// outcomes are scripted: each call consumes the next entry of OpenErrors
// (nil means success), so failure-then-recovery sequences are expressed
// directly.
//
// Typical usage:
//
//	dev := &mock.Device{}
//	stream := dev.NextStream() // pre-create to push blocks later
//	p := audio.NewPipeline(dev)
//	_ = p.Initialize(ctx, audio.Config{})
//	stream.Push([]float32{0.5, -0.5})
package mock

import (
	"context"
	"sync"

	"github.com/voxwire/voxwire/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream]. Tests feed blocks with
// [Stream.Push] and terminate it with [Stream.Fail] or Stop.
type Stream struct {
	mu sync.Mutex

	// StopError is returned by Stop.
	StopError error

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	blocks chan []float32
	err    error
	closed bool
}

// NewStream creates a mock stream with a buffered block channel.
func NewStream() *Stream {
	return &Stream{blocks: make(chan []float32, 64)}
}

// Blocks implements [audio.Stream].
func (s *Stream) Blocks() <-chan []float32 { return s.blocks }

// Err implements [audio.Stream]. Returns the error set by [Stream.Fail].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop implements [audio.Stream]. Closes the block channel on first call.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	if !s.closed {
		s.closed = true
		close(s.blocks)
	}
	return s.StopError
}

// Push delivers one block to the pipeline. No-op after the stream ended.
func (s *Stream) Push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.blocks <- samples
}

// Fail terminates the stream with err, simulating a device failure.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.blocks)
}

// ─── Device ───────────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Device.Open] invocation.
type OpenCall struct {
	// Config is the configuration passed to Open.
	Config audio.Config
}

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// OpenErrors is consumed one entry per Open call; a nil entry (or an
	// exhausted list) means the call succeeds with a fresh [Stream].
	OpenErrors []error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall

	// Streams holds every stream handed out, in order.
	Streams []*Stream

	next *Stream
}

// NextStream returns the stream the next successful Open will hand out,
// creating it on first use. Lets tests hold the stream before Initialize.
func (d *Device) NextStream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next == nil {
		d.next = NewStream()
	}
	return d.next
}

// Open implements [audio.Device].
func (d *Device) Open(_ context.Context, cfg audio.Config) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, OpenCall{Config: cfg})

	if len(d.OpenErrors) > 0 {
		err := d.OpenErrors[0]
		d.OpenErrors = d.OpenErrors[1:]
		if err != nil {
			return nil, err
		}
	}

	s := d.next
	d.next = nil
	if s == nil {
		s = NewStream()
	}
	d.Streams = append(d.Streams, s)
	return s, nil
}

// OpenCount returns how many times Open was called.
func (d *Device) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}
