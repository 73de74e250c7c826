// Package mock provides in-memory implementations of [session.Transport] and
// [session.Conn] for unit tests.
//
// The mocks record every call so tests can assert on call counts and
// arguments, and expose exported fields that control return values. Dial and
// Write outcomes are scripted: each call consumes the next entry of
// DialErrors/WriteErrors (nil means success), so failure-then-recovery
// sequences are expressed directly.
//
// Typical usage:
//
//	tr := &mock.Transport{}
//	conn := tr.NextConn() // pre-create to script reads
//	m := session.NewManager("key", session.WithTransport(tr))
//	_ = m.Connect(ctx, session.Config{})
//	conn.QueueRead([]byte(`{...}`))
package mock

import (
	"context"
	"sync"

	"github.com/voxwire/voxwire/pkg/session"
)

// ─── Conn ─────────────────────────────────────────────────────────────────────

type readResult struct {
	data []byte
	err  error
}

// Conn is a mock implementation of [session.Conn]. Tests feed inbound frames
// with [Conn.QueueRead] and terminate the read stream with [Conn.FailRead].
type Conn struct {
	mu sync.Mutex

	// WriteErrors is consumed one entry per Write call; a nil entry (or an
	// exhausted list) means the write succeeds.
	WriteErrors []error

	// PingError is returned by every Ping call.
	PingError error

	// Written records every successfully offered Write payload, including
	// the setup handshake.
	Written [][]byte

	// CallCountPing records how many times Ping was called.
	CallCountPing int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// CloseCode and CloseReason record the arguments of the first Close.
	CloseCode   int
	CloseReason string

	reads  chan readResult
	done   chan struct{}
	closed bool
}

// NewConn creates a mock connection with a buffered read queue.
func NewConn() *Conn {
	return &Conn{
		reads: make(chan readResult, 64),
		done:  make(chan struct{}),
	}
}

// QueueRead delivers one inbound frame to the next Read call.
func (c *Conn) QueueRead(data []byte) {
	c.reads <- readResult{data: data}
}

// FailRead makes the next Read call return err, simulating a dropped or
// closed connection.
func (c *Conn) FailRead(err error) {
	c.reads <- readResult{err: err}
}

// Read implements [session.Conn].
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case r := <-c.reads:
		return r.data, r.err
	case <-c.done:
		c.mu.Lock()
		code := c.CloseCode
		c.mu.Unlock()
		return nil, &session.CloseError{Code: code, Reason: "closed by test"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements [session.Conn].
func (c *Conn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.WriteErrors) > 0 {
		err := c.WriteErrors[0]
		c.WriteErrors = c.WriteErrors[1:]
		if err != nil {
			return err
		}
	}
	c.Written = append(c.Written, data)
	return nil
}

// WrittenCount returns how many payloads were written successfully.
func (c *Conn) WrittenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Written)
}

// WrittenAt returns the i-th successfully written payload.
func (c *Conn) WrittenAt(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Written[i]
}

// Ping implements [session.Conn].
func (c *Conn) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountPing++
	return c.PingError
}

// PingCount returns how many times Ping was called.
func (c *Conn) PingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountPing
}

// Close implements [session.Conn]. The first call records its arguments and
// unblocks pending reads with a matching [session.CloseError].
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	if !c.closed {
		c.closed = true
		c.CloseCode = code
		c.CloseReason = reason
		close(c.done)
	}
	return nil
}

// ─── Transport ────────────────────────────────────────────────────────────────

// Transport is a mock implementation of [session.Transport].
type Transport struct {
	mu sync.Mutex

	// DialErrors is consumed one entry per Dial call; a nil entry (or an
	// exhausted list) means the call succeeds with a fresh [Conn].
	DialErrors []error

	// DialURLs records the URL of every Dial invocation.
	DialURLs []string

	// Conns holds every connection handed out, in order.
	Conns []*Conn

	next *Conn
}

// NextConn returns the connection the next successful Dial will hand out,
// creating it on first use. Lets tests script reads before Connect.
func (t *Transport) NextConn() *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.next == nil {
		t.next = NewConn()
	}
	return t.next
}

// Dial implements [session.Transport].
func (t *Transport) Dial(ctx context.Context, url string) (session.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.DialURLs = append(t.DialURLs, url)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(t.DialErrors) > 0 {
		err := t.DialErrors[0]
		t.DialErrors = t.DialErrors[1:]
		if err != nil {
			return nil, err
		}
	}

	c := t.next
	t.next = nil
	if c == nil {
		c = NewConn()
	}
	t.Conns = append(t.Conns, c)
	return c, nil
}

// DialCount returns how many times Dial was called.
func (t *Transport) DialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.DialURLs)
}
