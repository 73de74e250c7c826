package session

import "time"

// Rate-limit defaults: at most 100 sends per trailing 60 seconds.
const (
	DefaultRateLimit  = 100
	DefaultRateWindow = 60 * time.Second
)

// slidingWindow tracks send timestamps over a trailing window. It is not
// internally synchronised; the Manager mutates it under its own mutex.
type slidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time // injectable clock for tests

	stamps []time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{limit: limit, window: window, now: time.Now}
}

// allow reports whether one more send fits in the window right now. It does
// not record anything; call record after the send actually succeeds.
func (w *slidingWindow) allow() bool {
	w.prune()
	return len(w.stamps) < w.limit
}

// record accounts for one successful send.
func (w *slidingWindow) record() {
	w.stamps = append(w.stamps, w.now())
}

// len returns the number of sends still inside the window.
func (w *slidingWindow) len() int {
	w.prune()
	return len(w.stamps)
}

// reset drops all bookkeeping.
func (w *slidingWindow) reset() {
	w.stamps = nil
}

// prune drops timestamps that have aged out of the window.
func (w *slidingWindow) prune() {
	cutoff := w.now().Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
