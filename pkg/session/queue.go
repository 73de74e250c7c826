package session

import "time"

// sendQueue is the FIFO outbound queue. Frames are never reordered: a failed
// send pushes its frame back to the head so it is retried before anything
// enqueued later. Not internally synchronised; the Manager mutates it under
// its own mutex.
type sendQueue struct {
	items []QueuedMessage
}

// push appends a frame to the tail.
func (q *sendQueue) push(payload []byte) {
	q.items = append(q.items, QueuedMessage{Payload: payload, EnqueuedAt: time.Now()})
}

// pushFront returns a frame to the head after a failed send.
func (q *sendQueue) pushFront(msg QueuedMessage) {
	q.items = append([]QueuedMessage{msg}, q.items...)
}

// pop removes and returns the head frame. ok is false when the queue is empty.
func (q *sendQueue) pop() (msg QueuedMessage, ok bool) {
	if len(q.items) == 0 {
		return QueuedMessage{}, false
	}
	msg = q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// len returns the number of queued frames.
func (q *sendQueue) len() int { return len(q.items) }

// clear drops all queued frames.
func (q *sendQueue) clear() { q.items = nil }
