package events

import "sync"

// MessageKind selects the cloudevent type of a published message.
type MessageKind string

type envelope struct {
	kind MessageKind
	data []byte
}

// eventQueue is a bounded FIFO between the publishers and the transport
// writer. Enqueue never blocks the pipeline: when the queue is full the
// oldest message is dropped. That is acceptable because progress snapshots
// are idempotent state and the audit trail's source of truth is the store;
// the event copies are best-effort.
type eventQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []envelope
	capacity int
	closed   bool
	dropped  int64
}

func newEventQueue(capacity int) *eventQueue {
	q := &eventQueue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *eventQueue) Enqueue(kind MessageKind, data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if len(q.items) == q.capacity {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, envelope{kind: kind, data: data})
	q.cond.Signal()
}

// Dequeue blocks until a message is available. The second return is false
// once the queue is closed and fully drained.
func (q *eventQueue) Dequeue() (envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return envelope{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// Close stops accepting messages; queued ones can still be dequeued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *eventQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
