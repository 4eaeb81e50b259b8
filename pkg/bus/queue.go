package bus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Receive after Unsubscribe.
var ErrQueueClosed = errors.New("queue closed")

// ErrReceiveTimeout is returned when Receive's timeout elapses with no
// message available.
var ErrReceiveTimeout = errors.New("receive timed out")

// Queue is an unbounded FIFO of messages for one subscribed agent. The bus
// appends serially per destination, so per-queue order is send order.
type Queue struct {
	mu     sync.Mutex
	items  []*Message
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func newQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push appends a message. Never blocks the sender; the queue is unbounded.
func (q *Queue) push(m *Message) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes the head message, or returns nil when empty.
func (q *Queue) pop() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m
}

// Receive blocks until a message arrives, the timeout elapses (zero means
// wait forever), or the context is cancelled.
func (q *Queue) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if m := q.pop(); m != nil {
			return m, nil
		}

		select {
		case <-q.notify:
		case <-deadline:
			return nil, ErrReceiveTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			// Drain anything pushed before close.
			if m := q.pop(); m != nil {
				return m, nil
			}
			return nil, ErrQueueClosed
		}
	}
}

// Len reports the number of pending messages. Diagnostic only.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
