package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned by SendRequest when no response arrives in time.
var ErrTimeout = errors.New("request timed out")

// DefaultHistorySize bounds the diagnostic message ring.
const DefaultHistorySize = 1000

// Callback receives matching events from PublishEvent. It runs on the
// publisher's goroutine and must not block.
type Callback func(*Message)

type subscription struct {
	queue *Queue
	types map[string]bool // nil means all types
}

// Bus is the in-process message bus.
type Bus struct {
	mu        sync.Mutex
	subs      map[string]*subscription
	callbacks map[string][]Callback // type pattern -> callbacks
	pending   map[string]chan *Message
	history   *history
}

// New creates a bus with the default history size.
func New() *Bus {
	return &Bus{
		subs:      make(map[string]*subscription),
		callbacks: make(map[string][]Callback),
		pending:   make(map[string]chan *Message),
		history:   newHistory(DefaultHistorySize),
	}
}

// Subscribe creates (or returns) an agent's queue. With types given, only
// matching message types are delivered; response messages always pass so
// request/response works regardless of filters. Idempotent: a second call
// returns the existing queue, widening the filter if needed.
func (b *Bus) Subscribe(agentID string, types ...string) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[agentID]; ok {
		if sub.types != nil {
			if len(types) == 0 {
				sub.types = nil
			} else {
				for _, t := range types {
					sub.types[t] = true
				}
			}
		}
		return sub.queue
	}

	sub := &subscription{queue: newQueue()}
	if len(types) > 0 {
		sub.types = make(map[string]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.subs[agentID] = sub
	return sub.queue
}

// Unsubscribe drops an agent's queue. Pending requests targeting the agent
// resolve through their own timeouts. Idempotent.
func (b *Bus) Unsubscribe(agentID string) {
	b.mu.Lock()
	sub, ok := b.subs[agentID]
	delete(b.subs, agentID)
	b.mu.Unlock()

	if ok {
		sub.queue.close()
	}
}

// SubscribeCallback registers a callback for event types matching pattern.
// A trailing "*" matches by prefix ("event.*"); otherwise the match is
// exact.
func (b *Bus) SubscribeCallback(pattern string, fn Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks[pattern] = append(b.callbacks[pattern], fn)
}

// PublishEvent broadcasts an event to every subscribed queue and to all
// matching type-pattern callbacks. Never fails the sender.
func (b *Bus) PublishEvent(eventType, from string, payload map[string]any) {
	msg := newMessage(eventType, from, "", "", payload)

	b.mu.Lock()
	b.history.add(msg)
	for _, sub := range b.subs {
		if sub.accepts(eventType) {
			sub.queue.push(msg)
		}
	}
	var matched []Callback
	for pattern, fns := range b.callbacks {
		if matchesPattern(pattern, eventType) {
			matched = append(matched, fns...)
		}
	}
	b.mu.Unlock()

	for _, fn := range matched {
		b.invoke(fn, msg)
	}
}

// SendMessage delivers a fire-and-forget point-to-point message.
func (b *Bus) SendMessage(from, to, msgType string, payload map[string]any) {
	msg := newMessage(msgType, from, to, "", payload)

	b.mu.Lock()
	b.history.add(msg)
	sub, ok := b.subs[to]
	b.mu.Unlock()

	if !ok {
		slog.Warn("Message to unsubscribed agent dropped", "to", to, "type", msgType)
		return
	}
	sub.queue.push(msg)
}

// SendRequest delivers an addressed request and waits for the correlated
// response. Returns the response payload, or ErrTimeout after timeout. The
// pending-response entry is always cleaned up.
func (b *Bus) SendRequest(ctx context.Context, from, to, requestType string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	correlationID := uuid.NewString()
	respCh := make(chan *Message, 1)

	msg := newMessage(requestType, from, to, correlationID, payload)

	b.mu.Lock()
	b.pending[correlationID] = respCh
	b.history.add(msg)
	sub, subscribed := b.subs[to]
	b.mu.Unlock()

	if subscribed {
		sub.queue.push(msg)
	} else {
		slog.Warn("Request to unsubscribed agent, awaiting timeout", "to", to, "type", requestType)
	}

	cleanup := func() {
		b.mu.Lock()
		delete(b.pending, correlationID)
		b.mu.Unlock()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		cleanup()
		return resp.Payload, nil
	case <-timer.C:
		cleanup()
		return nil, fmt.Errorf("%w: no response from %s to %s after %v", ErrTimeout, to, requestType, timeout)
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	}
}

// SendResponse resolves the pending request with the given correlation ID.
// Logs a warning if no request is waiting (it may have timed out).
func (b *Bus) SendResponse(from, correlationID string, payload map[string]any) {
	msg := newMessage(TypeResponse, from, "", correlationID, payload)

	b.mu.Lock()
	b.history.add(msg)
	respCh, ok := b.pending[correlationID]
	if ok {
		delete(b.pending, correlationID)
	}
	b.mu.Unlock()

	if !ok {
		slog.Warn("Response with no pending request", "from", from, "correlation_id", correlationID)
		return
	}
	respCh <- msg
}

// History returns recent messages, optionally filtered by agent (from or
// to) and message type. Oldest first.
func (b *Bus) History(agentID, msgType string) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.history.list(func(m *Message) bool {
		if agentID != "" && m.From != agentID && m.To != agentID {
			return false
		}
		if msgType != "" && m.Type != msgType {
			return false
		}
		return true
	})
}

// PendingRequests reports the number of outstanding request correlations.
func (b *Bus) PendingRequests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Subscribers returns the IDs of all subscribed agents.
func (b *Bus) Subscribers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.subs))
	for id := range b.subs {
		out = append(out, id)
	}
	return out
}

// invoke runs a callback, containing panics so a bad subscriber cannot take
// down the publisher.
func (b *Bus) invoke(fn Callback, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event callback panicked", "type", msg.Type, "panic", r)
		}
	}()
	fn(msg)
}

func (s *subscription) accepts(msgType string) bool {
	if s.types == nil {
		return true
	}
	if msgType == TypeResponse {
		return true
	}
	return s.types[msgType]
}

func matchesPattern(pattern, msgType string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(msgType, prefix)
	}
	return pattern == msgType
}
