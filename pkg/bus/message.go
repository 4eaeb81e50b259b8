// Package bus provides the in-process message bus: per-agent queues,
// broadcast events, and addressed request/response with correlation IDs.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// Well-known message type prefixes. Event traffic broadcasts; request and
// response traffic is addressed and correlated.
const (
	TypeResponse = "response"

	EventPrefix   = "event."
	RequestPrefix = "request."
)

// Message is one unit of bus traffic. An empty To means broadcast.
type Message struct {
	ID            string         `json:"message_id"`
	Type          string         `json:"message_type"`
	From          string         `json:"from_agent"`
	To            string         `json:"to_agent,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
}

func newMessage(msgType, from, to, correlationID string, payload map[string]any) *Message {
	return &Message{
		ID:            uuid.NewString(),
		Type:          msgType,
		From:          from,
		To:            to,
		CorrelationID: correlationID,
		Payload:       payload,
		Timestamp:     time.Now(),
	}
}

// history is a fixed-size ring of delivered messages kept for diagnostics.
type history struct {
	buf  []*Message
	next int
	full bool
}

func newHistory(size int) *history {
	return &history{buf: make([]*Message, size)}
}

func (h *history) add(m *Message) {
	h.buf[h.next] = m
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// list returns messages oldest-first, filtered by the given predicate.
func (h *history) list(match func(*Message) bool) []*Message {
	var out []*Message
	appendRange := func(from, to int) {
		for i := from; i < to; i++ {
			if m := h.buf[i]; m != nil && match(m) {
				out = append(out, m)
			}
		}
	}
	if h.full {
		appendRange(h.next, len(h.buf))
	}
	appendRange(0, h.next)
	return out
}
