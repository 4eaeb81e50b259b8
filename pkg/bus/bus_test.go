package bus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPublishEventFanOut(t *testing.T) {
	b := New()
	qa := b.Subscribe("agent-a")
	qb := b.Subscribe("agent-b")

	b.PublishEvent("event.health_changed", "monitor", map[string]any{"resource": "my-app"})

	ctx := context.Background()
	for name, q := range map[string]*Queue{"a": qa, "b": qb} {
		m, err := q.Receive(ctx, time.Second)
		if err != nil {
			t.Fatalf("queue %s: %v", name, err)
		}
		if m.Type != "event.health_changed" || m.To != "" {
			t.Errorf("queue %s got %+v", name, m)
		}
	}
}

func TestSubscribeTypeFilter(t *testing.T) {
	b := New()
	q := b.Subscribe("agent-a", "event.alert")

	b.PublishEvent("event.noise", "x", nil)
	b.PublishEvent("event.alert", "x", nil)

	m, err := q.Receive(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if m.Type != "event.alert" {
		t.Errorf("filter delivered %s", m.Type)
	}
	if q.Len() != 0 {
		t.Errorf("filtered message leaked into queue")
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	b := New()
	q1 := b.Subscribe("agent-a")
	q2 := b.Subscribe("agent-a")
	if q1 != q2 {
		t.Error("Subscribe should return the existing queue")
	}
}

func TestSendMessageOrdering(t *testing.T) {
	b := New()
	q := b.Subscribe("agent-a")

	for i := 0; i < 10; i++ {
		b.SendMessage("sender", "agent-a", "request.work", map[string]any{"i": i})
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		m, err := q.Receive(ctx, time.Second)
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if m.Payload["i"] != i {
			t.Fatalf("out of order: got %v at position %d", m.Payload["i"], i)
		}
	}
}

func TestRequestResponse(t *testing.T) {
	b := New()
	q := b.Subscribe("responder")

	// Responder loop.
	go func() {
		m, err := q.Receive(context.Background(), time.Second)
		if err != nil {
			return
		}
		b.SendResponse("responder", m.CorrelationID, map[string]any{"pong": true})
	}()

	payload, err := b.SendRequest(context.Background(), "caller", "responder", "request.ping", nil, time.Second)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if payload["pong"] != true {
		t.Errorf("payload = %v", payload)
	}
	if b.PendingRequests() != 0 {
		t.Error("pending table should be empty after response")
	}
}

func TestRequestTimeout(t *testing.T) {
	b := New()
	b.Subscribe("silent") // subscribed but never responds

	start := time.Now()
	_, err := b.SendRequest(context.Background(), "caller", "silent", "request.ping", map[string]any{}, 500*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed < 400*time.Millisecond || elapsed > time.Second {
		t.Errorf("timeout fired at %v, want ~500ms", elapsed)
	}
	if b.PendingRequests() != 0 {
		t.Error("pending entry not cleaned after timeout")
	}
}

func TestLateResponseWarnsOnly(t *testing.T) {
	b := New()
	// No pending request for this correlation ID; must not panic or block.
	b.SendResponse("responder", "unknown-correlation", nil)
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	q := b.Subscribe("agent-a")
	b.Unsubscribe("agent-a")
	b.Unsubscribe("agent-a") // idempotent

	if _, err := q.Receive(context.Background(), 100*time.Millisecond); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestCallbackPatterns(t *testing.T) {
	b := New()
	var events, exact []string
	b.SubscribeCallback("event.*", func(m *Message) { events = append(events, m.Type) })
	b.SubscribeCallback("event.alert", func(m *Message) { exact = append(exact, m.Type) })

	b.PublishEvent("event.alert", "x", nil)
	b.PublishEvent("event.other", "x", nil)
	b.PublishEvent("request.ignored", "x", nil)

	if len(events) != 2 {
		t.Errorf("prefix pattern matched %d events, want 2", len(events))
	}
	if len(exact) != 1 {
		t.Errorf("exact pattern matched %d events, want 1", len(exact))
	}
}

func TestCallbackPanicContained(t *testing.T) {
	b := New()
	b.SubscribeCallback("event.*", func(m *Message) { panic("bad subscriber") })
	b.PublishEvent("event.alert", "x", nil) // must not panic the publisher
}

func TestHistory(t *testing.T) {
	b := New()
	b.Subscribe("agent-a")

	b.SendMessage("x", "agent-a", "request.work", nil)
	b.PublishEvent("event.alert", "agent-a", nil)
	b.SendMessage("x", "agent-b", "request.work", nil)

	byAgent := b.History("agent-a", "")
	if len(byAgent) != 2 {
		t.Errorf("history by agent = %d, want 2", len(byAgent))
	}
	byType := b.History("", "request.work")
	if len(byType) != 2 {
		t.Errorf("history by type = %d, want 2", len(byType))
	}
}

func TestHistoryRingWraps(t *testing.T) {
	b := New()
	b.Subscribe("agent-a")
	for i := 0; i < DefaultHistorySize+50; i++ {
		b.SendMessage("x", "agent-a", "request.work", map[string]any{"i": i})
	}
	all := b.History("", "")
	if len(all) != DefaultHistorySize {
		t.Fatalf("history length = %d, want %d", len(all), DefaultHistorySize)
	}
	if all[0].Payload["i"] != 50 {
		t.Errorf("oldest retained = %v, want 50", all[0].Payload["i"])
	}
}

func TestConcurrentSenders(t *testing.T) {
	b := New()
	q := b.Subscribe("sink")

	const n = 100
	for i := 0; i < n; i++ {
		go func(i int) {
			b.SendMessage(fmt.Sprintf("sender-%d", i), "sink", "request.work", map[string]any{"i": i})
		}(i)
	}

	seen := 0
	ctx := context.Background()
	for seen < n {
		if _, err := q.Receive(ctx, time.Second); err != nil {
			t.Fatalf("Receive after %d messages: %v", seen, err)
		}
		seen++
	}
}
