package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeExec scripts the outcome of each Execute attempt.
type fakeExec struct {
	mu       sync.Mutex
	calls    int
	failures int   // fail this many attempts before succeeding
	err      error // error returned for failing attempts
	delay    time.Duration
	setupErr error
	torn     bool
}

func (f *fakeExec) Execute(ctx context.Context, req *Request) (map[string]any, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if call <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, fmt.Errorf("attempt %d failed", call)
	}
	return map[string]any{"ok": true, "attempt": call}, nil
}

func (f *fakeExec) Setup(ctx context.Context) error { return f.setupErr }

func (f *fakeExec) Teardown(ctx context.Context) error {
	f.mu.Lock()
	f.torn = true
	f.mu.Unlock()
	return nil
}

func (f *fakeExec) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestAgent(t *testing.T, exec Executor, opts Options) *BaseAgent {
	t.Helper()
	b := NewBase("test-agent", "test", opts, exec)
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return b
}

func TestHandleRequestNotInitialized(t *testing.T) {
	b := NewBase("test-agent", "test", Options{}, &fakeExec{})

	resp := b.HandleRequest(context.Background(), &Request{Action: "noop"})
	if resp.Status != StatusError {
		t.Fatalf("status = %s, want error", resp.Status)
	}
	if resp.ErrorType != ErrorKindNotInitialized {
		t.Errorf("error type = %s, want %s", resp.ErrorType, ErrorKindNotInitialized)
	}

	m := b.MetricsSnapshot()
	if m.RequestsHandled != 0 {
		t.Errorf("rejected request counted in metrics: %+v", m)
	}
}

func TestHandleRequestRetriesThenSucceeds(t *testing.T) {
	exec := &fakeExec{failures: 1}
	b := newTestAgent(t, exec, Options{MaxRetries: 3, Timeout: 30 * time.Second})

	start := time.Now()
	resp := b.HandleRequest(context.Background(), &Request{Action: "work"})
	elapsed := time.Since(start)

	if resp.Status != StatusSuccess {
		t.Fatalf("status = %s (error=%s)", resp.Status, resp.Error)
	}
	if exec.callCount() != 2 {
		t.Errorf("attempts = %d, want 2", exec.callCount())
	}
	// One failed attempt means one 1s backoff before the retry.
	if elapsed < 900*time.Millisecond || elapsed > 3*time.Second {
		t.Errorf("elapsed = %v, want ~1s backoff", elapsed)
	}

	m := b.MetricsSnapshot()
	if m.RequestsHandled != 1 || m.RequestsSucceeded != 1 || m.RequestsFailed != 0 {
		t.Errorf("metrics = %+v, want one success", m)
	}
}

func TestHandleRequestExhaustsRetries(t *testing.T) {
	exec := &fakeExec{failures: 10, err: errors.New("backend down")}
	b := newTestAgent(t, exec, Options{MaxRetries: 2, Timeout: 30 * time.Second})

	resp := b.HandleRequest(context.Background(), &Request{Action: "work"})
	if resp.Status != StatusError {
		t.Fatalf("status = %s, want error", resp.Status)
	}
	if resp.ErrorType != ErrorKindExecution {
		t.Errorf("error type = %s, want %s", resp.ErrorType, ErrorKindExecution)
	}
	if exec.callCount() != 2 {
		t.Errorf("attempts = %d, want 2", exec.callCount())
	}

	m := b.MetricsSnapshot()
	if m.RequestsHandled != 1 || m.RequestsFailed != 1 {
		t.Errorf("metrics = %+v, want one failure", m)
	}
}

func TestHandleRequestTimeout(t *testing.T) {
	exec := &fakeExec{delay: 5 * time.Second}
	b := newTestAgent(t, exec, Options{MaxRetries: 3, Timeout: time.Minute})

	resp := b.HandleRequest(context.Background(), &Request{
		Action:  "slow",
		Timeout: 200 * time.Millisecond,
	})
	if resp.Status != StatusError {
		t.Fatalf("status = %s, want error", resp.Status)
	}
	if resp.ErrorType != ErrorKindTimeout {
		t.Errorf("error type = %s, want %s", resp.ErrorType, ErrorKindTimeout)
	}
	if exec.callCount() != 1 {
		t.Errorf("deadline exceeded mid-attempt should not retry; attempts = %d", exec.callCount())
	}

	m := b.MetricsSnapshot()
	if m.RequestsFailed != 1 {
		t.Errorf("timeout not counted as failure: %+v", m)
	}
}

func TestDeadlineWinsOverBackoff(t *testing.T) {
	// Every attempt fails fast; the 2s backoff after attempt 2 exceeds the
	// remaining budget, so the loop must stop early with a timeout.
	exec := &fakeExec{failures: 10}
	b := newTestAgent(t, exec, Options{MaxRetries: 5, Timeout: 1500 * time.Millisecond})

	start := time.Now()
	resp := b.HandleRequest(context.Background(), &Request{Action: "work"})
	elapsed := time.Since(start)

	if resp.ErrorType != ErrorKindTimeout {
		t.Fatalf("error type = %s, want timeout", resp.ErrorType)
	}
	if elapsed > 2*time.Second {
		t.Errorf("loop ran %v, should have stopped before the 2s backoff", elapsed)
	}
	if exec.callCount() > 2 {
		t.Errorf("attempts = %d, want at most 2", exec.callCount())
	}
}

func TestExecutePanicContained(t *testing.T) {
	b := newTestAgent(t, panicExec{}, Options{MaxRetries: 1, Timeout: 5 * time.Second})

	resp := b.HandleRequest(context.Background(), &Request{Action: "boom"})
	if resp.Status != StatusError {
		t.Fatalf("status = %s, want error", resp.Status)
	}
	if resp.ErrorType != ErrorKindExecution {
		t.Errorf("error type = %s", resp.ErrorType)
	}
}

type panicExec struct{}

func (panicExec) Execute(ctx context.Context, req *Request) (map[string]any, error) {
	panic("executor bug")
}

func TestMetricsIdentity(t *testing.T) {
	exec := &fakeExec{}
	b := newTestAgent(t, exec, Options{MaxRetries: 1, Timeout: 5 * time.Second})

	for i := 0; i < 5; i++ {
		b.HandleRequest(context.Background(), &Request{Action: "work"})
	}
	failing := &fakeExec{failures: 100}
	fb := newTestAgent(t, failing, Options{MaxRetries: 1, Timeout: 5 * time.Second})
	for i := 0; i < 3; i++ {
		fb.HandleRequest(context.Background(), &Request{Action: "work"})
	}

	for _, a := range []*BaseAgent{b, fb} {
		m := a.MetricsSnapshot()
		if m.RequestsHandled != m.RequestsSucceeded+m.RequestsFailed {
			t.Errorf("agent %s: handled=%d succeeded=%d failed=%d",
				a.ID(), m.RequestsHandled, m.RequestsSucceeded, m.RequestsFailed)
		}
	}
}

func TestStreamEventEnvelope(t *testing.T) {
	exec := &fakeExec{}
	b := newTestAgent(t, exec, Options{MaxRetries: 1, Timeout: 5 * time.Second})

	var mu sync.Mutex
	var events []map[string]any
	b.SetStreamCallback(func(eventType string, data map[string]any) {
		mu.Lock()
		events = append(events, data)
		mu.Unlock()
	})

	b.HandleRequest(context.Background(), &Request{Action: "work"})

	mu.Lock()
	defer mu.Unlock()
	if len(events) < 2 {
		t.Fatalf("got %d events, want progress + result", len(events))
	}
	for i, e := range events {
		if e["agent_id"] != "test-agent" || e["agent_type"] != "test" {
			t.Errorf("event %d missing envelope fields: %v", i, e)
		}
		if _, ok := e["timestamp"].(string); !ok {
			t.Errorf("event %d missing timestamp", i)
		}
	}
}

func TestStreamCallbackPanicContained(t *testing.T) {
	exec := &fakeExec{}
	b := newTestAgent(t, exec, Options{MaxRetries: 1, Timeout: 5 * time.Second})
	b.SetStreamCallback(func(eventType string, data map[string]any) { panic("bad sink") })

	resp := b.HandleRequest(context.Background(), &Request{Action: "work"})
	if resp.Status != StatusSuccess {
		t.Errorf("callback panic leaked into request handling: %s", resp.Status)
	}
}

func TestLifecycleHooks(t *testing.T) {
	exec := &fakeExec{}
	b := NewBase("test-agent", "test", Options{}, exec)

	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if !b.Initialized() {
		t.Fatal("agent should be initialized")
	}

	if err := b.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if b.Initialized() {
		t.Error("agent still initialized after Cleanup")
	}
	if !exec.torn {
		t.Error("Teardown hook not invoked")
	}

	failing := &fakeExec{setupErr: errors.New("no credentials")}
	fb := NewBase("bad-agent", "test", Options{}, failing)
	if err := fb.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize should propagate setup failure")
	}
	if fb.Initialized() {
		t.Error("failed Initialize must leave agent uninitialized")
	}
}
