package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Defaults for BaseAgent execution.
const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 300 * time.Second
)

// Options configures a BaseAgent.
type Options struct {
	// MaxRetries bounds execution attempts within the overall deadline.
	MaxRetries int

	// Timeout is the overall HandleRequest deadline.
	Timeout time.Duration
}

// BaseAgent implements the lifecycle shared by every agent. Concrete agents
// embed *BaseAgent and pass themselves as the Executor at construction.
type BaseAgent struct {
	id        string
	agentType string
	opts      Options
	exec      Executor

	initialized atomic.Bool
	metrics     Metrics

	streamMu sync.RWMutex
	stream   StreamFunc
}

// NewBase creates the base for a concrete agent. exec is the agent itself.
func NewBase(id, agentType string, opts Options, exec Executor) *BaseAgent {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &BaseAgent{
		id:        id,
		agentType: agentType,
		opts:      opts,
		exec:      exec,
	}
}

// ID returns the agent's stable identifier.
func (b *BaseAgent) ID() string { return b.id }

// Type returns the agent's type name.
func (b *BaseAgent) Type() string { return b.agentType }

// Initialized reports whether Initialize has completed.
func (b *BaseAgent) Initialized() bool { return b.initialized.Load() }

// Initialize runs the executor's Setup hook, if any, and marks the agent
// ready. Idempotent.
func (b *BaseAgent) Initialize(ctx context.Context) error {
	if b.initialized.Load() {
		return nil
	}
	if lc, ok := b.exec.(Lifecycle); ok {
		if err := lc.Setup(ctx); err != nil {
			return fmt.Errorf("agent %s setup failed: %w", b.id, err)
		}
	}
	b.initialized.Store(true)
	slog.Info("Agent initialized", "agent_id", b.id, "agent_type", b.agentType)
	return nil
}

// Cleanup runs the executor's Teardown hook and marks the agent stopped.
func (b *BaseAgent) Cleanup(ctx context.Context) error {
	if !b.initialized.Swap(false) {
		return nil
	}
	if lc, ok := b.exec.(Lifecycle); ok {
		if err := lc.Teardown(ctx); err != nil {
			return fmt.Errorf("agent %s teardown failed: %w", b.id, err)
		}
	}
	slog.Info("Agent cleaned up", "agent_id", b.id)
	return nil
}

// SetStreamCallback installs the streaming event sink.
func (b *BaseAgent) SetStreamCallback(fn StreamFunc) {
	b.streamMu.Lock()
	b.stream = fn
	b.streamMu.Unlock()
}

// MetricsSnapshot returns the agent's request counters.
func (b *BaseAgent) MetricsSnapshot() MetricsSnapshot {
	return b.metrics.Snapshot()
}

// AgentStatus returns the agent's current status.
func (b *BaseAgent) AgentStatus() AgentStatus {
	return AgentStatus{
		AgentID:     b.id,
		AgentType:   b.agentType,
		Initialized: b.initialized.Load(),
		Metrics:     b.metrics.Snapshot(),
	}
}

// HandleRequest runs the executor with retries under an overall deadline,
// updating metrics and emitting streaming events. Every failure mode
// returns a structured error response; HandleRequest itself never errors.
func (b *BaseAgent) HandleRequest(ctx context.Context, req *Request) *Response {
	if !b.initialized.Load() {
		return &Response{
			Status:    StatusError,
			AgentID:   b.id,
			AgentType: b.agentType,
			RequestID: req.ID,
			Error:     ErrNotInitialized.Error(),
			ErrorType: ErrorKindNotInitialized,
		}
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	start := time.Now()

	b.Emit(EventProgress, map[string]any{
		"status":     "started",
		"request_id": req.ID,
	})

	timeout := b.opts.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := b.executeWithRetry(execCtx, req)
	elapsed := time.Since(start)

	if err != nil {
		b.metrics.recordFailure(elapsed)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
			b.Emit(EventError, map[string]any{
				"status":     "timeout",
				"request_id": req.ID,
			})
			return &Response{
				Status:        StatusError,
				AgentID:       b.id,
				AgentType:     b.agentType,
				RequestID:     req.ID,
				ExecutionTime: elapsed.Seconds(),
				Error:         fmt.Sprintf("request exceeded %v deadline", timeout),
				ErrorType:     ErrorKindTimeout,
			}
		}

		b.Emit(EventError, map[string]any{
			"status":     "failed",
			"request_id": req.ID,
			"error":      err.Error(),
		})
		return &Response{
			Status:        StatusError,
			AgentID:       b.id,
			AgentType:     b.agentType,
			RequestID:     req.ID,
			ExecutionTime: elapsed.Seconds(),
			Error:         err.Error(),
			ErrorType:     errorKind(err),
		}
	}

	b.metrics.recordSuccess(elapsed)
	b.Emit(EventResult, map[string]any{
		"status":         "completed",
		"request_id":     req.ID,
		"execution_time": elapsed.Seconds(),
		"result":         result,
	})
	return &Response{
		Status:        StatusSuccess,
		AgentID:       b.id,
		AgentType:     b.agentType,
		RequestID:     req.ID,
		ExecutionTime: elapsed.Seconds(),
		Result:        result,
	}
}

// executeWithRetry attempts the executor up to MaxRetries times with
// exponential backoff (1s, 2s, 4s, ...). The overall deadline wins over
// backoff: if the remaining budget cannot cover the next sleep, the attempt
// loop fails with a timeout immediately.
func (b *BaseAgent) executeWithRetry(ctx context.Context, req *Request) (map[string]any, error) {
	var lastErr error

	for attempt := 1; attempt <= b.opts.MaxRetries; attempt++ {
		result, err := b.runExecute(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}

		if attempt == b.opts.MaxRetries {
			break
		}

		backoff := time.Duration(1<<(attempt-1)) * time.Second
		deadline, ok := ctx.Deadline()
		if ok && time.Until(deadline) < backoff {
			return nil, fmt.Errorf("%w: retry budget exhausted after attempt %d: %v", ErrTimeout, attempt, err)
		}

		slog.Debug("Agent execute failed, retrying",
			"agent_id", b.id, "attempt", attempt, "backoff", backoff, "error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: cancelled during backoff: %v", ErrTimeout, err)
		}
	}

	return nil, fmt.Errorf("execution failed after %d attempts: %w", b.opts.MaxRetries, lastErr)
}

// runExecute calls the executor on its own goroutine so the overall
// deadline is enforced even if Execute ignores its context. Panics inside
// Execute surface as execution errors.
func (b *BaseAgent) runExecute(ctx context.Context, req *Request) (result map[string]any, err error) {
	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("execute panicked: %v", r)}
			}
		}()
		res, execErr := b.exec.Execute(ctx, req)
		done <- outcome{result: res, err: execErr}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Emit sends a streaming event to the installed callback, attaching the
// standard envelope fields. Callback panics are contained.
func (b *BaseAgent) Emit(eventType string, data map[string]any) {
	b.streamMu.RLock()
	fn := b.stream
	b.streamMu.RUnlock()
	if fn == nil {
		return
	}

	payload := make(map[string]any, len(data)+3)
	for k, v := range data {
		payload[k] = v
	}
	payload["agent_id"] = b.id
	payload["agent_type"] = b.agentType
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Stream callback panicked", "agent_id", b.id, "event", eventType, "panic", r)
		}
	}()
	fn(eventType, payload)
}

// errorKind classifies an error for Response.ErrorType.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, ErrNotInitialized):
		return ErrorKindNotInitialized
	default:
		return ErrorKindExecution
	}
}
