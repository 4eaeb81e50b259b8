// Package agent defines the agent framework: the Agent interface, the
// BaseAgent lifecycle (retries, timeout, metrics, streaming) and the agent
// registry with its tool table.
//
// Concrete agents embed *BaseAgent and supply an Executor; the base handles
// everything around Execute so specialists only implement their domain
// logic. All failures cross the HandleRequest boundary as structured
// responses, never as raised errors.
package agent

import (
	"context"
	"errors"
	"time"
)

// Status discriminates agent results.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusError           Status = "error"
	StatusNotFound        Status = "not_found"
	StatusSkipped         Status = "skipped"
	StatusNeedsUserInput  Status = "needs_user_input"
	StatusPendingApproval Status = "pending_approval"
)

// Error kinds reported in Response.ErrorType.
const (
	ErrorKindTimeout        = "timeout"
	ErrorKindNotInitialized = "not_initialized"
	ErrorKindTransport      = "transport_error"
	ErrorKindExecution      = "execution_error"
)

// Sentinel errors used across the framework.
var (
	ErrNotInitialized = errors.New("agent not initialized")
	ErrTimeout        = errors.New("agent request timed out")
)

// Request is a unit of work submitted to an agent.
type Request struct {
	// ID is assigned by the framework when absent.
	ID string `json:"request_id,omitempty"`

	// Action selects a specialist verb.
	Action string `json:"action,omitempty"`

	// Tool names the tool to invoke (tool proxy requests).
	Tool string `json:"tool,omitempty"`

	// Query is the operator's natural-language request (orchestrator).
	Query string `json:"query,omitempty"`

	// Parameters are the tool or verb arguments.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Context carries caller-supplied defaults merged during parameter
	// preparation.
	Context map[string]any `json:"context,omitempty"`

	// WorkflowID attaches the request to an existing workflow context.
	WorkflowID string `json:"workflow_id,omitempty"`

	// Stream marks the transport as interactive; ambiguous parameters
	// produce selection prompts instead of being skipped.
	Stream bool `json:"stream,omitempty"`

	// Timeout overrides the agent's configured deadline when positive.
	Timeout time.Duration `json:"-"`
}

// Response is the structured outcome of HandleRequest.
type Response struct {
	Status        Status         `json:"status"`
	AgentID       string         `json:"agent_id"`
	AgentType     string         `json:"agent_type"`
	RequestID     string         `json:"request_id"`
	ExecutionTime float64        `json:"execution_time"` // seconds
	Result        map[string]any `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorType     string         `json:"error_type,omitempty"`
	Message       string         `json:"message,omitempty"`
	Suggestions   []string       `json:"suggestions,omitempty"`
}

// StreamFunc receives streaming events from an agent. It is invoked
// synchronously on the agent's goroutine and must not block; errors and
// panics inside the callback are swallowed and logged.
type StreamFunc func(eventType string, data map[string]any)

// Streaming event types.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
	EventInfo     = "info"
)

// Executor is the domain logic a concrete agent plugs into its BaseAgent.
type Executor interface {
	Execute(ctx context.Context, req *Request) (map[string]any, error)
}

// Lifecycle is optionally implemented by executors needing setup or
// teardown around the agent lifecycle.
type Lifecycle interface {
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Agent is the framework-facing surface of every agent.
type Agent interface {
	ID() string
	Type() string
	Initialize(ctx context.Context) error
	Cleanup(ctx context.Context) error
	HandleRequest(ctx context.Context, req *Request) *Response
	SetStreamCallback(fn StreamFunc)
	MetricsSnapshot() MetricsSnapshot
	AgentStatus() AgentStatus
}

// AgentStatus is a point-in-time view of an agent.
type AgentStatus struct {
	AgentID     string          `json:"agent_id"`
	AgentType   string          `json:"agent_type"`
	Initialized bool            `json:"initialized"`
	Metrics     MetricsSnapshot `json:"metrics"`
}

// ToolDescriptor describes a registered tool and its owning agent.
type ToolDescriptor struct {
	Name            string         `json:"name"`
	AgentID         string         `json:"agent_id"`
	Category        string         `json:"category"`
	Description     string         `json:"description"`
	ParameterSchema map[string]any `json:"parameter_schema,omitempty"`
}

// RequiredParameters extracts the required parameter names from the tool's
// JSON schema.
func (d *ToolDescriptor) RequiredParameters() []string {
	raw, ok := d.ParameterSchema["required"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// DeclaredParameters returns the parameter names declared in the tool's
// schema properties. Only declared parameters are forwarded to transports.
func (d *ToolDescriptor) DeclaredParameters() map[string]bool {
	props, ok := d.ParameterSchema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(props))
	for name := range props {
		out[name] = true
	}
	return out
}
