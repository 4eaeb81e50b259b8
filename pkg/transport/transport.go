// Package transport abstracts how tool calls reach their backend. The MCP
// stdio transport talks to a subprocess tool server; tests substitute fakes.
package transport

import (
	"context"
	"encoding/json"

	"github.com/sreflow/sreflow/pkg/agent"
)

// Result is the outcome of a tool invocation.
type Result struct {
	// Success is false when the backend reported a tool-level error.
	Success bool `json:"success"`

	// Content is the raw text returned by the tool.
	Content string `json:"content"`

	// Parsed holds the decoded JSON payload when Content is valid JSON.
	Parsed map[string]any `json:"parsed,omitempty"`

	// Error carries the tool-level error text when Success is false.
	Error string `json:"error,omitempty"`
}

// ToolTransport executes tools against a backend.
type ToolTransport interface {
	// Initialize establishes the backend connection.
	Initialize(ctx context.Context) error

	// Cleanup tears the connection down. Safe to call more than once.
	Cleanup() error

	// CallTool invokes a named tool with arguments.
	CallTool(ctx context.Context, name string, args map[string]any) (*Result, error)

	// ListTools returns the descriptors the backend exposes.
	ListTools(ctx context.Context) ([]agent.ToolDescriptor, error)
}

// parseContent fills Parsed when the text payload is a JSON object or a
// JSON array (wrapped under "items").
func (r *Result) parseContent() {
	trimmed := r.Content
	if trimmed == "" {
		return
	}
	switch trimmed[0] {
	case '{':
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			r.Parsed = obj
		}
	case '[':
		var arr []any
		if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
			r.Parsed = map[string]any{"items": arr}
		}
	}
}
