// Package specialist implements the domain agents that compose multi-step
// workflows over the tool catalog: incident response, health monitoring,
// performance, cost, remediation, SLO, security, and configuration.
//
// Every specialist dispatches request.action against a fixed verb table and
// drives its tools exclusively through the tool proxy agent, recording each
// step in the workflow context store.
package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/workflow"
)

// Deps are the collaborators every specialist receives.
type Deps struct {
	Contexts *workflow.Store
	Registry *agent.Registry
	Proxy    agent.Agent
}

type verbFunc func(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error)

// Specialist is the shared shell: a BaseAgent whose Execute dispatches on
// the request action. Concrete specialists are built from a verb table.
type Specialist struct {
	*agent.BaseAgent

	deps  Deps
	verbs map[string]verbFunc
	order []string // verb order for the "full" workflow
}

func newSpecialist(id, agentType string, opts agent.Options, deps Deps) *Specialist {
	s := &Specialist{
		deps:  deps,
		verbs: make(map[string]verbFunc),
	}
	s.BaseAgent = agent.NewBase(id, agentType, opts, s)
	return s
}

// register adds a verb. Verbs listed in order participate in "full".
func (s *Specialist) register(verb string, inFull bool, fn verbFunc) {
	s.verbs[verb] = fn
	if inFull {
		s.order = append(s.order, verb)
	}
}

// Verbs lists the actions this specialist accepts.
func (s *Specialist) Verbs() []string {
	out := make([]string, 0, len(s.verbs)+1)
	for v := range s.verbs {
		out = append(out, v)
	}
	out = append(out, "full")
	sort.Strings(out)
	return out
}

// Execute dispatches the request action against the verb table.
func (s *Specialist) Execute(ctx context.Context, req *agent.Request) (map[string]any, error) {
	action := req.Action
	if action == "" {
		return nil, fmt.Errorf("action is required; one of: %s", strings.Join(s.Verbs(), ", "))
	}

	workflowID := req.WorkflowID
	if workflowID == "" {
		workflowID = uuid.NewString()
		if _, err := s.deps.Contexts.Create(ctx, workflowID, map[string]any{
			"specialist": s.Type(),
			"action":     action,
		}, 0); err != nil {
			slog.Warn("Workflow context creation degraded",
				"agent_id", s.ID(), "workflow_id", workflowID, "error", err)
		}
	}

	if action == "full" {
		return s.runFull(ctx, workflowID, req)
	}

	fn, ok := s.verbs[action]
	if !ok {
		return nil, fmt.Errorf("unknown action %q; one of: %s", action, strings.Join(s.Verbs(), ", "))
	}

	result, err := fn(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}
	result["workflow_id"] = workflowID
	result["action"] = action
	return result, nil
}

// runFull runs every registered verb in declaration order, collecting the
// per-verb outputs. Verb failures are recorded, not raised.
func (s *Specialist) runFull(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	steps := make(map[string]any, len(s.order))
	for _, verb := range s.order {
		out, err := s.verbs[verb](ctx, workflowID, req)
		if err != nil {
			steps[verb] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		steps[verb] = out
	}
	return map[string]any{
		"workflow_id": workflowID,
		"action":      "full",
		"steps":       steps,
	}, nil
}

// callTool invokes a tool through the proxy and records the step result.
// A tool-level failure comes back as a payload with success=false.
func (s *Specialist) callTool(ctx context.Context, workflowID, tool string, params map[string]any) (map[string]any, error) {
	if s.deps.Proxy == nil {
		return nil, fmt.Errorf("tool proxy not wired")
	}

	resp := s.deps.Proxy.HandleRequest(ctx, &agent.Request{
		Tool:       tool,
		Parameters: params,
		WorkflowID: workflowID,
	})

	if err := s.deps.Contexts.AddStepResult(ctx, workflowID, tool, s.ID(), map[string]any{
		"status": string(resp.Status),
		"result": resp.Result,
		"error":  resp.Error,
	}); err != nil {
		slog.Warn("Step result not recorded",
			"agent_id", s.ID(), "workflow_id", workflowID, "tool", tool, "error", err)
	}

	if resp.Status != agent.StatusSuccess {
		return nil, fmt.Errorf("tool %s failed: %s", tool, resp.Error)
	}
	return resp.Result, nil
}

// payloadOf unwraps a proxied tool result, preferring the parsed body.
func payloadOf(result map[string]any) map[string]any {
	if result == nil {
		return map[string]any{}
	}
	if parsed, ok := result["parsed"].(map[string]any); ok {
		return parsed
	}
	return result
}

// itemsOf extracts a list payload from a proxied tool result.
func itemsOf(result map[string]any, keys ...string) []map[string]any {
	payload := payloadOf(result)
	keys = append(keys, "items")
	for _, key := range keys {
		raw, ok := payload[key].([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(raw))
		for _, item := range raw {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
