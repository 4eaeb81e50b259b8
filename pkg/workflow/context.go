// Package workflow provides the shared per-workflow context store.
//
// A workflow context carries everything produced while answering one
// operator request: shared key/values, per-agent sub-contexts and the
// ordered step result log. Contexts live in a two-tier store: an in-memory
// read-through cache over a durable document store partitioned by
// workflow_id. If the document store is unreachable the store degrades to
// memory-only; write paths never fail the caller for storage reasons.
package workflow

import (
	"time"
)

// Status values recorded in context metadata.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// AgentContext is one agent's private slice of a workflow context.
type AgentContext struct {
	UpdatedAt time.Time      `json:"updated_at"`
	Data      map[string]any `json:"data"`
}

// StepResult is one entry in the append-only step log.
type StepResult struct {
	StepID    string         `json:"step_id"`
	AgentID   string         `json:"agent_id"`
	Timestamp time.Time      `json:"timestamp"`
	Result    map[string]any `json:"result"`
}

// Metadata tracks workflow progress. CurrentStep always equals the length
// of the step result log.
type Metadata struct {
	Status      string `json:"status"`
	CurrentStep int    `json:"current_step"`
	TotalSteps  int    `json:"total_steps"`
}

// Context is the shared state of one workflow.
type Context struct {
	ID            string                  `json:"workflow_id"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	TTLSeconds    int                     `json:"ttl_seconds"`
	SharedData    map[string]any          `json:"shared_data"`
	AgentContexts map[string]AgentContext `json:"agent_contexts"`
	StepResults   []StepResult            `json:"step_results"`
	Metadata      Metadata                `json:"metadata"`
}

// clone deep-copies the context so store callers never alias cached state.
func (c *Context) clone() *Context {
	out := &Context{
		ID:            c.ID,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		TTLSeconds:    c.TTLSeconds,
		SharedData:    copyMap(c.SharedData),
		AgentContexts: make(map[string]AgentContext, len(c.AgentContexts)),
		StepResults:   make([]StepResult, len(c.StepResults)),
		Metadata:      c.Metadata,
	}
	for id, ac := range c.AgentContexts {
		out.AgentContexts[id] = AgentContext{UpdatedAt: ac.UpdatedAt, Data: copyMap(ac.Data)}
	}
	for i, sr := range c.StepResults {
		out.StepResults[i] = StepResult{
			StepID:    sr.StepID,
			AgentID:   sr.AgentID,
			Timestamp: sr.Timestamp,
			Result:    copyMap(sr.Result),
		}
	}
	return out
}

// toDocument renders the context in the persisted document shape.
func (c *Context) toDocument() map[string]any {
	agentContexts := make(map[string]any, len(c.AgentContexts))
	for id, ac := range c.AgentContexts {
		agentContexts[id] = map[string]any{
			"updated_at": ac.UpdatedAt.UTC().Format(time.RFC3339Nano),
			"data":       copyMap(ac.Data),
		}
	}
	stepResults := make([]any, len(c.StepResults))
	for i, sr := range c.StepResults {
		stepResults[i] = map[string]any{
			"step_id":   sr.StepID,
			"agent_id":  sr.AgentID,
			"timestamp": sr.Timestamp.UTC().Format(time.RFC3339Nano),
			"result":    copyMap(sr.Result),
		}
	}
	return map[string]any{
		"id":             c.ID,
		"workflow_id":    c.ID,
		"created_at":     c.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":     c.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"ttl":            c.TTLSeconds,
		"shared_data":    copyMap(c.SharedData),
		"agent_contexts": agentContexts,
		"step_results":   stepResults,
		"metadata": map[string]any{
			"status":       c.Metadata.Status,
			"current_step": c.Metadata.CurrentStep,
			"total_steps":  c.Metadata.TotalSteps,
		},
	}
}

// fromDocument rebuilds a context from its persisted shape.
func fromDocument(doc map[string]any) *Context {
	c := &Context{
		SharedData:    map[string]any{},
		AgentContexts: map[string]AgentContext{},
	}
	c.ID, _ = doc["workflow_id"].(string)
	c.CreatedAt = parseTime(doc["created_at"])
	c.UpdatedAt = parseTime(doc["updated_at"])
	c.TTLSeconds = asInt(doc["ttl"])

	if sd, ok := doc["shared_data"].(map[string]any); ok {
		c.SharedData = copyMap(sd)
	}
	if acs, ok := doc["agent_contexts"].(map[string]any); ok {
		for id, raw := range acs {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			ac := AgentContext{UpdatedAt: parseTime(m["updated_at"])}
			if data, ok := m["data"].(map[string]any); ok {
				ac.Data = copyMap(data)
			}
			c.AgentContexts[id] = ac
		}
	}
	if srs, ok := doc["step_results"].([]any); ok {
		for _, raw := range srs {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			sr := StepResult{Timestamp: parseTime(m["timestamp"])}
			sr.StepID, _ = m["step_id"].(string)
			sr.AgentID, _ = m["agent_id"].(string)
			if res, ok := m["result"].(map[string]any); ok {
				sr.Result = copyMap(res)
			}
			c.StepResults = append(c.StepResults, sr)
		}
	}
	if md, ok := doc["metadata"].(map[string]any); ok {
		c.Metadata.Status, _ = md["status"].(string)
		c.Metadata.CurrentStep = asInt(md["current_step"])
		c.Metadata.TotalSteps = asInt(md["total_steps"])
	}
	return c
}

func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return 0
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
