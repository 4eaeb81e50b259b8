// Package orchestrator turns operator queries into coordinated tool
// execution plans: intent classification, parameter preparation with
// discovery and inventory preflight, sequential tool execution, and
// category-specific aggregation.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/bus"
	"github.com/sreflow/sreflow/pkg/config"
	"github.com/sreflow/sreflow/pkg/interaction"
	"github.com/sreflow/sreflow/pkg/inventory"
	"github.com/sreflow/sreflow/pkg/workflow"
)

// AgentType identifies the orchestrator in the registry.
const AgentType = "orchestrator"

// specialistTimeout bounds a bus round-trip to a specialist.
const specialistTimeout = 60 * time.Second

// Deps are the collaborators injected at construction.
type Deps struct {
	Registry *agent.Registry
	Bus      *bus.Bus
	Contexts *workflow.Store
	Guard    *inventory.Guard
	Snapshot inventory.Snapshot
	Interact *interaction.Handler
	Config   *config.Config
}

// Orchestrator is the entry-point agent for operator queries.
type Orchestrator struct {
	*agent.BaseAgent

	registry *agent.Registry
	bus      *bus.Bus
	contexts *workflow.Store
	guard    *inventory.Guard
	snapshot inventory.Snapshot
	interact *interaction.Handler
	cfg      *config.Config

	discMu    sync.Mutex
	discovery map[string]*discoveryEntry
}

// New creates the orchestrator agent.
func New(id string, deps Deps) *Orchestrator {
	o := &Orchestrator{
		registry:  deps.Registry,
		bus:       deps.Bus,
		contexts:  deps.Contexts,
		guard:     deps.Guard,
		snapshot:  deps.Snapshot,
		interact:  deps.Interact,
		cfg:       deps.Config,
		discovery: make(map[string]*discoveryEntry),
	}
	timeout := deps.Config.Agents.OrchestratorTimeout
	if timeout <= 0 {
		timeout = agent.DefaultTimeout
	}
	o.BaseAgent = agent.NewBase(id, AgentType, agent.Options{
		MaxRetries: 1, // the pipeline aggregates failures, retries happen per tool
		Timeout:    timeout,
	}, o)
	return o
}

// Execute runs the orchestration pipeline for one operator query.
func (o *Orchestrator) Execute(ctx context.Context, req *agent.Request) (map[string]any, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if o.registry == nil {
		return nil, fmt.Errorf("agent registry not wired")
	}

	workflowID := req.WorkflowID
	if workflowID == "" {
		workflowID = uuid.NewString()
	}
	if _, err := o.contexts.Create(ctx, workflowID, map[string]any{
		"query":   req.Query,
		"request": req.Parameters,
	}, 0); err != nil {
		slog.Warn("Workflow context creation degraded", "workflow_id", workflowID, "error", err)
	}

	category, tools := ClassifyIntent(req.Query)
	slog.Info("Query classified", "workflow_id", workflowID, "intent", category, "tools", tools)
	o.Emit(agent.EventProgress, map[string]any{
		"status": "routing",
		"intent": category,
		"tools":  tools,
	})

	records := make([]map[string]any, 0, len(tools))
	executed := 0
	for _, tool := range tools {
		rec := o.runTool(ctx, tool, req, workflowID)
		if rec["executed"] == true {
			executed++
		}
		delete(rec, "executed")
		records = append(records, rec)
	}

	aggregated := o.aggregate(ctx, category, records)

	if err := o.contexts.Update(ctx, workflowID, map[string]any{
		"metadata": map[string]any{"status": workflow.StatusCompleted},
	}); err != nil {
		slog.Warn("Workflow completion update failed", "workflow_id", workflowID, "error", err)
	}

	result := map[string]any{
		"workflow_id":    workflowID,
		"intent":         category,
		"tools_executed": executed,
		"results":        aggregated,
	}
	if aggregated["user_interaction_required"] == true {
		result["user_interaction_required"] = true
		result["interaction_data"] = aggregated["interaction_data"]
		result["message"] = aggregated["message"]
	} else if formatted, ok := aggregated["formatted_response"]; ok {
		result["formatted_response"] = formatted
	}
	return result, nil
}

// runTool executes one tool through its owning agent, with parameter
// preparation and inventory preflight. Failures are recorded, never raised.
func (o *Orchestrator) runTool(ctx context.Context, tool string, req *agent.Request, workflowID string) map[string]any {
	desc, ok := o.registry.GetTool(tool)
	if !ok {
		return map[string]any{
			"tool":   tool,
			"status": string(agent.StatusNotFound),
			"error":  fmt.Sprintf("tool %s is not registered", tool),
		}
	}

	owner, ok := o.registry.Get(desc.AgentID)
	if !ok {
		return map[string]any{
			"tool":   tool,
			"status": string(agent.StatusError),
			"error":  fmt.Sprintf("agent %s owning tool %s is not registered", desc.AgentID, tool),
		}
	}

	prep := o.prepareParameters(ctx, tool, desc, req)
	if prep.interaction != nil {
		return map[string]any{
			"tool":        tool,
			"status":      string(agent.StatusNeedsUserInput),
			"interaction": prep.interaction,
		}
	}
	if prep.params == nil {
		return map[string]any{
			"tool":   tool,
			"status": string(agent.StatusSkipped),
			"error":  prep.skipReason,
		}
	}

	if o.cfg.Inventory.Enabled && inventory.IsResourceScoped(tool) && o.guard != nil {
		pf := o.guard.PreflightResourceCheck(tool, prep.params)
		if !pf.OK {
			return map[string]any{
				"tool":             tool,
				"status":           string(agent.StatusNotFound),
				"preflight_failed": true,
				"result":           pf.Result,
			}
		}
		if pf.Warning != "" {
			slog.Warn("Preflight warning", "tool", tool, "warning", pf.Warning)
		}
	}

	resp := owner.HandleRequest(ctx, &agent.Request{
		Tool:       tool,
		Parameters: prep.params,
		WorkflowID: workflowID,
		Stream:     req.Stream,
	})

	if err := o.contexts.AddStepResult(ctx, workflowID, tool, desc.AgentID, map[string]any{
		"status": string(resp.Status),
		"result": resp.Result,
		"error":  resp.Error,
	}); err != nil {
		slog.Warn("Step result not recorded", "workflow_id", workflowID, "tool", tool, "error", err)
	}

	rec := map[string]any{
		"tool":     tool,
		"agent_id": desc.AgentID,
		"status":   string(resp.Status),
		"executed": true,
	}
	if resp.Result != nil {
		rec["result"] = resp.Result
	}
	if resp.Error != "" {
		rec["error"] = resp.Error
		rec["error_type"] = resp.ErrorType
	}
	return rec
}

// RouteToSpecialist sends an execute request to the registered agent of the
// given type over the bus and returns its payload.
func (o *Orchestrator) RouteToSpecialist(ctx context.Context, specialistType string, payload map[string]any, workflowID string) (map[string]any, error) {
	target, ok := o.registry.GetByType(specialistType)
	if !ok {
		return nil, fmt.Errorf("no %s specialist registered", specialistType)
	}

	if payload == nil {
		payload = map[string]any{}
	}
	payload["workflow_id"] = workflowID

	resp, err := o.bus.SendRequest(ctx, o.ID(), target.ID(), bus.RequestPrefix+"execute", payload, specialistTimeout)
	if err != nil {
		return nil, fmt.Errorf("specialist %s: %w", specialistType, err)
	}
	return resp, nil
}

// GetCapabilities dumps the categories, registered tool counts, and the
// per-category tool lists.
func (o *Orchestrator) GetCapabilities() map[string]any {
	byCategory := capabilitiesByCategory()
	registered := o.registry.ListTools("")

	registeredNames := make(map[string]bool, len(registered))
	for _, d := range registered {
		registeredNames[d.Name] = true
	}

	categories := make(map[string]any, len(byCategory))
	for name, tools := range byCategory {
		available := 0
		for _, tool := range tools {
			if registeredNames[tool] {
				available++
			}
		}
		categories[name] = map[string]any{
			"tools":     tools,
			"available": available,
		}
	}

	return map[string]any{
		"agent_id":         o.ID(),
		"categories":       categories,
		"registered_tools": len(registered),
	}
}
