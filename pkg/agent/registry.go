package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sreflow/sreflow/pkg/registry"
)

// Metadata describes a registered agent.
type Metadata struct {
	AgentID      string    `json:"agent_id"`
	AgentType    string    `json:"agent_type"`
	RegisteredAt time.Time `json:"registered_at"`
	Status       string    `json:"status"`
}

// Health is the derived health of a registered agent. An agent is unhealthy
// when its success rate drops below the threshold after handling at least
// one request, or when it is not initialized.
type Health struct {
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	SuccessRate         float64   `json:"success_rate"`
}

// healthThreshold is the minimum success rate considered healthy.
const healthThreshold = 0.8

// RegistryStats summarizes registry contents.
type RegistryStats struct {
	Agents       int            `json:"agents"`
	Tools        int            `json:"tools"`
	Healthy      int            `json:"healthy"`
	AgentsByType map[string]int `json:"agents_by_type"`
}

type agentEntry struct {
	agent Agent
	meta  Metadata
}

// Registry owns every agent's lifecycle and the tool table. The tool table
// and agent table stay consistent: a tool name maps to exactly one live
// agent, and unregistering an agent removes its tools in the same critical
// section.
type Registry struct {
	agents *registry.BaseRegistry[*agentEntry]

	mu     sync.Mutex
	tools  map[string]*ToolDescriptor
	health map[string]*Health
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: registry.NewBaseRegistry[*agentEntry](),
		tools:  make(map[string]*ToolDescriptor),
		health: make(map[string]*Health),
	}
}

// Register adds an agent. Registering an existing ID updates the metadata
// and replaces the agent reference; the replaced agent is cleaned up.
func (r *Registry) Register(ctx context.Context, a Agent, meta Metadata) error {
	if a == nil {
		return fmt.Errorf("agent is required")
	}
	if meta.AgentID == "" {
		meta.AgentID = a.ID()
	}
	if meta.AgentType == "" {
		meta.AgentType = a.Type()
	}
	if meta.RegisteredAt.IsZero() {
		meta.RegisteredAt = time.Now()
	}

	r.mu.Lock()
	prior, existed := r.agents.Get(meta.AgentID)
	if err := r.agents.Register(meta.AgentID, &agentEntry{agent: a, meta: meta}); err != nil {
		r.mu.Unlock()
		return err
	}
	r.health[meta.AgentID] = &Health{Healthy: true, SuccessRate: 1.0}
	r.mu.Unlock()

	if existed && prior.agent != a {
		if err := prior.agent.Cleanup(ctx); err != nil {
			slog.Warn("Replaced agent cleanup failed", "agent_id", meta.AgentID, "error", err)
		}
	}

	slog.Info("Agent registered", "agent_id", meta.AgentID, "agent_type", meta.AgentType)
	return nil
}

// Unregister removes an agent and all its tools, cleaning the agent up.
// Idempotent: unregistering an absent ID is a no-op.
func (r *Registry) Unregister(ctx context.Context, agentID string) error {
	r.mu.Lock()
	entry, existed := r.agents.Get(agentID)
	if existed {
		_ = r.agents.Remove(agentID)
		for name, tool := range r.tools {
			if tool.AgentID == agentID {
				delete(r.tools, name)
			}
		}
		delete(r.health, agentID)
	}
	r.mu.Unlock()

	if !existed {
		return nil
	}

	if err := entry.agent.Cleanup(ctx); err != nil {
		slog.Warn("Agent cleanup failed on unregister", "agent_id", agentID, "error", err)
	}
	slog.Info("Agent unregistered", "agent_id", agentID)
	return nil
}

// Get returns the agent with the given ID.
func (r *Registry) Get(agentID string) (Agent, bool) {
	entry, ok := r.agents.Get(agentID)
	if !ok {
		return nil, false
	}
	return entry.agent, true
}

// GetMetadata returns the metadata for an agent.
func (r *Registry) GetMetadata(agentID string) (Metadata, bool) {
	entry, ok := r.agents.Get(agentID)
	if !ok {
		return Metadata{}, false
	}
	return entry.meta, true
}

// GetByType returns the first registered agent of the given type.
func (r *Registry) GetByType(agentType string) (Agent, bool) {
	for _, entry := range r.agents.List() {
		if entry.meta.AgentType == agentType {
			return entry.agent, true
		}
	}
	return nil, false
}

// List returns metadata for all agents, optionally filtered by type.
func (r *Registry) List(agentType string) []Metadata {
	var out []Metadata
	for _, entry := range r.agents.List() {
		if agentType != "" && entry.meta.AgentType != agentType {
			continue
		}
		out = append(out, entry.meta)
	}
	return out
}

// RegisterTool maps a tool name to its owning agent. The agent must be
// registered first; a tool name owned by a different live agent cannot be
// stolen.
func (r *Registry) RegisterTool(name, agentID string, desc ToolDescriptor) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents.Get(agentID); !ok {
		return fmt.Errorf("agent %s is not registered", agentID)
	}
	if existing, ok := r.tools[name]; ok && existing.AgentID != agentID {
		return fmt.Errorf("tool %s already owned by agent %s", name, existing.AgentID)
	}

	desc.Name = name
	desc.AgentID = agentID
	r.tools[name] = &desc
	return nil
}

// RegisterToolsBulk registers a batch of tools under one agent.
func (r *Registry) RegisterToolsBulk(agentID string, descs []ToolDescriptor) error {
	for _, d := range descs {
		if err := r.RegisterTool(d.Name, agentID, d); err != nil {
			return err
		}
	}
	return nil
}

// GetTool returns the descriptor for a tool name.
func (r *Registry) GetTool(name string) (*ToolDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	copied := *d
	return &copied, true
}

// ListTools returns all tool descriptors, optionally filtered by category.
func (r *Registry) ListTools(category string) []ToolDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ToolDescriptor
	for _, d := range r.tools {
		if category != "" && d.Category != category {
			continue
		}
		out = append(out, *d)
	}
	return out
}

// CheckHealth recomputes one agent's health from its metrics.
func (r *Registry) CheckHealth(agentID string) (Health, error) {
	entry, ok := r.agents.Get(agentID)
	if !ok {
		return Health{}, fmt.Errorf("agent %s is not registered", agentID)
	}

	status := entry.agent.AgentStatus()
	rate := status.Metrics.SuccessRate()
	healthy := status.Initialized &&
		(status.Metrics.RequestsHandled == 0 || rate >= healthThreshold)

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.health[agentID]
	if !ok {
		h = &Health{}
		r.health[agentID] = h
	}
	h.Healthy = healthy
	h.LastCheck = time.Now()
	h.SuccessRate = rate
	if healthy {
		h.ConsecutiveFailures = 0
	} else {
		h.ConsecutiveFailures++
	}
	return *h, nil
}

// HealthCheckAll recomputes health for every agent concurrently and
// returns the roll-up keyed by agent ID.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]Health {
	ids := r.agents.Names()

	var mu sync.Mutex
	out := make(map[string]Health, len(ids))

	g, _ := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			h, err := r.CheckHealth(id)
			if err != nil {
				return nil // agent unregistered mid-check
			}
			mu.Lock()
			out[id] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Stats summarizes the registry.
func (r *Registry) Stats() RegistryStats {
	entries := r.agents.List()

	r.mu.Lock()
	defer r.mu.Unlock()

	stats := RegistryStats{
		Agents:       len(entries),
		Tools:        len(r.tools),
		AgentsByType: make(map[string]int),
	}
	for _, entry := range entries {
		stats.AgentsByType[entry.meta.AgentType]++
		if h, ok := r.health[entry.meta.AgentID]; ok && h.Healthy {
			stats.Healthy++
		}
	}
	return stats
}
