package agent

import (
	"context"
	"testing"
	"time"
)

func registerTestAgent(t *testing.T, r *Registry, id string, exec Executor) *BaseAgent {
	t.Helper()
	a := NewBase(id, "test", Options{MaxRetries: 1, Timeout: 5 * time.Second}, exec)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize %s: %v", id, err)
	}
	if err := r.Register(context.Background(), a, Metadata{}); err != nil {
		t.Fatalf("Register %s: %v", id, err)
	}
	return a
}

func TestRegistryToolOwnership(t *testing.T) {
	r := NewRegistry()
	registerTestAgent(t, r, "agent-a", &fakeExec{})
	registerTestAgent(t, r, "agent-b", &fakeExec{})

	if err := r.RegisterTool("list_container_apps", "agent-a", ToolDescriptor{Category: "inventory"}); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}
	// Same agent may re-register its own tool.
	if err := r.RegisterTool("list_container_apps", "agent-a", ToolDescriptor{Category: "inventory"}); err != nil {
		t.Fatalf("re-register by owner: %v", err)
	}
	// Another live agent may not steal the name.
	if err := r.RegisterTool("list_container_apps", "agent-b", ToolDescriptor{}); err == nil {
		t.Fatal("tool name stolen by second agent")
	}

	d, ok := r.GetTool("list_container_apps")
	if !ok || d.AgentID != "agent-a" {
		t.Fatalf("GetTool = %+v, %v", d, ok)
	}
}

func TestRegistryToolRequiresAgent(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterTool("orphan_tool", "ghost", ToolDescriptor{}); err == nil {
		t.Fatal("tool registered without a live agent")
	}
}

func TestUnregisterRemovesTools(t *testing.T) {
	r := NewRegistry()
	registerTestAgent(t, r, "agent-a", &fakeExec{})
	registerTestAgent(t, r, "agent-b", &fakeExec{})

	tools := []ToolDescriptor{
		{Name: "check_container_app_health", Category: "health"},
		{Name: "restart_container_app", Category: "remediation"},
	}
	if err := r.RegisterToolsBulk("agent-a", tools); err != nil {
		t.Fatalf("RegisterToolsBulk: %v", err)
	}
	if err := r.RegisterTool("get_cost_analysis", "agent-b", ToolDescriptor{}); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	if err := r.Unregister(context.Background(), "agent-a"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	// Idempotent.
	if err := r.Unregister(context.Background(), "agent-a"); err != nil {
		t.Fatalf("second Unregister: %v", err)
	}

	if _, ok := r.Get("agent-a"); ok {
		t.Error("agent still resolvable after unregister")
	}
	for _, name := range []string{"check_container_app_health", "restart_container_app"} {
		if _, ok := r.GetTool(name); ok {
			t.Errorf("tool %s survived its agent", name)
		}
	}
	// The other agent's tool is untouched.
	if _, ok := r.GetTool("get_cost_analysis"); !ok {
		t.Error("unrelated tool removed")
	}

	// Now the name is free for another agent.
	if err := r.RegisterTool("check_container_app_health", "agent-b", ToolDescriptor{}); err != nil {
		t.Errorf("freed tool name not reusable: %v", err)
	}
}

func TestRegisterReplacesAgent(t *testing.T) {
	r := NewRegistry()
	first := registerTestAgent(t, r, "agent-a", &fakeExec{})
	second := registerTestAgent(t, r, "agent-a", &fakeExec{})

	got, ok := r.Get("agent-a")
	if !ok || got != Agent(second) {
		t.Fatal("registry did not replace the agent reference")
	}
	if first.Initialized() {
		t.Error("replaced agent was not cleaned up")
	}
	if len(r.List("")) != 1 {
		t.Errorf("agent count = %d, want 1", len(r.List("")))
	}
}

func TestCheckHealth(t *testing.T) {
	r := NewRegistry()
	healthy := registerTestAgent(t, r, "healthy", &fakeExec{})
	failing := registerTestAgent(t, r, "failing", &fakeExec{failures: 100})
	idle := registerTestAgent(t, r, "idle", &fakeExec{})
	_ = idle

	for i := 0; i < 5; i++ {
		healthy.HandleRequest(context.Background(), &Request{Action: "work"})
		failing.HandleRequest(context.Background(), &Request{Action: "work"})
	}

	h, err := r.CheckHealth("healthy")
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !h.Healthy || h.SuccessRate != 1.0 {
		t.Errorf("healthy agent = %+v", h)
	}

	h, err = r.CheckHealth("failing")
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if h.Healthy || h.SuccessRate != 0 {
		t.Errorf("failing agent = %+v", h)
	}
	if h.ConsecutiveFailures != 1 {
		t.Errorf("consecutive failures = %d, want 1", h.ConsecutiveFailures)
	}
	if h, _ = r.CheckHealth("failing"); h.ConsecutiveFailures != 2 {
		t.Errorf("consecutive failures = %d, want 2", h.ConsecutiveFailures)
	}

	// Zero handled requests counts as healthy.
	h, err = r.CheckHealth("idle")
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !h.Healthy {
		t.Errorf("idle agent should be healthy: %+v", h)
	}
}

func TestHealthCheckAll(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		registerTestAgent(t, r, id, &fakeExec{})
	}

	all := r.HealthCheckAll(context.Background())
	if len(all) != 3 {
		t.Fatalf("roll-up size = %d, want 3", len(all))
	}
	for id, h := range all {
		if !h.Healthy {
			t.Errorf("agent %s reported unhealthy: %+v", id, h)
		}
	}
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry()
	registerTestAgent(t, r, "agent-a", &fakeExec{})
	registerTestAgent(t, r, "agent-b", &fakeExec{})
	if err := r.RegisterTool("get_resource_health", "agent-a", ToolDescriptor{}); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	s := r.Stats()
	if s.Agents != 2 || s.Tools != 1 || s.Healthy != 2 {
		t.Errorf("stats = %+v", s)
	}
	if s.AgentsByType["test"] != 2 {
		t.Errorf("by-type = %v", s.AgentsByType)
	}
}
