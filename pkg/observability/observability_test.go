package observability

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/toolcache"
)

type stubAgent struct {
	id        string
	agentType string
	metrics   agent.MetricsSnapshot
}

func (a *stubAgent) ID() string                             { return a.id }
func (a *stubAgent) Type() string                           { return a.agentType }
func (a *stubAgent) Initialize(ctx context.Context) error   { return nil }
func (a *stubAgent) Cleanup(ctx context.Context) error      { return nil }
func (a *stubAgent) SetStreamCallback(agent.StreamFunc)     {}
func (a *stubAgent) MetricsSnapshot() agent.MetricsSnapshot { return a.metrics }
func (a *stubAgent) AgentStatus() agent.AgentStatus {
	return agent.AgentStatus{AgentID: a.id, AgentType: a.agentType, Initialized: true, Metrics: a.metrics}
}
func (a *stubAgent) HandleRequest(ctx context.Context, req *agent.Request) *agent.Response {
	return &agent.Response{Status: agent.StatusSuccess}
}

func TestExporterCollectsAgentAndCacheMetrics(t *testing.T) {
	registry := agent.NewRegistry()
	stub := &stubAgent{
		id:        "health-1",
		agentType: "health_monitoring",
		metrics:   agent.MetricsSnapshot{RequestsHandled: 7, RequestsFailed: 2, TotalExecutionTime: 1.5},
	}
	if err := registry.Register(context.Background(), stub, agent.Metadata{
		AgentID: stub.id, AgentType: stub.agentType,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	cache := toolcache.New(8)
	cache.Set("list_resources", map[string]any{"type": "vm"}, map[string]any{"ok": true})
	cache.Get("list_resources", map[string]any{"type": "vm"})
	cache.Get("list_resources", map[string]any{"type": "storage"})

	exporter := NewExporter(registry, cache, nil)

	if n := testutil.CollectAndCount(exporter); n == 0 {
		t.Fatal("exporter collected no metrics")
	}

	expected := strings.NewReader(`
# HELP sreflow_agent_requests_total Requests handled per agent.
# TYPE sreflow_agent_requests_total counter
sreflow_agent_requests_total{agent_id="health-1",agent_type="health_monitoring"} 7
# HELP sreflow_toolcache_hits_total Tool cache hits.
# TYPE sreflow_toolcache_hits_total counter
sreflow_toolcache_hits_total 1
# HELP sreflow_toolcache_misses_total Tool cache misses.
# TYPE sreflow_toolcache_misses_total counter
sreflow_toolcache_misses_total 1
`)
	if err := testutil.CollectAndCompare(exporter, expected,
		"sreflow_agent_requests_total",
		"sreflow_toolcache_hits_total",
		"sreflow_toolcache_misses_total",
	); err != nil {
		t.Errorf("unexpected metric values: %v", err)
	}
}

func TestExporterToleratesNilComponents(t *testing.T) {
	exporter := NewExporter(nil, nil, nil)
	if n := testutil.CollectAndCount(exporter); n != 0 {
		t.Errorf("expected no metrics with nil components, got %d", n)
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(exporter); err != nil {
		t.Fatalf("Register: %v", err)
	}
}
