// Package runtime assembles the platform: configuration, the document
// store, the message bus, the tool transport, and every agent, wired in
// dependency order and torn down in reverse.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/agent/toolproxy"
	"github.com/sreflow/sreflow/pkg/bus"
	"github.com/sreflow/sreflow/pkg/config"
	"github.com/sreflow/sreflow/pkg/docstore"
	"github.com/sreflow/sreflow/pkg/interaction"
	"github.com/sreflow/sreflow/pkg/inventory"
	"github.com/sreflow/sreflow/pkg/observability"
	"github.com/sreflow/sreflow/pkg/orchestrator"
	"github.com/sreflow/sreflow/pkg/specialist"
	"github.com/sreflow/sreflow/pkg/toolcache"
	"github.com/sreflow/sreflow/pkg/transport"
	"github.com/sreflow/sreflow/pkg/workflow"
)

// inventorySources lists the tools polled to build the inventory snapshot.
var inventorySources = []struct {
	tool         string
	resourceType string
}{
	{"list_container_apps", "container_app"},
	{"list_virtual_machines", "vm"},
}

// Runtime owns every platform component and their lifecycles.
type Runtime struct {
	cfg *config.Config

	bus      *bus.Bus
	registry *agent.Registry
	cache    *toolcache.Cache
	store    docstore.Store
	contexts *workflow.Store
	snapshot *inventory.MemorySnapshot
	guard    *inventory.Guard

	proxy       *toolproxy.Proxy
	orch        *orchestrator.Orchestrator
	specialists []*specialist.Specialist

	metricsSrv  *observability.Server
	serveCancel context.CancelFunc
	serveWG     sync.WaitGroup
}

// New assembles an unstarted runtime from the configuration.
func New(cfg *config.Config) *Runtime {
	return &Runtime{
		cfg:      cfg,
		bus:      bus.New(),
		registry: agent.NewRegistry(),
		cache:    toolcache.New(cfg.Cache.MaxEntries),
		snapshot: inventory.NewMemorySnapshot(),
	}
}

// Start brings up the platform: document store, tool transport, tool
// catalog, inventory snapshot, specialists, and the orchestrator.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.openStore(ctx); err != nil {
		return err
	}

	if err := r.startProxy(ctx); err != nil {
		return err
	}
	r.refreshInventory(ctx)
	r.guard = inventory.NewGuard(r.snapshot, r.cfg.Inventory.StrictMode)

	serveCtx, cancel := context.WithCancel(context.Background())
	r.serveCancel = cancel
	if err := r.startSpecialists(ctx, serveCtx); err != nil {
		return err
	}

	if err := r.startOrchestrator(ctx); err != nil {
		return err
	}

	if r.cfg.Metrics.Enabled {
		exporter := observability.NewExporter(r.registry, r.cache, r.contexts)
		r.metricsSrv = observability.NewServer(r.cfg.Metrics.Port, exporter)
		r.metricsSrv.Start()
	}

	stats := r.registry.Stats()
	slog.Info("Platform started", "agents", stats.Agents, "tools", stats.Tools)
	return nil
}

// Query runs one operator query through the orchestrator. Stream marks the
// caller as interactive so ambiguity produces selection prompts.
func (r *Runtime) Query(ctx context.Context, query string, stream bool) *agent.Response {
	return r.orch.HandleRequest(ctx, &agent.Request{Query: query, Stream: stream})
}

// Capabilities reports the tool catalog grouped by category.
func (r *Runtime) Capabilities() map[string]any {
	return r.orch.GetCapabilities()
}

// Registry exposes the agent registry for health checks and inspection.
func (r *Runtime) Registry() *agent.Registry {
	return r.registry
}

// Stop tears the platform down in reverse dependency order.
func (r *Runtime) Stop(ctx context.Context) {
	if r.serveCancel != nil {
		r.serveCancel()
	}
	r.serveWG.Wait()

	if r.orch != nil {
		if err := r.orch.Cleanup(ctx); err != nil {
			slog.Warn("Orchestrator cleanup failed", "error", err)
		}
	}
	for _, s := range r.specialists {
		r.bus.Unsubscribe(s.ID())
		if err := s.Cleanup(ctx); err != nil {
			slog.Warn("Specialist cleanup failed", "agent_id", s.ID(), "error", err)
		}
	}
	if r.proxy != nil {
		if err := r.proxy.Cleanup(ctx); err != nil {
			slog.Warn("Tool proxy cleanup failed", "error", err)
		}
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown failed", "error", err)
		}
	}
	if r.store != nil {
		if err := r.store.Close(ctx); err != nil {
			slog.Warn("Document store close failed", "error", err)
		}
	}
	slog.Info("Platform stopped")
}

// openStore connects the workflow context store to Mongo when a URI is
// configured, otherwise to the in-memory store.
func (r *Runtime) openStore(ctx context.Context) error {
	ds := r.cfg.DocumentStore
	if ds.URI == "" {
		r.store = docstore.NewMemoryStore()
		slog.Info("Workflow contexts are in-memory only; set document_store.uri for durability")
	} else {
		store, err := docstore.NewMongoStore(docstore.MongoOptions{
			URI:      ds.URI,
			Database: ds.Database,
			Timeout:  ds.Timeout,
		})
		if err != nil {
			return fmt.Errorf("document store: %w", err)
		}
		r.store = store
	}

	container, err := r.openContainer(ctx)
	if err != nil {
		return fmt.Errorf("workflow container: %w", err)
	}
	r.contexts = workflow.NewStore(container)
	return nil
}

// openContainer opens the workflow context container on the configured
// store, partitioned the way workflow.Store expects.
func (r *Runtime) openContainer(ctx context.Context) (docstore.Container, error) {
	ds := r.cfg.DocumentStore
	return r.store.EnsureContainer(ctx, ds.Container, workflow.PartitionField, ds.ContextTTL)
}

// startProxy spawns the tool transport, registers the proxy agent, and
// loads the tool catalog into the registry.
func (r *Runtime) startProxy(ctx context.Context) error {
	tr, err := transport.NewMCP(r.cfg.Transport)
	if err != nil {
		return fmt.Errorf("tool transport: %w", err)
	}

	r.proxy = toolproxy.New("tool-proxy-1", tr, r.cache, agent.Options{
		MaxRetries: r.cfg.Agents.MaxRetries,
		Timeout:    r.cfg.Agents.Timeout,
	})
	if err := r.register(ctx, r.proxy); err != nil {
		return err
	}

	descs, err := r.proxy.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("tool catalog: %w", err)
	}
	if err := r.registry.RegisterToolsBulk(r.proxy.ID(), descs); err != nil {
		return fmt.Errorf("tool registration: %w", err)
	}
	slog.Info("Tool catalog loaded", "tools", len(descs))
	return nil
}

// refreshInventory populates the snapshot from the listing tools. Failures
// leave the snapshot empty, which the guard treats per strict mode.
func (r *Runtime) refreshInventory(ctx context.Context) {
	var resources []inventory.Resource
	for _, src := range inventorySources {
		resp := r.proxy.HandleRequest(ctx, &agent.Request{Tool: src.tool})
		if resp.Status != agent.StatusSuccess {
			slog.Warn("Inventory source unavailable", "tool", src.tool, "error", resp.Error)
			continue
		}
		for _, item := range listItems(resp.Result) {
			resources = append(resources, inventory.Resource{
				ID:            stringAt(item, "id"),
				Type:          src.resourceType,
				Name:          stringAt(item, "name"),
				ResourceGroup: stringAt(item, "resource_group"),
				Location:      stringAt(item, "location"),
			})
		}
	}

	r.snapshot.Load(resources)
	slog.Info("Inventory snapshot loaded", "resources", len(resources))
}

// startSpecialists constructs, registers, and serves all eight domain
// specialists.
func (r *Runtime) startSpecialists(ctx, serveCtx context.Context) error {
	deps := specialist.Deps{
		Contexts: r.contexts,
		Registry: r.registry,
		Proxy:    r.proxy,
	}
	defaults := agent.Options{
		MaxRetries: r.cfg.Agents.MaxRetries,
		Timeout:    r.cfg.Agents.Timeout,
	}
	security := defaults
	if r.cfg.Agents.SecurityTimeout > 0 {
		security.Timeout = r.cfg.Agents.SecurityTimeout
	}

	r.specialists = []*specialist.Specialist{
		specialist.NewIncidentResponse("incident-response-1", deps, defaults),
		specialist.NewHealthMonitoring("health-monitoring-1", deps, defaults),
		specialist.NewPerformanceAnalysis("performance-analysis-1", deps, defaults),
		specialist.NewCostOptimization("cost-optimization-1", deps, defaults),
		specialist.NewRemediation("remediation-1", deps, defaults),
		specialist.NewSLOManagement("slo-management-1", deps, defaults),
		specialist.NewSecurityAudit("security-audit-1", deps, security),
		specialist.NewConfigManagement("config-management-1", deps, defaults),
	}

	for _, s := range r.specialists {
		if err := r.register(ctx, s); err != nil {
			return err
		}
		queue := r.bus.Subscribe(s.ID(), bus.RequestPrefix+"execute")
		r.serveWG.Add(1)
		go r.serve(serveCtx, s, queue)
	}
	return nil
}

func (r *Runtime) startOrchestrator(ctx context.Context) error {
	var interact *interaction.Handler
	if r.cfg.Cloud.CLIDiscovery {
		interact = interaction.NewHandler(interaction.NewShellExecutor(r.cfg.Cloud.SubscriptionID))
	}

	r.orch = orchestrator.New("orchestrator-1", orchestrator.Deps{
		Registry: r.registry,
		Bus:      r.bus,
		Contexts: r.contexts,
		Guard:    r.guard,
		Snapshot: r.snapshot,
		Interact: interact,
		Config:   r.cfg,
	})
	return r.register(ctx, r.orch)
}

// register adds an agent to the registry and initializes it.
func (r *Runtime) register(ctx context.Context, a agent.Agent) error {
	if err := r.registry.Register(ctx, a, agent.Metadata{
		AgentID:   a.ID(),
		AgentType: a.Type(),
	}); err != nil {
		return fmt.Errorf("register %s: %w", a.ID(), err)
	}
	if err := a.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize %s: %w", a.ID(), err)
	}
	return nil
}

// serve pumps one specialist's bus queue: each execute request becomes a
// HandleRequest call, and the response resolves the pending correlation.
func (r *Runtime) serve(ctx context.Context, s *specialist.Specialist, queue *bus.Queue) {
	defer r.serveWG.Done()

	for {
		msg, err := queue.Receive(ctx, 0)
		if err != nil {
			return
		}

		resp := s.HandleRequest(ctx, requestFromMessage(msg))
		r.bus.SendResponse(s.ID(), msg.CorrelationID, map[string]any{
			"status": string(resp.Status),
			"result": resp.Result,
			"error":  resp.Error,
		})
	}
}

// requestFromMessage maps an execute message payload onto an agent request.
func requestFromMessage(msg *bus.Message) *agent.Request {
	req := &agent.Request{
		Action:     stringAt(msg.Payload, "action"),
		Tool:       stringAt(msg.Payload, "tool"),
		Query:      stringAt(msg.Payload, "query"),
		WorkflowID: stringAt(msg.Payload, "workflow_id"),
	}
	if params, ok := msg.Payload["parameters"].(map[string]any); ok {
		req.Parameters = params
	}
	if req.Action == "" {
		req.Action = "full"
	}
	return req
}

// HealthReport runs a health check across every registered agent.
func (r *Runtime) HealthReport(ctx context.Context) map[string]agent.Health {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return r.registry.HealthCheckAll(checkCtx)
}

func listItems(result map[string]any) []map[string]any {
	payload := result
	if parsed, ok := result["parsed"].(map[string]any); ok {
		payload = parsed
	}
	for _, key := range []string{"resources", "items"} {
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

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
