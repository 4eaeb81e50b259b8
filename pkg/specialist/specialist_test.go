package specialist

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/docstore"
	"github.com/sreflow/sreflow/pkg/workflow"
)

// fakeProxy stands in for the tool proxy: scripted parsed payloads per
// tool, optional per-tool failures, and a call log.
type fakeProxy struct {
	mu      sync.Mutex
	results map[string]map[string]any
	fail    map[string]string
	calls   []string
}

func (f *fakeProxy) ID() string                             { return "proxy-test" }
func (f *fakeProxy) Type() string                           { return "tool_proxy" }
func (f *fakeProxy) Initialize(ctx context.Context) error   { return nil }
func (f *fakeProxy) Cleanup(ctx context.Context) error      { return nil }
func (f *fakeProxy) SetStreamCallback(agent.StreamFunc)     {}
func (f *fakeProxy) MetricsSnapshot() agent.MetricsSnapshot { return agent.MetricsSnapshot{} }
func (f *fakeProxy) AgentStatus() agent.AgentStatus         { return agent.AgentStatus{} }

func (f *fakeProxy) HandleRequest(ctx context.Context, req *agent.Request) *agent.Response {
	f.mu.Lock()
	f.calls = append(f.calls, req.Tool)
	f.mu.Unlock()

	if msg, ok := f.fail[req.Tool]; ok {
		return &agent.Response{Status: agent.StatusError, Error: msg}
	}
	payload, ok := f.results[req.Tool]
	if !ok {
		payload = map[string]any{}
	}
	return &agent.Response{
		Status: agent.StatusSuccess,
		Result: map[string]any{"success": true, "parsed": payload},
	}
}

func (f *fakeProxy) called(tool string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == tool {
			return true
		}
	}
	return false
}

func newTestDeps(t *testing.T, proxy *fakeProxy) Deps {
	t.Helper()
	container, err := docstore.NewMemoryStore().EnsureContainer(context.Background(), "workflows", workflow.PartitionField, 0)
	if err != nil {
		t.Fatalf("EnsureContainer: %v", err)
	}
	return Deps{
		Contexts: workflow.NewStore(container),
		Proxy:    proxy,
	}
}

func list(items ...map[string]any) []any {
	out := make([]any, len(items))
	for i, m := range items {
		out[i] = m
	}
	return out
}

func TestExecuteUnknownAction(t *testing.T) {
	proxy := &fakeProxy{}
	s := NewHealthMonitoring("health-1", newTestDeps(t, proxy), agent.Options{})

	_, err := s.Execute(context.Background(), &agent.Request{Action: "defragment"})
	if err == nil {
		t.Fatal("expected an error for an unknown action")
	}
	if !strings.Contains(err.Error(), "check_health") {
		t.Errorf("error should list the available verbs, got %q", err)
	}

	if _, err := s.Execute(context.Background(), &agent.Request{}); err == nil {
		t.Error("expected an error when action is empty")
	}
}

func TestExecuteCreatesWorkflowAndRecordsSteps(t *testing.T) {
	proxy := &fakeProxy{results: map[string]map[string]any{
		"get_resource_health": {"availability_state": "Available"},
	}}
	deps := newTestDeps(t, proxy)
	s := NewHealthMonitoring("health-1", deps, agent.Options{})

	result, err := s.Execute(context.Background(), &agent.Request{
		Action:     "check_health",
		Parameters: map[string]any{"resource_id": "/subscriptions/x/vm1"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	workflowID, _ := result["workflow_id"].(string)
	if workflowID == "" {
		t.Fatal("expected a generated workflow_id")
	}
	steps, err := deps.Contexts.GetStepResults(context.Background(), workflowID, "")
	if err != nil {
		t.Fatalf("GetStepResults: %v", err)
	}
	if len(steps) != 1 || steps[0].StepID != "get_resource_health" {
		t.Errorf("expected one recorded step for get_resource_health, got %+v", steps)
	}
}

func TestHealthCheckToolSelection(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		tool   string
	}{
		{"container app", map[string]any{"container_app_name": "my-app"}, "check_container_app_health"},
		{"virtual machine", map[string]any{"vm_name": "vm-1"}, "check_vm_health"},
		{"generic resource", map[string]any{"resource_id": "/subscriptions/x/r1"}, "get_resource_health"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxy := &fakeProxy{results: map[string]map[string]any{
				tt.tool: {"status": "healthy"},
			}}
			s := NewHealthMonitoring("health-1", newTestDeps(t, proxy), agent.Options{})

			out, err := s.Execute(context.Background(), &agent.Request{
				Action: "check_health", Parameters: tt.params,
			})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !proxy.called(tt.tool) {
				t.Errorf("expected %s to be called, calls: %v", tt.tool, proxy.calls)
			}
			if out["healthy"] != true {
				t.Errorf("expected healthy=true, got %v", out["healthy"])
			}
		})
	}
}

func TestClassifyIncident(t *testing.T) {
	tests := []struct {
		critical, alerts, errors int
		want                     string
	}{
		{1, 1, 0, "critical"},
		{0, 5, 0, "high"},
		{0, 0, 50, "high"},
		{0, 2, 10, "medium"},
		{0, 1, 1, "low"},
		{0, 0, 0, "none"},
		{0, 1, 0, "none"},
	}
	for _, tt := range tests {
		if got := classifyIncident(tt.critical, tt.alerts, tt.errors); got != tt.want {
			t.Errorf("classifyIncident(%d, %d, %d) = %q, want %q",
				tt.critical, tt.alerts, tt.errors, got, tt.want)
		}
	}
}

func TestIncidentFullRecordsVerbErrors(t *testing.T) {
	proxy := &fakeProxy{
		results: map[string]map[string]any{
			"get_active_alerts":     {"alerts": list(map[string]any{"severity": "critical"})},
			"get_recent_errors":     {"errors": list()},
			"analyze_log_patterns":  {"patterns": list()},
			"get_dependency_status": {"dependencies": list()},
		},
		fail: map[string]string{"get_incident_timeline": "upstream unavailable"},
	}
	s := NewIncidentResponse("incident-1", newTestDeps(t, proxy), agent.Options{})

	out, err := s.Execute(context.Background(), &agent.Request{Action: "full"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	steps := out["steps"].(map[string]any)
	triage := steps["triage"].(map[string]any)
	if triage["severity"] != "critical" {
		t.Errorf("triage severity = %v, want critical", triage["severity"])
	}
	correlate := steps["correlate"].(map[string]any)
	if correlate["status"] != "error" {
		t.Errorf("correlate should record its failure, got %v", correlate)
	}
}

func TestRemediationFor(t *testing.T) {
	tests := []struct {
		cause string
		want  string
	}{
		{"memory exhaustion in the application process", "restart_and_raise_memory_limit"},
		{"a dependency is unreachable", "restart_dependency_connection"},
		{"rate limiting by a downstream service", "enable_request_throttling"},
		{"storage exhaustion on the host", "expand_storage"},
		{"something nobody has seen before", "restart_resource"},
	}
	for _, tt := range tests {
		if got := remediationFor(tt.cause); got != tt.want {
			t.Errorf("remediationFor(%q) = %q, want %q", tt.cause, got, tt.want)
		}
	}
}

func TestRemediationExecuteRequiresApproval(t *testing.T) {
	proxy := &fakeProxy{}
	s := NewRemediation("rem-1", newTestDeps(t, proxy), agent.Options{})

	out, err := s.Execute(context.Background(), &agent.Request{
		Action:     "execute",
		Parameters: map[string]any{"action": "restart_resource", "resource_id": "/subscriptions/x/r1"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["status"] != string(agent.StatusPendingApproval) {
		t.Errorf("status = %v, want pending_approval", out["status"])
	}
	if proxy.called("execute_remediation") {
		t.Error("execute_remediation must not run without approval")
	}

	out, err = s.Execute(context.Background(), &agent.Request{
		Action: "execute",
		Parameters: map[string]any{
			"action": "restart_resource", "resource_id": "/subscriptions/x/r1", "approve": true,
		},
	})
	if err != nil {
		t.Fatalf("Execute with approval: %v", err)
	}
	if out["status"] != "executed" {
		t.Errorf("status = %v, want executed", out["status"])
	}
	if !proxy.called("execute_remediation") {
		t.Error("execute_remediation should run once approved")
	}
}

func TestPerformanceBottleneckRules(t *testing.T) {
	proxy := &fakeProxy{results: map[string]map[string]any{
		"get_performance_metrics": {"metrics": list(
			map[string]any{"name": "cpu_percent", "value": 95.0},
			map[string]any{"name": "memory_percent", "value": 82.0},
			map[string]any{"name": "latency_ms", "value": 120.0},
		)},
	}}
	s := NewPerformanceAnalysis("perf-1", newTestDeps(t, proxy), agent.Options{})

	out, err := s.Execute(context.Background(), &agent.Request{
		Action:     "bottlenecks",
		Parameters: map[string]any{"resource_id": "/subscriptions/x/r1"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if out["bottlenecks_identified"] != 2 {
		t.Fatalf("bottlenecks_identified = %v, want 2", out["bottlenecks_identified"])
	}
	bySeverity := map[string]string{}
	for _, b := range out["bottlenecks"].([]map[string]any) {
		bySeverity[b["metric"].(string)] = b["severity"].(string)
	}
	if bySeverity["cpu_percent"] != "critical" {
		t.Errorf("cpu at 95%% should be critical, got %v", bySeverity["cpu_percent"])
	}
	if bySeverity["memory_percent"] != "warning" {
		t.Errorf("memory at 82%% should be warning, got %v", bySeverity["memory_percent"])
	}
}

func TestCostSavingsNormalizesAnnualAmounts(t *testing.T) {
	proxy := &fakeProxy{results: map[string]map[string]any{
		"get_cost_recommendations": {"recommendations": list(
			map[string]any{"resource": "vm-1", "action": "resize", "monthly_savings_amount": 150.0},
			map[string]any{"resource": "disk-2", "action": "delete", "savings_amount": 600.0},
		)},
	}}
	s := NewCostOptimization("cost-1", newTestDeps(t, proxy), agent.Options{})

	out, err := s.Execute(context.Background(), &agent.Request{Action: "find_savings"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["potential_monthly_savings"] != "$200.00" {
		t.Errorf("potential_monthly_savings = %v, want $200.00", out["potential_monthly_savings"])
	}
	if out["recommendation_count"] != 2 {
		t.Errorf("recommendation_count = %v, want 2", out["recommendation_count"])
	}
}

func TestBudgetAlertLevels(t *testing.T) {
	tests := []struct {
		consumed float64
		level    string
	}{
		{105, "exceeded"},
		{92, "critical"},
		{80, "warning"},
		{40, "ok"},
	}
	for _, tt := range tests {
		proxy := &fakeProxy{results: map[string]map[string]any{
			"get_budget_status": {"consumed_percent": tt.consumed, "budget_amount": 1000.0},
		}}
		s := NewCostOptimization("cost-1", newTestDeps(t, proxy), agent.Options{})

		out, err := s.Execute(context.Background(), &agent.Request{Action: "budget_tracking"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if out["alert_level"] != tt.level {
			t.Errorf("consumed %.0f%%: alert_level = %v, want %s", tt.consumed, out["alert_level"], tt.level)
		}
	}
}

func TestBurnRateAlertLevels(t *testing.T) {
	tests := []struct {
		rate  float64
		level string
	}{
		{20, "page"},
		{8, "page"},
		{4, "ticket"},
		{1.5, "watch"},
		{0.5, "ok"},
	}
	for _, tt := range tests {
		proxy := &fakeProxy{results: map[string]map[string]any{
			"get_slo_burn_rate": {"burn_rate": tt.rate},
		}}
		s := NewSLOManagement("slo-1", newTestDeps(t, proxy), agent.Options{})

		out, err := s.Execute(context.Background(), &agent.Request{Action: "alert"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if out["alert_level"] != tt.level {
			t.Errorf("burn rate %.1f: alert_level = %v, want %s", tt.rate, out["alert_level"], tt.level)
		}
	}
}

func TestSLOForecast(t *testing.T) {
	proxy := &fakeProxy{results: map[string]map[string]any{
		"get_error_budget_status": {"budget_remaining_percent": 50.0},
		"get_slo_burn_rate":       {"burn_rate": 3.0},
	}}
	s := NewSLOManagement("slo-1", newTestDeps(t, proxy), agent.Options{})

	out, err := s.Execute(context.Background(), &agent.Request{Action: "forecast"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// half the budget at 3x burn over a 30-day window: 0.5 * 30 / 3 = 5 days
	if got := out["days_until_exhaustion"].(float64); got != 5 {
		t.Errorf("days_until_exhaustion = %v, want 5", got)
	}
}

func TestVulnerabilitySorting(t *testing.T) {
	findings := []map[string]any{
		{"id": "v1", "severity": "low"},
		{"id": "v2", "severity": "critical"},
		{"id": "v3", "severity": "medium"},
		{"id": "v4", "severity": "high"},
	}
	sortBySeverity(findings)

	want := []string{"v2", "v4", "v3", "v1"}
	for i, w := range want {
		if findings[i]["id"] != w {
			t.Fatalf("position %d = %v, want %s (order: %v)", i, findings[i]["id"], w, findings)
		}
	}
}

func TestConfigDriftGrading(t *testing.T) {
	proxy := &fakeProxy{results: map[string]map[string]any{
		"check_configuration_drift": {"drifts": list(
			map[string]any{"setting": "tls_version", "expected": "1.2", "actual": "1.0"},
			map[string]any{"setting": "tags", "expected": "env=prod", "actual": ""},
		)},
	}}
	s := NewConfigManagement("config-1", newTestDeps(t, proxy), agent.Options{})

	out, err := s.Execute(context.Background(), &agent.Request{Action: "drift"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["worst_severity"] != "critical" {
		t.Errorf("worst_severity = %v, want critical", out["worst_severity"])
	}
	if out["in_sync"] != false {
		t.Error("expected in_sync=false with drifted settings")
	}

	graded := out["drifted_settings"].([]map[string]any)
	if graded[1]["severity"] != "low" {
		t.Errorf("unlisted setting should grade low, got %v", graded[1]["severity"])
	}
}

func TestConfigRemediateInSyncShortCircuits(t *testing.T) {
	proxy := &fakeProxy{results: map[string]map[string]any{
		"check_configuration_drift": {"drifts": list()},
	}}
	s := NewConfigManagement("config-1", newTestDeps(t, proxy), agent.Options{})

	out, err := s.Execute(context.Background(), &agent.Request{Action: "remediate"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["status"] != "in_sync" {
		t.Errorf("status = %v, want in_sync", out["status"])
	}
	if proxy.called("apply_configuration") {
		t.Error("apply_configuration must not run when nothing drifted")
	}
}

func TestVerbsIncludeFull(t *testing.T) {
	s := NewSecurityAudit("sec-1", newTestDeps(t, &fakeProxy{}), agent.Options{})
	verbs := s.Verbs()

	seen := map[string]bool{}
	for _, v := range verbs {
		seen[v] = true
	}
	for _, want := range []string{"full", "scan_security", "check_compliance", "policy_check"} {
		if !seen[want] {
			t.Errorf("verbs missing %q: %v", want, verbs)
		}
	}
}
