package specialist

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/sreflow/sreflow/pkg/agent"
)

// TypeCostOptimization identifies the cost optimization specialist.
const TypeCostOptimization = "cost_optimization"

// costRecommendation is one decoded savings recommendation. Monthly
// amounts are used as-is; annual amounts are normalized to monthly.
type costRecommendation struct {
	Resource      string  `mapstructure:"resource"`
	Action        string  `mapstructure:"action"`
	MonthlyAmount float64 `mapstructure:"monthly_savings_amount"`
	AnnualAmount  float64 `mapstructure:"savings_amount"`
}

func (r costRecommendation) monthly() float64 {
	if r.MonthlyAmount > 0 {
		return r.MonthlyAmount
	}
	return r.AnnualAmount / 12
}

// budgetAlertRules classify budget consumption. First matching row wins.
var budgetAlertRules = []struct {
	minPercent float64
	level      string
	message    string
}{
	{100, "exceeded", "Budget exceeded; spending above the allocated amount."},
	{90, "critical", "Over 90% of budget consumed; spending freeze recommended."},
	{75, "warning", "Over 75% of budget consumed; review the largest cost drivers."},
	{0, "ok", "Budget consumption is within expectations."},
}

// orphanCandidates names the resource kinds worth sweeping for waste.
var orphanCandidates = []string{
	"unattached_disk", "unused_public_ip", "stopped_vm",
	"empty_load_balancer", "stale_snapshot",
}

// NewCostOptimization builds the cost specialist.
func NewCostOptimization(id string, deps Deps, opts agent.Options) *Specialist {
	s := newSpecialist(id, TypeCostOptimization, opts, deps)
	s.register("analyze_costs", true, s.costAnalyze)
	s.register("find_savings", true, s.costSavings)
	s.register("identify_orphaned", true, s.costOrphaned)
	s.register("budget_tracking", false, s.costBudget)
	s.register("recommendations", false, s.costRecommendations)
	return s
}

// costAnalyze reads the cost breakdown for the prepared scope.
func (s *Specialist) costAnalyze(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_cost_analysis", req.Parameters)
	if err != nil {
		return nil, err
	}

	payload := payloadOf(res)
	out := map[string]any{
		"total_cost": payload["total_cost"],
		"currency":   payload["currency"],
		"by_service": payload["by_service"],
	}
	if anomRes, err := s.callTool(ctx, workflowID, "get_cost_anomalies", req.Parameters); err == nil {
		anomalies := itemsOf(anomRes, "anomalies")
		out["anomalies"] = anomalies
		out["anomaly_count"] = len(anomalies)
	}
	return out, nil
}

// costSavings sums potential savings from recommendations, normalizing
// annual amounts to monthly.
func (s *Specialist) costSavings(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_cost_recommendations", req.Parameters)
	if err != nil {
		return nil, err
	}

	var recs []costRecommendation
	for _, raw := range itemsOf(res, "recommendations") {
		var rec costRecommendation
		if err := mapstructure.WeakDecode(raw, &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}

	total := 0.0
	lines := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		monthly := rec.monthly()
		total += monthly
		lines = append(lines, map[string]any{
			"resource":        rec.Resource,
			"action":          rec.Action,
			"monthly_savings": monthly,
		})
	}

	return map[string]any{
		"potential_monthly_savings": fmt.Sprintf("$%.2f", total),
		"recommendations":           lines,
		"recommendation_count":      len(recs),
	}, nil
}

// costOrphaned sweeps for waste: resources nobody uses but everyone pays
// for.
func (s *Specialist) costOrphaned(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "find_orphaned_resources", req.Parameters)
	if err != nil {
		return nil, err
	}

	orphaned := itemsOf(res, "orphaned_resources")
	byKind := make(map[string]int)
	monthlyWaste := 0.0
	for _, o := range orphaned {
		byKind[str(o["kind"])]++
		monthlyWaste += num(o["monthly_cost"])
	}

	return map[string]any{
		"orphaned_count":  len(orphaned),
		"by_kind":         byKind,
		"monthly_waste":   fmt.Sprintf("$%.2f", monthlyWaste),
		"swept_kinds":     orphanCandidates,
		"orphaned_detail": orphaned,
	}, nil
}

// costBudget reports budget consumption with the alert-rule table.
func (s *Specialist) costBudget(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_budget_status", req.Parameters)
	if err != nil {
		return nil, err
	}

	payload := payloadOf(res)
	consumed := num(payload["consumed_percent"])

	level, message := "ok", ""
	for _, rule := range budgetAlertRules {
		if consumed >= rule.minPercent {
			level, message = rule.level, rule.message
			break
		}
	}

	return map[string]any{
		"consumed_percent": consumed,
		"budget_amount":    payload["budget_amount"],
		"alert_level":      level,
		"message":          message,
	}, nil
}

// costRecommendations merges savings and orphan sweeps into a single
// prioritized list.
func (s *Specialist) costRecommendations(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	savings, err := s.costSavings(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"potential_monthly_savings": savings["potential_monthly_savings"],
		"recommendations":           savings["recommendations"],
	}
	if orphans, err := s.costOrphaned(ctx, workflowID, req); err == nil {
		out["orphaned_count"] = orphans["orphaned_count"]
		out["monthly_waste"] = orphans["monthly_waste"]
	}
	return out, nil
}
