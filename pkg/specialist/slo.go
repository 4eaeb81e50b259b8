package specialist

import (
	"context"
	"fmt"

	"github.com/sreflow/sreflow/pkg/agent"
)

// TypeSLOManagement identifies the SLO management specialist.
const TypeSLOManagement = "slo_management"

// burnRateAlerts classify burn rates per the multiwindow alerting
// convention: 14.4x exhausts a 30-day budget in ~2 days, 6x in ~5 days.
var burnRateAlerts = []struct {
	minRate float64
	level   string
	message string
}{
	{14.4, "page", "Burn rate exhausts the error budget within two days; page now."},
	{6, "page", "Burn rate exhausts the error budget within five days; page now."},
	{3, "ticket", "Elevated burn rate; open a ticket and investigate this week."},
	{1, "watch", "Burning budget faster than allocated; keep an eye on it."},
	{0, "ok", "Burn rate within budget."},
}

// NewSLOManagement builds the SLO specialist.
func NewSLOManagement(id string, deps Deps, opts agent.Options) *Specialist {
	s := newSpecialist(id, TypeSLOManagement, opts, deps)
	s.register("track", true, s.sloTrack)
	s.register("budget", true, s.sloBudget)
	s.register("alert", true, s.sloAlert)
	s.register("report", false, s.sloReport)
	s.register("forecast", false, s.sloForecast)
	s.register("update_target", false, s.sloUpdateTarget)
	return s
}

// sloTrack reads current SLO compliance against targets.
func (s *Specialist) sloTrack(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_slo_report", req.Parameters)
	if err != nil {
		return nil, err
	}

	payload := payloadOf(res)
	slos := itemsOf(res, "slos")
	var violated []map[string]any
	for _, slo := range slos {
		if num(slo["current"]) < num(slo["target"]) {
			violated = append(violated, slo)
		}
	}

	return map[string]any{
		"slos":          slos,
		"slo_count":     len(slos),
		"violations":    violated,
		"all_met":       len(violated) == 0,
		"report_period": payload["period"],
	}, nil
}

// sloBudget reads remaining error budget.
func (s *Specialist) sloBudget(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_error_budget_status", req.Parameters)
	if err != nil {
		return nil, err
	}

	payload := payloadOf(res)
	remaining := num(payload["budget_remaining_percent"])
	return map[string]any{
		"budget_remaining_percent": remaining,
		"budget_consumed_percent":  100 - remaining,
		"exhausted":                remaining <= 0,
		"details":                  payload,
	}, nil
}

// sloAlert classifies the current burn rate with the multiwindow table.
func (s *Specialist) sloAlert(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_slo_burn_rate", req.Parameters)
	if err != nil {
		return nil, err
	}

	rate := num(payloadOf(res)["burn_rate"])
	level, message := "ok", ""
	for _, rule := range burnRateAlerts {
		if rate >= rule.minRate {
			level, message = rule.level, rule.message
			break
		}
	}

	return map[string]any{
		"burn_rate":   rate,
		"alert_level": level,
		"message":     message,
	}, nil
}

// sloReport joins compliance, budget, and availability into one report.
func (s *Specialist) sloReport(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	track, err := s.sloTrack(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}
	budget, err := s.sloBudget(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"compliance": track,
		"budget":     budget,
	}
	if availRes, err := s.callTool(ctx, workflowID, "get_service_availability", req.Parameters); err == nil {
		out["availability"] = payloadOf(availRes)["availability"]
	}
	return out, nil
}

// sloForecast projects budget exhaustion from the current burn rate. A
// budget burning at rate r lasts remaining/r of the window.
func (s *Specialist) sloForecast(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	budget, err := s.sloBudget(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}
	alert, err := s.sloAlert(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}

	remaining := num(budget["budget_remaining_percent"])
	rate := num(alert["burn_rate"])

	out := map[string]any{
		"budget_remaining_percent": remaining,
		"burn_rate":                rate,
	}
	if rate <= 0 {
		out["forecast"] = "No budget consumption at the current burn rate."
		return out, nil
	}

	windowDays := 30.0
	if d := num(req.Parameters["window_days"]); d > 0 {
		windowDays = d
	}
	daysLeft := (remaining / 100) * windowDays / rate
	out["days_until_exhaustion"] = daysLeft
	out["forecast"] = fmt.Sprintf("At the current burn rate the error budget lasts %.1f more days.", daysLeft)
	return out, nil
}

// sloUpdateTarget changes an SLO target. Target changes need approval
// since they redefine what counts as a violation.
func (s *Specialist) sloUpdateTarget(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	target := num(req.Parameters["target"])
	if target <= 0 || target > 100 {
		return nil, fmt.Errorf("target must be a percentage in (0, 100], got %v", req.Parameters["target"])
	}

	if approve, _ := req.Parameters["approve"].(bool); !approve {
		return map[string]any{
			"status":  string(agent.StatusPendingApproval),
			"message": fmt.Sprintf("Changing the SLO target to %.3f%% requires approval; resubmit with approve=true.", target),
		}, nil
	}

	res, err := s.callTool(ctx, workflowID, "update_slo_target", req.Parameters)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status": "updated",
		"target": target,
		"result": payloadOf(res),
	}, nil
}
