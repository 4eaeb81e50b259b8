package orchestrator

import (
	"context"
	"fmt"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/format"
)

// aggregate groups tool records by status and computes the per-category
// summary. Pending user input short-circuits summarization: the first
// prompt becomes the top-level message.
func (o *Orchestrator) aggregate(ctx context.Context, category string, records []map[string]any) map[string]any {
	var successful, errors, skipped, notFound, needsInput []map[string]any

	for _, rec := range records {
		switch rec["status"] {
		case string(agent.StatusSuccess):
			successful = append(successful, rec)
		case string(agent.StatusNeedsUserInput):
			needsInput = append(needsInput, rec)
		case string(agent.StatusSkipped):
			skipped = append(skipped, rec)
		case string(agent.StatusNotFound):
			if rec["preflight_failed"] == true {
				errors = append(errors, rec)
			} else {
				notFound = append(notFound, rec)
			}
		default:
			errors = append(errors, rec)
		}
	}

	out := map[string]any{
		"successful": successful,
		"errors":     errors,
		"skipped":    skipped,
		"not_found":  notFound,
	}

	if len(needsInput) > 0 {
		prompt, _ := needsInput[0]["interaction"].(map[string]any)
		out["user_interaction_required"] = true
		out["interaction_data"] = prompt
		if prompt != nil {
			out["message"] = prompt["message"]
		}
		return out
	}

	if len(records) > 0 && len(errors) == len(records) && allPreflightFailed(errors) {
		out["message"] = "Resources not found in inventory."
		out["suggestions"] = collectSuggestions(errors)
		return out
	}

	switch category {
	case CategoryHealth:
		summary := healthSummary(successful)
		out["health_summary"] = summary
		out["formatted_response"] = format.FormatHealthStatus(healthDetails(successful))
	case CategoryCost:
		summary := costSummary(successful)
		out["cost_summary"] = summary
		out["formatted_response"] = format.FormatCostSummary(summary)
	case CategoryPerformance:
		summary := o.performanceSummary(ctx, successful)
		out["performance_summary"] = summary
		out["formatted_response"] = format.FormatPerformanceMetrics(summary)
	default:
		if len(successful) > 0 {
			out["formatted_response"] = fmt.Sprintf("%d of %d tools completed successfully.",
				len(successful), len(records))
		}
	}
	return out
}

func allPreflightFailed(errors []map[string]any) bool {
	for _, e := range errors {
		if e["preflight_failed"] != true {
			return false
		}
	}
	return len(errors) > 0
}

func collectSuggestions(errors []map[string]any) []string {
	var out []string
	for _, e := range errors {
		if result, ok := e["result"].(map[string]any); ok {
			if s, ok := result["suggestion"].(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// resultPayload unwraps a record's tool result, preferring the parsed JSON
// body over the wrapper.
func resultPayload(rec map[string]any) map[string]any {
	result, ok := rec["result"].(map[string]any)
	if !ok {
		return nil
	}
	if parsed, ok := result["parsed"].(map[string]any); ok {
		return parsed
	}
	return result
}

// healthSummary counts healthy and unhealthy resources across successful
// health tool results.
func healthSummary(successful []map[string]any) map[string]any {
	healthy, unhealthy := 0, 0
	details := make([]map[string]any, 0)

	for _, rec := range successful {
		payload := resultPayload(rec)
		if payload == nil {
			continue
		}
		status := healthStatusOf(payload)
		if format.Severity(status) == format.SeverityOK {
			healthy++
			continue
		}
		unhealthy++
		detail := map[string]any{
			"name":   nameOf(payload, rec),
			"status": status,
		}
		if reason, _ := payload["reason"].(string); reason != "" {
			detail["reason"] = reason
		}
		if recent, _ := payload["recent_error"].(string); recent != "" {
			detail["recent_error"] = recent
		}
		details = append(details, detail)
	}

	return map[string]any{
		"healthy_resources":   healthy,
		"unhealthy_resources": unhealthy,
		"total_checked":       healthy + unhealthy,
		"unhealthy_details":   details,
	}
}

// healthDetails flattens successful health results for the formatter.
func healthDetails(successful []map[string]any) []map[string]any {
	var out []map[string]any
	for _, rec := range successful {
		payload := resultPayload(rec)
		if payload == nil {
			continue
		}
		out = append(out, map[string]any{
			"name":   nameOf(payload, rec),
			"status": healthStatusOf(payload),
			"reason": payload["reason"],
		})
	}
	return out
}

func healthStatusOf(payload map[string]any) string {
	if s, _ := payload["availability_state"].(string); s != "" {
		return s
	}
	if s, _ := payload["status"].(string); s != "" {
		return s
	}
	return "unknown"
}

func nameOf(payload, rec map[string]any) string {
	for _, key := range []string{"name", "resource_name", "container_app_name"} {
		if s, _ := payload[key].(string); s != "" {
			return s
		}
	}
	if s, _ := rec["tool"].(string); s != "" {
		return s
	}
	return "resource"
}

// costSummary sums potential savings across successful cost tool results.
// Monthly amounts are summed as-is; annual amounts are divided by 12.
func costSummary(successful []map[string]any) map[string]any {
	total := 0.0
	orphaned := 0

	for _, rec := range successful {
		payload := resultPayload(rec)
		if payload == nil {
			continue
		}
		total += savingsOf(payload)
		if recs, ok := payload["recommendations"].([]any); ok {
			for _, r := range recs {
				if m, ok := r.(map[string]any); ok {
					total += savingsOf(m)
				}
			}
		}
		orphaned += orphanedCount(payload)
	}

	return map[string]any{
		"potential_savings":  fmt.Sprintf("$%.2f", total),
		"orphaned_resources": orphaned,
		"tools_analyzed":     len(successful),
	}
}

// savingsOf reads one result's savings contribution: monthly amounts
// directly, annual amounts divided by 12.
func savingsOf(m map[string]any) float64 {
	if v, ok := asFloat(m["monthly_savings_amount"]); ok {
		return v
	}
	if v, ok := asFloat(m["savings_amount"]); ok {
		return v / 12
	}
	return 0
}

func orphanedCount(payload map[string]any) int {
	if items, ok := payload["orphaned_resources"].([]any); ok {
		return len(items)
	}
	if items, ok := payload["items"].([]any); ok {
		return len(items)
	}
	if v, ok := asFloat(payload["orphaned_count"]); ok {
		return int(v)
	}
	return 0
}

// performanceSummary rolls up metrics, bottlenecks, and capacity
// recommendations. When no metrics came back at all, it runs the no-metrics
// diagnosis for a friendlier narrative.
func (o *Orchestrator) performanceSummary(ctx context.Context, successful []map[string]any) map[string]any {
	metricsCount := 0
	bottlenecks := 0
	var capacity []string
	var resourceID string

	for _, rec := range successful {
		payload := resultPayload(rec)
		if payload == nil {
			continue
		}
		if metrics, ok := payload["metrics"].([]any); ok {
			metricsCount += len(metrics)
		}
		if items, ok := payload["bottlenecks"].([]any); ok {
			bottlenecks += len(items)
		}
		for _, r := range anyStrings(payload["recommendations"]) {
			capacity = append(capacity, r)
		}
		if id, _ := payload["resource_id"].(string); id != "" {
			resourceID = id
		}
	}

	summary := map[string]any{
		"metrics_count":            metricsCount,
		"bottlenecks_identified":   bottlenecks,
		"capacity_recommendations": capacity,
		"has_data":                 metricsCount > 0,
	}

	if metricsCount == 0 && len(successful) > 0 {
		diagnosis, suggestions := o.diagnoseNoMetrics(ctx, resourceID)
		summary["diagnosis"] = diagnosis
		summary["suggestions"] = suggestions
	}
	return summary
}

// diagnoseNoMetrics checks the resource's power state through
// get_resource_health to explain an empty metrics result.
func (o *Orchestrator) diagnoseNoMetrics(ctx context.Context, resourceID string) (string, []string) {
	generic := []string{
		"Confirm the resource is running and emitting metrics.",
		"Check that the monitoring agent or diagnostics settings are enabled.",
	}
	if resourceID == "" || o.registry == nil {
		return "No metrics were returned and no resource ID is available to diagnose.", generic
	}

	desc, ok := o.registry.GetTool("get_resource_health")
	if !ok {
		return "No metrics were returned.", generic
	}
	owner, ok := o.registry.Get(desc.AgentID)
	if !ok {
		return "No metrics were returned.", generic
	}

	resp := owner.HandleRequest(ctx, &agent.Request{
		Tool:       "get_resource_health",
		Parameters: map[string]any{"resource_id": resourceID},
	})
	if resp.Status != agent.StatusSuccess {
		return "No metrics were returned; resource health could not be read.", generic
	}

	payload := resp.Result
	if parsed, ok := payload["parsed"].(map[string]any); ok {
		payload = parsed
	}
	state := healthStatusOf(payload)
	if format.Severity(state) != format.SeverityOK {
		return fmt.Sprintf("The resource is %s, which explains the missing metrics.", state),
			append([]string{"Restore the resource to a running state before querying metrics."}, generic...)
	}
	return "The resource reports healthy; metrics may simply be delayed.", generic
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func anyStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		var out []string
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
