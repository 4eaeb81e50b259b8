package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/sreflow/sreflow/pkg/agent"
)

// TypePerformanceAnalysis identifies the performance specialist.
const TypePerformanceAnalysis = "performance_analysis"

// metricSample is one decoded metric point from the metrics tools.
type metricSample struct {
	Name  string  `mapstructure:"name"`
	Value float64 `mapstructure:"value"`
	Unit  string  `mapstructure:"unit"`
}

// bottleneckRules flag metrics above their thresholds. The table drives
// both bottleneck detection and capacity advice.
var bottleneckRules = []struct {
	metric    string
	threshold float64
	severity  string
	advice    string
}{
	{"cpu_percent", 90, "critical", "CPU is saturated; scale out or move to a larger SKU."},
	{"cpu_percent", 75, "warning", "CPU is running hot; plan a scale-out before peak traffic."},
	{"memory_percent", 90, "critical", "Memory is nearly exhausted; raise the limit or fix the leak."},
	{"memory_percent", 80, "warning", "Memory headroom is thin; watch for OOM kills."},
	{"latency_ms", 1000, "critical", "P95 latency above 1s; profile the hot path."},
	{"latency_ms", 500, "warning", "Latency is elevated; check downstream dependencies."},
	{"disk_percent", 85, "warning", "Disk usage is high; expand the volume or rotate data."},
	{"error_rate", 5, "critical", "Error rate above 5%; correlate with recent deployments."},
}

// NewPerformanceAnalysis builds the performance specialist.
func NewPerformanceAnalysis(id string, deps Deps, opts agent.Options) *Specialist {
	s := newSpecialist(id, TypePerformanceAnalysis, opts, deps)
	s.register("analyze", true, s.perfAnalyze)
	s.register("bottlenecks", true, s.perfBottlenecks)
	s.register("anomalies", true, s.perfAnomalies)
	s.register("capacity", true, s.perfCapacity)
	s.register("optimize", false, s.perfOptimize)
	s.register("compare", false, s.perfCompare)
	return s
}

// fetchMetrics reads and decodes the resource's performance metrics.
func (s *Specialist) fetchMetrics(ctx context.Context, workflowID string, params map[string]any) ([]metricSample, error) {
	res, err := s.callTool(ctx, workflowID, "get_performance_metrics", params)
	if err != nil {
		return nil, err
	}

	raw := itemsOf(res, "metrics")
	samples := make([]metricSample, 0, len(raw))
	for _, m := range raw {
		var sample metricSample
		if err := mapstructure.WeakDecode(m, &sample); err != nil {
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// perfAnalyze summarizes current metrics.
func (s *Specialist) perfAnalyze(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	samples, err := s.fetchMetrics(ctx, workflowID, req.Parameters)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]float64, len(samples))
	for _, m := range samples {
		byName[m.Name] = m.Value
	}

	return map[string]any{
		"metrics_count": len(samples),
		"metrics":       byName,
		"has_data":      len(samples) > 0,
	}, nil
}

// perfBottlenecks flags metrics exceeding the rule thresholds.
func (s *Specialist) perfBottlenecks(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	samples, err := s.fetchMetrics(ctx, workflowID, req.Parameters)
	if err != nil {
		return nil, err
	}

	var bottlenecks []map[string]any
	flagged := make(map[string]bool)
	for _, rule := range bottleneckRules {
		for _, m := range samples {
			if m.Name != rule.metric || flagged[m.Name] || m.Value < rule.threshold {
				continue
			}
			flagged[m.Name] = true
			bottlenecks = append(bottlenecks, map[string]any{
				"metric":    m.Name,
				"value":     m.Value,
				"threshold": rule.threshold,
				"severity":  rule.severity,
				"advice":    rule.advice,
			})
		}
	}

	return map[string]any{
		"bottlenecks":            bottlenecks,
		"bottlenecks_identified": len(bottlenecks),
	}, nil
}

// perfAnomalies asks the anomaly detection tool for outliers.
func (s *Specialist) perfAnomalies(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "detect_anomalies", req.Parameters)
	if err != nil {
		return nil, err
	}

	anomalies := itemsOf(res, "anomalies")
	return map[string]any{
		"anomalies":      anomalies,
		"anomaly_count":  len(anomalies),
		"baseline_clean": len(anomalies) == 0,
	}, nil
}

// perfCapacity merges the capacity recommendation tool with rule-derived
// advice.
func (s *Specialist) perfCapacity(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_capacity_recommendations", req.Parameters)
	if err != nil {
		return nil, err
	}

	recs := itemsOf(res, "recommendations")
	out := map[string]any{
		"recommendations": recs,
		"count":           len(recs),
	}

	if bn, err := s.perfBottlenecks(ctx, workflowID, req); err == nil {
		var advice []string
		for _, b := range bn["bottlenecks"].([]map[string]any) {
			advice = append(advice, str(b["advice"]))
		}
		out["rule_advice"] = advice
	}
	return out, nil
}

// perfOptimize builds an optimization plan from bottlenecks and anomalies.
func (s *Specialist) perfOptimize(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	bn, err := s.perfBottlenecks(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}

	var plan []string
	for _, b := range bn["bottlenecks"].([]map[string]any) {
		plan = append(plan, fmt.Sprintf("[%s] %s", str(b["severity"]), str(b["advice"])))
	}
	if len(plan) == 0 {
		plan = append(plan, "No threshold breaches; no optimization needed right now.")
	}

	return map[string]any{"plan": plan}, nil
}

// perfCompare compares two resources' metric sets side by side.
func (s *Specialist) perfCompare(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	left, _ := req.Parameters["resource_id"].(string)
	right, _ := req.Parameters["compare_to"].(string)
	if left == "" || right == "" {
		return nil, fmt.Errorf("compare needs resource_id and compare_to")
	}

	leftSamples, err := s.fetchMetrics(ctx, workflowID, map[string]any{"resource_id": left})
	if err != nil {
		return nil, err
	}
	rightSamples, err := s.fetchMetrics(ctx, workflowID, map[string]any{"resource_id": right})
	if err != nil {
		return nil, err
	}

	rightByName := make(map[string]float64, len(rightSamples))
	for _, m := range rightSamples {
		rightByName[m.Name] = m.Value
	}

	var deltas []map[string]any
	for _, m := range leftSamples {
		other, ok := rightByName[m.Name]
		if !ok {
			continue
		}
		deltas = append(deltas, map[string]any{
			"metric": m.Name,
			"left":   m.Value,
			"right":  other,
			"delta":  m.Value - other,
		})
	}

	return map[string]any{
		"left":    left,
		"right":   right,
		"deltas":  deltas,
		"summary": compareSummary(deltas),
	}, nil
}

func compareSummary(deltas []map[string]any) string {
	if len(deltas) == 0 {
		return "No overlapping metrics to compare."
	}
	var worse []string
	for _, d := range deltas {
		if num(d["delta"]) > 0 {
			worse = append(worse, str(d["metric"]))
		}
	}
	if len(worse) == 0 {
		return "The first resource performs at or better than the second on all shared metrics."
	}
	return fmt.Sprintf("The first resource is worse on: %s.", strings.Join(worse, ", "))
}
