package specialist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/format"
)

// TypeHealthMonitoring identifies the health monitoring specialist.
const TypeHealthMonitoring = "health_monitoring"

// monitorDefaults shape the continuous monitoring series.
const (
	defaultMonitorDuration = 5 * time.Minute
	defaultMonitorInterval = time.Minute
	maxMonitorSamples      = 30
)

// healthRecommendationRules map observed conditions to advice. First
// matching rows all contribute.
var healthRecommendationRules = []struct {
	condition string // matched against status + reason text
	advice    string
}{
	{"restart", "Investigate the restart loop before scaling; crashing replicas multiply under load."},
	{"memory", "Raise the memory limit or fix the leak indicated by the memory pressure signal."},
	{"cpu", "Consider scaling out; sustained CPU saturation degrades latency first."},
	{"unreachable", "Check network rules and private endpoint configuration."},
	{"degraded", "Compare against the last deployment; degradation often follows a rollout."},
	{"stopped", "The resource is stopped; start it or remove its alert rules."},
}

// NewHealthMonitoring builds the health monitoring specialist.
func NewHealthMonitoring(id string, deps Deps, opts agent.Options) *Specialist {
	s := newSpecialist(id, TypeHealthMonitoring, opts, deps)
	s.register("check_health", true, s.healthCheck)
	s.register("diagnose", true, s.healthDiagnose)
	s.register("check_dependencies", true, s.healthDependencies)
	s.register("continuous_monitor", false, s.healthMonitor)
	s.register("recommendations", true, s.healthRecommendations)
	return s
}

// healthCheck reads the resource's current health state.
func (s *Specialist) healthCheck(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	tool := "get_resource_health"
	if _, ok := req.Parameters["container_app_name"]; ok {
		tool = "check_container_app_health"
	} else if _, ok := req.Parameters["vm_name"]; ok {
		tool = "check_vm_health"
	}

	res, err := s.callTool(ctx, workflowID, tool, req.Parameters)
	if err != nil {
		return nil, err
	}

	payload := payloadOf(res)
	status := healthStatus(payload)
	return map[string]any{
		"status":   status,
		"severity": format.Severity(status),
		"healthy":  format.Severity(status) == format.SeverityOK,
		"details":  payload,
	}, nil
}

// healthDiagnose combines health state with recent errors to explain an
// unhealthy resource.
func (s *Specialist) healthDiagnose(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	check, err := s.healthCheck(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"status":  check["status"],
		"healthy": check["healthy"],
	}
	if check["healthy"] == true {
		out["diagnosis"] = "The resource reports healthy; no diagnosis needed."
		return out, nil
	}

	errorsRes, err := s.callTool(ctx, workflowID, "get_recent_errors", req.Parameters)
	if err != nil {
		out["diagnosis"] = "The resource is unhealthy but recent errors could not be read."
		return out, nil
	}

	errs := itemsOf(errorsRes, "errors")
	out["recent_errors"] = len(errs)
	if len(errs) > 0 {
		out["leading_error"] = errs[0]["message"]
		out["diagnosis"] = fmt.Sprintf("Unhealthy with %d recent errors; leading error: %v",
			len(errs), errs[0]["message"])
	} else {
		out["diagnosis"] = "Unhealthy but no recent application errors; check platform-level events."
	}
	return out, nil
}

// healthDependencies checks the resource's upstream and downstream
// dependencies.
func (s *Specialist) healthDependencies(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_dependency_status", req.Parameters)
	if err != nil {
		return nil, err
	}

	deps := itemsOf(res, "dependencies")
	var unhealthy []map[string]any
	for _, d := range deps {
		if format.Severity(str(d["status"])) != format.SeverityOK {
			unhealthy = append(unhealthy, d)
		}
	}

	return map[string]any{
		"total_dependencies":     len(deps),
		"unhealthy_dependencies": unhealthy,
		"all_healthy":            len(unhealthy) == 0,
	}, nil
}

// healthMonitor samples resource health repeatedly over a duration and
// reports the series. Duration and interval come from parameters, bounded
// by maxMonitorSamples.
func (s *Specialist) healthMonitor(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	duration := defaultMonitorDuration
	if m := num(req.Parameters["duration_minutes"]); m > 0 {
		duration = time.Duration(m * float64(time.Minute))
	}
	interval := defaultMonitorInterval
	if sec := num(req.Parameters["interval_seconds"]); sec > 0 {
		interval = time.Duration(sec * float64(time.Second))
	}

	samples := int(duration/interval) + 1
	if samples > maxMonitorSamples {
		samples = maxMonitorSamples
	}

	series := make([]map[string]any, 0, samples)
	transitions := 0
	last := ""
	for i := 0; i < samples; i++ {
		if i > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return monitorResult(series, transitions, true), nil
			}
		}

		check, err := s.healthCheck(ctx, workflowID, req)
		sample := map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)}
		if err != nil {
			sample["status"] = "unknown"
			sample["error"] = err.Error()
		} else {
			sample["status"] = check["status"]
		}
		status := str(sample["status"])
		if last != "" && status != last {
			transitions++
		}
		last = status
		series = append(series, sample)

		s.Emit(agent.EventProgress, map[string]any{
			"status":  "monitoring",
			"sample":  i + 1,
			"samples": samples,
			"state":   status,
		})
	}

	return monitorResult(series, transitions, false), nil
}

func monitorResult(series []map[string]any, transitions int, truncated bool) map[string]any {
	return map[string]any{
		"samples":            series,
		"sample_count":       len(series),
		"status_transitions": transitions,
		"truncated":          truncated,
	}
}

// healthRecommendations derives advice from current health and errors via
// the recommendation rules table.
func (s *Specialist) healthRecommendations(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	diagnosis, err := s.healthDiagnose(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}

	haystack := strings.ToLower(fmt.Sprintf("%v %v %v",
		diagnosis["status"], diagnosis["diagnosis"], diagnosis["leading_error"]))

	var recs []string
	for _, rule := range healthRecommendationRules {
		if strings.Contains(haystack, rule.condition) {
			recs = append(recs, rule.advice)
		}
	}
	if len(recs) == 0 && diagnosis["healthy"] != true {
		recs = append(recs, "No rule matched; review the resource's activity log manually.")
	}

	return map[string]any{
		"healthy":         diagnosis["healthy"],
		"recommendations": recs,
	}, nil
}

func healthStatus(payload map[string]any) string {
	if s, _ := payload["availability_state"].(string); s != "" {
		return s
	}
	if s, _ := payload["status"].(string); s != "" {
		return s
	}
	return "unknown"
}
