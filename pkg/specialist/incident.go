package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/sreflow/sreflow/pkg/agent"
)

// TypeIncidentResponse identifies the incident response specialist.
const TypeIncidentResponse = "incident_response"

// incidentSeverityRules classifies an incident from alert counts. First
// matching row wins.
var incidentSeverityRules = []struct {
	severity    string
	minCritical int
	minAlerts   int
	minErrors   int
}{
	{"critical", 1, 0, 0},
	{"high", 0, 5, 0},
	{"high", 0, 0, 50},
	{"medium", 0, 2, 10},
	{"low", 0, 1, 1},
	{"none", 0, 0, 0},
}

// incidentActions maps severity to the recommended first moves.
var incidentActions = map[string][]string{
	"critical": {
		"Page the on-call engineer immediately.",
		"Open a bridge and assign an incident commander.",
		"Identify the blast radius before attempting remediation.",
	},
	"high": {
		"Notify the owning team and start an incident channel.",
		"Correlate alerts against recent deployments.",
	},
	"medium": {
		"Investigate the leading error pattern.",
		"Watch the error rate for escalation.",
	},
	"low":  {"Review during business hours; no escalation needed."},
	"none": {"No active incident indicators found."},
}

// logPatternCauses maps known log patterns to probable causes for RCA.
var logPatternCauses = map[string]string{
	"OutOfMemory":       "memory exhaustion in the application process",
	"connection refused": "a dependency is unreachable",
	"timeout":           "downstream latency or an overloaded dependency",
	"429":               "rate limiting by a downstream service",
	"disk full":         "storage exhaustion on the host",
	"OOMKilled":         "container killed by the memory limit",
}

// NewIncidentResponse builds the incident response specialist.
func NewIncidentResponse(id string, deps Deps, opts agent.Options) *Specialist {
	s := newSpecialist(id, TypeIncidentResponse, opts, deps)
	s.register("triage", true, s.incidentTriage)
	s.register("correlate", true, s.incidentCorrelate)
	s.register("impact", true, s.incidentImpact)
	s.register("rca", true, s.incidentRCA)
	s.register("remediate", false, s.incidentRemediate)
	s.register("postmortem", false, s.incidentPostmortem)
	return s
}

// incidentTriage classifies incident severity from active alerts and
// recent errors.
func (s *Specialist) incidentTriage(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	alertsRes, err := s.callTool(ctx, workflowID, "get_active_alerts", req.Parameters)
	if err != nil {
		return nil, err
	}
	errorsRes, errErr := s.callTool(ctx, workflowID, "get_recent_errors", req.Parameters)

	alerts := itemsOf(alertsRes, "alerts")
	critical := 0
	for _, a := range alerts {
		if strings.EqualFold(str(a["severity"]), "critical") || str(a["severity"]) == "Sev0" {
			critical++
		}
	}
	errorCount := 0
	if errErr == nil {
		errorCount = len(itemsOf(errorsRes, "errors"))
		if n := num(payloadOf(errorsRes)["error_count"]); n > 0 {
			errorCount = int(n)
		}
	}

	severity := classifyIncident(critical, len(alerts), errorCount)
	return map[string]any{
		"severity":            severity,
		"active_alerts":       len(alerts),
		"critical_alerts":     critical,
		"recent_errors":       errorCount,
		"recommended_actions": incidentActions[severity],
	}, nil
}

func classifyIncident(critical, alerts, errors int) string {
	for _, rule := range incidentSeverityRules {
		if critical >= rule.minCritical && alerts >= rule.minAlerts && errors >= rule.minErrors {
			return rule.severity
		}
	}
	return "none"
}

// incidentCorrelate lines up the incident timeline against log patterns.
func (s *Specialist) incidentCorrelate(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	timelineRes, err := s.callTool(ctx, workflowID, "get_incident_timeline", req.Parameters)
	if err != nil {
		return nil, err
	}
	patternsRes, err := s.callTool(ctx, workflowID, "analyze_log_patterns", req.Parameters)
	if err != nil {
		return nil, err
	}

	events := itemsOf(timelineRes, "events", "timeline")
	patterns := itemsOf(patternsRes, "patterns")

	var correlated []map[string]any
	for _, p := range patterns {
		name := str(p["pattern"])
		for _, e := range events {
			if name != "" && strings.Contains(strings.ToLower(str(e["description"])), strings.ToLower(name)) {
				correlated = append(correlated, map[string]any{
					"pattern": name,
					"event":   e["description"],
					"time":    e["timestamp"],
				})
			}
		}
	}

	return map[string]any{
		"timeline_events":  len(events),
		"log_patterns":     len(patterns),
		"correlated_pairs": correlated,
	}, nil
}

// incidentImpact assesses blast radius from dependency and availability
// status.
func (s *Specialist) incidentImpact(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	depsRes, err := s.callTool(ctx, workflowID, "get_dependency_status", req.Parameters)
	if err != nil {
		return nil, err
	}
	availRes, availErr := s.callTool(ctx, workflowID, "get_service_availability", req.Parameters)

	var impacted []string
	for _, d := range itemsOf(depsRes, "dependencies") {
		if !strings.EqualFold(str(d["status"]), "healthy") {
			impacted = append(impacted, str(d["name"]))
		}
	}

	out := map[string]any{
		"impacted_dependencies": impacted,
		"impact_scope":          impactScope(len(impacted)),
	}
	if availErr == nil {
		out["availability"] = payloadOf(availRes)["availability"]
	}
	return out, nil
}

func impactScope(impacted int) string {
	switch {
	case impacted == 0:
		return "isolated"
	case impacted <= 2:
		return "limited"
	default:
		return "widespread"
	}
}

// incidentRCA derives a probable cause from log patterns.
func (s *Specialist) incidentRCA(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	patternsRes, err := s.callTool(ctx, workflowID, "analyze_log_patterns", req.Parameters)
	if err != nil {
		return nil, err
	}

	var causes []string
	var matched []string
	for _, p := range itemsOf(patternsRes, "patterns") {
		name := str(p["pattern"])
		for token, cause := range logPatternCauses {
			if strings.Contains(strings.ToLower(name), strings.ToLower(token)) {
				causes = append(causes, cause)
				matched = append(matched, name)
			}
		}
	}

	probable := "insufficient data for a root cause"
	if len(causes) > 0 {
		probable = causes[0]
	}
	return map[string]any{
		"probable_cause":   probable,
		"matched_patterns": matched,
		"all_causes":       causes,
	}, nil
}

// incidentRemediate recommends a remediation and executes it only when the
// caller explicitly approves.
func (s *Specialist) incidentRemediate(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	rca, err := s.incidentRCA(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}

	action := remediationFor(str(rca["probable_cause"]))
	out := map[string]any{
		"probable_cause":     rca["probable_cause"],
		"recommended_action": action,
	}

	if approve, _ := req.Parameters["approve"].(bool); !approve {
		out["status"] = string(agent.StatusPendingApproval)
		out["message"] = fmt.Sprintf("Remediation %q requires approval; resubmit with approve=true.", action)
		return out, nil
	}

	params := map[string]any{"action": action}
	if id, ok := req.Parameters["resource_id"]; ok {
		params["resource_id"] = id
	}
	execRes, err := s.callTool(ctx, workflowID, "execute_remediation", params)
	if err != nil {
		return nil, err
	}
	out["status"] = "executed"
	out["execution"] = payloadOf(execRes)
	return out, nil
}

// incidentPostmortem assembles the workflow's recorded steps into a
// postmortem skeleton.
func (s *Specialist) incidentPostmortem(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	steps, err := s.deps.Contexts.GetStepResults(ctx, workflowID, "")
	if err != nil {
		return nil, fmt.Errorf("postmortem needs the workflow history: %w", err)
	}

	timeline := make([]map[string]any, 0, len(steps))
	for _, step := range steps {
		timeline = append(timeline, map[string]any{
			"step":      step.StepID,
			"agent_id":  step.AgentID,
			"timestamp": step.Timestamp,
		})
	}

	return map[string]any{
		"timeline":   timeline,
		"step_count": len(steps),
		"sections": []string{
			"Summary", "Timeline", "Root cause", "Impact",
			"Action items", "Lessons learned",
		},
	}, nil
}
