package specialist

import (
	"context"
	"fmt"

	"github.com/sreflow/sreflow/pkg/agent"
)

// TypeConfigManagement identifies the configuration management specialist.
const TypeConfigManagement = "config_management"

// driftSeverityKeys mark settings whose drift is more than cosmetic.
var driftSeverityKeys = map[string]string{
	"min_replicas":       "high",
	"max_replicas":       "high",
	"cpu_limit":          "high",
	"memory_limit":       "high",
	"tls_version":        "critical",
	"public_access":      "critical",
	"diagnostic_logging": "medium",
}

// NewConfigManagement builds the configuration specialist.
func NewConfigManagement(id string, deps Deps, opts agent.Options) *Specialist {
	s := newSpecialist(id, TypeConfigManagement, opts, deps)
	s.register("scan", true, s.cfgScan)
	s.register("drift", true, s.cfgDrift)
	s.register("compliance", true, s.cfgCompliance)
	s.register("baseline", false, s.cfgBaseline)
	s.register("remediate", false, s.cfgRemediate)
	return s
}

// cfgScan reads the resource's current configuration, including scaling.
func (s *Specialist) cfgScan(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_resource_configuration", req.Parameters)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"configuration": payloadOf(res),
	}
	if scalingRes, err := s.callTool(ctx, workflowID, "get_scaling_configuration", req.Parameters); err == nil {
		out["scaling"] = payloadOf(scalingRes)
	}
	return out, nil
}

// cfgDrift compares the live configuration against the baseline and grades
// each drifted setting.
func (s *Specialist) cfgDrift(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "check_configuration_drift", req.Parameters)
	if err != nil {
		return nil, err
	}

	drifts := itemsOf(res, "drifts", "drifted_settings")
	graded := make([]map[string]any, 0, len(drifts))
	worst := ""
	for _, d := range drifts {
		severity := driftSeverityKeys[str(d["setting"])]
		if severity == "" {
			severity = "low"
		}
		entry := map[string]any{
			"setting":  d["setting"],
			"expected": d["expected"],
			"actual":   d["actual"],
			"severity": severity,
		}
		graded = append(graded, entry)
		if severityRank(severity) > severityRank(worst) {
			worst = severity
		}
	}

	return map[string]any{
		"drifted_settings": graded,
		"drift_count":      len(graded),
		"worst_severity":   worst,
		"in_sync":          len(graded) == 0,
	}, nil
}

func severityRank(s string) int {
	switch s {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	}
	return 0
}

// cfgCompliance checks the configuration against the baseline's required
// settings.
func (s *Specialist) cfgCompliance(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	drift, err := s.cfgDrift(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}

	var blocking []map[string]any
	if graded, ok := drift["drifted_settings"].([]map[string]any); ok {
		for _, d := range graded {
			if severityRank(str(d["severity"])) >= severityRank("high") {
				blocking = append(blocking, d)
			}
		}
	}

	return map[string]any{
		"compliant":      len(blocking) == 0,
		"blocking_drift": blocking,
		"total_drift":    drift["drift_count"],
	}, nil
}

// cfgBaseline fetches the configuration baseline the drift check compares
// against.
func (s *Specialist) cfgBaseline(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_configuration_baseline", req.Parameters)
	if err != nil {
		return nil, err
	}
	return map[string]any{"baseline": payloadOf(res)}, nil
}

// cfgRemediate applies the baseline configuration to undo drift. Applying
// configuration changes always needs approval.
func (s *Specialist) cfgRemediate(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	drift, err := s.cfgDrift(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}
	if drift["in_sync"] == true {
		return map[string]any{"status": "in_sync", "message": "No drift to remediate."}, nil
	}

	if approve, _ := req.Parameters["approve"].(bool); !approve {
		return map[string]any{
			"status":           string(agent.StatusPendingApproval),
			"drifted_settings": drift["drifted_settings"],
			"message": fmt.Sprintf("Applying the baseline would change %v settings; resubmit with approve=true.",
				drift["drift_count"]),
		}, nil
	}

	res, err := s.callTool(ctx, workflowID, "apply_configuration", req.Parameters)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":  "applied",
		"applied": payloadOf(res),
	}, nil
}
