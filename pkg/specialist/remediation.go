package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/format"
)

// TypeRemediation identifies the remediation specialist.
const TypeRemediation = "remediation"

// remediationStrategies map a probable cause (substring match) to the
// action passed to execute_remediation. First matching row wins.
var remediationStrategies = []struct {
	cause  string
	action string
	risk   string
}{
	{"memory exhaustion", "restart_and_raise_memory_limit", "medium"},
	{"memory limit", "restart_and_raise_memory_limit", "medium"},
	{"unreachable", "restart_dependency_connection", "low"},
	{"rate limiting", "enable_request_throttling", "low"},
	{"storage exhaustion", "expand_storage", "medium"},
	{"downstream latency", "scale_out_dependency", "medium"},
	{"crash", "restart_resource", "medium"},
	{"deployment", "rollback_deployment", "high"},
}

const defaultRemediationAction = "restart_resource"

// remediationFor picks the remediation action for a probable cause.
func remediationFor(cause string) string {
	lower := strings.ToLower(cause)
	for _, s := range remediationStrategies {
		if strings.Contains(lower, s.cause) {
			return s.action
		}
	}
	return defaultRemediationAction
}

func remediationRisk(action string) string {
	for _, s := range remediationStrategies {
		if s.action == action {
			return s.risk
		}
	}
	return "medium"
}

// NewRemediation builds the remediation specialist.
func NewRemediation(id string, deps Deps, opts agent.Options) *Specialist {
	s := newSpecialist(id, TypeRemediation, opts, deps)
	s.register("diagnose", true, s.remDiagnose)
	s.register("recommend", true, s.remRecommend)
	s.register("execute", false, s.remExecute)
	s.register("rollback", false, s.remRollback)
	s.register("verify", false, s.remVerify)
	return s
}

// remDiagnose establishes what is wrong before anything is changed.
func (s *Specialist) remDiagnose(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	healthRes, err := s.callTool(ctx, workflowID, "get_resource_health", req.Parameters)
	if err != nil {
		return nil, err
	}

	payload := payloadOf(healthRes)
	status := healthStatus(payload)
	out := map[string]any{
		"status":  status,
		"healthy": format.Severity(status) == format.SeverityOK,
	}
	if out["healthy"] == true {
		out["finding"] = "The resource is healthy; nothing to remediate."
		return out, nil
	}

	if patternsRes, err := s.callTool(ctx, workflowID, "analyze_log_patterns", req.Parameters); err == nil {
		for _, p := range itemsOf(patternsRes, "patterns") {
			name := strings.ToLower(str(p["pattern"]))
			for token, cause := range logPatternCauses {
				if strings.Contains(name, strings.ToLower(token)) {
					out["probable_cause"] = cause
					out["finding"] = fmt.Sprintf("Unhealthy; probable cause: %s", cause)
					return out, nil
				}
			}
		}
	}

	out["probable_cause"] = "unknown"
	out["finding"] = "Unhealthy but no recognized log pattern; manual investigation needed."
	return out, nil
}

// remRecommend maps the diagnosis to a remediation action with its risk.
func (s *Specialist) remRecommend(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	diag, err := s.remDiagnose(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}
	if diag["healthy"] == true {
		return map[string]any{"action": "none", "reason": diag["finding"]}, nil
	}

	action := remediationFor(str(diag["probable_cause"]))
	return map[string]any{
		"action":            action,
		"risk":              remediationRisk(action),
		"probable_cause":    diag["probable_cause"],
		"requires_approval": true,
	}, nil
}

// remExecute runs a remediation action. Without approve=true it stops at
// the recommendation stage.
func (s *Specialist) remExecute(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	action := str(req.Parameters["action"])
	if action == "" {
		rec, err := s.remRecommend(ctx, workflowID, req)
		if err != nil {
			return nil, err
		}
		action = str(rec["action"])
		if action == "none" {
			return rec, nil
		}
	}

	out := map[string]any{
		"action": action,
		"risk":   remediationRisk(action),
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

// remRollback reverts the most recent deployment. Rollbacks always need
// explicit approval.
func (s *Specialist) remRollback(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	if approve, _ := req.Parameters["approve"].(bool); !approve {
		return map[string]any{
			"status":  string(agent.StatusPendingApproval),
			"message": "Rollback requires approval; resubmit with approve=true.",
		}, nil
	}

	res, err := s.callTool(ctx, workflowID, "rollback_deployment", req.Parameters)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":   "rolled_back",
		"rollback": payloadOf(res),
	}, nil
}

// remVerify re-checks health after a remediation to confirm it worked.
func (s *Specialist) remVerify(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_resource_health", req.Parameters)
	if err != nil {
		return nil, err
	}

	status := healthStatus(payloadOf(res))
	recovered := format.Severity(status) == format.SeverityOK
	out := map[string]any{
		"status":    status,
		"recovered": recovered,
	}
	if !recovered {
		out["message"] = "The resource is still unhealthy after remediation; escalate to the owning team."
	}
	return out, nil
}
