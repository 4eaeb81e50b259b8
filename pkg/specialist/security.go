package specialist

import (
	"context"
	"strings"

	"github.com/sreflow/sreflow/pkg/agent"
)

// TypeSecurityAudit identifies the security audit specialist.
const TypeSecurityAudit = "security_audit"

// vulnerabilityWeights order findings for prioritization.
var vulnerabilityWeights = map[string]int{
	"critical": 4,
	"high":     3,
	"medium":   2,
	"low":      1,
}

// securityAdviceRules map finding categories to hardening advice.
var securityAdviceRules = []struct {
	category string
	advice   string
}{
	{"public_access", "Restrict public network access; front the resource with a private endpoint."},
	{"encryption", "Enable encryption at rest and enforce TLS 1.2+ in transit."},
	{"identity", "Replace shared keys with managed identities and rotate existing credentials."},
	{"patching", "Apply pending security updates; enable automatic patching where supported."},
	{"logging", "Enable diagnostic logging and route it to the central workspace."},
	{"eol", "Plan migration off end-of-life components before support lapses."},
}

// NewSecurityAudit builds the security specialist.
func NewSecurityAudit(id string, deps Deps, opts agent.Options) *Specialist {
	s := newSpecialist(id, TypeSecurityAudit, opts, deps)
	s.register("scan_security", true, s.secScan)
	s.register("check_compliance", true, s.secCompliance)
	s.register("assess_vulnerabilities", true, s.secVulnerabilities)
	s.register("policy_check", false, s.secPolicies)
	s.register("recommendations", true, s.secRecommendations)
	return s
}

// secScan reads the overall security posture.
func (s *Specialist) secScan(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "scan_security_posture", req.Parameters)
	if err != nil {
		return nil, err
	}

	payload := payloadOf(res)
	findings := itemsOf(res, "findings")
	bySeverity := make(map[string]int)
	for _, f := range findings {
		bySeverity[strings.ToLower(str(f["severity"]))]++
	}

	return map[string]any{
		"secure_score":  payload["secure_score"],
		"findings":      findings,
		"finding_count": len(findings),
		"by_severity":   bySeverity,
	}, nil
}

// secCompliance checks compliance standing against the assigned standards.
func (s *Specialist) secCompliance(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "check_compliance_status", req.Parameters)
	if err != nil {
		return nil, err
	}

	standards := itemsOf(res, "standards")
	var failing []map[string]any
	for _, std := range standards {
		if num(std["compliance_percent"]) < 100 {
			failing = append(failing, std)
		}
	}

	return map[string]any{
		"standards":         standards,
		"failing_standards": failing,
		"fully_compliant":   len(failing) == 0,
	}, nil
}

// secVulnerabilities returns vulnerabilities ordered critical-first, and
// folds in the end-of-life inventory since unsupported software is
// unpatchable by definition.
func (s *Specialist) secVulnerabilities(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "assess_vulnerabilities", req.Parameters)
	if err != nil {
		return nil, err
	}

	vulns := itemsOf(res, "vulnerabilities")
	sortBySeverity(vulns)

	out := map[string]any{
		"vulnerabilities":     vulns,
		"vulnerability_count": len(vulns),
	}
	if eolRes, err := s.callTool(ctx, workflowID, "get_eol_inventory", req.Parameters); err == nil {
		eol := itemsOf(eolRes, "eol_components", "components")
		out["eol_components"] = eol
		out["eol_count"] = len(eol)
	}
	return out, nil
}

// sortBySeverity orders findings critical-first by insertion sort; the
// lists are small.
func sortBySeverity(findings []map[string]any) {
	for i := 1; i < len(findings); i++ {
		for j := i; j > 0; j-- {
			a := vulnerabilityWeights[strings.ToLower(str(findings[j]["severity"]))]
			b := vulnerabilityWeights[strings.ToLower(str(findings[j-1]["severity"]))]
			if a <= b {
				break
			}
			findings[j], findings[j-1] = findings[j-1], findings[j]
		}
	}
}

// secPolicies lists active policy violations.
func (s *Specialist) secPolicies(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	res, err := s.callTool(ctx, workflowID, "get_policy_violations", req.Parameters)
	if err != nil {
		return nil, err
	}

	violations := itemsOf(res, "violations")
	byPolicy := make(map[string]int)
	for _, v := range violations {
		byPolicy[str(v["policy"])]++
	}

	return map[string]any{
		"violations":      violations,
		"violation_count": len(violations),
		"by_policy":       byPolicy,
	}, nil
}

// secRecommendations maps scan findings to hardening advice through the
// rules table.
func (s *Specialist) secRecommendations(ctx context.Context, workflowID string, req *agent.Request) (map[string]any, error) {
	scan, err := s.secScan(ctx, workflowID, req)
	if err != nil {
		return nil, err
	}

	categories := make(map[string]bool)
	if findings, ok := scan["findings"].([]map[string]any); ok {
		for _, f := range findings {
			categories[strings.ToLower(str(f["category"]))] = true
		}
	}

	var recs []string
	for _, rule := range securityAdviceRules {
		if categories[rule.category] {
			recs = append(recs, rule.advice)
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "No rule-matched findings; review the posture report manually.")
	}

	return map[string]any{
		"recommendations": recs,
		"secure_score":    scan["secure_score"],
	}, nil
}
