package orchestrator

import (
	"regexp"
	"strings"
)

// Intent categories.
const (
	CategoryHealth      = "health"
	CategoryIncident    = "incident"
	CategoryPerformance = "performance"
	CategoryCost        = "cost"
	CategorySLO         = "slo"
	CategorySecurity    = "security"
	CategoryRemediation = "remediation"
	CategoryConfig      = "config"
	CategoryGeneral     = "general"
)

type intentRule struct {
	pattern *regexp.Regexp
	tools   []string
}

type intentCategory struct {
	name  string
	rules []intentRule
}

// intentTable routes lowercased queries to tool lists. Declared order is
// the matching order; the first rule whose pattern matches wins.
var intentTable = []intentCategory{
	{CategoryHealth, []intentRule{
		{regexp.MustCompile(`\b(health|healthy|unhealthy)\b.*\bcontainer app`), []string{"check_container_app_health"}},
		{regexp.MustCompile(`\bcontainer app.*\b(health|healthy|unhealthy)\b`), []string{"check_container_app_health"}},
		{regexp.MustCompile(`\b(health|healthy)\b.*\b(vm|virtual machine)\b`), []string{"check_vm_health"}},
		{regexp.MustCompile(`\bresource health\b`), []string{"get_resource_health"}},
		{regexp.MustCompile(`\b(is|are)\b.*\b(up|running|available)\b`), []string{"check_container_app_health"}},
		{regexp.MustCompile(`\bdependenc(y|ies)\b`), []string{"get_dependency_status"}},
		{regexp.MustCompile(`\b(health|availability) (status|check)\b`), []string{"get_service_availability"}},
	}},
	{CategoryIncident, []intentRule{
		{regexp.MustCompile(`\b(incident|outage)\b`), []string{"get_active_alerts", "get_recent_errors", "get_incident_timeline"}},
		{regexp.MustCompile(`\b(alert|alerts|firing)\b`), []string{"get_active_alerts"}},
		{regexp.MustCompile(`\b(errors|failing|crashed|down)\b`), []string{"get_recent_errors", "analyze_log_patterns"}},
	}},
	{CategoryPerformance, []intentRule{
		{regexp.MustCompile(`\b(slow|latency|response time)\b`), []string{"get_performance_metrics", "detect_anomalies"}},
		{regexp.MustCompile(`\b(performance|throughput|bottleneck)\b`), []string{"get_performance_metrics"}},
		{regexp.MustCompile(`\b(cpu|memory|disk) (usage|utili[sz]ation)\b`), []string{"get_performance_metrics"}},
		{regexp.MustCompile(`\bcapacity\b`), []string{"get_capacity_recommendations"}},
		{regexp.MustCompile(`\banomal(y|ies)\b`), []string{"detect_anomalies"}},
	}},
	{CategoryCost, []intentRule{
		{regexp.MustCompile(`\b(save|saving|savings|reduce|cheaper|optimi[sz]e)\b.*\b(cost|spend|bill)`), []string{"get_cost_recommendations", "find_orphaned_resources"}},
		{regexp.MustCompile(`\b(cost|spend|bill)`), []string{"get_cost_analysis"}},
		{regexp.MustCompile(`\borphaned?\b`), []string{"find_orphaned_resources"}},
		{regexp.MustCompile(`\bbudget\b`), []string{"get_budget_status"}},
		{regexp.MustCompile(`\bexpensive\b`), []string{"get_cost_analysis", "get_cost_anomalies"}},
	}},
	{CategorySLO, []intentRule{
		{regexp.MustCompile(`\berror budget\b`), []string{"get_error_budget_status"}},
		{regexp.MustCompile(`\bburn rate\b`), []string{"get_slo_burn_rate"}},
		{regexp.MustCompile(`\b(slo|sli|service level)\b`), []string{"get_slo_report"}},
		{regexp.MustCompile(`\b(uptime|availability target)\b`), []string{"get_service_availability", "get_slo_report"}},
	}},
	{CategorySecurity, []intentRule{
		{regexp.MustCompile(`\b(vulnerab|cve)\w*\b`), []string{"assess_vulnerabilities"}},
		{regexp.MustCompile(`\b(security|threat)\b`), []string{"scan_security_posture"}},
		{regexp.MustCompile(`\bcomplian(ce|t)\b`), []string{"check_compliance_status"}},
		{regexp.MustCompile(`\bpolicy violation`), []string{"get_policy_violations"}},
		{regexp.MustCompile(`\b(end.of.life|eol)\b`), []string{"get_eol_inventory"}},
	}},
	{CategoryRemediation, []intentRule{
		{regexp.MustCompile(`\brestart\b.*\bcontainer app`), []string{"restart_container_app"}},
		{regexp.MustCompile(`\brestart\b.*\b(vm|virtual machine)\b`), []string{"restart_virtual_machine"}},
		{regexp.MustCompile(`\bscale\b`), []string{"scale_container_app"}},
		{regexp.MustCompile(`\broll\s?back\b`), []string{"rollback_deployment"}},
		{regexp.MustCompile(`\b(remediate|remediation|fix|heal)\b`), []string{"execute_remediation"}},
	}},
	{CategoryConfig, []intentRule{
		{regexp.MustCompile(`\bdrift\b`), []string{"check_configuration_drift"}},
		{regexp.MustCompile(`\bbaseline\b`), []string{"get_configuration_baseline"}},
		{regexp.MustCompile(`\bconfig(uration)?\b`), []string{"get_resource_configuration"}},
		{regexp.MustCompile(`\bscaling (rules?|settings?)\b`), []string{"get_scaling_configuration"}},
	}},
	{CategoryGeneral, []intentRule{
		{regexp.MustCompile(`\b(list|show|what)\b.*\bcontainer apps\b`), []string{"list_container_apps"}},
		{regexp.MustCompile(`\b(list|show)\b.*\b(vms|virtual machines)\b`), []string{"list_virtual_machines"}},
		{regexp.MustCompile(`\b(list|show)\b.*\bresource groups?\b`), []string{"list_resource_groups"}},
		{regexp.MustCompile(`\binventory\b`), []string{"get_resource_inventory"}},
	}},
}

// fallbackTools is used when no rule matches.
var fallbackTools = []string{"describe_capabilities"}

// ClassifyIntent maps a query to its category and tool list. The first
// matching rule in table order wins; unmatched queries fall back to the
// general capabilities tool.
func ClassifyIntent(query string) (string, []string) {
	lower := strings.ToLower(query)
	for _, cat := range intentTable {
		for _, rule := range cat.rules {
			if rule.pattern.MatchString(lower) {
				return cat.name, append([]string(nil), rule.tools...)
			}
		}
	}
	return CategoryGeneral, append([]string(nil), fallbackTools...)
}

// capabilitiesByCategory lists the distinct tools each category can reach.
func capabilitiesByCategory() map[string][]string {
	out := make(map[string][]string, len(intentTable))
	for _, cat := range intentTable {
		seen := make(map[string]bool)
		var tools []string
		for _, rule := range cat.rules {
			for _, tool := range rule.tools {
				if !seen[tool] {
					seen[tool] = true
					tools = append(tools, tool)
				}
			}
		}
		out[cat.name] = tools
	}
	return out
}
