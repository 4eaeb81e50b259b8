package toolcache

import "time"

// Profile names a TTL class for cached tool results.
type Profile string

const (
	ProfileRealTime Profile = "real_time"
	ProfileShort    Profile = "short"
	ProfileMedium   Profile = "medium"
	ProfileLong     Profile = "long"
	ProfileDaily    Profile = "daily"
)

// profileTTLs maps a profile to its entry lifetime.
var profileTTLs = map[Profile]time.Duration{
	ProfileRealTime: 60 * time.Second,
	ProfileShort:    5 * time.Minute,
	ProfileMedium:   30 * time.Minute,
	ProfileLong:     time.Hour,
	ProfileDaily:    24 * time.Hour,
}

// toolProfiles assigns a TTL profile per tool. Tools absent from this table
// are never cached on Set.
var toolProfiles = map[string]Profile{
	// Live telemetry and health state.
	"check_container_app_health":     ProfileRealTime,
	"get_resource_health":            ProfileRealTime,
	"get_active_alerts":              ProfileRealTime,
	"get_container_app_replicas":     ProfileRealTime,
	"check_vm_health":                ProfileRealTime,
	"get_service_availability":       ProfileRealTime,
	"get_error_budget_status":        ProfileRealTime,

	// Recent metrics and logs.
	"get_container_app_metrics":      ProfileShort,
	"get_vm_metrics":                 ProfileShort,
	"query_log_analytics":            ProfileShort,
	"get_recent_errors":              ProfileShort,
	"get_performance_metrics":        ProfileShort,
	"detect_anomalies":               ProfileShort,
	"get_incident_timeline":          ProfileShort,
	"get_slo_burn_rate":              ProfileShort,
	"get_dependency_status":          ProfileShort,
	"analyze_log_patterns":           ProfileShort,

	// Slower-moving resource state.
	"list_container_apps":            ProfileMedium,
	"list_virtual_machines":          ProfileMedium,
	"list_resource_groups":           ProfileMedium,
	"get_resource_configuration":     ProfileMedium,
	"get_container_app_revisions":    ProfileMedium,
	"get_network_topology":           ProfileMedium,
	"get_capacity_recommendations":   ProfileMedium,
	"check_configuration_drift":      ProfileMedium,
	"get_scaling_configuration":      ProfileMedium,

	// Analytical reports.
	"get_cost_analysis":              ProfileLong,
	"get_cost_recommendations":       ProfileLong,
	"find_orphaned_resources":        ProfileLong,
	"get_cost_anomalies":             ProfileLong,
	"check_compliance_status":        ProfileLong,
	"scan_security_posture":          ProfileLong,
	"assess_vulnerabilities":         ProfileLong,
	"get_policy_violations":          ProfileLong,
	"get_slo_report":                 ProfileLong,
	"get_configuration_baseline":     ProfileLong,

	// Daily inventories.
	"get_resource_inventory":         ProfileDaily,
	"get_budget_status":              ProfileDaily,
	"get_eol_inventory":              ProfileDaily,
	"describe_capabilities":          ProfileDaily,
}

// neverCache lists tools whose results must not be cached: anything that
// mutates state or sends a notification.
var neverCache = map[string]bool{
	"restart_container_app":     true,
	"restart_virtual_machine":   true,
	"scale_container_app":       true,
	"apply_configuration":       true,
	"rollback_deployment":       true,
	"execute_remediation":       true,
	"delete_orphaned_resource":  true,
	"send_notification":         true,
	"create_incident":           true,
	"acknowledge_alert":         true,
	"update_slo_target":         true,
}

// ProfileTTL returns the TTL for a tool, or false if the tool is uncacheable.
func ProfileTTL(tool string) (time.Duration, bool) {
	if neverCache[tool] {
		return 0, false
	}
	profile, ok := toolProfiles[tool]
	if !ok {
		return 0, false
	}
	return profileTTLs[profile], true
}

// ToolProfile returns the profile name assigned to a tool.
func ToolProfile(tool string) (Profile, bool) {
	p, ok := toolProfiles[tool]
	return p, ok
}
