// Package format turns tool results into user-facing fragments. Everything
// here is a pure function over result shapes; rendering is left to the
// front end.
package format

import (
	"fmt"
	"strings"
)

// Severity levels derived from resource status strings.
const (
	SeverityOK      = "ok"
	SeverityWarn    = "warn"
	SeverityErr     = "err"
	SeverityUnknown = "unk"
)

var severityTable = map[string]string{
	"healthy":   SeverityOK,
	"available": SeverityOK,
	"success":   SeverityOK,
	"degraded":  SeverityWarn,
	"warning":   SeverityWarn,
	"error":     SeverityErr,
	"critical":  SeverityErr,
	"unknown":   SeverityUnknown,
}

var severityIcons = map[string]string{
	SeverityOK:      "[OK]",
	SeverityWarn:    "[WARN]",
	SeverityErr:     "[ERR]",
	SeverityUnknown: "[?]",
}

// Severity maps a status string to its severity level.
func Severity(status string) string {
	if sev, ok := severityTable[strings.ToLower(status)]; ok {
		return sev
	}
	return SeverityUnknown
}

// SeverityIcon returns the display icon for a status string.
func SeverityIcon(status string) string {
	return severityIcons[Severity(status)]
}

// columnProfiles selects the table columns shown per resource type.
var columnProfiles = map[string][]string{
	"container_app": {"name", "resource_group", "status", "replicas"},
	"vm":            {"name", "resource_group", "power_state", "size"},
	"workspace":     {"name", "resource_group", "location"},
	"storage":       {"name", "resource_group", "sku", "location"},
}

var defaultColumns = []string{"name", "resource_group", "id"}

// FormatResourceList builds a table fragment for a list of resources. Rows
// are indexed from 1.
func FormatResourceList(resources []map[string]any, resourceType string, context map[string]any) map[string]any {
	columns, ok := columnProfiles[resourceType]
	if !ok {
		columns = defaultColumns
	}

	rows := make([]map[string]any, 0, len(resources))
	for i, res := range resources {
		row := map[string]any{"index": i + 1}
		for _, col := range columns {
			if v, ok := res[col]; ok {
				row[col] = v
			}
		}
		rows = append(rows, row)
	}

	out := map[string]any{
		"type":          "table",
		"resource_type": resourceType,
		"columns":       append([]string{"index"}, columns...),
		"rows":          rows,
		"count":         len(resources),
	}
	for k, v := range context {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// FormatHealthStatus builds a narrative over per-resource health results.
func FormatHealthStatus(results []map[string]any) string {
	if len(results) == 0 {
		return "No health data available."
	}

	var b strings.Builder
	healthy := 0
	for _, r := range results {
		status := str(r["status"])
		if status == "" {
			status = str(r["availability_state"])
		}
		name := str(r["name"])
		if name == "" {
			name = str(r["resource_name"])
		}
		sev := Severity(status)
		if sev == SeverityOK {
			healthy++
		}
		fmt.Fprintf(&b, "%s %s: %s\n", severityIcons[sev], name, status)
		if reason := str(r["reason"]); reason != "" && sev != SeverityOK {
			fmt.Fprintf(&b, "    reason: %s\n", reason)
		}
	}
	fmt.Fprintf(&b, "\n%d of %d resources healthy.", healthy, len(results))
	return b.String()
}

// FormatCostSummary builds a narrative for an aggregated cost summary.
func FormatCostSummary(summary map[string]any) string {
	var b strings.Builder
	b.WriteString("Cost analysis summary:\n")
	if savings := str(summary["potential_savings"]); savings != "" {
		fmt.Fprintf(&b, "  Potential monthly savings: %s\n", savings)
	}
	if orphaned, ok := asInt(summary["orphaned_resources"]); ok && orphaned > 0 {
		fmt.Fprintf(&b, "  Orphaned resources found: %d\n", orphaned)
	}
	if analyzed, ok := asInt(summary["tools_analyzed"]); ok {
		fmt.Fprintf(&b, "  Data sources analyzed: %d\n", analyzed)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatPerformanceMetrics builds a narrative for a performance summary.
// When no metrics came back, the narrative stays friendly and carries the
// diagnostic suggestions instead of an empty table.
func FormatPerformanceMetrics(summary map[string]any) string {
	if hasData, ok := summary["has_data"].(bool); ok && !hasData {
		var b strings.Builder
		b.WriteString("No performance metrics were returned for this resource.\n")
		if diag := str(summary["diagnosis"]); diag != "" {
			fmt.Fprintf(&b, "%s\n", diag)
		}
		for _, s := range strSlice(summary["suggestions"]) {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	var b strings.Builder
	b.WriteString("Performance summary:\n")
	if n, ok := asInt(summary["metrics_count"]); ok {
		fmt.Fprintf(&b, "  Metrics collected: %d\n", n)
	}
	if n, ok := asInt(summary["bottlenecks_identified"]); ok && n > 0 {
		fmt.Fprintf(&b, "  %s Bottlenecks identified: %d\n", severityIcons[SeverityWarn], n)
	}
	for _, rec := range strSlice(summary["capacity_recommendations"]) {
		fmt.Fprintf(&b, "  - %s\n", rec)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatIncidentSummary builds a narrative for an incident triage result.
func FormatIncidentSummary(incident map[string]any) string {
	var b strings.Builder
	sev := str(incident["severity"])
	fmt.Fprintf(&b, "%s Incident severity: %s\n", SeverityIcon(sev), sev)
	if scope := str(incident["impact_scope"]); scope != "" {
		fmt.Fprintf(&b, "  Impact: %s\n", scope)
	}
	if cause := str(incident["probable_cause"]); cause != "" {
		fmt.Fprintf(&b, "  Probable cause: %s\n", cause)
	}
	for _, a := range strSlice(incident["recommended_actions"]) {
		fmt.Fprintf(&b, "  - %s\n", a)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSuccessMessage builds a one-line confirmation.
func FormatSuccessMessage(action, resource string) string {
	if resource == "" {
		return fmt.Sprintf("%s %s completed successfully.", severityIcons[SeverityOK], action)
	}
	return fmt.Sprintf("%s %s completed successfully for %s.", severityIcons[SeverityOK], action, resource)
}

// FormatErrorMessage builds a displayable error with optional suggestions.
func FormatErrorMessage(errText string, suggestions []string) map[string]any {
	out := map[string]any{
		"message": fmt.Sprintf("%s %s", severityIcons[SeverityErr], errText),
	}
	if len(suggestions) > 0 {
		out["suggestions"] = suggestions
	}
	return out
}

// SelectionOption is one selectable resource in a prompt.
type SelectionOption struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	ID    string `json:"id,omitempty"`
}

// FormatSelectionPrompt builds the structured prompt returned when a query
// matches several resources and the user must pick one.
func FormatSelectionPrompt(resources []map[string]any, resourceType, action string) map[string]any {
	options := make([]SelectionOption, 0, len(resources))
	var names []string
	for i, res := range resources {
		name := str(res["name"])
		options = append(options, SelectionOption{
			Index: i + 1,
			Name:  name,
			ID:    str(res["id"]),
		})
		names = append(names, fmt.Sprintf("%d. %s", i+1, name))
	}

	msg := fmt.Sprintf("Multiple %ss match. Which one should I %s?\n%s",
		strings.ReplaceAll(resourceType, "_", " "), action, strings.Join(names, "\n"))

	return map[string]any{
		"message":            msg,
		"requires_selection": true,
		"resource_type":      resourceType,
		"action":             action,
		"options":            options,
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func strSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
