// Package interaction detects missing or ambiguous tool parameters, runs
// resource discovery through the cloud CLI, and parses user selections.
package interaction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sreflow/sreflow/pkg/format"
)

// Request asks the operator to fill a parameter gap before a tool can run.
type Request struct {
	Tool          string   `json:"tool"`
	MissingParams []string `json:"missing_params"`
	Message       string   `json:"message"`
	ResourceType  string   `json:"resource_type,omitempty"`
}

// requiredParams maps tools to the parameters that must be present before
// invocation. Tools absent from the table have no hard requirements.
var requiredParams = map[string][]string{
	"check_container_app_health":  {"container_app_name", "resource_group"},
	"restart_container_app":       {"container_app_name", "resource_group"},
	"scale_container_app":         {"container_app_name", "resource_group", "replicas"},
	"get_container_app_metrics":   {"container_app_name", "resource_group"},
	"get_container_app_replicas":  {"container_app_name", "resource_group"},
	"get_container_app_revisions": {"container_app_name", "resource_group"},
	"check_vm_health":             {"vm_name", "resource_group"},
	"get_vm_metrics":              {"vm_name", "resource_group"},
	"restart_virtual_machine":     {"vm_name", "resource_group"},
	"query_log_analytics":         {"workspace_id", "query"},
	"get_performance_metrics":     {"resource_id"},
	"get_resource_health":         {"resource_id"},
	"execute_remediation":         {"resource_id", "action"},
}

// resourceCues maps a resource type to the query keywords that suggest it.
// Order matters: more specific types first.
var resourceCues = []struct {
	resourceType string
	cues         []string
}{
	{"container_app", []string{"container app", "containerapp", "container application"}},
	{"vm", []string{"virtual machine", "vm "}},
	{"workspace", []string{"log analytics", "workspace"}},
	{"storage", []string{"storage account", "storage"}},
}

// resourceTypeForTool maps tools to the resource type their name parameter
// refers to, for discovery routing.
var resourceTypeForTool = map[string]string{
	"check_container_app_health":  "container_app",
	"restart_container_app":       "container_app",
	"scale_container_app":         "container_app",
	"get_container_app_metrics":   "container_app",
	"get_container_app_replicas":  "container_app",
	"get_container_app_revisions": "container_app",
	"check_vm_health":             "vm",
	"get_vm_metrics":              "vm",
	"restart_virtual_machine":     "vm",
}

var (
	quotedNameRe = regexp.MustCompile(`['"][^'"]+['"]`)
	namedPhraseRe = regexp.MustCompile(`\b(?:named|called)\s+\S+`)
	hyphenTokenRe = regexp.MustCompile(`\b\w+(?:-\w+)+\b`)
)

// ResourceTypeForTool returns the resource type a tool's name parameter
// refers to, or empty for tools that are not resource-scoped.
func ResourceTypeForTool(tool string) string {
	return resourceTypeForTool[tool]
}

// NameParamForTool returns the parameter carrying the resource name for a
// tool, derived from its required-parameter entry.
func NameParamForTool(tool string) string {
	for _, p := range requiredParams[tool] {
		if strings.HasSuffix(p, "_name") {
			return p
		}
	}
	return ""
}

// CheckRequiredParams reports the parameters still missing for a tool, or
// nil when the tool can run.
func CheckRequiredParams(tool string, params map[string]any) *Request {
	required, ok := requiredParams[tool]
	if !ok {
		return nil
	}

	var missing []string
	for _, name := range required {
		v, present := params[name]
		if !present || v == nil || v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return &Request{
		Tool:          tool,
		MissingParams: missing,
		Message:       fmt.Sprintf("Missing required parameters for %s: %s", tool, strings.Join(missing, ", ")),
		ResourceType:  resourceTypeForTool[tool],
	}
}

// NeedsResourceDiscovery returns the resource type to discover when the
// query refers to a kind of resource without naming a specific one, and the
// tool's name parameter is not already set. Empty string means no discovery.
func NeedsResourceDiscovery(tool string, params map[string]any, query string) string {
	resourceType, ok := resourceTypeForTool[tool]
	if !ok {
		return ""
	}
	// Name already supplied.
	for _, name := range requiredParams[tool] {
		if strings.HasSuffix(name, "_name") {
			if v, ok := params[name]; ok && v != nil && v != "" {
				return ""
			}
		}
	}

	lower := strings.ToLower(query)
	if hasSpecificName(lower) {
		return ""
	}
	for _, entry := range resourceCues {
		if entry.resourceType != resourceType {
			continue
		}
		for _, cue := range entry.cues {
			if strings.Contains(lower, cue) {
				return resourceType
			}
		}
	}
	return ""
}

// hasSpecificName reports whether the query already points at a concrete
// resource: a quoted name, a "named X" phrase, or a hyphenated token.
func hasSpecificName(query string) bool {
	return quotedNameRe.MatchString(query) ||
		namedPhraseRe.MatchString(query) ||
		hyphenTokenRe.MatchString(query)
}

// ParseSelection resolves a user reply against the presented options.
// Priority: integer index, first/last keywords, substring match on names.
// Returns nil when nothing matches.
func ParseSelection(input string, options []format.SelectionOption) *format.SelectionOption {
	if len(options) == 0 {
		return nil
	}
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return nil
	}

	if n, err := strconv.Atoi(trimmed); err == nil {
		if n >= 1 && n <= len(options) {
			return &options[n-1]
		}
		return nil
	}

	switch {
	case containsWord(trimmed, "first", "1st", "top"):
		return &options[0]
	case containsWord(trimmed, "last", "bottom"):
		return &options[len(options)-1]
	}

	for i := range options {
		name := strings.ToLower(options[i].Name)
		if name != "" && (strings.Contains(trimmed, name) || strings.Contains(name, trimmed)) {
			return &options[i]
		}
	}
	return nil
}

func containsWord(s string, words ...string) bool {
	fields := strings.Fields(s)
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}
