// Package inventory gates expensive tool calls behind a resource inventory
// snapshot. The guard only reads the snapshot; it never calls the cloud
// provider itself.
package inventory

import (
	"log/slog"
	"strings"
)

// ResourceRef identifies a resource by type, group and name.
type ResourceRef struct {
	Type          string `json:"type"`
	ResourceGroup string `json:"resource_group"`
	Name          string `json:"name"`
}

// Snapshot is the read-only inventory view consumed by the guard and by
// parameter enrichment.
type Snapshot interface {
	// HasResource reports whether a resource exists, matched either by ref
	// or by explicit resource ID.
	HasResource(ref *ResourceRef, resourceID string) bool

	// EnrichParameters fills derivable parameters (resource IDs, locations)
	// from inventory data.
	EnrichParameters(tool string, params map[string]any, ctx map[string]any) map[string]any

	// Statistics summarizes snapshot contents.
	Statistics() map[string]any
}

// PreflightResult is the outcome of a preflight check.
type PreflightResult struct {
	OK      bool           `json:"ok"`
	Result  map[string]any `json:"result,omitempty"`
	Warning string         `json:"warning,omitempty"`
}

// resourceScopedTools maps tools to the resource type and the parameter
// that carries the resource name. Only these tools are preflighted.
var resourceScopedTools = map[string]struct {
	resourceType string
	nameParam    string
}{
	"check_container_app_health":  {"container_app", "container_app_name"},
	"restart_container_app":       {"container_app", "container_app_name"},
	"scale_container_app":         {"container_app", "container_app_name"},
	"get_container_app_metrics":   {"container_app", "container_app_name"},
	"get_container_app_replicas":  {"container_app", "container_app_name"},
	"get_container_app_revisions": {"container_app", "container_app_name"},
	"check_vm_health":             {"vm", "vm_name"},
	"get_vm_metrics":              {"vm", "vm_name"},
	"restart_virtual_machine":     {"vm", "vm_name"},
}

// IsResourceScoped reports whether a tool is subject to preflight.
func IsResourceScoped(tool string) bool {
	_, ok := resourceScopedTools[tool]
	return ok
}

// Guard performs preflight existence checks against a snapshot.
type Guard struct {
	snapshot Snapshot
	strict   bool
}

// NewGuard creates a guard. In strict mode a missing resource blocks the
// tool call; otherwise it only logs a warning.
func NewGuard(snapshot Snapshot, strict bool) *Guard {
	return &Guard{snapshot: snapshot, strict: strict}
}

// PreflightResourceCheck verifies the referenced resource exists before an
// expensive tool call. Tools that are not resource-scoped always pass.
func (g *Guard) PreflightResourceCheck(tool string, params map[string]any) PreflightResult {
	scoped, ok := resourceScopedTools[tool]
	if !ok || g.snapshot == nil {
		return PreflightResult{OK: true}
	}

	resourceID, _ := params["resource_id"].(string)
	name, _ := params[scoped.nameParam].(string)
	rg, _ := params["resource_group"].(string)

	var ref *ResourceRef
	if name != "" {
		ref = &ResourceRef{Type: scoped.resourceType, ResourceGroup: rg, Name: name}
	}
	if ref == nil && resourceID == "" {
		// Nothing to verify against; let parameter validation handle it.
		return PreflightResult{OK: true}
	}

	if g.snapshot.HasResource(ref, resourceID) {
		return PreflightResult{OK: true}
	}

	subject := name
	if subject == "" {
		subject = resourceID
	}
	if g.strict {
		slog.Info("Preflight blocked tool call", "tool", tool, "resource", subject)
		return PreflightResult{
			OK: false,
			Result: map[string]any{
				"success":          false,
				"error":            "Resource not found in inventory.",
				"suggestion":       missingResourceSuggestion(scoped.resourceType, subject),
				"preflight_failed": true,
			},
		}
	}

	warning := "resource " + subject + " not found in inventory; proceeding anyway"
	slog.Warn("Preflight miss in lax mode", "tool", tool, "resource", subject)
	return PreflightResult{OK: true, Warning: warning}
}

// EnrichParameters delegates to the snapshot when present.
func (g *Guard) EnrichParameters(tool string, params map[string]any, ctx map[string]any) map[string]any {
	if g.snapshot == nil {
		return params
	}
	return g.snapshot.EnrichParameters(tool, params, ctx)
}

func missingResourceSuggestion(resourceType, name string) string {
	kind := strings.ReplaceAll(resourceType, "_", " ")
	if name == "" {
		return "List available " + kind + "s to find the right resource name."
	}
	return "Verify the " + kind + " name '" + name + "' and its resource group, or refresh the inventory."
}
