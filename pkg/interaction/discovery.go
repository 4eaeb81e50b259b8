package interaction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sreflow/sreflow/pkg/format"
)

// CLIExecutor runs cloud CLI commands for resource discovery. The handler
// never calls provider SDKs directly.
type CLIExecutor interface {
	Execute(ctx context.Context, command string, timeout time.Duration, addSubscriptionContext bool) (map[string]any, error)
}

// DefaultDiscoveryTimeout bounds a single discovery command.
const DefaultDiscoveryTimeout = 30 * time.Second

// discoveryCommands maps resource types to the CLI listing command.
var discoveryCommands = map[string]string{
	"container_app": "containerapp list --output json",
	"vm":            "vm list --output json",
	"workspace":     "monitor log-analytics workspace list --output json",
	"storage":       "storage account list --output json",
}

// Handler runs discovery and builds selection prompts.
type Handler struct {
	cli CLIExecutor
}

// NewHandler creates an interaction handler backed by a CLI executor.
func NewHandler(cli CLIExecutor) *Handler {
	return &Handler{cli: cli}
}

// Discover lists resources of a type, optionally filtered by resource
// group. Returns the parsed resource maps.
func (h *Handler) Discover(ctx context.Context, resourceType string, filters map[string]string) ([]map[string]any, error) {
	command, ok := discoveryCommands[resourceType]
	if !ok {
		return nil, fmt.Errorf("no discovery command for resource type %s", resourceType)
	}
	if rg := filters["resource_group"]; rg != "" {
		command = fmt.Sprintf("%s --resource-group %s", command, rg)
	}

	out, err := h.cli.Execute(ctx, command, DefaultDiscoveryTimeout, true)
	if err != nil {
		return nil, fmt.Errorf("discovery failed for %s: %w", resourceType, err)
	}
	if status, _ := out["status"].(string); status == "error" {
		return nil, fmt.Errorf("discovery failed for %s: %v", resourceType, out["error"])
	}

	resources, err := parseDiscoveryOutput(out)
	if err != nil {
		return nil, fmt.Errorf("discovery output for %s: %w", resourceType, err)
	}

	slog.Debug("Discovered resources", "type", resourceType, "count", len(resources))
	return resources, nil
}

// BuildSelectionPrompt wraps discovered resources into the prompt shape the
// orchestrator surfaces when several resources match.
func (h *Handler) BuildSelectionPrompt(resources []map[string]any, resourceType, action string) map[string]any {
	return format.FormatSelectionPrompt(resources, resourceType, action)
}

// parseDiscoveryOutput extracts the resource list from a CLI result. The
// executor returns either an already-parsed "result" list or a raw JSON
// "output" string.
func parseDiscoveryOutput(out map[string]any) ([]map[string]any, error) {
	if raw, ok := out["result"]; ok {
		return toResourceMaps(raw)
	}
	if text, ok := out["output"].(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return nil, fmt.Errorf("invalid JSON output: %w", err)
		}
		return toResourceMaps(parsed)
	}
	return nil, fmt.Errorf("no result or output field")
}

func toResourceMaps(raw any) ([]map[string]any, error) {
	list, ok := raw.([]any)
	if !ok {
		if m, ok := raw.(map[string]any); ok {
			return []map[string]any{m}, nil
		}
		return nil, fmt.Errorf("unexpected shape %T", raw)
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}
