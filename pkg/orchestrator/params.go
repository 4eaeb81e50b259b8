package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/format"
	"github.com/sreflow/sreflow/pkg/interaction"
	"github.com/sreflow/sreflow/pkg/inventory"
)

// discoveryTTL caches discovery results in-process.
const discoveryTTL = 5 * time.Minute

// discoveryCap bounds how many discovered resources one tool can receive.
const discoveryCap = 10

// scopeRequiringTools need an ARM-style scope parameter.
var scopeRequiringTools = map[string]bool{
	"get_cost_analysis":        true,
	"get_cost_recommendations": true,
	"get_cost_anomalies":       true,
	"check_compliance_status":  true,
}

var guidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

type discoveryEntry struct {
	resources []map[string]any
	expires   time.Time
}

// resourceLister is the optional snapshot capability used as a discovery
// fallback when no CLI executor is wired.
type resourceLister interface {
	ListByType(resourceType, resourceGroup string) []inventory.Resource
}

type prepOutcome struct {
	// params is nil when the tool must be skipped.
	params map[string]any

	// interaction carries a selection prompt when user input is needed.
	interaction map[string]any

	skipReason string
}

// prepareParameters builds the final parameter map for one tool call:
// request seed, context merge, environment defaults, scope normalization,
// interaction gating, schema validation, discovery, inventory enrichment.
func (o *Orchestrator) prepareParameters(ctx context.Context, tool string, desc *agent.ToolDescriptor, req *agent.Request) prepOutcome {
	params := make(map[string]any, len(req.Parameters)+len(req.Context)+2)
	for k, v := range req.Parameters {
		params[k] = v
	}
	for k, v := range req.Context {
		if v != nil {
			if _, ok := params[k]; !ok {
				params[k] = v
			}
		}
	}

	o.applyEnvironmentDefaults(params)

	if scopeRequiringTools[tool] {
		scope := normalizeScope(params)
		if scope == "" {
			return prepOutcome{skipReason: "no subscription scope available"}
		}
		params["scope"] = scope
	}

	// Interactive transports get discovery prompts instead of silent skips.
	if req.Stream {
		if out, handled := o.gateInteraction(ctx, tool, params, req.Query); handled {
			return out
		}
	}

	if missing := missingRequired(tool, desc, params); len(missing) > 0 {
		filled, err := o.fillByDiscovery(ctx, tool, params, missing)
		if err != nil || !filled {
			return prepOutcome{skipReason: fmt.Sprintf("missing required parameters: %s", strings.Join(missing, ", "))}
		}
	}

	if o.guard != nil {
		params = o.guard.EnrichParameters(tool, params, req.Context)
	}

	// Only schema-declared parameters are forwarded to the transport.
	if declared := desc.DeclaredParameters(); declared != nil {
		for k := range params {
			if !declared[k] {
				delete(params, k)
			}
		}
	}

	return prepOutcome{params: params}
}

// applyEnvironmentDefaults fills process-wide cloud defaults.
func (o *Orchestrator) applyEnvironmentDefaults(params map[string]any) {
	if o.cfg == nil {
		return
	}
	if _, ok := params["subscription_id"]; !ok && o.cfg.Cloud.SubscriptionID != "" {
		params["subscription_id"] = o.cfg.Cloud.SubscriptionID
	}
	if _, ok := params["workspace_id"]; !ok && o.cfg.Cloud.WorkspaceID != "" {
		params["workspace_id"] = o.cfg.Cloud.WorkspaceID
	}
}

// normalizeScope forms an ARM-style scope from the available parameters.
// Raw subscription GUIDs are normalized to /subscriptions/{id}; a resource
// group extends the scope. Empty string means no scope can be formed.
func normalizeScope(params map[string]any) string {
	if scope, _ := params["scope"].(string); scope != "" {
		if guidRe.MatchString(scope) {
			return "/subscriptions/" + scope
		}
		return scope
	}

	sub, _ := params["subscription_id"].(string)
	if sub == "" {
		return ""
	}
	scope := sub
	if !strings.HasPrefix(scope, "/subscriptions/") {
		scope = "/subscriptions/" + scope
	}
	if rg, _ := params["resource_group"].(string); rg != "" {
		scope += "/resourceGroups/" + rg
	}
	return scope
}

// gateInteraction runs the discovery heuristic for interactive requests.
// A single match is auto-selected; several matches produce a selection
// prompt. Returns handled=false when the pipeline should continue normally.
func (o *Orchestrator) gateInteraction(ctx context.Context, tool string, params map[string]any, query string) (prepOutcome, bool) {
	resourceType := interaction.NeedsResourceDiscovery(tool, params, query)
	if resourceType == "" {
		return prepOutcome{}, false
	}

	rg, _ := params["resource_group"].(string)
	resources, err := o.discoverResources(ctx, resourceType, rg)
	if err != nil {
		slog.Warn("Discovery failed during interaction gating", "tool", tool, "type", resourceType, "error", err)
		return prepOutcome{}, false
	}

	switch len(resources) {
	case 0:
		return prepOutcome{}, false
	case 1:
		applyDiscoveredResource(tool, params, resources[0])
		return prepOutcome{}, false
	default:
		prompt := format.FormatSelectionPrompt(resources, resourceType, "use for "+tool)
		return prepOutcome{interaction: prompt}, true
	}
}

// missingRequired merges the static required-param table with the tool
// schema's required list and reports what is still absent.
func missingRequired(tool string, desc *agent.ToolDescriptor, params map[string]any) []string {
	var missing []string
	seen := make(map[string]bool)

	if req := interaction.CheckRequiredParams(tool, params); req != nil {
		for _, name := range req.MissingParams {
			if !seen[name] {
				seen[name] = true
				missing = append(missing, name)
			}
		}
	}
	for _, name := range desc.RequiredParameters() {
		if v, ok := params[name]; !ok || v == nil || v == "" {
			if !seen[name] {
				seen[name] = true
				missing = append(missing, name)
			}
		}
	}
	return missing
}

// fillByDiscovery tries to resolve missing name parameters by discovering
// resources of the tool's type and picking the first match.
func (o *Orchestrator) fillByDiscovery(ctx context.Context, tool string, params map[string]any, missing []string) (bool, error) {
	nameMissing := false
	for _, name := range missing {
		if strings.HasSuffix(name, "_name") || name == "resource_group" || name == "resource_id" {
			nameMissing = true
			break
		}
	}
	if !nameMissing {
		return false, nil
	}

	resourceType := interaction.ResourceTypeForTool(tool)
	if resourceType == "" {
		return false, nil
	}

	rg, _ := params["resource_group"].(string)
	resources, err := o.discoverResources(ctx, resourceType, rg)
	if err != nil || len(resources) == 0 {
		return false, err
	}

	applyDiscoveredResource(tool, params, resources[0])
	return len(missingRequired(tool, &agent.ToolDescriptor{}, params)) == 0, nil
}

// discoverResources lists resources of a type with a short-TTL in-process
// cache. Discovery goes through the CLI handler when wired, falling back to
// the inventory snapshot.
func (o *Orchestrator) discoverResources(ctx context.Context, resourceType, resourceGroup string) ([]map[string]any, error) {
	key := resourceType + "/" + resourceGroup

	o.discMu.Lock()
	if e, ok := o.discovery[key]; ok && time.Now().Before(e.expires) {
		cached := e.resources
		o.discMu.Unlock()
		return cached, nil
	}
	o.discMu.Unlock()

	var resources []map[string]any
	var err error
	if o.interact != nil {
		resources, err = o.interact.Discover(ctx, resourceType, map[string]string{"resource_group": resourceGroup})
	}
	if (err != nil || o.interact == nil) && o.snapshot != nil {
		if lister, ok := o.snapshot.(resourceLister); ok {
			resources = nil
			for _, r := range lister.ListByType(resourceType, resourceGroup) {
				resources = append(resources, map[string]any{
					"name":           r.Name,
					"id":             r.ID,
					"resource_group": r.ResourceGroup,
				})
			}
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}
	if len(resources) > discoveryCap {
		resources = resources[:discoveryCap]
	}

	o.discMu.Lock()
	o.discovery[key] = &discoveryEntry{resources: resources, expires: time.Now().Add(discoveryTTL)}
	o.discMu.Unlock()

	return resources, nil
}

// applyDiscoveredResource fills the tool's name parameters from one
// discovered resource.
func applyDiscoveredResource(tool string, params map[string]any, res map[string]any) {
	nameParam := interaction.NameParamForTool(tool)
	if nameParam != "" && params[nameParam] == nil {
		if name, _ := res["name"].(string); name != "" {
			params[nameParam] = name
		}
	}
	if params["resource_group"] == nil {
		if rg, _ := res["resource_group"].(string); rg != "" {
			params["resource_group"] = rg
		} else if rg, _ := res["resourceGroup"].(string); rg != "" {
			params["resource_group"] = rg
		}
	}
	if params["resource_id"] == nil {
		if id, _ := res["id"].(string); id != "" {
			params["resource_id"] = id
		}
	}
}
