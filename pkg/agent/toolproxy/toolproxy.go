// Package toolproxy provides the agent every tool call flows through. It
// fronts the external tool transport with the result cache, so specialists
// never talk to the transport directly.
package toolproxy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/toolcache"
	"github.com/sreflow/sreflow/pkg/transport"
)

// AgentType identifies the proxy in the registry.
const AgentType = "tool_proxy"

// Proxy executes tool requests against the transport with caching.
type Proxy struct {
	*agent.BaseAgent

	transport transport.ToolTransport
	cache     *toolcache.Cache
}

// New creates the tool proxy agent.
func New(id string, tr transport.ToolTransport, cache *toolcache.Cache, opts agent.Options) *Proxy {
	p := &Proxy{
		transport: tr,
		cache:     cache,
	}
	p.BaseAgent = agent.NewBase(id, AgentType, opts, p)
	return p
}

// Setup brings the transport up with the agent.
func (p *Proxy) Setup(ctx context.Context) error {
	return p.transport.Initialize(ctx)
}

// Teardown shuts the transport down.
func (p *Proxy) Teardown(ctx context.Context) error {
	return p.transport.Cleanup()
}

// ListTools exposes the transport's catalog for registry bootstrap.
func (p *Proxy) ListTools(ctx context.Context) ([]agent.ToolDescriptor, error) {
	return p.transport.ListTools(ctx)
}

// Execute runs one tool call: cache lookup, transport invocation, cache
// store on success. Tool-level failures come back as unsuccessful results,
// not errors, so they are not retried; transport failures are errors.
func (p *Proxy) Execute(ctx context.Context, req *agent.Request) (map[string]any, error) {
	if req.Tool == "" {
		return nil, fmt.Errorf("tool name is required")
	}

	args := req.Parameters
	if args == nil {
		args = map[string]any{}
	}

	if cached := p.cache.Get(req.Tool, args); cached != nil {
		slog.Debug("Tool cache hit", "tool", req.Tool)
		cached["cached"] = true
		return cached, nil
	}

	start := time.Now()
	res, err := p.transport.CallTool(ctx, req.Tool, args)
	if err != nil {
		return nil, fmt.Errorf("tool %s transport call failed: %w", req.Tool, err)
	}
	slog.Debug("Tool executed", "tool", req.Tool,
		"success", res.Success, "duration", time.Since(start))

	wrapped := map[string]any{
		"success":     res.Success,
		"raw_content": res.Content,
	}
	if res.Parsed != nil {
		wrapped["parsed"] = res.Parsed
	}
	if !res.Success {
		wrapped["error"] = res.Error
		return wrapped, nil
	}

	p.cache.Set(req.Tool, args, wrapped)
	return wrapped, nil
}
