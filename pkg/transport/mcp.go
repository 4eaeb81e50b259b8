package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/config"
)

const protocolVersion = "2024-11-05"

// MCPTransport runs tools on an MCP server subprocess over stdio.
type MCPTransport struct {
	cfg config.TransportConfig

	mu        sync.Mutex
	client    *client.Client
	connected bool
}

// NewMCP creates a stdio MCP transport. The subprocess is not started until
// Initialize.
func NewMCP(cfg config.TransportConfig) (*MCPTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("transport command is required")
	}
	return &MCPTransport{cfg: cfg}, nil
}

// Initialize starts the subprocess and performs the MCP handshake.
func (t *MCPTransport) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	mcpClient, err := client.NewStdioMCPClient(t.cfg.Command, t.envSlice(), t.cfg.Args...)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "sreflow",
		Version: "1.0.0",
	}
	initReq.Params.ProtocolVersion = protocolVersion

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}

	t.client = mcpClient
	t.connected = true

	slog.Info("Connected to MCP server", "command", t.cfg.Command)
	return nil
}

// Cleanup closes the subprocess connection. Idempotent.
func (t *MCPTransport) Cleanup() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	t.connected = false
	return err
}

// CallTool invokes a tool on the server. Tool-level failures come back as a
// Result with Success=false; transport failures are returned as errors.
func (t *MCPTransport) CallTool(ctx context.Context, name string, args map[string]any) (*Result, error) {
	t.mu.Lock()
	mcpClient := t.client
	t.mu.Unlock()

	if mcpClient == nil {
		return nil, fmt.Errorf("MCP client not connected")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("MCP call failed for %s: %w", name, err)
	}

	return parseCallResult(resp), nil
}

// ListTools fetches the server's tool catalog as descriptors.
func (t *MCPTransport) ListTools(ctx context.Context) ([]agent.ToolDescriptor, error) {
	t.mu.Lock()
	mcpClient := t.client
	t.mu.Unlock()

	if mcpClient == nil {
		return nil, fmt.Errorf("MCP client not connected")
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	descs := make([]agent.ToolDescriptor, 0, len(listResp.Tools))
	for _, mcpTool := range listResp.Tools {
		descs = append(descs, agent.ToolDescriptor{
			Name:            mcpTool.Name,
			Description:     mcpTool.Description,
			Category:        toolCategory(mcpTool.Name),
			ParameterSchema: convertSchema(mcpTool.InputSchema),
		})
	}

	slog.Debug("Listed MCP tools", "count", len(descs))
	return descs, nil
}

// parseCallResult flattens an MCP tool result into a Result, joining text
// content and decoding JSON payloads.
func parseCallResult(resp *mcp.CallToolResult) *Result {
	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	joined := strings.Join(texts, "\n")

	if resp.IsError {
		errText := joined
		if errText == "" {
			errText = "unknown error"
		}
		return &Result{Success: false, Content: joined, Error: errText}
	}

	r := &Result{Success: true, Content: joined}
	r.parseContent()
	return r
}

// toolCategory derives a coarse category from the tool name prefix.
func toolCategory(name string) string {
	switch {
	case strings.HasPrefix(name, "get_cost"):
		return "cost"
	case strings.HasPrefix(name, "restart_"), strings.HasPrefix(name, "execute_"),
		strings.HasPrefix(name, "scale_"), strings.HasPrefix(name, "rollback_"):
		return "remediation"
	case strings.Contains(name, "health"):
		return "health"
	case strings.HasPrefix(name, "query_"), strings.Contains(name, "metrics"),
		strings.Contains(name, "logs"):
		return "observability"
	case strings.HasPrefix(name, "list_"), strings.HasPrefix(name, "describe_"):
		return "inventory"
	default:
		return "general"
	}
}

// convertSchema round-trips the MCP schema through JSON to a plain map.
func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// envSlice converts the configured env map to "KEY=VALUE" form.
func (t *MCPTransport) envSlice() []string {
	if len(t.cfg.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(t.cfg.Env))
	for k, v := range t.cfg.Env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
