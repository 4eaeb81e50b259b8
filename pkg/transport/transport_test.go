package transport

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestParseCallResultJSON(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: `{"status":"healthy","replicas":3}`},
		},
	}
	r := parseCallResult(resp)
	if !r.Success {
		t.Fatalf("success = false: %+v", r)
	}
	if r.Parsed["status"] != "healthy" {
		t.Errorf("parsed = %v", r.Parsed)
	}
}

func TestParseCallResultArray(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: `[{"name":"app-a"},{"name":"app-b"}]`},
		},
	}
	r := parseCallResult(resp)
	items, ok := r.Parsed["items"].([]any)
	if !ok || len(items) != 2 {
		t.Errorf("array not wrapped under items: %v", r.Parsed)
	}
}

func TestParseCallResultPlainText(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "restart initiated"},
		},
	}
	r := parseCallResult(resp)
	if !r.Success || r.Parsed != nil {
		t.Errorf("plain text result = %+v", r)
	}
	if r.Content != "restart initiated" {
		t.Errorf("content = %q", r.Content)
	}
}

func TestParseCallResultError(t *testing.T) {
	resp := &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "resource not found"},
		},
	}
	r := parseCallResult(resp)
	if r.Success {
		t.Fatal("error result reported success")
	}
	if r.Error != "resource not found" {
		t.Errorf("error = %q", r.Error)
	}
}

func TestParseCallResultMalformedJSON(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: `{"broken":`},
		},
	}
	r := parseCallResult(resp)
	if !r.Success {
		t.Fatal("malformed JSON should still succeed as raw text")
	}
	if r.Parsed != nil {
		t.Errorf("malformed JSON should leave Parsed nil: %v", r.Parsed)
	}
}

func TestToolCategory(t *testing.T) {
	tests := []struct {
		tool string
		want string
	}{
		{"get_cost_analysis", "cost"},
		{"restart_container_app", "remediation"},
		{"execute_remediation", "remediation"},
		{"check_container_app_health", "health"},
		{"query_app_logs", "observability"},
		{"list_container_apps", "inventory"},
		{"send_notification", "general"},
	}
	for _, tt := range tests {
		if got := toolCategory(tt.tool); got != tt.want {
			t.Errorf("toolCategory(%s) = %s, want %s", tt.tool, got, tt.want)
		}
	}
}
