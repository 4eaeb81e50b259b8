package interaction

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellExecutor runs discovery commands through the local cloud CLI binary.
// Commands are passed without the binary prefix ("vm list --output json");
// the executor prepends it and optionally the subscription scope.
type ShellExecutor struct {
	// Binary is the cloud CLI entry point, "az" by default.
	Binary string

	// SubscriptionID is appended as --subscription when the caller asks for
	// subscription context and a value is set.
	SubscriptionID string
}

// NewShellExecutor builds an executor for the given subscription scope.
func NewShellExecutor(subscriptionID string) *ShellExecutor {
	return &ShellExecutor{Binary: "az", SubscriptionID: subscriptionID}
}

// Execute runs the command and returns {status, output|error}. Output that
// parses as JSON is also returned under "result".
func (e *ShellExecutor) Execute(ctx context.Context, command string, timeout time.Duration, addSubscriptionContext bool) (map[string]any, error) {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := e.Binary
	if binary == "" {
		binary = "az"
	}
	full := binary + " " + command
	if addSubscriptionContext && e.SubscriptionID != "" && !strings.Contains(command, "--subscription") {
		full += " --subscription " + e.SubscriptionID
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", full)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return map[string]any{
				"status": "error",
				"error":  fmt.Sprintf("command timed out after %v", timeout),
			}, nil
		}
		return map[string]any{
			"status": "error",
			"error":  strings.TrimSpace(string(output)),
		}, nil
	}

	result := map[string]any{
		"status": "success",
		"output": string(output),
	}
	var parsed any
	if json.Unmarshal(output, &parsed) == nil {
		result["result"] = parsed
	}
	return result, nil
}
