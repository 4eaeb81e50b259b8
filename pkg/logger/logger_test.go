package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func initToFile(t *testing.T, format string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")
	file, cleanup, err := OpenLogFile(path)
	if err != nil {
		t.Fatalf("OpenLogFile: %v", err)
	}
	t.Cleanup(cleanup)
	Init(slog.LevelInfo, file, format)
	return path
}

func TestInitJSONFormat(t *testing.T) {
	path := initToFile(t, "json")

	slog.Info("cache hit", "tool", "get_resource_health")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if record["msg"] != "cache hit" {
		t.Errorf("msg = %v, want cache hit", record["msg"])
	}
	if record["tool"] != "get_resource_health" {
		t.Errorf("tool = %v, want get_resource_health", record["tool"])
	}
	if record["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", record["level"])
	}
}

func TestInitSimpleFormat(t *testing.T) {
	path := initToFile(t, "simple")

	slog.Warn("budget low", "remaining", 12)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(data))
	if line != "WARN budget low remaining=12" {
		t.Errorf("unexpected line %q", line)
	}
}
