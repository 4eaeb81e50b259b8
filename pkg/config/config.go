// Package config defines the platform configuration and its loaders.
//
// Configuration comes from three layers, lowest precedence first:
//
//  1. Built-in defaults (Default)
//  2. A YAML config file loaded through koanf
//  3. Environment variables (SUBSCRIPTION_ID, LOG_ANALYTICS_WORKSPACE_ID,
//     INVENTORY_STRICT_MODE, CACHE_MAX_ENTRIES, LOG_LEVEL)
//
// String values in the YAML file support ${VAR} and ${VAR:-default}
// expansion against the process environment.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the platform runtime.
type Config struct {
	// Cloud holds default cloud scoping applied during parameter preparation.
	Cloud CloudConfig `koanf:"cloud" yaml:"cloud"`

	// Cache configures the cross-cutting tool result cache.
	Cache CacheConfig `koanf:"cache" yaml:"cache"`

	// Inventory configures inventory preflight behavior.
	Inventory InventoryConfig `koanf:"inventory" yaml:"inventory"`

	// Agents configures base agent execution defaults.
	Agents AgentConfig `koanf:"agents" yaml:"agents"`

	// Transport configures the external tool transport.
	Transport TransportConfig `koanf:"transport" yaml:"transport"`

	// DocumentStore configures the durable workflow context backing.
	DocumentStore DocumentStoreConfig `koanf:"document_store" yaml:"document_store"`

	// Logging configures the slog setup.
	Logging LoggingConfig `koanf:"logging" yaml:"logging"`

	// Metrics configures the Prometheus scrape endpoint.
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
}

// CloudConfig carries process-wide cloud defaults.
type CloudConfig struct {
	// SubscriptionID is the default subscription applied to scope-requiring
	// tools. Accepts a raw GUID; it is normalized to /subscriptions/{id}
	// when a scope is built.
	SubscriptionID string `koanf:"subscription_id" yaml:"subscription_id"`

	// WorkspaceID is the default Log Analytics workspace for telemetry tools.
	WorkspaceID string `koanf:"workspace_id" yaml:"workspace_id"`

	// CLIDiscovery enables resource discovery through the local cloud CLI
	// binary. When false, discovery falls back to the inventory snapshot.
	CLIDiscovery bool `koanf:"cli_discovery" yaml:"cli_discovery"`
}

// CacheConfig configures the tool result cache.
type CacheConfig struct {
	// MaxEntries bounds the cache; at capacity the oldest 10% are evicted.
	MaxEntries int `koanf:"max_entries" yaml:"max_entries"`
}

// InventoryConfig configures the preflight guard.
type InventoryConfig struct {
	// StrictMode blocks tool calls whose target resource is absent from the
	// inventory snapshot. When false a warning is logged and execution
	// proceeds.
	StrictMode bool `koanf:"strict_mode" yaml:"strict_mode"`

	// Enabled toggles preflight checks entirely.
	Enabled bool `koanf:"enabled" yaml:"enabled"`
}

// AgentConfig carries base agent execution defaults.
type AgentConfig struct {
	// MaxRetries is the per-request retry budget inside the overall deadline.
	MaxRetries int `koanf:"max_retries" yaml:"max_retries"`

	// Timeout is the overall HandleRequest deadline.
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// OrchestratorTimeout overrides Timeout for the orchestrator agent.
	OrchestratorTimeout time.Duration `koanf:"orchestrator_timeout" yaml:"orchestrator_timeout"`

	// SecurityTimeout overrides Timeout for the security specialist, whose
	// scans run long.
	SecurityTimeout time.Duration `koanf:"security_timeout" yaml:"security_timeout"`
}

// TransportConfig configures the MCP tool transport subprocess.
type TransportConfig struct {
	// Command starts the tool server subprocess (stdio transport).
	Command string `koanf:"command" yaml:"command"`

	// Args for the subprocess.
	Args []string `koanf:"args" yaml:"args"`

	// Env for the subprocess, KEY=VALUE entries resolved at spawn.
	Env map[string]string `koanf:"env" yaml:"env"`
}

// DocumentStoreConfig configures the Mongo-backed workflow context store.
// An empty URI selects the in-memory store (degraded mode from the start).
type DocumentStoreConfig struct {
	URI        string        `koanf:"uri" yaml:"uri"`
	Database   string        `koanf:"database" yaml:"database"`
	Container  string        `koanf:"container" yaml:"container"`
	Timeout    time.Duration `koanf:"timeout" yaml:"timeout"`
	ContextTTL time.Duration `koanf:"context_ttl" yaml:"context_ttl"`
}

// LoggingConfig configures slog initialization.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
	File   string `koanf:"file" yaml:"file"`
}

// MetricsConfig configures the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	Port    int  `koanf:"port" yaml:"port"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{MaxEntries: 500},
		Inventory: InventoryConfig{
			StrictMode: true,
			Enabled:    true,
		},
		Agents: AgentConfig{
			MaxRetries:          3,
			Timeout:             300 * time.Second,
			OrchestratorTimeout: 300 * time.Second,
			SecurityTimeout:     600 * time.Second,
		},
		DocumentStore: DocumentStoreConfig{
			Database:   "sreflow",
			Container:  "workflow_contexts",
			Timeout:    5 * time.Second,
			ContextTTL: time.Hour,
		},
		Logging: LoggingConfig{Level: "info", Format: "simple"},
		Metrics: MetricsConfig{Port: 9090},
	}
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Agents.MaxRetries < 1 {
		return fmt.Errorf("agents.max_retries must be at least 1, got %d", c.Agents.MaxRetries)
	}
	if c.Agents.Timeout <= 0 {
		return fmt.Errorf("agents.timeout must be positive")
	}
	if c.DocumentStore.URI != "" && c.DocumentStore.Database == "" {
		return fmt.Errorf("document_store.database is required when a URI is set")
	}
	return nil
}

// YAML renders the configuration as YAML, used by the validate CLI command.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}
