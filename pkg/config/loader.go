package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds the configuration from defaults, an optional YAML file and the
// process environment, in that precedence order.
func Load(path string) (*Config, error) {
	LoadDotEnv()

	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(confmap.Provider(defaultsMap(defaults), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := expandEnvVars(string(raw))

		tmp, err := os.CreateTemp("", "sreflow-config-*.yaml")
		if err != nil {
			return nil, fmt.Errorf("failed to stage expanded config: %w", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.WriteString(expanded); err != nil {
			tmp.Close()
			return nil, fmt.Errorf("failed to stage expanded config: %w", err)
		}
		tmp.Close()

		if err := k.Load(file.Provider(tmp.Name()), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// defaultsMap flattens Default() into the confmap shape koanf expects.
func defaultsMap(c *Config) map[string]any {
	return map[string]any{
		"cache.max_entries":           c.Cache.MaxEntries,
		"inventory.strict_mode":       c.Inventory.StrictMode,
		"inventory.enabled":           c.Inventory.Enabled,
		"agents.max_retries":          c.Agents.MaxRetries,
		"agents.timeout":              c.Agents.Timeout,
		"agents.orchestrator_timeout": c.Agents.OrchestratorTimeout,
		"agents.security_timeout":     c.Agents.SecurityTimeout,
		"document_store.database":     c.DocumentStore.Database,
		"document_store.container":    c.DocumentStore.Container,
		"document_store.timeout":      c.DocumentStore.Timeout,
		"document_store.context_ttl":  c.DocumentStore.ContextTTL,
		"logging.level":               c.Logging.Level,
		"logging.format":              c.Logging.Format,
		"metrics.enabled":             c.Metrics.Enabled,
		"metrics.port":                c.Metrics.Port,
	}
}
