package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names recognized by FromEnv.
const (
	EnvSubscriptionID      = "SUBSCRIPTION_ID"
	EnvWorkspaceID         = "LOG_ANALYTICS_WORKSPACE_ID"
	EnvInventoryStrictMode = "INVENTORY_STRICT_MODE"
	EnvCacheMaxEntries     = "CACHE_MAX_ENTRIES"
	EnvLogLevel            = "LOG_LEVEL"
)

var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

// LoadDotEnv loads a .env file from the working directory if present.
// Missing files are not an error; the process environment always wins.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// expandEnvVars substitutes ${VAR:-default}, ${VAR} and $VAR references.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			if val := os.Getenv(parts[1]); val != "" {
				return val
			}
			return parts[2]
		}
		return match
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

// ApplyEnv overlays recognized environment variables onto the configuration.
// Called after file loading so the environment has the last word.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvSubscriptionID); v != "" {
		c.Cloud.SubscriptionID = v
	}
	if v := os.Getenv(EnvWorkspaceID); v != "" {
		c.Cloud.WorkspaceID = v
	}
	if v := os.Getenv(EnvInventoryStrictMode); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Inventory.StrictMode = b
		}
	}
	if v := os.Getenv(EnvCacheMaxEntries); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}
