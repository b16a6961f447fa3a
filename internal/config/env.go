package config

import (
	"os"
	"strconv"
)

// LoadFromEnv applies environment-variable overrides on top of a Config
// already populated from YAML or defaults.
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if logLevel := os.Getenv("COMPACTVAULT_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	if path := os.Getenv("COMPACTVAULT_VAULT_PATH"); path != "" {
		cfg.Vault.Path = path
	}

	if root := os.Getenv("COMPACTVAULT_STAGING_ROOT"); root != "" {
		cfg.Staging.Root = root
	}

	if workers := os.Getenv("COMPACTVAULT_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			cfg.Ingest.Workers = w
		}
	}
}

// GetEnvOrDefault returns an environment variable or a fallback value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
