package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level process configuration, loaded from YAML with
// environment overrides applied on top (see LoadFromEnv).
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Vault   VaultConfig   `yaml:"vault"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Staging StagingConfig `yaml:"staging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port     int    `yaml:"port" default:"8000"`
	LogLevel string `yaml:"log_level" default:"info"`
}

// VaultConfig holds a vault file path, settable from YAML or
// COMPACTVAULT_VAULT_PATH. The server does not open it at startup;
// vaults are opened through the create_vault and unlock_vault routes.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// IngestConfig tunes the chunking and worker-pool parameters of the
// ingestion pipeline (spec §4.1, §4.6).
type IngestConfig struct {
	MinChunkSize int           `yaml:"min_chunk_size" default:"4096"`
	MaxChunkSize int           `yaml:"max_chunk_size" default:"1048576"`
	Workers      int           `yaml:"workers" default:"0"` // 0 = runtime.NumCPU(), min 4
	QueueFactor  int           `yaml:"queue_factor" default:"2"`
	TaskTimeout  time.Duration `yaml:"task_timeout" default:"0"`
}

// StagingConfig controls the on-disk resumable-upload staging area
// (spec §4.5, §6).
type StagingConfig struct {
	Root string `yaml:"root" default:"./upload_temp"`
}

// Default returns a Config with the spec's documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8000,
			LogLevel: "info",
		},
		Ingest: IngestConfig{
			MinChunkSize: 4096,
			MaxChunkSize: 1048576,
			Workers:      0,
			QueueFactor:  2,
		},
		Staging: StagingConfig{
			Root: "./upload_temp",
		},
	}
}

// LoadFromFile reads a YAML config file on top of Default(), leaving any
// field the file omits at its default value. An empty path is not an
// error — callers treat an unset COMPACTVAULT_CONFIG as "use defaults."
// A non-empty path naming a file that cannot be read is an error.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
