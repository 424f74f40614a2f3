// Package config provides configuration management for the leapmeta CLI.
//
// Configuration is read from leapmeta.yaml, LEAPMETA_ environment variables
// and command-line flags, in increasing order of precedence. The target
// type is shared with the adapters through pkg/core.
package config

import (
	"github.com/leapstack-labs/leapmeta/internal/indicator"
	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/ident"
)

// TargetConfig is an alias for the shared target configuration.
// This allows CLI code to use config.TargetConfig without importing pkg/core.
type TargetConfig = core.TargetConfig

// Config holds all CLI configuration options.
type Config struct {
	Target          *TargetConfig        `koanf:"target"`
	RawPrefix       string               `koanf:"raw_prefix"`
	IndicatorPrefix string               `koanf:"indicator_prefix"`
	AuditUser       string               `koanf:"audit_user"`
	BatchSize       int                  `koanf:"batch_size"`
	PreviewLimit    int                  `koanf:"preview_limit"`
	Environment     string               `koanf:"environment"`
	Verbose         bool                 `koanf:"verbose"`
	OutputFormat    string               `koanf:"output"`
	Server          ServerConfig         `koanf:"server"`
	Environments    map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Addr        string   `koanf:"addr"`
	CORSOrigins []string `koanf:"cors_origins"`
	InboxDir    string   `koanf:"inbox_dir"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	RawPrefix       string        `koanf:"raw_prefix"`
	IndicatorPrefix string        `koanf:"indicator_prefix"`
	Target          *TargetConfig `koanf:"target"`
}

// Default configuration values.
const (
	DefaultDatabase     = ".leapmeta/leapmeta.duckdb"
	DefaultTargetType   = "duckdb"
	DefaultEnv          = "dev"
	DefaultOutput       = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultBatchSize    = adapter.DefaultBatchSize
	DefaultPreviewLimit = 100
	DefaultServerAddr   = ":8080"
)

// Default table prefixes, shared with the services.
const (
	DefaultRawPrefix       = ident.DefaultRawPrefix
	DefaultIndicatorPrefix = indicator.DefaultPrefix
)

// AdapterConfig returns the connection config for the configured target.
func (c *Config) AdapterConfig() core.AdapterConfig {
	if c.Target == nil {
		return core.AdapterConfig{BatchSize: c.BatchSize}
	}
	cfg := c.Target.AdapterConfig()
	cfg.BatchSize = c.BatchSize
	return cfg
}
