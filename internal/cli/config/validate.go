package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/ident"
)

// outputFormats lists the accepted values of the output key.
var outputFormats = []string{"auto", "text", "markdown", "json", "csv"}

// DefaultSchemaForType returns the default schema for a database type.
// Unknown types fall back to "main".
func DefaultSchemaForType(dbType string) string {
	if d, ok := dialect.Get(strings.ToLower(dbType)); ok && d.DefaultSchema != "" {
		return d.DefaultSchema
	}
	return "main"
}

// ApplyTargetDefaults applies default values to a TargetConfig based on the target type.
func ApplyTargetDefaults(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Type = strings.ToLower(t.Type)
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
	if isFileDatabase(t.Type) && t.Database == "" {
		t.Database = defaultDatabaseFor(t.Type)
	}
}

func isFileDatabase(dbType string) bool {
	return dbType == "duckdb" || dbType == "sqlite"
}

func defaultDatabaseFor(dbType string) string {
	if dbType == "sqlite" {
		return strings.TrimSuffix(DefaultDatabase, ".duckdb") + ".db"
	}
	return DefaultDatabase
}

// ValidateTarget checks that the target names a registered adapter.
func ValidateTarget(t *TargetConfig) error {
	if t == nil || t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	if t.Type == "postgres" && t.Host == "" {
		return fmt.Errorf("target.host is required for postgres")
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := ValidateTarget(c.Target); err != nil {
		return fmt.Errorf("invalid target configuration: %w", err)
	}
	if err := ident.ValidateTableName(c.RawPrefix + "x"); err != nil {
		return fmt.Errorf("invalid raw_prefix %q: %w", c.RawPrefix, err)
	}
	if err := ident.ValidateTableName(c.IndicatorPrefix + "x"); err != nil {
		return fmt.Errorf("invalid indicator_prefix %q: %w", c.IndicatorPrefix, err)
	}
	if c.RawPrefix == c.IndicatorPrefix {
		return fmt.Errorf("raw_prefix and indicator_prefix must differ")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.PreviewLimit < 0 {
		return fmt.Errorf("preview_limit must not be negative, got %d", c.PreviewLimit)
	}
	if !slices.Contains(outputFormats, c.OutputFormat) {
		return fmt.Errorf("unknown output format %q (expected one of %s)", c.OutputFormat, strings.Join(outputFormats, ", "))
	}
	return nil
}
