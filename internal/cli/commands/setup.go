package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapmeta/internal/cli/config"
	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/indicator"
	"github.com/leapstack-labs/leapmeta/internal/ingest"
	"github.com/leapstack-labs/leapmeta/internal/migrate"
	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/spf13/cobra"
)

// errNoConfig is returned when a command runs without a loaded config.
var errNoConfig = errors.New("configuration not loaded")

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    adapter.Adapter
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an open, migrated store.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc, err := NewCommandContextWithoutStore(cmd)
	if err != nil {
		return nil, nil, err
	}

	store, err := OpenStore(cmd.Context(), cc.Cfg, cc.Logger)
	if err != nil {
		return nil, nil, err
	}
	cc.Store = store

	cleanup := func() {
		if err := store.Close(); err != nil {
			cc.Logger.Warn("failed to close store", "error", err)
		}
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext without a store.
// Useful for commands that don't need database access.
func NewCommandContextWithoutStore(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, errNoConfig
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// OpenStore connects to the configured target and brings the metadata
// tables up to date. File databases get their directory created.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (adapter.Adapter, error) {
	acfg := cfg.AdapterConfig()

	if db := cfg.Target.Database; isFileTarget(cfg.Target.Type) && db != "" && db != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(db), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	adp, err := adapter.NewAdapter(acfg, logger)
	if err != nil {
		return nil, err
	}
	if err := adp.Connect(ctx, acfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s target: %w", acfg.Type, err)
	}
	if err := migrate.Up(ctx, adp, logger); err != nil {
		_ = adp.Close()
		return nil, err
	}
	return adp, nil
}

func isFileTarget(dbType string) bool {
	return dbType == "duckdb" || dbType == "sqlite"
}

// ingestService builds the ingest service for the command's store.
func (cc *CommandContext) ingestService() *ingest.Service {
	return ingest.NewService(cc.Store, cc.Store.Dialect(), ingest.Options{
		RawPrefix: cc.Cfg.RawPrefix,
		AuditUser: cc.Cfg.AuditUser,
	}, cc.Logger)
}

// indicatorService builds the indicator service for the command's store.
func (cc *CommandContext) indicatorService() *indicator.Service {
	return indicator.NewService(cc.Store, cc.Store.Dialect(), indicator.Options{
		Prefix: cc.Cfg.IndicatorPrefix,
	}, cc.Logger)
}

// warn prints each message of a joined error as a warning.
func warn(r *output.Renderer, err error) {
	if err == nil {
		return
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			r.Warning(e.Error())
		}
		return
	}
	r.Warning(err.Error())
}
