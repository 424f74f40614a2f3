// Package migrate creates and upgrades the metadata tables leapmeta keeps in
// the target store: data_lineage and metadata_mappings.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

//go:embed duckdb.sql
var duckdbSchema string

// ErrNoDB is returned when the adapter doesn't expose a database/sql pool.
var ErrNoDB = errors.New("adapter does not expose a database connection")

// dbProvider is implemented by adapters embedding adapter.BaseSQLAdapter.
type dbProvider interface {
	SQLDB() *sql.DB
}

// gooseDialects maps adapter names to goose dialects. DuckDB is absent:
// goose has no DuckDB dialect, so its schema is applied directly.
var gooseDialects = map[string]string{
	"postgres": "postgres",
	"sqlite":   "sqlite3",
}

// Up brings the metadata tables up to date.
func Up(ctx context.Context, adp adapter.Adapter, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	name := adp.Dialect().GetName()

	if name == "duckdb" {
		logger.Debug("applying embedded metadata schema", slog.String("dialect", name))
		for _, stmt := range splitStatements(duckdbSchema) {
			if err := adp.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply metadata schema: %w", err)
			}
		}
		return nil
	}

	db, dir, err := prepare(adp)
	if err != nil {
		return err
	}
	goose.SetLogger(&gooseLogger{logger: logger})

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version returns the current migration version. DuckDB stores report 0.
func Version(ctx context.Context, adp adapter.Adapter) (int64, error) {
	if adp.Dialect().GetName() == "duckdb" {
		return 0, nil
	}
	db, _, err := prepare(adp)
	if err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

func prepare(adp adapter.Adapter) (*sql.DB, string, error) {
	name := adp.Dialect().GetName()
	gd, ok := gooseDialects[name]
	if !ok {
		return nil, "", fmt.Errorf("no migrations for dialect %q", name)
	}

	p, ok := adp.(dbProvider)
	if !ok || p.SQLDB() == nil {
		return nil, "", ErrNoDB
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(gd); err != nil {
		return nil, "", fmt.Errorf("failed to set dialect: %w", err)
	}
	return p.SQLDB(), "migrations/" + name, nil
}

// splitStatements splits a schema script on semicolons. The embedded
// schema has no semicolons inside literals.
func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

type gooseLogger struct {
	logger *slog.Logger
}

func (l *gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
