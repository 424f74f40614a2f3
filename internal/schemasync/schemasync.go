// Package schemasync keeps a store's tables in step with incoming datasets.
// It creates tables and adds missing columns; it never drops, renames or
// retypes anything.
package schemasync

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/ddl"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/ident"
)

// Synchronizer issues schema DDL against a store.
type Synchronizer struct {
	store   core.Store
	dialect *dialect.Dialect
	logger  *slog.Logger
	opts    ddl.Options
}

// New creates a Synchronizer. If logger is nil, a discard logger is used.
func New(store core.Store, d *dialect.Dialect, logger *slog.Logger, opts ddl.Options) *Synchronizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Synchronizer{store: store, dialect: d, logger: logger, opts: opts}
}

// EnsureTable creates table with the surrogate key, the given columns and the
// audit columns if it doesn't exist yet. Re-running it is a no-op.
// The returned statements are the ones that were executed.
func (s *Synchronizer) EnsureTable(ctx context.Context, table string, columns []core.Column) ([]string, error) {
	cols, err := normalize(columns)
	if err != nil {
		return nil, err
	}
	stmts, err := ddl.CreateTable(s.dialect, table, cols, s.opts)
	if err != nil {
		return nil, err
	}

	for i, stmt := range stmts {
		s.logger.Debug("ensuring table", slog.String("table", table), slog.String("sql", stmt))
		if err := s.store.Exec(ctx, stmt); err != nil {
			return stmts[:i], core.ErrRemote("create table", table, stmt, err)
		}
	}
	return stmts, nil
}

// Reconcile adds to table every column of columns that the live table lacks.
// Names match case-insensitively on either the supplied or the normalized
// form. If the live column list can't be read, no DDL is issued and the diff
// is empty. An ADD COLUMN failure stops the run; the diff then lists the
// missing columns and the statements that did succeed.
func (s *Synchronizer) Reconcile(ctx context.Context, table string, columns []core.Column) (core.SchemaDiff, error) {
	diff := core.SchemaDiff{Table: table}
	if err := ident.ValidateTableName(table); err != nil {
		return diff, err
	}
	cols, err := normalize(columns)
	if err != nil {
		return diff, err
	}

	live, err := s.store.ListColumns(ctx, table)
	if err != nil {
		var conflict *core.SchemaConflictError
		if errors.As(err, &conflict) {
			return diff, err
		}
		return diff, core.ErrRemote("list columns", table, "", err)
	}
	if len(live) == 0 {
		return diff, &core.SchemaConflictError{Table: table, Raw: "no columns returned"}
	}

	known := make(map[string]struct{}, len(live))
	for _, c := range live {
		known[strings.ToLower(c.Name)] = struct{}{}
	}

	for i, c := range cols {
		if _, ok := known[strings.ToLower(columns[i].Name)]; ok {
			continue
		}
		if _, ok := known[c.Name]; ok {
			continue
		}
		diff.MissingColumns = append(diff.MissingColumns, c)
	}

	for _, c := range diff.MissingColumns {
		stmt, err := ddl.AddColumn(s.dialect, table, c)
		if err != nil {
			return diff, err
		}
		s.logger.Info("adding column", slog.String("table", table), slog.String("column", c.Name), slog.String("type", c.DDLType()))
		if err := s.store.Exec(ctx, stmt); err != nil {
			return diff, core.ErrRemote("add column", table, stmt, err)
		}
		diff.Statements = append(diff.Statements, stmt)
	}
	return diff, nil
}

// EnsureAndReconcile runs EnsureTable and then Reconcile. Statements from both
// steps are reported in the diff.
func (s *Synchronizer) EnsureAndReconcile(ctx context.Context, table string, columns []core.Column) (core.SchemaDiff, error) {
	created, err := s.EnsureTable(ctx, table, columns)
	if err != nil {
		return core.SchemaDiff{Table: table, Statements: created}, err
	}
	diff, err := s.Reconcile(ctx, table, columns)
	diff.Statements = append(created, diff.Statements...)
	return diff, err
}

// normalize returns a copy of columns with normalized names.
func normalize(columns []core.Column) ([]core.Column, error) {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	normalized, err := ident.NormalizeColumns(names)
	if err != nil {
		return nil, err
	}
	out := make([]core.Column, len(columns))
	for i, c := range columns {
		c.Name = normalized[i]
		out[i] = c
	}
	return out, nil
}
