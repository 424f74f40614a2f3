// Package ingest loads tabular files into raw tables: it normalizes headers,
// infers column types, creates or widens the target table, inserts the rows
// and records lineage for each step.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/internal/schemasync"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/ddl"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/ident"
	"github.com/leapstack-labs/leapmeta/pkg/infer"
)

// Mode selects how an ingest treats the target table.
type Mode string

const (
	// ModeCreate creates a new table and fails if it already exists.
	ModeCreate Mode = "create"
	// ModeAppend adds rows to an existing table, adding missing columns first.
	ModeAppend Mode = "append"
)

// ParseMode parses a mode name. Empty means ModeCreate.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCreate:
		return ModeCreate, nil
	case ModeAppend:
		return ModeAppend, nil
	default:
		return "", core.ErrInput("unknown ingest mode %q (expected create or append)", s)
	}
}

// Options configures a Service.
type Options struct {
	// RawPrefix is the required prefix of raw table names.
	RawPrefix string
	// AuditUser is the created_by default on stores without current_user.
	AuditUser string
}

// Request describes one ingest.
type Request struct {
	Table string
	Mode  Mode
	// Source is recorded as the lineage source. Empty means "upload".
	Source string
	Data   *Dataset
}

// Result reports what an ingest did. On a partial failure the fields up to
// the failing step are filled in.
type Result struct {
	Table   string               `json:"table"`
	Mode    Mode                 `json:"mode"`
	Columns []core.Column        `json:"columns"`
	Diff    core.SchemaDiff      `json:"diff"`
	Rows    int64                `json:"rows"`
	Lineage []core.LineageRecord `json:"lineage"`
}

// Service runs ingests against one store.
type Service struct {
	store   core.Store
	sync    *schemasync.Synchronizer
	lineage *lineage.Recorder
	opts    Options
	logger  *slog.Logger
}

// NewService creates a Service. If logger is nil, a discard logger is used.
func NewService(store core.Store, d *dialect.Dialect, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.RawPrefix == "" {
		opts.RawPrefix = ident.DefaultRawPrefix
	}
	return &Service{
		store:   store,
		sync:    schemasync.New(store, d, logger, ddl.Options{AuditUser: opts.AuditUser}),
		lineage: lineage.NewRecorder(store, d, logger),
		opts:    opts,
		logger:  logger,
	}
}

// IngestFile reads path and ingests it into table. The file name is recorded
// as the lineage source.
func (s *Service) IngestFile(ctx context.Context, path, table string, mode Mode, ropts ReadOptions) (*Result, error) {
	ds, err := ReadFile(path, ropts)
	if err != nil {
		return nil, err
	}
	return s.Ingest(ctx, Request{Table: table, Mode: mode, Source: filepath.Base(path), Data: ds})
}

// Ingest loads req.Data into req.Table.
//
// Input problems are reported before anything reaches the store. If the
// table can't be created or reconciled, no rows are inserted. A lineage
// failure after a successful insert is returned together with the result;
// the insert stands.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.Mode == "" {
		req.Mode = ModeCreate
	}
	res := &Result{Table: req.Table, Mode: req.Mode, Diff: core.SchemaDiff{Table: req.Table}}

	if err := ident.ValidateRawTable(req.Table, s.opts.RawPrefix); err != nil {
		return res, err
	}
	if req.Data == nil || len(req.Data.Headers) == 0 {
		return res, core.ErrInput("dataset has no columns")
	}
	headers, err := ident.NormalizeColumns(req.Data.Headers)
	if err != nil {
		return res, err
	}
	for i, row := range req.Data.Rows {
		if len(row) > len(headers) {
			return res, core.ErrInput("row %d has %d values but there are %d columns", i+1, len(row), len(headers))
		}
	}
	res.Columns = infer.InferColumns(headers, req.Data.Rows)

	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return res, core.ErrRemote("list tables", "", "", err)
	}
	exists := slices.Contains(tables, req.Table)

	log := s.logger.With(slog.String("table", req.Table), slog.String("mode", string(req.Mode)))

	var schemaStmt string
	switch req.Mode {
	case ModeCreate:
		if exists {
			return res, core.ErrInput("table %s already exists; use append mode", req.Table)
		}
		stmts, err := s.sync.EnsureTable(ctx, req.Table, res.Columns)
		res.Diff.Statements = stmts
		if err != nil {
			return res, err
		}
		schemaStmt = strings.Join(stmts, ";\n")
		log.Info("table created", slog.Int("columns", len(res.Columns)))

	case ModeAppend:
		if !exists {
			return res, core.ErrInput("table %s does not exist; use create mode", req.Table)
		}
		diff, err := s.sync.Reconcile(ctx, req.Table, res.Columns)
		res.Diff = diff
		if err != nil {
			return res, err
		}
		schemaStmt = strings.Join(diff.Statements, ";\n")
		if !diff.Empty() {
			log.Info("table widened", slog.Int("added", len(diff.MissingColumns)))
		}

	default:
		return res, core.ErrInput("unknown ingest mode %q", req.Mode)
	}

	// The schema change is recorded before the insert so that it is logged
	// even if the insert fails.
	if schemaStmt != "" {
		rec, err := s.lineage.RecordRaw(ctx, req.Source, req.Table, int64(len(req.Data.Rows)), schemaStmt)
		if err != nil {
			return res, err
		}
		res.Lineage = append(res.Lineage, rec)
	}

	types, err := s.liveTypes(ctx, req.Table, req.Mode, res.Columns)
	if err != nil {
		return res, err
	}
	values, err := coerceRows(headers, types, req.Data.Rows)
	if err != nil {
		return res, err
	}

	if len(values) > 0 {
		n, err := s.store.InsertRows(ctx, req.Table, headers, values)
		if err != nil {
			return res, core.ErrRemote("insert rows", req.Table, ddl.InsertTemplate(req.Table, headers), err)
		}
		res.Rows = n
		log.Info("rows inserted", slog.Int64("rows", n))

		rec, err := s.lineage.RecordRaw(ctx, req.Source, req.Table, n, ddl.InsertTemplate(req.Table, headers))
		if err != nil {
			return res, fmt.Errorf("rows were inserted but lineage was not recorded: %w", err)
		}
		res.Lineage = append(res.Lineage, rec)
	}
	return res, nil
}

// liveTypes returns the type each incoming column is written as. New tables
// use the inferred types; existing tables keep the types they already have.
func (s *Service) liveTypes(ctx context.Context, table string, mode Mode, cols []core.Column) ([]core.ColumnType, error) {
	types := make([]core.ColumnType, len(cols))
	for i, c := range cols {
		types[i] = c.Type
	}
	if mode != ModeAppend {
		return types, nil
	}

	live, err := s.store.ListColumns(ctx, table)
	if err != nil {
		var conflict *core.SchemaConflictError
		if errors.As(err, &conflict) {
			return nil, err
		}
		return nil, core.ErrRemote("list columns", table, "", err)
	}
	byName := make(map[string]core.ColumnType, len(live))
	for _, c := range live {
		byName[strings.ToLower(c.Name)] = c.Type
	}
	for i, c := range cols {
		if t, ok := byName[c.Name]; ok {
			types[i] = t
		}
	}
	return types, nil
}

// coerceRows converts every value up front so that a bad value aborts the
// ingest before any row is written.
func coerceRows(headers []string, types []core.ColumnType, rows [][]string) ([][]any, error) {
	out := make([][]any, 0, len(rows))
	var errs []error
	for r, row := range rows {
		vals := make([]any, len(headers))
		for c := range headers {
			raw := ""
			if c < len(row) {
				raw = row[c]
			}
			v, err := infer.Coerce(raw, types[c])
			if err != nil {
				errs = append(errs, fmt.Errorf("row %d, column %s: %w", r+1, headers[c], err))
				if len(errs) == 10 {
					return nil, errors.Join(errs...)
				}
				continue
			}
			vals[c] = v
		}
		out = append(out, vals)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// TableForFile derives a raw table name from a file name: the base name
// without extension, normalized, with prefix added when missing.
func TableForFile(prefix, path string) (string, error) {
	if prefix == "" {
		prefix = ident.DefaultRawPrefix
	}
	base := filepath.Base(path)
	name := ident.NormalizeColumn(strings.TrimSuffix(base, filepath.Ext(base)))
	if !strings.HasPrefix(name, prefix) {
		name = prefix + name
	}
	if err := ident.ValidateRawTable(name, prefix); err != nil {
		return "", fmt.Errorf("%s: %w", base, err)
	}
	return name, nil
}
