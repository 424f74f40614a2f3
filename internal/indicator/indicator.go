// Package indicator composes, previews and saves indicators: named queries
// over the raw tables whose provenance is kept in metadata_mappings.
package indicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/internal/mapping"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/ident"
	"github.com/leapstack-labs/leapmeta/pkg/query"
)

// DefaultPrefix is the table prefix of indicator targets.
const DefaultPrefix = "indicator_"

// fallbackType is recorded when the type of a source column can't be read.
const fallbackType = "TEXT"

// Options configures a Service.
type Options struct {
	Prefix string
}

// Service builds and stores indicators against a store.
type Service struct {
	store    core.Store
	dialect  *dialect.Dialect
	prefix   string
	mappings *mapping.Store
	lineage  *lineage.Recorder
	logger   *slog.Logger
}

// Preview is the outcome of running a composed query.
type Preview struct {
	// SQL is the literal statement, as it would be saved.
	SQL    string          `json:"sql"`
	Result *core.ResultSet `json:"result"`
}

// NewService creates a Service. If logger is nil, a discard logger is used.
func NewService(store core.Store, d *dialect.Dialect, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	return &Service{
		store:    store,
		dialect:  d,
		prefix:   opts.Prefix,
		mappings: mapping.NewStore(store, d, logger),
		lineage:  lineage.NewRecorder(store, d, logger),
		logger:   logger,
	}
}

// Prefix returns the indicator table prefix.
func (s *Service) Prefix() string {
	return s.prefix
}

// Compose returns the literal SQL of spec. A spec with nothing selected is
// an InputError.
func (s *Service) Compose(spec *query.Spec) (string, error) {
	sql := query.Compile(spec)
	if sql == "" {
		return "", core.ErrInput("select at least one column")
	}
	return sql, nil
}

// Preview runs spec with its filter values bound as parameters. A positive
// limit caps the number of rows returned.
func (s *Service) Preview(ctx context.Context, spec *query.Spec, limit int) (*Preview, error) {
	literal, err := s.Compose(spec)
	if err != nil {
		return nil, err
	}

	stmt, args := query.CompileParams(spec, s.dialect)
	if limit > 0 {
		stmt += fmt.Sprintf("\nLIMIT %d", limit)
	}

	s.logger.Debug("running query", slog.String("sql", stmt), slog.Int("params", len(args)))
	rs, err := s.store.Query(ctx, stmt, args...)
	if err != nil {
		return nil, core.ErrRemote("run query", "", stmt, err)
	}
	return &Preview{SQL: literal, Result: rs}, nil
}

// Save stores spec as the indicator called name. One mapping is written per
// selected column, carrying the column's live type and nullability, and the
// creation is recorded in the lineage log. The indicator is returned even
// when only the lineage write failed.
func (s *Service) Save(ctx context.Context, name string, spec *query.Spec) (*core.Indicator, error) {
	target, err := ident.IndicatorTableName(s.prefix, name)
	if err != nil {
		return nil, err
	}
	rule, err := s.Compose(spec)
	if err != nil {
		return nil, err
	}

	existing, err := s.mappings.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if m.TargetTable == target {
			return nil, core.ErrInput("indicator %q already exists", target)
		}
	}

	live := s.sourceColumns(ctx, spec.Tables())
	var mappings []core.MetadataMapping
	for _, ref := range spec.Selected() {
		m := core.MetadataMapping{
			SourceTable:        ref.Table,
			SourceColumn:       ref.Column,
			TargetTable:        target,
			TargetColumn:       ref.Column,
			TransformationRule: rule,
			DataType:           fallbackType,
			IsNullable:         true,
		}
		if col, ok := live[ref.Table][strings.ToLower(ref.Column)]; ok {
			m.DataType = strings.ToUpper(col.DDLType())
			m.IsNullable = col.Nullable
		}
		mappings = append(mappings, m)
	}

	if err := s.mappings.SaveAll(ctx, mappings); err != nil {
		return nil, err
	}

	ind := &core.Indicator{
		TargetTable:        target,
		Title:              ident.IndicatorTitle(s.prefix, target),
		TransformationRule: rule,
		Mappings:           mappings,
	}
	if _, err := s.lineage.RecordIndicator(ctx, *ind); err != nil {
		return ind, fmt.Errorf("indicator was saved but lineage was not recorded: %w", err)
	}

	s.logger.Info("indicator saved", slog.String("target", target), slog.Int("columns", len(mappings)))
	return ind, nil
}

// sourceColumns reads the live columns of each table, keyed by lowercase
// column name. Tables whose schema can't be read are skipped.
func (s *Service) sourceColumns(ctx context.Context, tables []string) map[string]map[string]core.Column {
	out := make(map[string]map[string]core.Column, len(tables))
	for _, t := range tables {
		cols, err := s.store.ListColumns(ctx, t)
		if err != nil {
			s.logger.Debug("column types unavailable", slog.String("table", t), slog.String("error", err.Error()))
			continue
		}
		byName := make(map[string]core.Column, len(cols))
		for _, c := range cols {
			byName[strings.ToLower(c.Name)] = c
		}
		out[t] = byName
	}
	return out
}

// List returns the saved indicators. Indicators with inconsistent mappings
// are left out and reported in the returned error.
func (s *Service) List(ctx context.Context) ([]core.Indicator, error) {
	return s.mappings.Indicators(ctx, s.prefix)
}

// Get returns the indicator named by ref, which is either its target table
// or its display name.
func (s *Service) Get(ctx context.Context, ref string) (core.Indicator, error) {
	target, err := s.Target(ref)
	if err != nil {
		return core.Indicator{}, err
	}
	return s.mappings.Indicator(ctx, s.prefix, target)
}

// Target resolves a target table or display name to the target table.
func (s *Service) Target(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, s.prefix) {
		return ref, ident.ValidateTableName(ref)
	}
	return ident.IndicatorTableName(s.prefix, ref)
}

// Run executes the stored rule of the indicator named by ref.
func (s *Service) Run(ctx context.Context, ref string, limit int) (core.Indicator, *core.ResultSet, error) {
	ind, err := s.Get(ctx, ref)
	if err != nil {
		return ind, nil, err
	}
	rs, err := s.run(ctx, ind, limit)
	return ind, rs, err
}

func (s *Service) run(ctx context.Context, ind core.Indicator, limit int) (*core.ResultSet, error) {
	stmt, err := readOnly(ind.TransformationRule)
	if err != nil {
		return nil, fmt.Errorf("indicator %s: %w", ind.TargetTable, err)
	}
	if limit > 0 {
		stmt += fmt.Sprintf("\nLIMIT %d", limit)
	}

	rs, err := s.store.Query(ctx, stmt)
	if err != nil {
		return nil, core.ErrRemote("run indicator", ind.TargetTable, stmt, err)
	}
	return rs, nil
}

// Dashboard runs every saved indicator. Indicators that fail to run are
// reported in the joined error and keep a nil result.
func (s *Service) Dashboard(ctx context.Context) ([]Panel, error) {
	inds, listErr := s.List(ctx)
	if inds == nil && listErr != nil {
		return nil, listErr
	}

	errs := []error{listErr}
	panels := make([]Panel, 0, len(inds))
	for _, ind := range inds {
		rs, err := s.run(ctx, ind, 0)
		if err != nil {
			errs = append(errs, err)
		}
		panels = append(panels, Panel{Indicator: ind, Result: rs})
	}
	return panels, errors.Join(errs...)
}

// Panel is one indicator with its current result.
type Panel struct {
	Indicator core.Indicator  `json:"indicator"`
	Result    *core.ResultSet `json:"result"`
}

// readOnly checks that a stored rule is a single SELECT statement.
func readOnly(rule string) (string, error) {
	stmt := strings.TrimSpace(rule)
	stmt = strings.TrimSuffix(stmt, ";")
	if !strings.HasPrefix(strings.ToUpper(stmt), "SELECT ") && !strings.HasPrefix(strings.ToUpper(stmt), "SELECT\n") {
		return "", core.ErrInput("stored rule is not a SELECT statement")
	}
	separator, open := scanLiterals(stmt)
	if separator {
		return "", core.ErrInput("stored rule contains more than one statement")
	}
	if open {
		return "", core.ErrInput("stored rule has an unterminated string literal")
	}
	return stmt, nil
}

// scanLiterals reports whether stmt has a ';' outside single-quoted literals
// and whether it ends inside one. A doubled quote inside a literal is an
// escaped quote.
func scanLiterals(stmt string) (separator, open bool) {
	for i := 0; i < len(stmt); i++ {
		switch stmt[i] {
		case '\'':
			if open && i+1 < len(stmt) && stmt[i+1] == '\'' {
				i++
				continue
			}
			open = !open
		case ';':
			if !open {
				return true, false
			}
		}
	}
	return false, open
}
