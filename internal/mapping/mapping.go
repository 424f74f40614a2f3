// Package mapping stores the column-level provenance of saved indicators in
// the metadata_mappings table and rebuilds indicators from it.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/ident"
)

// Table is the name of the mappings table.
const Table = "metadata_mappings"

var columns = []string{
	"id", "source_table", "source_column", "target_table", "target_column",
	"transformation_rule", "data_type", "is_nullable", "created_at",
}

// Store reads and appends metadata mappings.
type Store struct {
	store   core.Store
	dialect *dialect.Dialect
	logger  *slog.Logger
}

// NewStore creates a Store. If logger is nil, a discard logger is used.
func NewStore(store core.Store, d *dialect.Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{store: store, dialect: d, logger: logger}
}

// Save appends one mapping.
func (s *Store) Save(ctx context.Context, m core.MetadataMapping) error {
	return s.SaveAll(ctx, []core.MetadataMapping{m})
}

// SaveAll appends mappings in a single insert. Every mapping is validated
// before anything is written.
func (s *Store) SaveAll(ctx context.Context, mappings []core.MetadataMapping) error {
	if len(mappings) == 0 {
		return core.ErrInput("no mappings to save")
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(mappings))
	for i, m := range mappings {
		if err := validate(m); err != nil {
			return fmt.Errorf("mapping %d: %w", i+1, err)
		}
		rows = append(rows, []any{
			ident.NewID(), m.SourceTable, m.SourceColumn, m.TargetTable, m.TargetColumn,
			m.TransformationRule, m.DataType, m.IsNullable, now,
		})
	}

	if _, err := s.store.InsertRows(ctx, Table, columns, rows); err != nil {
		return core.ErrRemote("save mappings", Table, "", err)
	}
	s.logger.Debug("mappings saved", slog.String("target", mappings[0].TargetTable), slog.Int("count", len(mappings)))
	return nil
}

func validate(m core.MetadataMapping) error {
	switch {
	case strings.TrimSpace(m.SourceTable) == "":
		return core.ErrInput("source table cannot be empty")
	case strings.TrimSpace(m.SourceColumn) == "":
		return core.ErrInput("source column cannot be empty")
	case strings.TrimSpace(m.TargetColumn) == "":
		return core.ErrInput("target column cannot be empty")
	case strings.TrimSpace(m.TransformationRule) == "":
		return core.ErrInput("transformation rule cannot be empty")
	case m.DataType == "":
		return core.ErrInput("data type cannot be empty")
	}
	return ident.ValidateTableName(m.TargetTable)
}

// LoadAll returns every mapping in insertion order.
func (s *Store) LoadAll(ctx context.Context) ([]core.MetadataMapping, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at, id", strings.Join(columns[1:8], ", "), Table)
	rs, err := s.store.Query(ctx, query)
	if err != nil {
		return nil, core.ErrRemote("load mappings", Table, query, err)
	}

	out := make([]core.MetadataMapping, 0, rs.Len())
	for _, r := range rs.Records() {
		out = append(out, core.MetadataMapping{
			SourceTable:        core.AsString(r["source_table"]),
			SourceColumn:       core.AsString(r["source_column"]),
			TargetTable:        core.AsString(r["target_table"]),
			TargetColumn:       core.AsString(r["target_column"]),
			TransformationRule: core.AsString(r["transformation_rule"]),
			DataType:           core.AsString(r["data_type"]),
			IsNullable:         core.AsBool(r["is_nullable"]),
		})
	}
	return out, nil
}

// Indicators loads every mapping and groups those whose target starts with
// prefix. See Group.
func (s *Store) Indicators(ctx context.Context, prefix string) ([]core.Indicator, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return Group(all, prefix)
}

// Indicator returns the indicator stored under target.
func (s *Store) Indicator(ctx context.Context, prefix, target string) (core.Indicator, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return core.Indicator{}, err
	}
	var own []core.MetadataMapping
	for _, m := range all {
		if m.TargetTable == target {
			own = append(own, m)
		}
	}
	if len(own) == 0 {
		return core.Indicator{}, core.ErrInput("indicator %q not found", target)
	}
	inds, err := Group(own, prefix)
	if err != nil {
		return core.Indicator{}, err
	}
	if len(inds) == 0 {
		return core.Indicator{}, core.ErrInput("indicator %q not found", target)
	}
	return inds[0], nil
}

// Group rebuilds indicators from mappings whose target table starts with
// prefix, in first-seen order. All mappings of one target must share their
// transformation rule. Targets that disagree are left out and reported as
// ConsistencyErrors alongside the consistent indicators.
func Group(mappings []core.MetadataMapping, prefix string) ([]core.Indicator, error) {
	var order []string
	groups := make(map[string][]core.MetadataMapping)
	for _, m := range mappings {
		if !strings.HasPrefix(m.TargetTable, prefix) {
			continue
		}
		if _, ok := groups[m.TargetTable]; !ok {
			order = append(order, m.TargetTable)
		}
		groups[m.TargetTable] = append(groups[m.TargetTable], m)
	}

	var errs []error
	indicators := make([]core.Indicator, 0, len(order))
	for _, target := range order {
		ms := groups[target]
		if rules := distinctRules(ms); len(rules) > 1 {
			errs = append(errs, &core.ConsistencyError{TargetTable: target, Rules: rules})
			continue
		}
		indicators = append(indicators, core.Indicator{
			TargetTable:        target,
			Title:              ident.IndicatorTitle(prefix, target),
			TransformationRule: ms[0].TransformationRule,
			Mappings:           ms,
		})
	}
	return indicators, errors.Join(errs...)
}

func distinctRules(ms []core.MetadataMapping) []string {
	var rules []string
	seen := make(map[string]struct{})
	for _, m := range ms {
		if _, ok := seen[m.TransformationRule]; ok {
			continue
		}
		seen[m.TransformationRule] = struct{}{}
		rules = append(rules, m.TransformationRule)
	}
	return rules
}
