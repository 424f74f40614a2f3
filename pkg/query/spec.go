package query

import (
	"slices"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/ident"
)

// Spec is an immutable, validated query specification.
// The zero value selects nothing and compiles to the empty string.
type Spec struct {
	tables  []string
	columns map[string][]string
	joins   []Join
	filters []Filter
	orders  []Order
}

// Tables returns the source tables in order. The first one anchors FROM.
func (s *Spec) Tables() []string {
	return append([]string(nil), s.tables...)
}

// Columns returns the selected columns of table in order.
func (s *Spec) Columns(table string) []string {
	return append([]string(nil), s.columns[table]...)
}

// Selected returns every selected column in SELECT order.
func (s *Spec) Selected() []ColumnRef {
	var refs []ColumnRef
	for _, t := range s.tables {
		for _, c := range s.columns[t] {
			refs = append(refs, ColumnRef{Table: t, Column: c})
		}
	}
	return refs
}

// Joins returns the joins in order.
func (s *Spec) Joins() []Join {
	return append([]Join(nil), s.joins...)
}

// Filters returns the filters in order.
func (s *Spec) Filters() []Filter {
	return append([]Filter(nil), s.filters...)
}

// Orders returns the sort keys in order.
func (s *Spec) Orders() []Order {
	return append([]Order(nil), s.orders...)
}

// Definition returns a serializable copy of the spec.
func (s *Spec) Definition() Definition {
	def := Definition{
		Tables:  s.Tables(),
		Columns: make(map[string][]string, len(s.columns)),
		Joins:   s.Joins(),
		Filters: s.Filters(),
		Orders:  s.Orders(),
	}
	for t, cols := range s.columns {
		def.Columns[t] = append([]string(nil), cols...)
	}
	return def
}

// Definition is the plain-data form of a Spec, used for files and the HTTP API.
type Definition struct {
	Tables  []string            `json:"tables" yaml:"tables"`
	Columns map[string][]string `json:"columns" yaml:"columns"`
	Joins   []Join              `json:"joins,omitempty" yaml:"joins,omitempty"`
	Filters []Filter            `json:"filters,omitempty" yaml:"filters,omitempty"`
	Orders  []Order             `json:"orders,omitempty" yaml:"orders,omitempty"`
}

// Build validates the definition and returns a Spec.
func (d Definition) Build() (*Spec, error) {
	b := NewBuilder().From(d.Tables...)
	for _, t := range d.Tables {
		b.Select(t, d.Columns[t]...)
	}
	for t := range d.Columns {
		if !slices.Contains(d.Tables, t) && len(d.Columns[t]) > 0 {
			return nil, core.ErrInput("columns selected from %s, which is not a source table", t)
		}
	}
	for _, j := range d.Joins {
		b.Join(j.Type, j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn)
	}
	for _, f := range d.Filters {
		b.Where(f.Table, f.Column, f.Operator, f.Value)
	}
	for _, o := range d.Orders {
		b.OrderBy(o.Table, o.Column, o.Direction)
	}
	return b.Build()
}

// Builder accumulates a query specification. It is owned by one caller and
// is not safe for concurrent use. Build returns an independent Spec, so the
// builder may keep changing afterwards.
type Builder struct {
	tables  []string
	columns map[string][]string
	joins   []Join
	filters []Filter
	orders  []Order
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{columns: make(map[string][]string)}
}

// From appends source tables. The first source table anchors FROM.
// Tables already present are ignored.
func (b *Builder) From(tables ...string) *Builder {
	for _, t := range tables {
		if !slices.Contains(b.tables, t) {
			b.tables = append(b.tables, t)
		}
	}
	return b
}

// Select appends columns of table to the projection. Columns already
// selected are ignored.
func (b *Builder) Select(table string, columns ...string) *Builder {
	for _, c := range columns {
		if !slices.Contains(b.columns[table], c) {
			b.columns[table] = append(b.columns[table], c)
		}
	}
	return b
}

// Deselect removes columns of table from the projection.
func (b *Builder) Deselect(table string, columns ...string) *Builder {
	var kept []string
	for _, c := range b.columns[table] {
		if !slices.Contains(columns, c) {
			kept = append(kept, c)
		}
	}
	b.columns[table] = kept
	return b
}

// Join appends a join.
func (b *Builder) Join(typ JoinType, leftTable, leftColumn, rightTable, rightColumn string) *Builder {
	b.joins = append(b.joins, Join{
		Type:        typ,
		LeftTable:   leftTable,
		LeftColumn:  leftColumn,
		RightTable:  rightTable,
		RightColumn: rightColumn,
	})
	return b
}

// Where appends a filter. Filters are combined with AND.
func (b *Builder) Where(table, column string, op Operator, value string) *Builder {
	b.filters = append(b.filters, Filter{Table: table, Column: column, Operator: op, Value: value})
	return b
}

// OrderBy appends a sort key.
func (b *Builder) OrderBy(table, column string, dir Direction) *Builder {
	b.orders = append(b.orders, Order{Table: table, Column: column, Direction: dir})
	return b
}

// Reset clears joins, filters and orders, keeping tables and columns.
func (b *Builder) Reset() *Builder {
	b.joins = nil
	b.filters = nil
	b.orders = nil
	return b
}

// Build validates the accumulated specification and returns an immutable copy.
func (b *Builder) Build() (*Spec, error) {
	if len(b.tables) == 0 {
		return nil, core.ErrInput("query needs at least one source table")
	}
	for _, t := range b.tables {
		if err := ident.ValidateReference("table", t); err != nil {
			return nil, err
		}
	}

	spec := &Spec{
		tables:  append([]string(nil), b.tables...),
		columns: make(map[string][]string, len(b.columns)),
	}

	for t, cols := range b.columns {
		if len(cols) == 0 {
			continue
		}
		if !slices.Contains(b.tables, t) {
			return nil, core.ErrInput("columns selected from %s, which is not a source table", t)
		}
		for _, c := range cols {
			if err := ident.ValidateReference("column", c); err != nil {
				return nil, err
			}
		}
		spec.columns[t] = append([]string(nil), cols...)
	}

	for i, j := range b.joins {
		typ, err := ParseJoinType(string(j.Type))
		if err != nil {
			return nil, err
		}
		j.Type = typ
		if !slices.Contains(b.tables, j.LeftTable) || !slices.Contains(b.tables, j.RightTable) {
			return nil, core.ErrInput("join %d: tables %s and %s must both be source tables", i+1, j.LeftTable, j.RightTable)
		}
		if err := validateRefs(j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn); err != nil {
			return nil, err
		}
		spec.joins = append(spec.joins, j)
	}

	for _, f := range b.filters {
		op, err := ParseOperator(string(f.Operator))
		if err != nil {
			return nil, err
		}
		f.Operator = op
		if !slices.Contains(b.tables, f.Table) {
			return nil, core.ErrInput("filter on %s.%s: %s is not a source table", f.Table, f.Column, f.Table)
		}
		if err := validateRefs(f.Table, f.Column); err != nil {
			return nil, err
		}
		if op.isList() && len(splitList(f.Value)) == 0 {
			return nil, core.ErrInput("filter on %s.%s: %s needs at least one value", f.Table, f.Column, op)
		}
		spec.filters = append(spec.filters, f)
	}

	for _, o := range b.orders {
		dir, err := ParseDirection(string(o.Direction))
		if err != nil {
			return nil, err
		}
		o.Direction = dir
		if !slices.Contains(b.tables, o.Table) {
			return nil, core.ErrInput("order by %s.%s: %s is not a source table", o.Table, o.Column, o.Table)
		}
		if err := validateRefs(o.Table, o.Column); err != nil {
			return nil, err
		}
		spec.orders = append(spec.orders, o)
	}

	return spec, nil
}

// validateRefs checks table, column pairs.
func validateRefs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := ident.ValidateReference("table", pairs[i]); err != nil {
			return err
		}
		if err := ident.ValidateReference("column", pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}
