package testutil

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

var (
	createRe = regexp.MustCompile(`^CREATE TABLE IF NOT EXISTS (\w+) \((.*)\)$`)
	alterRe  = regexp.MustCompile(`^ALTER TABLE (\w+) ADD COLUMN (?:IF NOT EXISTS )?"([^"]+)" (.+)$`)
	fromRe   = regexp.MustCompile(`(?i)\bFROM\s+"?(\w+)"?`)
)

// FakeStore is an in-memory core.Store for tests. It understands the CREATE
// TABLE and ADD COLUMN statements produced by pkg/ddl, keeps inserted rows per
// table, and answers queries by returning every row of the first table named
// after FROM. Hooks override any of that.
type FakeStore struct {
	mu sync.Mutex

	tables map[string][]core.Column
	rows   map[string][]map[string]any
	order  map[string][]string

	// Statements holds every statement passed to Exec, in order.
	Statements []string

	// ExecErr, when set, is consulted before each Exec.
	ExecErr func(stmt string) error
	// ListColumnsErr forces ListColumns to fail for a table.
	ListColumnsErr map[string]error
	// InsertErr forces InsertRows to fail for a table.
	InsertErr map[string]error
	// QueryFunc, when set, answers every Query.
	QueryFunc func(sql string, args []any) (*core.ResultSet, error)
	// QueryLog holds every query passed to Query along with its arguments.
	QueryLog []Call
}

// Call is one recorded Query invocation.
type Call struct {
	SQL  string
	Args []any
}

// NewFakeStore returns an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		tables:         make(map[string][]core.Column),
		rows:           make(map[string][]map[string]any),
		order:          make(map[string][]string),
		ListColumnsErr: make(map[string]error),
		InsertErr:      make(map[string]error),
	}
}

// AddTable registers a live table with the given column names, typed as text.
func (s *FakeStore) AddTable(name string, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols := make([]core.Column, len(columns))
	for i, c := range columns {
		cols[i] = core.Column{Name: c, Type: core.TypeText, SQLType: "text", Nullable: true, Position: i + 1}
	}
	s.tables[name] = cols
}

// SetColumns replaces a table's live columns.
func (s *FakeStore) SetColumns(name string, cols []core.Column) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = slices.Clone(cols)
}

// Rows returns a copy of the rows inserted into table.
func (s *FakeStore) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows[table])
}

// Exec records stmt and applies CREATE TABLE / ADD COLUMN statements.
func (s *FakeStore) Exec(_ context.Context, stmt string, _ ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Statements = append(s.Statements, stmt)
	if s.ExecErr != nil {
		if err := s.ExecErr(stmt); err != nil {
			return err
		}
	}

	if m := createRe.FindStringSubmatch(stmt); m != nil {
		if _, ok := s.tables[m[1]]; ok {
			return nil
		}
		var cols []core.Column
		for i, def := range strings.Split(m[2], ", ") {
			name, typ, _ := strings.Cut(def, " ")
			typ, _, _ = strings.Cut(typ, " ")
			cols = append(cols, core.Column{
				Name:     strings.Trim(name, `"`),
				SQLType:  typ,
				Type:     core.ParseColumnType(typ),
				Nullable: true,
				Position: i + 1,
			})
		}
		s.tables[m[1]] = cols
		return nil
	}

	if m := alterRe.FindStringSubmatch(stmt); m != nil {
		cols, ok := s.tables[m[1]]
		if !ok {
			return fmt.Errorf("relation %q does not exist", m[1])
		}
		for _, c := range cols {
			if c.Name == m[2] {
				if strings.Contains(stmt, "IF NOT EXISTS") {
					return nil
				}
				return fmt.Errorf("column %q of relation %q already exists", m[2], m[1])
			}
		}
		s.tables[m[1]] = append(cols, core.Column{
			Name:     m[2],
			SQLType:  m[3],
			Type:     core.ParseColumnType(m[3]),
			Nullable: true,
			Position: len(cols) + 1,
		})
	}
	return nil
}

// Query answers with QueryFunc, or with every row of the table named after FROM.
func (s *FakeStore) Query(_ context.Context, sql string, args ...any) (*core.ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueryLog = append(s.QueryLog, Call{SQL: sql, Args: args})
	if s.QueryFunc != nil {
		return s.QueryFunc(sql, args)
	}

	m := fromRe.FindStringSubmatch(sql)
	if m == nil {
		return &core.ResultSet{}, nil
	}
	table := m[1]
	if _, ok := s.tables[table]; !ok {
		return nil, fmt.Errorf("relation %q does not exist", table)
	}

	cols := s.order[table]
	rs := &core.ResultSet{Columns: slices.Clone(cols)}
	for _, row := range s.rows[table] {
		vals := make([]any, len(cols))
		for i, c := range cols {
			vals[i] = row[c]
		}
		rs.Rows = append(rs.Rows, vals)
	}
	return rs, nil
}

// ListColumns returns the live columns of table.
func (s *FakeStore) ListColumns(_ context.Context, table string) ([]core.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ListColumnsErr[table]; err != nil {
		return nil, err
	}
	cols, ok := s.tables[table]
	if !ok {
		return nil, &core.SchemaConflictError{Table: table, Raw: "no columns returned"}
	}
	return slices.Clone(cols), nil
}

// InsertRows appends rows to table.
func (s *FakeStore) InsertRows(_ context.Context, table string, columns []string, rows [][]any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.InsertErr[table]; err != nil {
		return 0, err
	}
	if _, ok := s.tables[table]; !ok {
		return 0, fmt.Errorf("relation %q does not exist", table)
	}
	for _, c := range columns {
		if !slices.Contains(s.order[table], c) {
			s.order[table] = append(s.order[table], c)
		}
	}
	for _, r := range rows {
		if len(r) != len(columns) {
			return 0, fmt.Errorf("row has %d values, expected %d", len(r), len(columns))
		}
		rec := make(map[string]any, len(columns))
		for i, c := range columns {
			rec[c] = r[i]
		}
		s.rows[table] = append(s.rows[table], rec)
	}
	return int64(len(rows)), nil
}

// ListTables returns the registered tables, sorted.
func (s *FakeStore) ListTables(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

var _ core.Store = (*FakeStore)(nil)
