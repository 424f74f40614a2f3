// Package ddl builds the DDL and DML statements leapmeta sends to a store.
// Builders are pure: they validate their input and return statement text.
package ddl

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/ident"
)

// DefaultAuditUser is written to created_by on stores without current_user.
const DefaultAuditUser = "leapmeta"

// Options tunes statement generation.
type Options struct {
	// AuditUser is the literal created_by default used when the dialect
	// has no current-user expression.
	AuditUser string
}

// CreateTable returns the statements that create table if it doesn't exist,
// with a surrogate key, the given columns and the four audit columns.
// Most dialects need a single statement; DuckDB also creates the key sequence.
func CreateTable(d *dialect.Dialect, table string, columns []core.Column, opts Options) ([]string, error) {
	if d == nil {
		return nil, dialect.ErrDialectRequired
	}
	if err := ident.ValidateTableName(table); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, core.ErrInput("table %s needs at least one column", table)
	}

	var stmts []string
	defs := make([]string, 0, len(columns)+5)

	switch d.Key {
	case dialect.KeySequence:
		seq := table + "_id_seq"
		stmts = append(stmts, fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s", seq))
		defs = append(defs, fmt.Sprintf("%s BIGINT PRIMARY KEY DEFAULT nextval(%s)", core.KeyColumn, ident.QuoteLiteral(seq)))
	case dialect.KeyAutoincrement:
		defs = append(defs, core.KeyColumn+" INTEGER PRIMARY KEY AUTOINCREMENT")
	default:
		defs = append(defs, core.KeyColumn+" SERIAL PRIMARY KEY")
	}

	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if err := ident.ValidateColumnName(c.Name); err != nil {
			return nil, err
		}
		if _, dup := seen[c.Name]; dup {
			return nil, core.ErrInput("duplicate column %q in table %s", c.Name, table)
		}
		seen[c.Name] = struct{}{}
		defs = append(defs, fmt.Sprintf("%s %s", d.QuoteIdentifier(c.Name), c.DDLType()))
	}

	user := d.CurrentUser
	if user == "" {
		audit := opts.AuditUser
		if audit == "" {
			audit = DefaultAuditUser
		}
		user = ident.QuoteLiteral(audit)
	}
	defs = append(defs,
		fmt.Sprintf("%s text DEFAULT %s", core.CreatedByColumn, user),
		fmt.Sprintf("%s %s DEFAULT current_timestamp", core.CreatedAtColumn, d.TimestampType),
		fmt.Sprintf("%s text DEFAULT %s", core.ModifiedByColumn, user),
		fmt.Sprintf("%s %s DEFAULT current_timestamp", core.ModifiedAtColumn, d.TimestampType),
	)

	stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", ")))
	return stmts, nil
}

// AddColumn returns ALTER TABLE <table> ADD COLUMN [IF NOT EXISTS] "<col>" <type>.
func AddColumn(d *dialect.Dialect, table string, col core.Column) (string, error) {
	if d == nil {
		return "", dialect.ErrDialectRequired
	}
	if err := ident.ValidateTableName(table); err != nil {
		return "", err
	}
	if err := ident.ValidateColumnName(col.Name); err != nil {
		return "", err
	}
	ifNotExists := ""
	if d.AddColumnIfNotExists {
		ifNotExists = "IF NOT EXISTS "
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s%s %s", table, ifNotExists, d.QuoteIdentifier(col.Name), col.DDLType()), nil
}

// Insert returns a multi-row INSERT with dialect placeholders for rows rows.
func Insert(d *dialect.Dialect, table string, columns []string, rows int) (string, error) {
	if d == nil {
		return "", dialect.ErrDialectRequired
	}
	if len(columns) == 0 {
		return "", core.ErrInput("insert into %s needs at least one column", table)
	}
	if rows < 1 {
		return "", core.ErrInput("insert into %s needs at least one row", table)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", d.QuoteIdentifier(table), strings.Join(quoted, ", "))
	n := len(columns)
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		b.WriteString(d.Placeholders(r*n+1, n))
		b.WriteString(")")
	}
	return b.String(), nil
}

// InsertTemplate returns the statement shape recorded in lineage for a bulk
// insert: INSERT INTO <table> (<cols>) VALUES (...).
func InsertTemplate(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (...)", table, strings.Join(columns, ", "))
}
