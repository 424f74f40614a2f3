package core

import "strings"

// ColumnType is the logical type inferred for a column.
type ColumnType string

// Logical column types. Anything that isn't integer, float or boolean is text.
const (
	TypeInteger ColumnType = "integer"
	TypeFloat   ColumnType = "float"
	TypeBoolean ColumnType = "boolean"
	TypeText    ColumnType = "text"
)

// SQLType returns the column type used in generated DDL.
func (t ColumnType) SQLType() string {
	switch t {
	case TypeInteger:
		return "bigint"
	case TypeFloat:
		return "double precision"
	case TypeBoolean:
		return "boolean"
	default:
		return "text"
	}
}

// ParseColumnType maps a type name reported by a store back to a logical type.
// Unknown names map to TypeText.
func ParseColumnType(sqlType string) ColumnType {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "integer", "bigint", "int", "int2", "int4", "int8", "smallint", "tinyint", "hugeint", "serial", "bigserial":
		return TypeInteger
	case "float", "double", "double precision", "real", "float4", "float8", "numeric", "decimal":
		return TypeFloat
	case "boolean", "bool":
		return TypeBoolean
	default:
		return TypeText
	}
}

// Column describes one column of a table.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool

	// SQLType is the type name as reported by the store, if known.
	SQLType  string
	Position int
}

// DDLType returns the declared store type, falling back to the logical type mapping.
func (c Column) DDLType() string {
	if c.SQLType != "" {
		return c.SQLType
	}
	return c.Type.SQLType()
}

// TableSchema is a table name with its ordered user columns.
// Audit columns and the surrogate key are implicit and not listed.
type TableSchema struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in order.
func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Audit and key columns added to every table created by the synchronizer.
const (
	KeyColumn        = "id"
	CreatedByColumn  = "created_by"
	CreatedAtColumn  = "created_at"
	ModifiedByColumn = "modified_by"
	ModifiedAtColumn = "modified_at"
)

// IsManagedColumn reports whether name is the surrogate key or an audit column.
func IsManagedColumn(name string) bool {
	switch strings.ToLower(name) {
	case KeyColumn, CreatedByColumn, CreatedAtColumn, ModifiedByColumn, ModifiedAtColumn:
		return true
	}
	return false
}

// SchemaDiff lists the columns a table lacks relative to a dataset.
// Reconciliation only ever adds columns.
type SchemaDiff struct {
	Table          string
	MissingColumns []Column

	// Statements are the DDL statements that were executed, in order.
	Statements []string
}

// Empty reports whether no columns are missing.
func (d SchemaDiff) Empty() bool {
	return len(d.MissingColumns) == 0
}
