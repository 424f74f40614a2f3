// Package query models an indicator query as an immutable Spec and compiles
// it to SQL.
//
// A Spec is produced by a caller-owned Builder, which validates every name
// and the join precondition. Compile renders the literal SQL stored as an
// indicator's transformation rule. CompileParams renders the same statement
// with filter values bound as parameters and is the path used to execute.
package query

import (
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// JoinType is the kind of join between two source tables.
type JoinType string

// Supported join types.
const (
	InnerJoin JoinType = "INNER"
	LeftJoin  JoinType = "LEFT"
	RightJoin JoinType = "RIGHT"
	FullJoin  JoinType = "FULL"
)

// Keyword returns the SQL keyword sequence, e.g. "INNER JOIN".
func (j JoinType) Keyword() string {
	return string(j) + " JOIN"
}

// ParseJoinType accepts "inner", "INNER JOIN", "full outer join" and similar.
func ParseJoinType(s string) (JoinType, error) {
	norm := strings.ToUpper(strings.Join(strings.Fields(s), " "))
	norm = strings.TrimSuffix(norm, " JOIN")
	norm = strings.TrimSuffix(norm, " OUTER")
	switch JoinType(norm) {
	case InnerJoin, LeftJoin, RightJoin, FullJoin:
		return JoinType(norm), nil
	}
	return "", core.ErrInput("unsupported join type %q", s)
}

// Operator is a filter comparison operator.
type Operator string

// Supported operators.
const (
	OpEq    Operator = "="
	OpGt    Operator = ">"
	OpLt    Operator = "<"
	OpGte   Operator = ">="
	OpLte   Operator = "<="
	OpLike  Operator = "LIKE"
	OpIn    Operator = "IN"
	OpNotIn Operator = "NOT IN"
)

// Operators lists the supported operators in display order.
var Operators = []Operator{OpEq, OpGt, OpLt, OpGte, OpLte, OpLike, OpIn, OpNotIn}

// ParseOperator accepts the operators case-insensitively.
func ParseOperator(s string) (Operator, error) {
	norm := Operator(strings.ToUpper(strings.Join(strings.Fields(s), " ")))
	for _, op := range Operators {
		if norm == op {
			return op, nil
		}
	}
	return "", core.ErrInput("unsupported operator %q", s)
}

// isList reports whether the operator takes a parenthesized value list.
func (o Operator) isList() bool {
	return o == OpIn || o == OpNotIn
}

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection accepts "asc" and "desc" case-insensitively. Empty means ASC.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case "", Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", core.ErrInput("unsupported sort direction %q", s)
}

// Join joins RightTable to the query on LeftTable.LeftColumn = RightTable.RightColumn.
type Join struct {
	Type        JoinType `json:"type" yaml:"type"`
	LeftTable   string   `json:"left_table" yaml:"left_table"`
	LeftColumn  string   `json:"left_column" yaml:"left_column"`
	RightTable  string   `json:"right_table" yaml:"right_table"`
	RightColumn string   `json:"right_column" yaml:"right_column"`
}

// Filter restricts rows with Table.Column <Operator> Value.
// IN and NOT IN values are caller-formatted lists such as 'BR','AR'.
type Filter struct {
	Table    string   `json:"table" yaml:"table"`
	Column   string   `json:"column" yaml:"column"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    string   `json:"value" yaml:"value"`
}

// Order sorts by Table.Column.
type Order struct {
	Table     string    `json:"table" yaml:"table"`
	Column    string    `json:"column" yaml:"column"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// ColumnRef names one selected column.
type ColumnRef struct {
	Table  string
	Column string
}

// String returns table.column.
func (c ColumnRef) String() string {
	return c.Table + "." + c.Column
}
