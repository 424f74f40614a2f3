// Package infer maps observed column values to logical column types and
// coerces raw values into the Go types written to the store.
package infer

import (
	"math"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// missingValues are the tokens treated as an absent value.
var missingValues = map[string]struct{}{
	"":     {},
	"null": {},
	"nan":  {},
	"none": {},
	"na":   {},
	"n/a":  {},
}

// IsMissing reports whether v represents an absent value.
func IsMissing(v string) bool {
	_, ok := missingValues[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// InferType returns the logical type of a column from its observed values.
// Missing values are skipped. Integer is preferred over float, boolean only
// matches the literals true and false, and anything else (including a column
// with no values at all) is text.
func InferType(values []string) core.ColumnType {
	var seen bool
	allInt := true
	allFloat := true
	allBool := true

	for _, raw := range values {
		if IsMissing(raw) {
			continue
		}
		v := strings.TrimSpace(raw)
		seen = true

		if allInt {
			if _, ok := parseInt(v); !ok {
				allInt = false
			}
		}
		if allFloat {
			if _, ok := parseFloat(v); !ok {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(v); !ok {
				allBool = false
			}
		}
		if !allInt && !allFloat && !allBool {
			return core.TypeText
		}
	}

	switch {
	case !seen:
		return core.TypeText
	case allInt:
		return core.TypeInteger
	case allFloat:
		return core.TypeFloat
	case allBool:
		return core.TypeBoolean
	default:
		return core.TypeText
	}
}

// InferColumns infers one column per header from row-major values.
// Short rows are treated as missing trailing values.
func InferColumns(headers []string, rows [][]string) []core.Column {
	cols := make([]core.Column, len(headers))
	values := make([]string, len(rows))
	for i, name := range headers {
		nullable := false
		for r, row := range rows {
			if i < len(row) {
				values[r] = row[i]
			} else {
				values[r] = ""
			}
			if IsMissing(values[r]) {
				nullable = true
			}
		}
		cols[i] = core.Column{
			Name:     name,
			Type:     InferType(values),
			Nullable: nullable || len(rows) == 0,
			Position: i + 1,
		}
	}
	return cols
}

// Coerce converts a raw value to the Go value written for a column of type t.
// Missing values become nil.
func Coerce(raw string, t core.ColumnType) (any, error) {
	if IsMissing(raw) {
		return nil, nil
	}
	v := strings.TrimSpace(raw)
	switch t {
	case core.TypeInteger:
		if n, ok := parseInt(v); ok {
			return n, nil
		}
		// Whole floats such as "3.0" still fit an integer column.
		if f, ok := parseFloat(v); ok && f == float64(int64(f)) {
			return int64(f), nil
		}
		return nil, core.ErrInput("value %q is not an integer", raw)
	case core.TypeFloat:
		if f, ok := parseFloat(v); ok {
			return f, nil
		}
		return nil, core.ErrInput("value %q is not a number", raw)
	case core.TypeBoolean:
		if b, ok := parseBool(v); ok {
			return b, nil
		}
		return nil, core.ErrInput("value %q is not a boolean", raw)
	default:
		return raw, nil
	}
}

func parseInt(v string) (int64, bool) {
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

func parseFloat(v string) (float64, bool) {
	// strconv accepts hex floats, which stores do not.
	if strings.ContainsAny(v, "xX_") {
		return 0, false
	}
	// Whole numbers past int64 would lose digits as a double.
	if isWholeNumber(v) {
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// isWholeNumber reports whether v is an optional sign followed by digits.
func isWholeNumber(v string) bool {
	v = strings.TrimLeft(v, "+-")
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
