// Package ident normalizes, validates and quotes the table and column names
// that enter leapmeta from uploaded files and interactive input.
//
// NormalizeColumn is the one place external column names are rewritten.
// Callers apply it once, where names enter the system, and pass the result
// along unchanged.
package ident

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Default table name prefixes.
const (
	DefaultRawPrefix       = "raw_"
	DefaultIndicatorPrefix = "indicator_"
)

// MaxIdentifierLength is the longest accepted table or column name, in bytes.
// PostgreSQL truncates identifiers beyond this.
const MaxIdentifierLength = 63

var (
	tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	referencePattern = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_$]*$`)

	lower     = cases.Lower(language.Und)
	title     = cases.Title(language.Und)
	separator = strings.NewReplacer(" ", "_", "-", "_", ".", "_")
)

// NormalizeColumn returns the canonical form of an external column name:
// NFC, lowercased, with spaces, hyphens and dots replaced by underscores.
// It is idempotent.
func NormalizeColumn(name string) string {
	s := norm.NFC.String(strings.TrimSpace(name))
	s = lower.String(s)
	return separator.Replace(s)
}

// NormalizeColumns normalizes a header row. It fails when a name is empty
// after normalization or two names collide.
func NormalizeColumns(names []string) ([]string, error) {
	out := make([]string, len(names))
	seen := make(map[string]string, len(names))
	for i, raw := range names {
		n := NormalizeColumn(raw)
		if err := ValidateColumnName(n); err != nil {
			return nil, err
		}
		if prev, ok := seen[n]; ok {
			return nil, core.ErrInput("columns %q and %q both normalize to %q", prev, raw, n)
		}
		seen[n] = raw
		out[i] = n
	}
	return out, nil
}

// ValidateColumnName checks a normalized column name.
func ValidateColumnName(name string) error {
	if name == "" {
		return core.ErrInput("column name cannot be empty")
	}
	if len(name) > MaxIdentifierLength {
		return core.ErrInput("column name %q exceeds maximum length of %d", name, MaxIdentifierLength)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return core.ErrInput("column name %q contains control characters", name)
		}
	}
	if core.IsManagedColumn(name) {
		return core.ErrInput("column name %q is reserved", name)
	}
	return nil
}

// ValidateTableName checks that name is lowercase, starts with a letter and
// only contains letters, digits and underscores.
func ValidateTableName(name string) error {
	if name == "" {
		return core.ErrInput("table name cannot be empty")
	}
	if len(name) > MaxIdentifierLength {
		return core.ErrInput("table name %q exceeds maximum length of %d", name, MaxIdentifierLength)
	}
	if !tableNamePattern.MatchString(name) {
		return core.ErrInput("invalid table name %q: must match %s", name, tableNamePattern.String())
	}
	return nil
}

// ValidateRawTable checks a raw ingestion table name, including its prefix.
func ValidateRawTable(name, prefix string) error {
	if err := ValidateTableName(name); err != nil {
		return err
	}
	if prefix != "" && (!strings.HasPrefix(name, prefix) || name == prefix) {
		return core.ErrInput("raw table %q must start with %q", name, prefix)
	}
	return nil
}

// ValidateReference checks a table or column name used unquoted in a query.
func ValidateReference(kind, name string) error {
	if name == "" {
		return core.ErrInput("%s name cannot be empty", kind)
	}
	if !referencePattern.MatchString(name) {
		return core.ErrInput("invalid %s name %q", kind, name)
	}
	return nil
}

// IndicatorTableName derives the target table of an indicator from its
// display name.
func IndicatorTableName(prefix, name string) (string, error) {
	n := NormalizeColumn(name)
	if n == "" {
		return "", core.ErrInput("indicator name cannot be empty")
	}
	table := prefix + n
	if err := ValidateTableName(table); err != nil {
		return "", fmt.Errorf("indicator %q: %w", name, err)
	}
	return table, nil
}

// IndicatorTitle turns an indicator table name back into a display title.
func IndicatorTitle(prefix, table string) string {
	name := strings.TrimPrefix(table, prefix)
	name = strings.ReplaceAll(name, "_", " ")
	return title.String(strings.TrimSpace(name))
}

// QuoteIdentifier wraps an identifier in double quotes, escaping embedded quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral wraps a string value in single quotes, escaping embedded quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// NewID returns a new time-ordered record identifier (UUIDv7). Sorting by
// id keeps insertion order, even for rows written in the same batch.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
