package dialect

import (
	"testing"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPlaceholder(t *testing.T) {
	dollar := NewDialect("d").PlaceholderStyle(core.PlaceholderDollar).Build()
	question := NewDialect("q").Build()

	tests := []struct {
		name  string
		d     *Dialect
		index int
		want  string
	}{
		{"dollar first", dollar, 1, "$1"},
		{"dollar tenth", dollar, 10, "$10"},
		{"question", question, 1, "?"},
		{"question any index", question, 7, "?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.FormatPlaceholder(tt.index))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	dollar := NewDialect("d").PlaceholderStyle(core.PlaceholderDollar).Build()
	assert.Equal(t, "$4, $5, $6", dollar.Placeholders(4, 3))
	assert.Equal(t, "?, ?", NewDialect("q").Build().Placeholders(1, 2))
}

func TestQuoteIdentifier(t *testing.T) {
	d := NewDialect("q").Build()
	assert.Equal(t, `"name"`, d.QuoteIdentifier("name"))
	assert.Equal(t, `"we""ird"`, d.QuoteIdentifier(`we"ird`))
}

func TestBuilderDefaults(t *testing.T) {
	d := NewDialect("x").Build()
	assert.Equal(t, "x", d.GetName())
	assert.Equal(t, "main", d.DefaultSchema)
	assert.Equal(t, KeySerial, d.Key)
	assert.True(t, d.AddColumnIfNotExists)
	assert.Empty(t, d.CurrentUser)
	assert.NotEmpty(t, d.ListTablesQuery)
}

func TestRegistry(t *testing.T) {
	d := NewDialect("TestDialect").DefaultSchema("s").Build()
	Register(d)

	got, ok := Get("testdialect")
	require.True(t, ok)
	assert.Same(t, d, got)
	assert.Contains(t, List(), "testdialect")

	_, ok = Get("nope")
	assert.False(t, ok)
}
