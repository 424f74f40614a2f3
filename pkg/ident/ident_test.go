package ident

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeColumn(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Customer Name", "customer_name"},
		{"order-id", "order_id"},
		{"unit.price", "unit_price"},
		{"  Total  ", "total"},
		{"JOÃO", "joão"},
		{"already_normal", "already_normal"},
		{"A.B-C D", "a_b_c_d"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeColumn(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeColumn(got), "normalization must be idempotent")
		})
	}
}

func TestNormalizeColumn_ComposesUnicode(t *testing.T) {
	// "e" followed by a combining acute accent.
	decomposed := "cafe\u0301"
	assert.Equal(t, "caf\u00e9", NormalizeColumn(decomposed))
}

func TestNormalizeColumns(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		got, err := NormalizeColumns([]string{"Name", "Unit Price"})
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "unit_price"}, got)
	})

	t.Run("collision", func(t *testing.T) {
		_, err := NormalizeColumns([]string{"Unit Price", "unit-price"})
		var inputErr *core.InputError
		require.True(t, errors.As(err, &inputErr))
		assert.Contains(t, err.Error(), "unit_price")
	})

	t.Run("empty header", func(t *testing.T) {
		_, err := NormalizeColumns([]string{"a", "  "})
		require.Error(t, err)
	})

	t.Run("reserved", func(t *testing.T) {
		_, err := NormalizeColumns([]string{"ID"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reserved")
	})
}

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"raw_sales", false},
		{"a", false},
		{"t1_2", false},
		{"", true},
		{"1abc", true},
		{"Raw_Sales", true},
		{"raw-sales", true},
		{"raw sales", true},
		{"_hidden", true},
		{"raw_\"x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableName(tt.name)
			if tt.wantErr {
				var inputErr *core.InputError
				assert.True(t, errors.As(err, &inputErr))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRawTable(t *testing.T) {
	assert.NoError(t, ValidateRawTable("raw_sales", "raw_"))
	assert.Error(t, ValidateRawTable("sales", "raw_"))
	assert.Error(t, ValidateRawTable("raw_", "raw_"))
	assert.NoError(t, ValidateRawTable("sales", ""))
}

func TestValidateReference(t *testing.T) {
	assert.NoError(t, ValidateReference("column", "customer_id"))
	assert.NoError(t, ValidateReference("column", "joão"))
	assert.NoError(t, ValidateReference("table", "Orders"))
	assert.Error(t, ValidateReference("column", ""))
	assert.Error(t, ValidateReference("column", "a; DROP TABLE x"))
	assert.Error(t, ValidateReference("table", "1x"))
	assert.Error(t, ValidateReference("table", "a.b"))
}

func TestIndicatorTableName(t *testing.T) {
	got, err := IndicatorTableName("indicator_", "Monthly Sales")
	require.NoError(t, err)
	assert.Equal(t, "indicator_monthly_sales", got)

	_, err = IndicatorTableName("indicator_", "   ")
	assert.Error(t, err)

	_, err = IndicatorTableName("indicator_", "Sales (BR)")
	assert.Error(t, err)
}

func TestIndicatorTitle(t *testing.T) {
	assert.Equal(t, "Monthly Sales", IndicatorTitle("indicator_", "indicator_monthly_sales"))
	assert.Equal(t, "Total", IndicatorTitle("indicador_", "indicador_total"))
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"name"`, QuoteIdentifier("name"))
	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
	assert.Equal(t, `'BR'`, QuoteLiteral("BR"))
	assert.Equal(t, `'O''Brien'`, QuoteLiteral("O'Brien"))
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "ids must sort in creation order")
}
