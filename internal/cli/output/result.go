package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapmeta/internal/indicator"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// ResultSet renders query rows in the effective mode.
func (r *Renderer) ResultSet(rs *core.ResultSet) error {
	if rs == nil {
		rs = &core.ResultSet{}
	}

	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(records(rs))
	case ModeCSV:
		return indicator.WriteCSV(r.w, rs)
	}

	if rs.Len() == 0 {
		r.Println("(0 rows)")
		return nil
	}
	rows := make([][]string, len(rs.Rows))
	for i, row := range rs.Rows {
		cells := make([]string, len(rs.Columns))
		for j := range cells {
			cells[j] = "NULL"
			if j < len(row) && row[j] != nil {
				cells[j] = indicator.FormatValue(row[j])
			}
		}
		rows[i] = cells
	}
	r.Table(rs.Columns, rows)
	r.Printf("(%d rows)\n", rs.Len())
	return nil
}

// Table renders a header and rows as a go-pretty table in text mode and a
// pipe table otherwise.
func (r *Renderer) Table(header []string, rows [][]string) {
	if r.EffectiveMode() != ModeText {
		r.Printf("| %s |\n", strings.Join(escapeCells(header), " | "))
		seps := make([]string, len(header))
		for i := range seps {
			seps[i] = "---"
		}
		r.Printf("| %s |\n", strings.Join(seps, " | "))
		for _, row := range rows {
			r.Printf("| %s |\n", strings.Join(escapeCells(row), " | "))
		}
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, cell := range row {
			tr[i] = cell
		}
		t.AppendRow(tr)
	}
	t.Render()
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}

// records converts rows to JSON-friendly maps.
func records(rs *core.ResultSet) []map[string]any {
	out := rs.Records()
	for _, rec := range out {
		for k, v := range rec {
			if b, ok := v.([]byte); ok {
				rec[k] = string(b)
			}
		}
	}
	return out
}

// Count formats n with a singular or plural noun.
func Count(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
