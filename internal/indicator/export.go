package indicator

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// WriteCSV writes rs as CSV with a header row. NULL is written as an empty
// field.
func WriteCSV(w io.Writer, rs *core.ResultSet) error {
	cw := csv.NewWriter(w)
	if rs == nil {
		rs = &core.ResultSet{}
	}
	if err := cw.Write(rs.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = FormatValue(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatValue renders a result value for text output. NULL is empty.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
