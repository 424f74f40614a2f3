package query

import (
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/dialect"
)

// Compile renders spec as literal SQL. The output is deterministic and is
// what an indicator stores as its transformation rule. It returns the empty
// string when no columns are selected.
//
// Filter values are interpolated as-is, so a value containing a quote
// changes the statement. Execute through CompileParams instead.
func Compile(spec *Spec) string {
	return render(spec, func(f Filter) string {
		ref := f.Table + "." + f.Column + " " + string(f.Operator) + " "
		switch {
		case f.Operator.isList():
			return ref + "(" + f.Value + ")"
		case f.Operator == OpLike:
			return ref + "'%" + f.Value + "%'"
		default:
			return ref + "'" + f.Value + "'"
		}
	})
}

// CompileParams renders spec with every filter value bound as a parameter in
// the dialect's placeholder style. LIKE values are wrapped in % and IN lists
// are split into one parameter per element.
func CompileParams(spec *Spec, d *dialect.Dialect) (string, []any) {
	var args []any
	sql := render(spec, func(f Filter) string {
		ref := f.Table + "." + f.Column + " " + string(f.Operator) + " "
		switch {
		case f.Operator.isList():
			items := splitList(f.Value)
			for _, it := range items {
				args = append(args, it)
			}
			return ref + "(" + d.Placeholders(len(args)-len(items)+1, len(items)) + ")"
		case f.Operator == OpLike:
			args = append(args, "%"+f.Value+"%")
		default:
			args = append(args, f.Value)
		}
		return ref + d.FormatPlaceholder(len(args))
	})
	return sql, args
}

// render lays out the clauses, one per line, delegating filter conditions.
func render(spec *Spec, condition func(Filter) string) string {
	if spec == nil {
		return ""
	}
	selected := spec.Selected()
	if len(selected) == 0 {
		return ""
	}

	refs := make([]string, len(selected))
	for i, r := range selected {
		refs[i] = r.String()
	}

	lines := []string{
		"SELECT " + strings.Join(refs, ", "),
		"FROM " + spec.tables[0],
	}

	for _, j := range spec.joins {
		lines = append(lines, j.Type.Keyword()+" "+j.RightTable+" ON "+
			j.LeftTable+"."+j.LeftColumn+" = "+j.RightTable+"."+j.RightColumn)
	}

	if len(spec.filters) > 0 {
		conds := make([]string, len(spec.filters))
		for i, f := range spec.filters {
			conds[i] = condition(f)
		}
		lines = append(lines, "WHERE "+strings.Join(conds, " AND "))
	}

	if len(spec.orders) > 0 {
		keys := make([]string, len(spec.orders))
		for i, o := range spec.orders {
			keys[i] = o.Table + "." + o.Column + " " + string(o.Direction)
		}
		lines = append(lines, "ORDER BY "+strings.Join(keys, ", "))
	}

	return strings.Join(lines, "\n")
}

// splitList splits a caller-formatted IN list such as 'BR', 'AR' or 1,2
// into its elements. Commas inside single quotes are kept, surrounding
// quotes are removed and doubled quotes are unescaped.
func splitList(value string) []string {
	var (
		items   []string
		cur     strings.Builder
		quoted  bool
		inQuote bool
	)
	flush := func() {
		item := cur.String()
		if !quoted {
			item = strings.TrimSpace(item)
		}
		if item != "" || quoted {
			items = append(items, item)
		}
		cur.Reset()
		quoted = false
	}

	runes := []rune(value)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' && inQuote && i+1 < len(runes) && runes[i+1] == '\'':
			cur.WriteRune('\'')
			i++
		case r == '\'':
			inQuote = !inQuote
			if inQuote {
				cur.Reset()
				quoted = true
			}
		case r == ',' && !inQuote:
			flush()
		case inQuote:
			cur.WriteRune(r)
		case quoted:
			// Text after a closing quote is ignored.
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return items
}
