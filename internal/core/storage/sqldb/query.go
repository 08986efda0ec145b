package sqldb

import (
	"fmt"
	"strings"

	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
)

var comparison = map[predicate.Op]string{
	predicate.OpEq:  "=",
	predicate.OpNe:  "<>",
	predicate.OpLt:  "<",
	predicate.OpLte: "<=",
	predicate.OpGt:  ">",
	predicate.OpGte: ">=",
}

// BuildSelect renders the SELECT for a source: projection, table and the
// filter conjunction as bound parameters.
func BuildSelect(d Dialect, table string, columns []string, filter predicate.Conjunction) (string, []any, error) {
	if strings.TrimSpace(table) == "" {
		return "", nil, fmt.Errorf("%s: table must not be empty", d.Name)
	}

	proj := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = d.Quote(c)
		}
		proj = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", proj, d.Quote(table))

	var (
		clauses []string
		args    []any
	)
	bind := func(v row.Value) string {
		args = append(args, v.Any())
		return d.Placeholder(len(args))
	}
	for i, c := range filter {
		if err := c.Predicate.Validate(); err != nil {
			return "", nil, fmt.Errorf("%s: filter %d (%s): %w", d.Name, i, c.Column, err)
		}
		col := d.Quote(c.Column)
		p := c.Predicate
		switch p.Op {
		case predicate.OpIsNull:
			clauses = append(clauses, col+" IS NULL")
		case predicate.OpNotNull:
			clauses = append(clauses, col+" IS NOT NULL")
		case predicate.OpIn, predicate.OpNotIn:
			marks := make([]string, len(p.Values))
			for j, v := range p.Values {
				marks[j] = bind(v)
			}
			op := "IN"
			if p.Op == predicate.OpNotIn {
				op = "NOT IN"
			}
			clauses = append(clauses, fmt.Sprintf("%s %s (%s)", col, op, strings.Join(marks, ", ")))
		case predicate.OpRange:
			if p.Min != nil {
				op := ">="
				if p.MinExclusive {
					op = ">"
				}
				clauses = append(clauses, fmt.Sprintf("%s %s %s", col, op, bind(*p.Min)))
			}
			if p.Max != nil {
				op := "<="
				if p.MaxExclusive {
					op = "<"
				}
				clauses = append(clauses, fmt.Sprintf("%s %s %s", col, op, bind(*p.Max)))
			}
		default:
			clauses = append(clauses, fmt.Sprintf("%s %s %s", col, comparison[p.Op], bind(p.Value)))
		}
	}
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}
	return b.String(), args, nil
}

// BuildInsert renders a single-row INSERT for columns.
func BuildInsert(d Dialect, table string, columns []string) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("%s: table must not be empty", d.Name)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("%s: columns must not be empty", d.Name)
	}
	cols := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = d.Quote(c)
		marks[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), strings.Join(cols, ", "), strings.Join(marks, ", ")), nil
}

// BuildCreate renders CREATE TABLE IF NOT EXISTS with column types taken from
// the first non-null value of each column. All-null columns get the string type.
func BuildCreate(d Dialect, table string, columns []string, rows []row.Row) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("%s: table must not be empty", d.Name)
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		kind := row.KindString
		for _, r := range rows {
			if v := r.Value(c); !v.IsNull() {
				kind = v.Kind()
				break
			}
		}
		defs[i] = d.Quote(c) + " " + d.ColumnType(kind)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(table), strings.Join(defs, ", ")), nil
}
