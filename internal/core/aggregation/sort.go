package aggregation

import (
	"fmt"
	"sort"

	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/row"
)

// SortKey orders aggregated rows by one output column.
type SortKey struct {
	Column string
	Desc   bool
}

// ValidateSort checks that every key names one of columns.
func ValidateSort(keys []SortKey, columns []string) error {
	h := row.NewHeader(columns...)
	for i, k := range keys {
		if !h.Has(k.Column) {
			return coreerrors.Specf(fmt.Sprintf("order_by[%d]", i), "unknown column %q", k.Column)
		}
	}
	return nil
}

// Sort orders rows in place by keys. The sort is stable and nulls sort last
// in both directions.
func Sort(rows []AggregatedRow, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			a, b := rows[i].Value(k.Column), rows[j].Value(k.Column)
			switch {
			case a.IsNull() && b.IsNull():
				continue
			case a.IsNull():
				return false
			case b.IsNull():
				return true
			}
			c := row.Compare(a, b)
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Limit keeps the first n rows. A non-positive n keeps everything.
func Limit(rows []AggregatedRow, n int) []AggregatedRow {
	if n <= 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}
