package aggregation

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/segment"
)

// Supported reducer operators.
const (
	OpCount         = "count"
	OpSum           = "sum"
	OpAvg           = "avg"
	OpMin           = "min"
	OpMax           = "max"
	OpPercentile    = "percentile"
	OpStddev        = "stddev"
	OpCountDistinct = "count_distinct"
	OpCountIf       = "count_if"
	OpSumIf         = "sum_if"
)

// Supported derived column operators.
const (
	DerivedRatio      = "ratio"      // left / right
	DerivedDifference = "difference" // left - right
	DerivedSum        = "sum"        // left + right
	DerivedProduct    = "product"    // left * right
	DerivedPercent    = "percent"    // 100 * left / right
	DerivedRound      = "round"      // round(left, places)
	DerivedSegment    = "segment"    // classify(left, segments)
)

// ReducerSpec declares one aggregated output column.
type ReducerSpec struct {
	Name   string
	Op     string
	Column string  // empty means COUNT(*) for count and count_if
	P      float64 // percentile rank in [0, 1]

	// Where restricts the rows the reducer sees. Required for count_if and
	// sum_if, optional for every other operator.
	Where predicate.Conjunction
}

// DerivedSpec declares an output computed from already aggregated columns of
// the same group. Right may be replaced by Constant.
type DerivedSpec struct {
	Name     string
	Op       string
	Left     string
	Right    string
	Constant *decimal.Decimal
	Places   *int32 // rounding applied to the result; required for round
	Segments *segment.RuleSet
}

// Spec is a complete aggregation declaration.
type Spec struct {
	GroupBy  []string
	Reducers []ReducerSpec
	Derived  []DerivedSpec
	Having   predicate.Conjunction
}

// GroupKey is the tuple of group-by values identifying a group.
type GroupKey []row.Value

// Equal is structural: null equals null and nothing else.
func (k GroupKey) Equal(o GroupKey) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if !k[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Encode returns a byte encoding that is identical for equal keys.
func (k GroupKey) Encode() []byte {
	var buf []byte
	for _, v := range k {
		buf = row.AppendKey(buf, v)
	}
	return buf
}

func (k GroupKey) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		if v.IsNull() {
			parts[i] = "null"
			continue
		}
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// AggregatedRow is the finalized output of one group: the group-by columns,
// then reducer outputs, then derived outputs.
type AggregatedRow struct {
	Key GroupKey `json:"-"`
	row.Row
}

// Rows strips the keys from a result set.
func Rows(in []AggregatedRow) []row.Row {
	out := make([]row.Row, len(in))
	for i, r := range in {
		out[i] = r.Row
	}
	return out
}
