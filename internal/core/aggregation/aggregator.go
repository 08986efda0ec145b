package aggregation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aevon-lab/cohort/internal/core/row"
)

// Accumulator folds the values of one group for one reducer.
// Null values are never passed to Add; the engine skips them.
type Accumulator interface {
	Add(v row.Value)
	// Result finalizes the group. Empty groups yield null, except counts.
	Result() row.Value
}

// Aggregator defines the semantics of a reducer operator.
// To add a new operator: implement this interface and register it in Operators.
type Aggregator interface {
	// Validate checks operator-specific fields of spec.
	Validate(spec ReducerSpec) error
	// New returns an empty accumulator for one group.
	New(spec ReducerSpec) Accumulator
}

// Operators is the registry of all supported reducer operators.
var Operators = map[string]Aggregator{
	OpCount:         countAgg{},
	OpSum:           sumAgg{},
	OpAvg:           avgAgg{},
	OpMin:           extremeAgg{keep: -1},
	OpMax:           extremeAgg{keep: 1},
	OpPercentile:    percentileAgg{},
	OpStddev:        stddevAgg{},
	OpCountDistinct: distinctAgg{},
	OpCountIf:       conditional{countAgg{}},
	OpSumIf:         conditional{sumAgg{}},
}

// ValidOperator reports whether op is a registered reducer operator.
func ValidOperator(op string) bool {
	_, ok := Operators[op]
	return ok
}

// NormalizeOperator lower-cases op so that COUNT and count are the same operator.
func NormalizeOperator(op string) string {
	return strings.ToLower(strings.TrimSpace(op))
}

func requireColumn(spec ReducerSpec) error {
	if spec.Column == "" {
		return fmt.Errorf("%s needs a column", spec.Op)
	}
	return nil
}

// countAgg counts rows (no column) or non-null values (with a column).
type countAgg struct{}

func (countAgg) Validate(ReducerSpec) error  { return nil }
func (countAgg) New(ReducerSpec) Accumulator { return &countAcc{} }

type countAcc struct{ n int64 }

func (a *countAcc) Add(row.Value)     { a.n++ }
func (a *countAcc) Result() row.Value { return row.Int(a.n) }

// sumAgg adds numeric values. Values that are not numbers are ignored.
type sumAgg struct{}

func (sumAgg) Validate(spec ReducerSpec) error { return requireColumn(spec) }
func (sumAgg) New(ReducerSpec) Accumulator     { return &sumAcc{} }

type sumAcc struct {
	sum decimal.Decimal
	n   int64
}

func (a *sumAcc) Add(v row.Value) {
	d, ok := v.Numeric()
	if !ok {
		return
	}
	a.sum = a.sum.Add(d)
	a.n++
}

func (a *sumAcc) Result() row.Value {
	if a.n == 0 {
		return row.Null()
	}
	return row.Decimal(a.sum)
}

// avgAgg is sum/count over numeric values.
type avgAgg struct{}

func (avgAgg) Validate(spec ReducerSpec) error { return requireColumn(spec) }
func (avgAgg) New(ReducerSpec) Accumulator     { return &avgAcc{} }

type avgAcc struct{ sumAcc }

func (a *avgAcc) Result() row.Value {
	if a.n == 0 {
		return row.Null()
	}
	if a.n == 1 {
		return row.Decimal(a.sum)
	}
	return row.Decimal(a.sum.DivRound(decimal.NewFromInt(a.n), avgPrecision(a.sum)))
}

// avgPrecision keeps at least as many fractional digits as the inputs carry.
func avgPrecision(sum decimal.Decimal) int32 {
	if exp := -sum.Exponent(); exp > int32(decimal.DivisionPrecision) {
		return exp
	}
	return int32(decimal.DivisionPrecision)
}

// extremeAgg keeps the lowest (keep < 0) or highest (keep > 0) value.
// Works for any ordered kind: numbers, strings and timestamps.
type extremeAgg struct{ keep int }

func (extremeAgg) Validate(spec ReducerSpec) error { return requireColumn(spec) }
func (e extremeAgg) New(ReducerSpec) Accumulator   { return &extremeAcc{keep: e.keep} }

type extremeAcc struct {
	keep int
	cur  row.Value
	seen bool
}

func (a *extremeAcc) Add(v row.Value) {
	if !a.seen {
		a.cur, a.seen = v, true
		return
	}
	if c := row.Compare(v, a.cur); (a.keep < 0 && c < 0) || (a.keep > 0 && c > 0) {
		a.cur = v
	}
}

func (a *extremeAcc) Result() row.Value {
	if !a.seen {
		return row.Null()
	}
	return a.cur
}

// percentileAgg is the continuous percentile: linear interpolation between
// order statistics at rank p*(n-1).
type percentileAgg struct{}

func (percentileAgg) Validate(spec ReducerSpec) error {
	if err := requireColumn(spec); err != nil {
		return err
	}
	if spec.P < 0 || spec.P > 1 || math.IsNaN(spec.P) {
		return fmt.Errorf("percentile p must be within [0, 1], got %v", spec.P)
	}
	return nil
}

func (percentileAgg) New(spec ReducerSpec) Accumulator {
	return &percentileAcc{p: decimal.NewFromFloat(spec.P)}
}

type percentileAcc struct {
	p    decimal.Decimal
	vals []decimal.Decimal
}

func (a *percentileAcc) Add(v row.Value) {
	if d, ok := v.Numeric(); ok {
		a.vals = append(a.vals, d)
	}
}

func (a *percentileAcc) Result() row.Value {
	return percentile(a.vals, a.p)
}

func percentile(vals []decimal.Decimal, p decimal.Decimal) row.Value {
	n := len(vals)
	if n == 0 {
		return row.Null()
	}
	sorted := append([]decimal.Decimal(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	if n == 1 {
		return row.Decimal(sorted[0])
	}

	rank := p.Mul(decimal.NewFromInt(int64(n - 1)))
	lo := rank.Floor()
	idx := int(lo.IntPart())
	if idx >= n-1 {
		return row.Decimal(sorted[n-1])
	}
	frac := rank.Sub(lo)
	lower, upper := sorted[idx], sorted[idx+1]
	return row.Decimal(lower.Add(upper.Sub(lower).Mul(frac)))
}

// stddevAgg is the sample standard deviation (n-1 denominator).
type stddevAgg struct{}

func (stddevAgg) Validate(spec ReducerSpec) error { return requireColumn(spec) }
func (stddevAgg) New(ReducerSpec) Accumulator     { return &stddevAcc{} }

type stddevAcc struct{ vals []decimal.Decimal }

func (a *stddevAcc) Add(v row.Value) {
	if d, ok := v.Numeric(); ok {
		a.vals = append(a.vals, d)
	}
}

func (a *stddevAcc) Result() row.Value {
	return stddev(a.vals)
}

func stddev(vals []decimal.Decimal) row.Value {
	n := len(vals)
	if n < 2 {
		return row.Null()
	}
	sum := decimal.Zero
	for _, v := range vals {
		sum = sum.Add(v)
	}
	mean := sum.Div(decimal.NewFromInt(int64(n)))
	sq := decimal.Zero
	for _, v := range vals {
		d := v.Sub(mean)
		sq = sq.Add(d.Mul(d))
	}
	variance := sq.Div(decimal.NewFromInt(int64(n - 1)))
	return row.Decimal(decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64())))
}

// distinctAgg counts distinct non-null values using value equality.
type distinctAgg struct{}

func (distinctAgg) Validate(spec ReducerSpec) error { return requireColumn(spec) }
func (distinctAgg) New(ReducerSpec) Accumulator     { return &distinctAcc{seen: map[string]struct{}{}} }

type distinctAcc struct {
	seen map[string]struct{}
	buf  []byte
}

func (a *distinctAcc) Add(v row.Value) {
	a.buf = row.AppendKey(a.buf[:0], v)
	if _, ok := a.seen[string(a.buf)]; !ok {
		a.seen[string(a.buf)] = struct{}{}
	}
}

func (a *distinctAcc) Result() row.Value { return row.Int(int64(len(a.seen))) }

// conditional wraps an operator that only sees rows matching the reducer's
// where conditions. The engine applies the conditions; the wrapper only
// insists they are present.
type conditional struct{ inner Aggregator }

func (c conditional) Validate(spec ReducerSpec) error {
	if len(spec.Where) == 0 {
		return fmt.Errorf("%s needs at least one where condition", spec.Op)
	}
	return c.inner.Validate(spec)
}

func (c conditional) New(spec ReducerSpec) Accumulator { return c.inner.New(spec) }
