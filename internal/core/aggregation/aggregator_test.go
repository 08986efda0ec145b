package aggregation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
)

func ints(vs ...int64) []row.Value {
	out := make([]row.Value, len(vs))
	for i, v := range vs {
		out[i] = row.Int(v)
	}
	return out
}

func dec(s string) row.Value { return row.Decimal(decimal.RequireFromString(s)) }

func TestOperators_Result(t *testing.T) {
	tests := []struct {
		name  string
		spec  ReducerSpec
		input []row.Value
		want  row.Value
	}{
		{name: "count", spec: ReducerSpec{Op: OpCount}, input: ints(7, 8, 9), want: row.Int(3)},
		{name: "count empty is zero", spec: ReducerSpec{Op: OpCount}, want: row.Int(0)},
		{name: "sum", spec: ReducerSpec{Op: OpSum, Column: "x"}, input: ints(10, 20), want: row.Int(30)},
		{name: "sum skips text", spec: ReducerSpec{Op: OpSum, Column: "x"}, input: []row.Value{row.Int(1), row.String("n/a"), row.String("2.5")}, want: dec("3.5")},
		{name: "sum empty is null", spec: ReducerSpec{Op: OpSum, Column: "x"}, want: row.Null()},
		{name: "avg", spec: ReducerSpec{Op: OpAvg, Column: "x"}, input: ints(1, 2), want: dec("1.5")},
		{name: "avg single value", spec: ReducerSpec{Op: OpAvg, Column: "x"}, input: []row.Value{dec("4.25")}, want: dec("4.25")},
		{name: "avg single value keeps every digit", spec: ReducerSpec{Op: OpAvg, Column: "x"}, input: []row.Value{dec("0.12345678901234567890123")}, want: dec("0.12345678901234567890123")},
		{name: "avg keeps input scale", spec: ReducerSpec{Op: OpAvg, Column: "x"}, input: []row.Value{dec("0.10000000000000000001"), dec("0.10000000000000000003")}, want: dec("0.10000000000000000002")},
		{name: "avg empty is null", spec: ReducerSpec{Op: OpAvg, Column: "x"}, want: row.Null()},
		{name: "min", spec: ReducerSpec{Op: OpMin, Column: "x"}, input: ints(5, 2, 9), want: row.Int(2)},
		{name: "max", spec: ReducerSpec{Op: OpMax, Column: "x"}, input: ints(5, 2, 9), want: row.Int(9)},
		{name: "max strings", spec: ReducerSpec{Op: OpMax, Column: "x"}, input: []row.Value{row.String("b"), row.String("c"), row.String("a")}, want: row.String("c")},
		{name: "min empty is null", spec: ReducerSpec{Op: OpMin, Column: "x"}, want: row.Null()},
		{name: "median of four interpolates", spec: ReducerSpec{Op: OpPercentile, Column: "x", P: 0.5}, input: ints(4, 1, 3, 2), want: dec("2.5")},
		{name: "p90", spec: ReducerSpec{Op: OpPercentile, Column: "x", P: 0.9}, input: ints(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), want: dec("9.1")},
		{name: "p0 is min", spec: ReducerSpec{Op: OpPercentile, Column: "x", P: 0}, input: ints(3, 1, 2), want: row.Int(1)},
		{name: "p100 is max", spec: ReducerSpec{Op: OpPercentile, Column: "x", P: 1}, input: ints(3, 1, 2), want: row.Int(3)},
		{name: "percentile single", spec: ReducerSpec{Op: OpPercentile, Column: "x", P: 0.3}, input: ints(42), want: row.Int(42)},
		{name: "percentile empty", spec: ReducerSpec{Op: OpPercentile, Column: "x", P: 0.5}, want: row.Null()},
		{name: "stddev sample", spec: ReducerSpec{Op: OpStddev, Column: "x"}, input: ints(1, 3, 5), want: row.Int(2)},
		{name: "stddev of one is null", spec: ReducerSpec{Op: OpStddev, Column: "x"}, input: ints(3), want: row.Null()},
		{name: "stddev of equal values", spec: ReducerSpec{Op: OpStddev, Column: "x"}, input: ints(3, 3), want: row.Int(0)},
		{name: "count distinct", spec: ReducerSpec{Op: OpCountDistinct, Column: "x"}, input: []row.Value{row.Int(1), dec("1.0"), row.Int(2), row.String("1")}, want: row.Int(3)},
		{name: "count distinct empty", spec: ReducerSpec{Op: OpCountDistinct, Column: "x"}, want: row.Int(0)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			agg, ok := Operators[tc.spec.Op]
			require.True(t, ok)
			acc := agg.New(tc.spec)
			for _, v := range tc.input {
				acc.Add(v)
			}
			got := acc.Result()
			if tc.want.IsNull() {
				assert.True(t, got.IsNull(), "got %v", got)
				return
			}
			assert.True(t, tc.want.Equal(got), "want %v, got %v", tc.want, got)
		})
	}
}

func TestOperators_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    ReducerSpec
		wantErr string
	}{
		{name: "count star", spec: ReducerSpec{Op: OpCount}},
		{name: "sum needs column", spec: ReducerSpec{Op: OpSum}, wantErr: "needs a column"},
		{name: "percentile range", spec: ReducerSpec{Op: OpPercentile, Column: "x", P: 1.5}, wantErr: "within [0, 1]"},
		{name: "count_if needs where", spec: ReducerSpec{Op: OpCountIf}, wantErr: "where condition"},
		{name: "count_if star", spec: ReducerSpec{Op: OpCountIf, Where: predicate.Conjunction{{Column: "x", Predicate: predicate.Gt(row.Int(0))}}}},
		{name: "sum_if needs column", spec: ReducerSpec{Op: OpSumIf, Where: predicate.Conjunction{{Column: "x", Predicate: predicate.Gt(row.Int(0))}}}, wantErr: "needs a column"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Operators[tc.spec.Op].Validate(tc.spec)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidOperator(t *testing.T) {
	for _, op := range []string{OpCount, OpSum, OpAvg, OpMin, OpMax, OpPercentile, OpStddev, OpCountDistinct, OpCountIf, OpSumIf} {
		require.True(t, ValidOperator(op), op)
	}
	require.False(t, ValidOperator("median"))
	require.False(t, ValidOperator(""))
	require.Equal(t, OpCountDistinct, NormalizeOperator(" COUNT_DISTINCT "))
}
