package aggregation

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/segment"
)

func orders() row.Iterator {
	h := row.NewHeader("user", "amt")
	return row.NewSliceIterator(h.Names(), []row.Row{
		row.New(h, row.Int(1), row.Int(10)),
		row.New(h, row.Int(1), row.Int(20)),
		row.New(h, row.Int(2), row.Int(5)),
	})
}

func places(n int32) *int32 { return &n }

func TestAggregate_EndToEnd(t *testing.T) {
	out, err := Aggregate(orders(), Spec{
		GroupBy: []string{"user"},
		Reducers: []ReducerSpec{
			{Name: "count", Op: "COUNT"},
			{Name: "total", Op: OpSum, Column: "amt"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, []string{"user", "count", "total"}, out[0].Columns())
	assert.Equal(t, "{user: 1, count: 2, total: 30}", out[0].String())
	assert.Equal(t, "{user: 2, count: 1, total: 5}", out[1].String())
	assert.True(t, out[0].Key.Equal(GroupKey{row.Int(1)}))
}

func TestAggregate_CardinalityAndDeterminism(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	h := row.NewHeader("region", "user", "amt")
	regions := []row.Value{row.String("eu"), row.String("us"), row.Null(), row.String("apac")}

	var rows []row.Row
	distinct := map[string]struct{}{}
	for i := 0; i < 2000; i++ {
		region := regions[rnd.Intn(len(regions))]
		user := row.Int(int64(rnd.Intn(50)))
		amt := row.Decimal(decimal.New(int64(rnd.Intn(10000)), -2))
		if rnd.Intn(10) == 0 {
			amt = row.Null()
		}
		rows = append(rows, row.New(h, region, user, amt))
		distinct[string(GroupKey{region, user}.Encode())] = struct{}{}
	}

	spec := Spec{
		GroupBy: []string{"region", "user"},
		Reducers: []ReducerSpec{
			{Name: "n", Op: OpCount},
			{Name: "total", Op: OpSum, Column: "amt"},
			{Name: "avg", Op: OpAvg, Column: "amt"},
			{Name: "p50", Op: OpPercentile, Column: "amt", P: 0.5},
			{Name: "sd", Op: OpStddev, Column: "amt"},
		},
	}
	plan, err := Compile(spec, h.Names())
	require.NoError(t, err)

	first, err := plan.Aggregate(row.NewSliceIterator(h.Names(), rows))
	require.NoError(t, err)
	assert.Len(t, first, len(distinct))

	second, err := plan.Aggregate(row.NewSliceIterator(h.Names(), rows))
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.True(t, first[i].Equal(second[i].Row), "row %d differs: %v vs %v", i, first[i], second[i])
	}

	for _, shards := range []int{2, 3, 8} {
		t.Run(fmt.Sprintf("shards=%d", shards), func(t *testing.T) {
			sharded, err := plan.AggregateSharded(row.NewSliceIterator(h.Names(), rows), shards)
			require.NoError(t, err)
			require.Len(t, sharded, len(first))
			for i := range first {
				assert.True(t, first[i].Equal(sharded[i].Row), "row %d differs: %v vs %v", i, first[i], sharded[i])
			}
		})
	}
}

func TestAggregate_DistantTimestampsStayApart(t *testing.T) {
	h := row.NewHeader("day")
	it := row.NewSliceIterator(h.Names(), []row.Row{
		row.New(h, row.Time(time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC))),
		row.New(h, row.Time(time.Date(2284, 7, 21, 23, 34, 33, 709551616, time.UTC))),
	})
	out, err := Aggregate(it, Spec{
		GroupBy:  []string{"day"},
		Reducers: []ReducerSpec{{Name: "n", Op: OpCount}, {Name: "days", Op: OpCountDistinct, Column: "day"}},
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestAggregate_NullKeysFormOneGroup(t *testing.T) {
	h := row.NewHeader("country", "amt")
	it := row.NewSliceIterator(h.Names(), []row.Row{
		row.New(h, row.Null(), row.Int(1)),
		row.New(h, row.String(""), row.Int(2)),
		row.New(h, row.Null(), row.Int(3)),
	})
	out, err := Aggregate(it, Spec{
		GroupBy:  []string{"country"},
		Reducers: []ReducerSpec{{Name: "total", Op: OpSum, Column: "amt"}},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Value("country").IsNull())
	assert.Equal(t, "4", out[0].Value("total").String())
	assert.Equal(t, "2", out[1].Value("total").String())
}

func TestAggregate_AllNullColumn(t *testing.T) {
	h := row.NewHeader("user", "rating")
	it := row.NewSliceIterator(h.Names(), []row.Row{
		row.New(h, row.Int(1), row.Null()),
		row.New(h, row.Int(1), row.Null()),
	})
	out, err := Aggregate(it, Spec{
		GroupBy: []string{"user"},
		Reducers: []ReducerSpec{
			{Name: "rows", Op: OpCount},
			{Name: "rated", Op: OpCount, Column: "rating"},
			{Name: "avg_rating", Op: OpAvg, Column: "rating"},
			{Name: "best", Op: OpMax, Column: "rating"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].Value("rows").String())
	assert.Equal(t, "0", out[0].Value("rated").String())
	assert.True(t, out[0].Value("avg_rating").IsNull())
	assert.True(t, out[0].Value("best").IsNull())
}

func TestAggregate_GlobalOverEmptyInput(t *testing.T) {
	it := row.NewSliceIterator([]string{"amt"}, nil)
	out, err := Aggregate(it, Spec{
		Reducers: []ReducerSpec{
			{Name: "n", Op: OpCount},
			{Name: "total", Op: OpSum, Column: "amt"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "0", out[0].Value("n").String())
	assert.True(t, out[0].Value("total").IsNull())

	grouped, err := Aggregate(row.NewSliceIterator([]string{"amt"}, nil), Spec{
		GroupBy:  []string{"amt"},
		Reducers: []ReducerSpec{{Name: "n", Op: OpCount}},
	})
	require.NoError(t, err)
	assert.Empty(t, grouped)
}

func TestAggregate_ConditionalReducers(t *testing.T) {
	h := row.NewHeader("user", "amt", "status")
	it := row.NewSliceIterator(h.Names(), []row.Row{
		row.New(h, row.Int(1), row.Int(0), row.String("paid")),
		row.New(h, row.Int(1), row.Int(30), row.String("paid")),
		row.New(h, row.Int(1), row.Int(12), row.String("refunded")),
		row.New(h, row.Int(2), row.Int(0), row.String("paid")),
	})
	out, err := Aggregate(it, Spec{
		GroupBy: []string{"user"},
		Reducers: []ReducerSpec{
			{Name: "zero_purchases", Op: OpCountIf, Column: "amt", Where: predicate.Conjunction{{Predicate: predicate.Eq(row.Int(0))}}},
			{Name: "paid_total", Op: OpSumIf, Column: "amt", Where: predicate.Conjunction{{Column: "status", Predicate: predicate.Eq(row.String("paid"))}}},
			{Name: "refunds", Op: OpCountIf, Where: predicate.Conjunction{{Column: "status", Predicate: predicate.Eq(row.String("refunded"))}}},
			{Name: "big", Op: OpSum, Column: "amt", Where: predicate.Conjunction{{Predicate: predicate.Gt(row.Int(20))}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "{user: 1, zero_purchases: 1, paid_total: 30, refunds: 1, big: 30}", out[0].String())
	assert.Equal(t, "{user: 2, zero_purchases: 1, paid_total: 0, refunds: 0, big: null}", out[1].String())
}

func TestAggregate_DerivedColumns(t *testing.T) {
	h := row.NewHeader("user", "amt", "refund")
	it := row.NewSliceIterator(h.Names(), []row.Row{
		row.New(h, row.Int(1), row.Int(30), row.Int(10)),
		row.New(h, row.Int(2), row.Int(15), row.Int(0)),
		row.New(h, row.Int(3), row.Int(5), row.Null()),
	})
	buckets := segment.RuleSet{
		Rules:   []segment.Rule{{Label: "high", When: predicate.AtLeast(row.Int(20))}},
		Default: "low",
	}
	hundred := decimal.NewFromInt(100)
	out, err := Aggregate(it, Spec{
		GroupBy: []string{"user"},
		Reducers: []ReducerSpec{
			{Name: "spent", Op: OpSum, Column: "amt"},
			{Name: "refunded", Op: OpSum, Column: "refund"},
		},
		Derived: []DerivedSpec{
			{Name: "refund_ratio", Op: DerivedRatio, Left: "refunded", Right: "spent"},
			{Name: "spend_per_refund", Op: DerivedRatio, Left: "spent", Right: "refunded", Places: places(2)},
			{Name: "net", Op: DerivedDifference, Left: "spent", Right: "refunded"},
			{Name: "refund_pct", Op: DerivedPercent, Left: "refunded", Right: "spent", Places: places(1)},
			{Name: "cents", Op: DerivedProduct, Left: "net", Constant: &hundred},
			{Name: "ratio_rounded", Op: DerivedRound, Left: "refund_ratio", Places: places(3)},
			{Name: "tier", Op: DerivedSegment, Left: "spent", Segments: &buckets},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	u1, u2, u3 := out[0], out[1], out[2]
	assert.Equal(t, "0.3333333333333333", u1.Value("refund_ratio").String())
	assert.Equal(t, "3", u1.Value("spend_per_refund").String())
	assert.Equal(t, "20", u1.Value("net").String())
	assert.Equal(t, "33.3", u1.Value("refund_pct").String())
	assert.Equal(t, "2000", u1.Value("cents").String())
	assert.Equal(t, "0.333", u1.Value("ratio_rounded").String())
	assert.Equal(t, "high", u1.Value("tier").String())

	// zero denominator
	assert.Equal(t, "0", u2.Value("refund_ratio").String())
	assert.True(t, u2.Value("spend_per_refund").IsNull())
	assert.Equal(t, "low", u2.Value("tier").String())

	// null denominator and null numerator
	assert.True(t, u3.Value("refund_ratio").IsNull())
	assert.True(t, u3.Value("spend_per_refund").IsNull())
	assert.True(t, u3.Value("net").IsNull())
	assert.True(t, u3.Value("cents").IsNull())
	assert.True(t, u3.Value("ratio_rounded").IsNull())
}

func TestAggregate_Having(t *testing.T) {
	out, err := Aggregate(orders(), Spec{
		GroupBy:  []string{"user"},
		Reducers: []ReducerSpec{{Name: "n", Op: OpCount}},
		Having:   predicate.Conjunction{{Column: "n", Predicate: predicate.Gte(row.Int(2))}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].Value("user").String())
}

func TestCompile_SpecErrors(t *testing.T) {
	cols := []string{"user", "amt"}
	tests := []struct {
		name      string
		spec      Spec
		wantField string
		wantErr   string
	}{
		{"unknown group column", Spec{GroupBy: []string{"region"}}, "group_by[0]", "unknown column"},
		{"unknown reducer column", Spec{Reducers: []ReducerSpec{{Name: "t", Op: OpSum, Column: "price"}}}, "reducers[0].column", "unknown column"},
		{"unknown operator", Spec{Reducers: []ReducerSpec{{Name: "t", Op: "median", Column: "amt"}}}, "reducers[0].op", "unsupported operator"},
		{"empty name", Spec{Reducers: []ReducerSpec{{Op: OpCount}}}, "reducers[0].name", "must not be empty"},
		{"duplicate output", Spec{GroupBy: []string{"user"}, Reducers: []ReducerSpec{{Name: "user", Op: OpCount}}}, "reducers[0].name", "duplicate output"},
		{"bad percentile", Spec{Reducers: []ReducerSpec{{Name: "p", Op: OpPercentile, Column: "amt", P: -0.1}}}, "reducers[0]", "within [0, 1]"},
		{"where on unknown column", Spec{Reducers: []ReducerSpec{{Name: "c", Op: OpCountIf, Where: predicate.Conjunction{{Column: "status", Predicate: predicate.NotNull()}}}}}, "reducers[0].where", "unknown column"},
		{"where without column on count star", Spec{Reducers: []ReducerSpec{{Name: "c", Op: OpCountIf, Where: predicate.Conjunction{{Predicate: predicate.NotNull()}}}}}, "reducers[0].where[0]", "needs a column"},
		{"derived undefined reference", Spec{Reducers: []ReducerSpec{{Name: "t", Op: OpSum, Column: "amt"}}, Derived: []DerivedSpec{{Name: "r", Op: DerivedRatio, Left: "t", Right: "missing"}}}, "derived[0]", "undefined column"},
		{"derived forward reference", Spec{Reducers: []ReducerSpec{{Name: "t", Op: OpSum, Column: "amt"}}, Derived: []DerivedSpec{
			{Name: "a", Op: DerivedDifference, Left: "t", Right: "b"},
			{Name: "b", Op: DerivedRound, Left: "t", Places: places(0)},
		}}, "derived[0]", "undefined column"},
		{"derived references input column", Spec{Reducers: []ReducerSpec{{Name: "t", Op: OpSum, Column: "amt"}}, Derived: []DerivedSpec{{Name: "r", Op: DerivedRatio, Left: "amt", Right: "t"}}}, "derived[0]", "undefined column"},
		{"round without places", Spec{Reducers: []ReducerSpec{{Name: "t", Op: OpSum, Column: "amt"}}, Derived: []DerivedSpec{{Name: "r", Op: DerivedRound, Left: "t"}}}, "derived[0]", "needs places"},
		{"segment without default", Spec{Reducers: []ReducerSpec{{Name: "t", Op: OpSum, Column: "amt"}}, Derived: []DerivedSpec{{Name: "s", Op: DerivedSegment, Left: "t", Segments: &segment.RuleSet{}}}}, "derived[0]", "default label"},
		{"unknown derived op", Spec{Reducers: []ReducerSpec{{Name: "t", Op: OpSum, Column: "amt"}}, Derived: []DerivedSpec{{Name: "s", Op: "log", Left: "t"}}}, "derived[0]", "unsupported derived operator"},
		{"having on unknown column", Spec{Reducers: []ReducerSpec{{Name: "t", Op: OpSum, Column: "amt"}}, Having: predicate.Conjunction{{Column: "amt", Predicate: predicate.Gt(row.Int(0))}}}, "having", "unknown column"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.spec, cols)
			require.Error(t, err)
			var se *coreerrors.SpecError
			require.True(t, errors.As(err, &se), "want SpecError, got %T", err)
			assert.Equal(t, tc.wantField, se.Field)
			assert.Contains(t, se.Reason, tc.wantErr)
		})
	}
}

type failingIterator struct {
	row.Iterator
	err error
}

func (f *failingIterator) Next() bool { return false }
func (f *failingIterator) Err() error { return f.err }

func TestAggregate_SpecErrorBeforeAnyRow(t *testing.T) {
	it := &countingIterator{Iterator: orders()}
	_, err := Aggregate(it, Spec{Reducers: []ReducerSpec{{Name: "t", Op: OpSum, Column: "nope"}}})
	require.Error(t, err)
	assert.True(t, coreerrors.IsSpecError(err))
	assert.Zero(t, it.reads)
}

type countingIterator struct {
	row.Iterator
	reads int
}

func (c *countingIterator) Next() bool {
	c.reads++
	return c.Iterator.Next()
}

func TestAggregate_IteratorErrorPropagates(t *testing.T) {
	boom := &coreerrors.SourceError{Source: "test", Reason: "connection reset"}
	plan, err := Compile(Spec{Reducers: []ReducerSpec{{Name: "n", Op: OpCount}}}, []string{"user"})
	require.NoError(t, err)

	_, err = plan.Aggregate(&failingIterator{Iterator: orders(), err: boom})
	require.ErrorIs(t, err, boom)

	_, err = plan.AggregateSharded(&failingIterator{Iterator: orders(), err: boom}, 4)
	require.ErrorIs(t, err, boom)
}

func TestSortAndLimit(t *testing.T) {
	h := row.NewHeader("user", "amt")
	it := row.NewSliceIterator(h.Names(), []row.Row{
		row.New(h, row.Int(1), row.Int(10)),
		row.New(h, row.Int(2), row.Null()),
		row.New(h, row.Int(3), row.Int(30)),
		row.New(h, row.Int(4), row.Int(10)),
	})
	out, err := Aggregate(it, Spec{
		GroupBy:  []string{"user"},
		Reducers: []ReducerSpec{{Name: "total", Op: OpSum, Column: "amt"}},
	})
	require.NoError(t, err)

	keys := []SortKey{{Column: "total", Desc: true}}
	require.NoError(t, ValidateSort(keys, []string{"user", "total"}))
	err = ValidateSort([]SortKey{{Column: "amt"}}, []string{"user", "total"})
	var se *coreerrors.SpecError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "order_by[0]", se.Field)

	Sort(out, keys)
	users := func(rows []AggregatedRow) []string {
		var s []string
		for _, r := range rows {
			s = append(s, r.Value("user").String())
		}
		return s
	}
	// stable for ties, nulls last
	assert.Equal(t, []string{"3", "1", "4", "2"}, users(out))

	Sort(out, []SortKey{{Column: "total"}})
	assert.Equal(t, []string{"1", "4", "3", "2"}, users(out))

	assert.Equal(t, []string{"1", "4"}, users(Limit(out, 2)))
	assert.Len(t, Limit(out, 0), 4)
	assert.Len(t, Limit(out, 10), 4)
	assert.Len(t, Rows(out), 4)
}
