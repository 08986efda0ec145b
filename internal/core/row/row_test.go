package row

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null equals null", Null(), Null(), true},
		{"null differs from zero", Null(), Int(0), false},
		{"null differs from empty string", String(""), Null(), false},
		{"int equals decimal numerically", Int(2), Decimal(decimal.RequireFromString("2.00")), true},
		{"different ints", Int(1), Int(2), false},
		{"string vs int", String("1"), Int(1), false},
		{"same time in different zones", Time(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
			Time(time.Date(2024, 1, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))), true},
		{"bools", Bool(true), Bool(true), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Equal(tc.b))
			assert.Equal(t, tc.want, tc.b.Equal(tc.a))
		})
	}
}

func TestAppendKey_MatchesEqual(t *testing.T) {
	pairs := [][2]Value{
		{Int(5), Decimal(decimal.RequireFromString("5.0"))},
		{Decimal(decimal.RequireFromString("1.50")), Decimal(decimal.RequireFromString("1.5"))},
		{Null(), Null()},
	}
	for _, p := range pairs {
		require.True(t, p[0].Equal(p[1]))
		assert.Equal(t, string(AppendKey(nil, p[0])), string(AppendKey(nil, p[1])))
	}

	// length prefix keeps ("ab","c") and ("a","bc") apart
	k1 := AppendKey(AppendKey(nil, String("ab")), String("c"))
	k2 := AppendKey(AppendKey(nil, String("a")), String("bc"))
	assert.NotEqual(t, string(k1), string(k2))

	assert.NotEqual(t, string(AppendKey(nil, Null())), string(AppendKey(nil, String(""))))

	// outside the int64 nanosecond range
	early := Time(time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC))
	late := Time(time.Date(2284, 7, 21, 23, 34, 33, 709551616, time.UTC))
	require.False(t, early.Equal(late))
	assert.NotEqual(t, string(AppendKey(nil, early)), string(AppendKey(nil, late)))

	sameInstant := Time(time.Date(1500, 3, 1, 13, 0, 0, 5, time.FixedZone("CET", 3600)))
	assert.Equal(t, string(AppendKey(nil, Time(time.Date(1500, 3, 1, 12, 0, 0, 5, time.UTC)))), string(AppendKey(nil, sameInstant)))
	assert.NotEqual(t, string(AppendKey(nil, Int(1))), string(AppendKey(nil, String("1"))))
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(Null(), Int(0)))
	assert.Equal(t, 1, Compare(Int(3), Decimal(decimal.RequireFromString("2.5"))))
	assert.Equal(t, 0, Compare(Int(3), Decimal(decimal.NewFromInt(3))))
	assert.Equal(t, -1, Compare(String("a"), String("b")))
	assert.Equal(t, -1, Compare(Int(100), String("a")))
	assert.False(t, Comparable(Int(1), String("a")))
	assert.True(t, Comparable(Bool(false), Bool(true)))
}

func TestValue_Numeric(t *testing.T) {
	d, ok := String(" 12.5 ").Numeric()
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("12.5")))

	_, ok = String("abc").Numeric()
	assert.False(t, ok)
	_, ok = Null().Numeric()
	assert.False(t, ok)
}

func TestRow_SetIsCopy(t *testing.T) {
	h := NewHeader("user", "amt")
	r := New(h, Int(1), Int(10))

	r2 := r.Set("amt", Int(99))
	assert.True(t, r.Value("amt").Equal(Int(10)))
	assert.True(t, r2.Value("amt").Equal(Int(99)))

	r3 := r.Set("segment", String("low"))
	assert.Equal(t, []string{"user", "amt"}, r.Columns())
	assert.Equal(t, []string{"user", "amt", "segment"}, r3.Columns())
	assert.Equal(t, "low", r3.Value("segment").String())
}

func TestRow_GetMissing(t *testing.T) {
	r := New(NewHeader("a"), Int(1))
	v, ok := r.Get("b")
	assert.False(t, ok)
	assert.True(t, v.IsNull())
	assert.True(t, r.Value("b").IsNull())
}

func TestRow_NewPadsWithNull(t *testing.T) {
	r := New(NewHeader("a", "b", "c"), Int(1))
	require.Equal(t, 3, r.Len())
	assert.True(t, r.At(2).IsNull())
	assert.True(t, r.At(7).IsNull())
}

func TestRow_Project(t *testing.T) {
	r := New(NewHeader("a", "b", "c"), Int(1), Int(2), Int(3))
	p := r.Project("c", "a")
	assert.Equal(t, []string{"c", "a"}, p.Columns())
	assert.Equal(t, "3", p.At(0).String())
}

func TestRow_Rebase(t *testing.T) {
	h := NewHeader("a", "b")
	r := New(h, Int(1), Int(2))
	ext := h.Extend("b", "c")
	assert.Equal(t, []string{"a", "b", "c"}, ext.Names())

	out := r.Rebase(ext, map[string]Value{"b": Int(20), "c": String("x")})
	assert.Equal(t, "{a: 1, b: 20, c: x}", out.String())
}

func TestRow_MarshalJSONKeepsOrder(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	r := New(NewHeader("z", "a", "t", "n", "d"),
		String("first"), Int(2), Time(ts), Null(), Decimal(decimal.RequireFromString("0.25")))

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"first","a":2,"t":"2024-03-01T00:00:00Z","n":null,"d":0.25}`, string(b))
}

func TestSliceIterator(t *testing.T) {
	h := NewHeader("a")
	it := NewSliceIterator(h.Names(), []Row{New(h, Int(1)), New(h, Int(2))})
	assert.Equal(t, []string{"a"}, it.Columns())

	rows, err := Collect(it)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.False(t, it.Next())
	assert.Equal(t, 0, it.Row().Len())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		typ     Type
		want    Value
		wantErr bool
	}{
		{"auto int", "42", TypeAuto, Int(42), false},
		{"auto decimal", "4.5", TypeAuto, Decimal(decimal.RequireFromString("4.5")), false},
		{"auto empty is null", "", TypeAuto, Null(), false},
		{"auto bool", "TRUE", TypeAuto, Bool(true), false},
		{"auto date", "2024-02-03", TypeAuto, Time(time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)), false},
		{"auto text", "DE", TypeAuto, String("DE"), false},
		{"declared string keeps digits", "007", TypeString, String("007"), false},
		{"declared string keeps empty", "", TypeString, String(""), false},
		{"declared decimal", "10", TypeDecimal, Decimal(decimal.NewFromInt(10)), false},
		{"declared int empty", " ", TypeInt, Null(), false},
		{"declared int invalid", "x", TypeInt, Null(), true},
		{"declared timestamp", "2024-02-03 10:11:12", TypeTimestamp,
			Time(time.Date(2024, 2, 3, 10, 11, 12, 0, time.UTC)), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.text, tc.typ)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want.Kind(), got.Kind())
			assert.True(t, tc.want.Equal(got), "got %v", got)
		})
	}
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("NUMERIC")
	require.NoError(t, err)
	assert.Equal(t, TypeDecimal, typ)

	_, err = ParseType("blob")
	require.Error(t, err)
}

func TestFromAny(t *testing.T) {
	assert.True(t, FromAny(nil).IsNull())
	assert.Equal(t, KindInt, FromAny(int64(3)).Kind())
	assert.Equal(t, KindDecimal, FromAny([]byte("3.25")).Kind())
	assert.Equal(t, KindInt, FromAny([]byte("3")).Kind())
	assert.Equal(t, KindString, FromAny([]byte("abc")).Kind())
	assert.Equal(t, KindString, FromAny("12").Kind())
	assert.Equal(t, KindTime, FromAny(time.Now()).Kind())
	assert.Equal(t, KindDecimal, FromAny(uint64(1)<<63).Kind())
}
