package predicate

import (
	"fmt"
	"strings"

	"github.com/aevon-lab/cohort/internal/core/row"
)

// Op names a predicate operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpRange   Op = "range" // min/max bounds, either may be absent
	OpIn      Op = "in"
	OpNotIn   Op = "not_in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

var validOps = map[Op]struct{}{
	OpEq: {}, OpNe: {}, OpLt: {}, OpLte: {}, OpGt: {}, OpGte: {},
	OpRange: {}, OpIn: {}, OpNotIn: {}, OpIsNull: {}, OpNotNull: {},
}

// ValidOp reports whether op is a known operator.
func ValidOp(op Op) bool {
	_, ok := validOps[op]
	return ok
}

// Predicate is a test over a single value. A null input matches only is_null.
type Predicate struct {
	Op     Op
	Value  row.Value   // eq, ne, lt, lte, gt, gte
	Values []row.Value // in, not_in
	Min    *row.Value  // range lower bound; nil is unbounded
	Max    *row.Value  // range upper bound; nil is unbounded

	// Bounds are inclusive unless marked exclusive.
	MinExclusive bool
	MaxExclusive bool
}

func Eq(v row.Value) Predicate  { return Predicate{Op: OpEq, Value: v} }
func Ne(v row.Value) Predicate  { return Predicate{Op: OpNe, Value: v} }
func Lt(v row.Value) Predicate  { return Predicate{Op: OpLt, Value: v} }
func Lte(v row.Value) Predicate { return Predicate{Op: OpLte, Value: v} }
func Gt(v row.Value) Predicate  { return Predicate{Op: OpGt, Value: v} }
func Gte(v row.Value) Predicate { return Predicate{Op: OpGte, Value: v} }

func In(vs ...row.Value) Predicate    { return Predicate{Op: OpIn, Values: vs} }
func NotIn(vs ...row.Value) Predicate { return Predicate{Op: OpNotIn, Values: vs} }

func IsNull() Predicate  { return Predicate{Op: OpIsNull} }
func NotNull() Predicate { return Predicate{Op: OpNotNull} }

// Between is the closed interval [lo, hi].
func Between(lo, hi row.Value) Predicate {
	return Predicate{Op: OpRange, Min: &lo, Max: &hi}
}

// AtLeast is the interval [lo, +inf).
func AtLeast(lo row.Value) Predicate {
	return Predicate{Op: OpRange, Min: &lo}
}

// AtMost is the interval (-inf, hi].
func AtMost(hi row.Value) Predicate {
	return Predicate{Op: OpRange, Max: &hi}
}

// Validate checks that the predicate is well formed.
func (p Predicate) Validate() error {
	if !ValidOp(p.Op) {
		return fmt.Errorf("unsupported operator %q", p.Op)
	}
	switch p.Op {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		if p.Value.IsNull() {
			return fmt.Errorf("operator %s needs a non-null value (use is_null/not_null)", p.Op)
		}
	case OpIn, OpNotIn:
		if len(p.Values) == 0 {
			return fmt.Errorf("operator %s needs at least one value", p.Op)
		}
	case OpRange:
		if p.Min == nil && p.Max == nil {
			return fmt.Errorf("range needs min, max or both")
		}
		if p.Min != nil && p.Min.IsNull() || p.Max != nil && p.Max.IsNull() {
			return fmt.Errorf("range bounds must not be null")
		}
		if p.Min != nil && p.Max != nil {
			if !row.Comparable(*p.Min, *p.Max) {
				return fmt.Errorf("range bounds %s and %s are not comparable", p.Min.Kind(), p.Max.Kind())
			}
			if row.Compare(*p.Min, *p.Max) > 0 {
				return fmt.Errorf("range min %s is greater than max %s", p.Min, p.Max)
			}
		}
	}
	return nil
}

// Match reports whether v satisfies the predicate. Values that cannot be
// ordered against the operand never satisfy an ordering operator.
func (p Predicate) Match(v row.Value) bool {
	switch p.Op {
	case OpIsNull:
		return v.IsNull()
	case OpNotNull:
		return !v.IsNull()
	}
	if v.IsNull() {
		return false
	}
	switch p.Op {
	case OpEq:
		return v.Equal(p.Value)
	case OpNe:
		return !v.Equal(p.Value)
	case OpLt, OpLte, OpGt, OpGte:
		if !row.Comparable(v, p.Value) {
			return false
		}
		c := row.Compare(v, p.Value)
		switch p.Op {
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		case OpGt:
			return c > 0
		}
		return c >= 0
	case OpIn:
		return containsValue(p.Values, v)
	case OpNotIn:
		return !containsValue(p.Values, v)
	case OpRange:
		return p.inRange(v)
	}
	return false
}

func (p Predicate) inRange(v row.Value) bool {
	if p.Min != nil {
		if !row.Comparable(v, *p.Min) {
			return false
		}
		c := row.Compare(v, *p.Min)
		if c < 0 || (c == 0 && p.MinExclusive) {
			return false
		}
	}
	if p.Max != nil {
		if !row.Comparable(v, *p.Max) {
			return false
		}
		c := row.Compare(v, *p.Max)
		if c > 0 || (c == 0 && p.MaxExclusive) {
			return false
		}
	}
	return true
}

func containsValue(vs []row.Value, v row.Value) bool {
	for _, candidate := range vs {
		if candidate.Equal(v) {
			return true
		}
	}
	return false
}

func (p Predicate) String() string {
	switch p.Op {
	case OpIsNull, OpNotNull:
		return string(p.Op)
	case OpIn, OpNotIn:
		parts := make([]string, len(p.Values))
		for i, v := range p.Values {
			parts[i] = v.String()
		}
		return fmt.Sprintf("%s [%s]", p.Op, strings.Join(parts, ", "))
	case OpRange:
		lo, hi := "-inf", "+inf"
		open, closing := "[", "]"
		if p.Min != nil {
			lo = p.Min.String()
			if p.MinExclusive {
				open = "("
			}
		} else {
			open = "("
		}
		if p.Max != nil {
			hi = p.Max.String()
			if p.MaxExclusive {
				closing = ")"
			}
		} else {
			closing = ")"
		}
		return fmt.Sprintf("%s%s, %s%s", open, lo, hi, closing)
	}
	return fmt.Sprintf("%s %s", p.Op, p.Value)
}
