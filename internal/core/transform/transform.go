// Package transform rewrites rows before they are grouped: rescaling mixed
// rating scales, truncating timestamps to cohort periods, tagging segments and
// filtering.
package transform

import (
	"fmt"

	"github.com/shopspring/decimal"

	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/segment"
)

const (
	KindRescale      = "rescale"
	KindTruncateTime = "truncate_time"
	KindSegment      = "segment"
	KindFilter       = "filter"
)

// Rescale defaults: values in [10, 50] are divided by 10.
var (
	DefaultRescaleMin     = decimal.NewFromInt(10)
	DefaultRescaleMax     = decimal.NewFromInt(50)
	DefaultRescaleDivisor = decimal.NewFromInt(10)
)

// Step declares one row transform. Output defaults to Column.
type Step struct {
	Kind   string
	Column string
	Output string

	// rescale
	Min     *decimal.Decimal
	Max     *decimal.Decimal
	Divisor *decimal.Decimal

	// truncate_time
	Unit string

	// segment
	Rules *segment.RuleSet

	// filter
	Conditions predicate.Conjunction
}

type applyFunc func(r row.Row) (row.Row, bool)

// Chain is an ordered, validated list of steps bound to an input column set.
type Chain struct {
	columns []string
	steps   []applyFunc
}

// Compile validates steps in order against columns. Each step sees the
// columns produced by the steps before it.
func Compile(steps []Step, columns []string) (*Chain, error) {
	h := row.NewHeader(columns...)
	c := &Chain{}
	for i, s := range steps {
		field := fmt.Sprintf("transforms[%d]", i)
		fn, next, err := compileStep(s, h)
		if err != nil {
			if se, ok := err.(*coreerrors.SpecError); ok {
				se.Field = field + se.Field
				return nil, se
			}
			return nil, coreerrors.Specf(field, "%v", err)
		}
		c.steps = append(c.steps, fn)
		h = next
	}
	c.columns = h.Names()
	return c, nil
}

// Columns returns the columns rows have after the chain.
func (c *Chain) Columns() []string { return append([]string(nil), c.columns...) }

// Apply runs every step on r. It reports false when a filter drops the row.
func (c *Chain) Apply(r row.Row) (row.Row, bool) {
	for _, fn := range c.steps {
		var keep bool
		if r, keep = fn(r); !keep {
			return row.Row{}, false
		}
	}
	return r, true
}

func compileStep(s Step, in *row.Header) (applyFunc, *row.Header, error) {
	if s.Kind == KindFilter {
		if len(s.Conditions) == 0 {
			return nil, nil, coreerrors.Specf(".conditions", "filter needs at least one condition")
		}
		if err := s.Conditions.Validate(in.Has); err != nil {
			return nil, nil, coreerrors.Specf(".conditions", "%v", err)
		}
		conds := s.Conditions
		return func(r row.Row) (row.Row, bool) { return r, conds.Match(r) }, in, nil
	}

	if s.Column == "" {
		return nil, nil, coreerrors.Specf(".column", "column must not be empty")
	}
	if !in.Has(s.Column) {
		return nil, nil, coreerrors.Specf(".column", "unknown column %q", s.Column)
	}
	output := s.Output
	if output == "" {
		output = s.Column
	}
	out := in.Extend(output)

	var fn func(v row.Value) row.Value
	switch s.Kind {
	case KindRescale:
		f, err := rescale(s)
		if err != nil {
			return nil, nil, err
		}
		fn = f
	case KindTruncateTime:
		w, err := ParseWindowSize(s.Unit)
		if err != nil {
			return nil, nil, coreerrors.Specf(".unit", "%v", err)
		}
		fn = func(v row.Value) row.Value { return truncate(v, w) }
	case KindSegment:
		if s.Rules == nil {
			return nil, nil, coreerrors.Specf(".rules", "segment needs rules")
		}
		if err := s.Rules.Validate(); err != nil {
			return nil, nil, coreerrors.Specf(".rules", "%v", err)
		}
		rules := *s.Rules
		fn = func(v row.Value) row.Value { return row.String(rules.Classify(v)) }
	default:
		return nil, nil, coreerrors.Specf(".kind", "unsupported transform %q", s.Kind)
	}

	column := s.Column
	return func(r row.Row) (row.Row, bool) {
		return r.Rebase(out, map[string]row.Value{output: fn(r.Value(column))}), true
	}, out, nil
}

// rescale divides values inside [min, max] by divisor and passes every other
// value through unchanged.
func rescale(s Step) (func(row.Value) row.Value, error) {
	lo, hi, div := DefaultRescaleMin, DefaultRescaleMax, DefaultRescaleDivisor
	if s.Min != nil {
		lo = *s.Min
	}
	if s.Max != nil {
		hi = *s.Max
	}
	if s.Divisor != nil {
		div = *s.Divisor
	}
	if div.IsZero() {
		return nil, coreerrors.Specf(".divisor", "divisor must not be zero")
	}
	if lo.GreaterThan(hi) {
		return nil, coreerrors.Specf(".min", "min %s is greater than max %s", lo, hi)
	}
	return func(v row.Value) row.Value {
		d, ok := v.Numeric()
		if !ok || d.LessThan(lo) || d.GreaterThan(hi) {
			return v
		}
		return row.Decimal(d.Div(div))
	}, nil
}

// truncate maps timestamps, and text that parses as one, to their window
// start. Anything else becomes null.
func truncate(v row.Value, w WindowSpec) row.Value {
	if t, ok := v.Timestamp(); ok {
		return row.Time(w.Truncate(t))
	}
	if s, ok := v.Text(); ok {
		if t, err := row.ParseTime(s); err == nil {
			return row.Time(w.Truncate(t))
		}
	}
	return row.Null()
}

// Wrap returns an iterator that applies the chain lazily to it.
func (c *Chain) Wrap(it row.Iterator) row.Iterator {
	if len(c.steps) == 0 {
		return it
	}
	return &iterator{chain: c, src: it}
}

type iterator struct {
	chain *Chain
	src   row.Iterator
	cur   row.Row
}

func (it *iterator) Columns() []string { return it.chain.Columns() }

func (it *iterator) Next() bool {
	for it.src.Next() {
		if r, ok := it.chain.Apply(it.src.Row()); ok {
			it.cur = r
			return true
		}
	}
	return false
}

func (it *iterator) Row() row.Row { return it.cur }
func (it *iterator) Err() error   { return it.src.Err() }
