package aggregation

import (
	"fmt"

	"github.com/shopspring/decimal"

	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
)

// Plan is a validated Spec bound to an input column set. A Plan holds no
// per-run state and may be executed any number of times, concurrently.
type Plan struct {
	spec     Spec
	out      *row.Header
	reducers []compiledReducer
	derived  []derivedFunc
}

type compiledReducer struct {
	spec ReducerSpec
	agg  Aggregator
	star bool // count(*): every row counts, nulls included
}

// Compile validates spec against the input columns and returns an executable
// plan. Every failure is a *errors.SpecError and no row has been read yet.
func Compile(spec Spec, columns []string) (*Plan, error) {
	input := row.NewHeader(columns...)
	outputs := make(map[string]struct{})
	var names []string
	claim := func(field, name string) error {
		if name == "" {
			return coreerrors.Specf(field, "name must not be empty")
		}
		if _, dup := outputs[name]; dup {
			return coreerrors.Specf(field, "duplicate output column %q", name)
		}
		outputs[name] = struct{}{}
		names = append(names, name)
		return nil
	}

	for i, col := range spec.GroupBy {
		field := fmt.Sprintf("group_by[%d]", i)
		if !input.Has(col) {
			return nil, coreerrors.Specf(field, "unknown column %q", col)
		}
		if err := claim(field, col); err != nil {
			return nil, err
		}
	}

	p := &Plan{spec: spec}
	p.spec.Reducers = append([]ReducerSpec(nil), spec.Reducers...)
	for i, rs := range spec.Reducers {
		field := fmt.Sprintf("reducers[%d]", i)
		rs.Op = NormalizeOperator(rs.Op)
		if err := claim(field+".name", rs.Name); err != nil {
			return nil, err
		}
		agg, ok := Operators[rs.Op]
		if !ok {
			return nil, coreerrors.Specf(field+".op", "unsupported operator %q", rs.Op)
		}
		if rs.Column != "" && !input.Has(rs.Column) {
			return nil, coreerrors.Specf(field+".column", "unknown column %q", rs.Column)
		}
		// conditions without a column test the reducer's own column
		where := make(predicate.Conjunction, len(rs.Where))
		for j, c := range rs.Where {
			if c.Column == "" {
				if rs.Column == "" {
					return nil, coreerrors.Specf(fmt.Sprintf("%s.where[%d]", field, j), "condition needs a column when the reducer has none")
				}
				c.Column = rs.Column
			}
			where[j] = c
		}
		if err := where.Validate(input.Has); err != nil {
			return nil, coreerrors.Specf(field+".where", "%v", err)
		}
		rs.Where = where
		if err := agg.Validate(rs); err != nil {
			return nil, coreerrors.Specf(field, "%v", err)
		}
		p.reducers = append(p.reducers, compiledReducer{spec: rs, agg: agg, star: rs.Column == ""})
		p.spec.Reducers[i] = rs
	}

	for i, ds := range spec.Derived {
		field := fmt.Sprintf("derived[%d]", i)
		fn, err := compileDerived(ds, func(name string) bool {
			_, ok := outputs[name]
			return ok
		})
		if err != nil {
			return nil, coreerrors.Specf(field, "%v", err)
		}
		if err := claim(field+".name", ds.Name); err != nil {
			return nil, err
		}
		p.derived = append(p.derived, fn)
	}

	if err := spec.Having.Validate(func(name string) bool {
		_, ok := outputs[name]
		return ok
	}); err != nil {
		return nil, coreerrors.Specf("having", "%v", err)
	}

	p.out = row.NewHeader(names...)
	return p, nil
}

// Columns returns the output columns: group-by, reducers, derived.
func (p *Plan) Columns() []string { return p.out.Names() }

// Spec returns the normalized spec the plan was compiled from.
func (p *Plan) Spec() Spec { return p.spec }

// derivedFunc computes one derived value from the partially built output.
type derivedFunc func(r row.Row) row.Value

func compileDerived(ds DerivedSpec, known func(string) bool) (derivedFunc, error) {
	if ds.Left == "" {
		return nil, fmt.Errorf("left must name an aggregated column")
	}
	if !known(ds.Left) {
		return nil, fmt.Errorf("left references undefined column %q", ds.Left)
	}
	if ds.Places != nil && (*ds.Places < 0 || *ds.Places > 28) {
		return nil, fmt.Errorf("places must be within [0, 28], got %d", *ds.Places)
	}

	switch ds.Op {
	case DerivedRound:
		if ds.Places == nil {
			return nil, fmt.Errorf("round needs places")
		}
		places := *ds.Places
		return func(r row.Row) row.Value {
			d, ok := r.Value(ds.Left).Numeric()
			if !ok {
				return row.Null()
			}
			return row.Decimal(d.Round(places))
		}, nil

	case DerivedSegment:
		if ds.Segments == nil {
			return nil, fmt.Errorf("segment needs rules")
		}
		if err := ds.Segments.Validate(); err != nil {
			return nil, err
		}
		rules := *ds.Segments
		return func(r row.Row) row.Value {
			return row.String(rules.Classify(r.Value(ds.Left)))
		}, nil

	case DerivedRatio, DerivedDifference, DerivedSum, DerivedProduct, DerivedPercent:
		right, err := operand(ds, known)
		if err != nil {
			return nil, err
		}
		op := arithmetic[ds.Op]
		return func(r row.Row) row.Value {
			a, ok := r.Value(ds.Left).Numeric()
			if !ok {
				return row.Null()
			}
			b, ok := right(r)
			if !ok {
				return row.Null()
			}
			res, ok := op(a, b)
			if !ok {
				return row.Null()
			}
			if ds.Places != nil {
				res = res.Round(*ds.Places)
			}
			return row.Decimal(res)
		}, nil
	}
	return nil, fmt.Errorf("unsupported derived operator %q", ds.Op)
}

func operand(ds DerivedSpec, known func(string) bool) (func(row.Row) (decimal.Decimal, bool), error) {
	switch {
	case ds.Right != "" && ds.Constant != nil:
		return nil, fmt.Errorf("set either right or constant, not both")
	case ds.Constant != nil:
		c := *ds.Constant
		return func(row.Row) (decimal.Decimal, bool) { return c, true }, nil
	case ds.Right == "":
		return nil, fmt.Errorf("%s needs right or constant", ds.Op)
	case !known(ds.Right):
		return nil, fmt.Errorf("right references undefined column %q", ds.Right)
	}
	return func(r row.Row) (decimal.Decimal, bool) { return r.Value(ds.Right).Numeric() }, nil
}

var hundred = decimal.NewFromInt(100)

// arithmetic operators report false when the result is undefined.
var arithmetic = map[string]func(a, b decimal.Decimal) (decimal.Decimal, bool){
	DerivedRatio: func(a, b decimal.Decimal) (decimal.Decimal, bool) {
		if b.IsZero() {
			return decimal.Zero, false
		}
		return a.Div(b), true
	},
	DerivedPercent: func(a, b decimal.Decimal) (decimal.Decimal, bool) {
		if b.IsZero() {
			return decimal.Zero, false
		}
		return a.Mul(hundred).Div(b), true
	},
	DerivedDifference: func(a, b decimal.Decimal) (decimal.Decimal, bool) { return a.Sub(b), true },
	DerivedSum:        func(a, b decimal.Decimal) (decimal.Decimal, bool) { return a.Add(b), true },
	DerivedProduct:    func(a, b decimal.Decimal) (decimal.Decimal, bool) { return a.Mul(b), true },
}
