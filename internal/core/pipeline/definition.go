// Package pipeline holds declarative pipeline definitions: where rows come
// from, how they are transformed, grouped and reduced, and where the result
// goes. Definitions are loaded from YAML files, one pipeline per file.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/aevon-lab/cohort/internal/core/aggregation"
	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/segment"
	"github.com/aevon-lab/cohort/internal/core/storage"
	"github.com/aevon-lab/cohort/internal/core/transform"
)

// Definition is a fully decoded pipeline.
type Definition struct {
	Name        string
	Description string
	Source      storage.SourceDescriptor
	Transforms  []transform.Step
	Spec        aggregation.Spec
	OrderBy     []aggregation.SortKey
	Limit       int
	Sink        storage.TargetDescriptor
	Fingerprint string // SHA-256 of the raw YAML file
	Path        string
}

// DependsOn returns the upstream pipeline for sources of kind pipeline.
func (d Definition) DependsOn() string {
	if d.Source.Kind == "pipeline" {
		return d.Source.Pipeline
	}
	return ""
}

// rawDefinition is the on-disk YAML shape.
type rawDefinition struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Source      rawSource      `yaml:"source"`
	Transforms  []rawTransform `yaml:"transforms"`
	GroupBy     []string       `yaml:"group_by"`
	Reducers    []rawReducer   `yaml:"reducers"`
	Derived     []rawDerived   `yaml:"derived"`
	Having      []rawCondition `yaml:"having"`
	OrderBy     []rawSortKey   `yaml:"order_by"`
	Limit       int            `yaml:"limit"`
	Sink        rawSink        `yaml:"sink"`
}

type rawSource struct {
	Kind       string            `yaml:"kind"`
	Connection string            `yaml:"connection"`
	Table      string            `yaml:"table"`
	Columns    []string          `yaml:"columns"`
	Filter     []rawCondition    `yaml:"filter"`
	Path       string            `yaml:"path"`
	Types      map[string]string `yaml:"types"`
	Pipeline   string            `yaml:"pipeline"`
	Timeout    string            `yaml:"timeout"`
}

type rawSink struct {
	Kind        string `yaml:"kind"`
	Connection  string `yaml:"connection"`
	Table       string `yaml:"table"`
	Path        string `yaml:"path"`
	CreateTable bool   `yaml:"create_table"`
	BatchSize   int    `yaml:"batch_size"`
	Timeout     string `yaml:"timeout"`
}

type rawTransform struct {
	Kind       string         `yaml:"kind"`
	Column     string         `yaml:"column"`
	Output     string         `yaml:"output"`
	Min        *scalar        `yaml:"min"`
	Max        *scalar        `yaml:"max"`
	Divisor    *scalar        `yaml:"divisor"`
	Unit       string         `yaml:"unit"`
	Rules      *rawRuleSet    `yaml:"rules"`
	Conditions []rawCondition `yaml:"conditions"`
}

type rawReducer struct {
	Name   string         `yaml:"name"`
	Op     string         `yaml:"op"`
	Column string         `yaml:"column"`
	P      *float64       `yaml:"p"`
	Where  []rawCondition `yaml:"where"`
}

type rawDerived struct {
	Name     string      `yaml:"name"`
	Op       string      `yaml:"op"`
	Left     string      `yaml:"left"`
	Right    string      `yaml:"right"`
	Constant *scalar     `yaml:"constant"`
	Places   *int32      `yaml:"places"`
	Segments *rawRuleSet `yaml:"segments"`
}

type rawSortKey struct {
	Column string `yaml:"column"`
	Desc   bool   `yaml:"desc"`
}

type rawRuleSet struct {
	Rules   []rawRule `yaml:"rules"`
	Default string    `yaml:"default"`
}

type rawRule struct {
	Label        string   `yaml:"label"`
	rawPredicate `yaml:",inline"`
}

type rawCondition struct {
	Column       string `yaml:"column"`
	rawPredicate `yaml:",inline"`
}

type rawPredicate struct {
	Op           string   `yaml:"op"`
	Value        *scalar  `yaml:"value"`
	Values       []scalar `yaml:"values"`
	Min          *scalar  `yaml:"min"`
	Max          *scalar  `yaml:"max"`
	MinExclusive bool     `yaml:"min_exclusive"`
	MaxExclusive bool     `yaml:"max_exclusive"`
}

// scalar keeps YAML scalars exact: numbers are decoded from their text, not
// through float64.
type scalar struct {
	v row.Value
}

func (s *scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", n.Line)
	}
	switch n.ShortTag() {
	case "!!null":
		s.v = row.Null()
	case "!!int":
		v, err := row.Parse(n.Value, row.TypeInt)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		s.v = v
	case "!!float":
		v, err := row.Parse(n.Value, row.TypeDecimal)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		s.v = v
	case "!!bool":
		v, err := row.Parse(n.Value, row.TypeBool)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		s.v = v
	case "!!timestamp":
		v, err := row.Parse(n.Value, row.TypeTimestamp)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		s.v = v
	default:
		s.v = row.String(n.Value)
	}
	return nil
}

func (s *scalar) decimal(field string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, ok := s.v.Numeric()
	if !ok {
		return nil, coreerrors.Specf(field, "expected a number, got %q", s.v.String())
	}
	return &d, nil
}

// Parse decodes one YAML pipeline definition. Structural problems are
// reported as SpecErrors; column references are checked later, when the
// pipeline is compiled against its source columns.
func Parse(data []byte) (Definition, error) {
	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Definition{}, fmt.Errorf("parsing pipeline: %w", err)
	}
	def, err := raw.decode()
	if err != nil {
		return Definition{}, coreerrors.AsSpecError(raw.Name, err)
	}
	return def, nil
}

func (raw rawDefinition) decode() (Definition, error) {
	def := Definition{
		Name:        strings.TrimSpace(raw.Name),
		Description: raw.Description,
		Limit:       raw.Limit,
	}
	if def.Name == "" {
		return def, coreerrors.Specf("name", "must not be empty")
	}
	if raw.Limit < 0 {
		return def, coreerrors.Specf("limit", "must be >= 0")
	}

	src, err := raw.Source.decode()
	if err != nil {
		return def, err
	}
	def.Source = src

	for i, t := range raw.Transforms {
		step, err := t.decode(fmt.Sprintf("transforms[%d]", i))
		if err != nil {
			return def, err
		}
		def.Transforms = append(def.Transforms, step)
	}

	def.Spec.GroupBy = raw.GroupBy
	for i, r := range raw.Reducers {
		where, err := decodeConditions(fmt.Sprintf("reducers[%d].where", i), r.Where)
		if err != nil {
			return def, err
		}
		spec := aggregation.ReducerSpec{Name: r.Name, Op: r.Op, Column: r.Column, Where: where}
		if r.P != nil {
			spec.P = *r.P
		} else if aggregation.NormalizeOperator(r.Op) == aggregation.OpPercentile {
			return def, coreerrors.Specf(fmt.Sprintf("reducers[%d].p", i), "percentile needs p in [0, 1]")
		}
		def.Spec.Reducers = append(def.Spec.Reducers, spec)
	}
	for i, d := range raw.Derived {
		field := fmt.Sprintf("derived[%d]", i)
		constant, err := d.Constant.decimal(field + ".constant")
		if err != nil {
			return def, err
		}
		spec := aggregation.DerivedSpec{
			Name:     d.Name,
			Op:       d.Op,
			Left:     d.Left,
			Right:    d.Right,
			Constant: constant,
			Places:   d.Places,
		}
		if d.Segments != nil {
			rs, err := d.Segments.decode(field + ".segments")
			if err != nil {
				return def, err
			}
			spec.Segments = &rs
		}
		def.Spec.Derived = append(def.Spec.Derived, spec)
	}
	having, err := decodeConditions("having", raw.Having)
	if err != nil {
		return def, err
	}
	def.Spec.Having = having

	for i, k := range raw.OrderBy {
		if strings.TrimSpace(k.Column) == "" {
			return def, coreerrors.Specf(fmt.Sprintf("order_by[%d]", i), "column must not be empty")
		}
		def.OrderBy = append(def.OrderBy, aggregation.SortKey{Column: k.Column, Desc: k.Desc})
	}

	sink, err := raw.Sink.decode()
	if err != nil {
		return def, err
	}
	def.Sink = sink
	return def, nil
}

func (s rawSource) decode() (storage.SourceDescriptor, error) {
	d := storage.SourceDescriptor{
		Kind:       strings.ToLower(strings.TrimSpace(s.Kind)),
		Connection: s.Connection,
		Table:      s.Table,
		Columns:    s.Columns,
		Path:       s.Path,
		Pipeline:   s.Pipeline,
	}
	if d.Kind == "" {
		return d, coreerrors.Specf("source.kind", "must not be empty")
	}
	if d.Kind == "pipeline" && d.Pipeline == "" {
		return d, coreerrors.Specf("source.pipeline", "required for kind pipeline")
	}

	filter, err := decodeConditions("source.filter", s.Filter)
	if err != nil {
		return d, err
	}
	d.Filter = filter

	if len(s.Types) > 0 {
		d.Types = make(map[string]row.Type, len(s.Types))
		for col, name := range s.Types {
			t, err := row.ParseType(name)
			if err != nil {
				return d, coreerrors.Specf("source.types."+col, "%v", err)
			}
			d.Types[col] = t
		}
	}

	timeout, err := parseTimeout("source.timeout", s.Timeout)
	if err != nil {
		return d, err
	}
	d.Timeout = timeout
	return d, nil
}

func (s rawSink) decode() (storage.TargetDescriptor, error) {
	d := storage.TargetDescriptor{
		Kind:        strings.ToLower(strings.TrimSpace(s.Kind)),
		Connection:  s.Connection,
		Table:       s.Table,
		Path:        s.Path,
		CreateTable: s.CreateTable,
		BatchSize:   s.BatchSize,
	}
	if s.BatchSize < 0 {
		return d, coreerrors.Specf("sink.batch_size", "must be >= 0")
	}
	timeout, err := parseTimeout("sink.timeout", s.Timeout)
	if err != nil {
		return d, err
	}
	d.Timeout = timeout
	return d, nil
}

func parseTimeout(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, coreerrors.Specf(field, "invalid duration %q", s)
	}
	return d, nil
}

func (t rawTransform) decode(field string) (transform.Step, error) {
	step := transform.Step{
		Kind:   strings.ToLower(strings.TrimSpace(t.Kind)),
		Column: t.Column,
		Output: t.Output,
		Unit:   t.Unit,
	}
	var err error
	if step.Min, err = t.Min.decimal(field + ".min"); err != nil {
		return step, err
	}
	if step.Max, err = t.Max.decimal(field + ".max"); err != nil {
		return step, err
	}
	if step.Divisor, err = t.Divisor.decimal(field + ".divisor"); err != nil {
		return step, err
	}
	if t.Rules != nil {
		rs, err := t.Rules.decode(field + ".rules")
		if err != nil {
			return step, err
		}
		step.Rules = &rs
	}
	if step.Conditions, err = decodeConditions(field+".conditions", t.Conditions); err != nil {
		return step, err
	}
	return step, nil
}

func (r rawRuleSet) decode(field string) (segment.RuleSet, error) {
	rs := segment.RuleSet{Default: r.Default}
	for i, rule := range r.Rules {
		p, err := rule.rawPredicate.decode(fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return rs, err
		}
		rs.Rules = append(rs.Rules, segment.Rule{Label: rule.Label, When: p})
	}
	if err := rs.Validate(); err != nil {
		return rs, coreerrors.Specf(field, "%v", err)
	}
	return rs, nil
}

func decodeConditions(field string, raw []rawCondition) (predicate.Conjunction, error) {
	var out predicate.Conjunction
	for i, c := range raw {
		f := fmt.Sprintf("%s[%d]", field, i)
		p, err := c.rawPredicate.decode(f)
		if err != nil {
			return nil, err
		}
		out = append(out, predicate.Condition{Column: c.Column, Predicate: p})
	}
	return out, nil
}

// decode infers the operator when op is omitted: bounds mean range, a list
// means in and a single value means eq.
func (r rawPredicate) decode(field string) (predicate.Predicate, error) {
	op := predicate.Op(strings.ToLower(strings.TrimSpace(r.Op)))
	if op == "" {
		switch {
		case r.Min != nil || r.Max != nil:
			op = predicate.OpRange
		case len(r.Values) > 0:
			op = predicate.OpIn
		case r.Value != nil:
			op = predicate.OpEq
		default:
			return predicate.Predicate{}, coreerrors.Specf(field, "needs op, value, values or min/max")
		}
	}

	p := predicate.Predicate{
		Op:           op,
		MinExclusive: r.MinExclusive,
		MaxExclusive: r.MaxExclusive,
	}
	if r.Value != nil {
		p.Value = r.Value.v
	}
	for _, v := range r.Values {
		p.Values = append(p.Values, v.v)
	}
	if r.Min != nil {
		v := r.Min.v
		p.Min = &v
	}
	if r.Max != nil {
		v := r.Max.v
		p.Max = &v
	}
	if err := p.Validate(); err != nil {
		return p, coreerrors.Specf(field, "%v", err)
	}
	return p, nil
}
