package predicate

import (
	"fmt"

	"github.com/aevon-lab/cohort/internal/core/row"
)

// Condition applies a predicate to one column of a row.
type Condition struct {
	Column    string
	Predicate Predicate
}

// Match evaluates the condition against r. A missing column reads as null.
func (c Condition) Match(r row.Row) bool {
	return c.Predicate.Match(r.Value(c.Column))
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s", c.Column, c.Predicate)
}

// Conjunction holds when every condition holds. The empty conjunction is true.
type Conjunction []Condition

func (cs Conjunction) Match(r row.Row) bool {
	for _, c := range cs {
		if !c.Match(r) {
			return false
		}
	}
	return true
}

// Columns lists the referenced columns in declaration order.
func (cs Conjunction) Columns() []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Column)
	}
	return out
}

// Validate checks every predicate and that each column is one of known.
// A nil known skips the column check.
func (cs Conjunction) Validate(known func(string) bool) error {
	for i, c := range cs {
		if c.Column == "" {
			return fmt.Errorf("condition %d: column must not be empty", i)
		}
		if known != nil && !known(c.Column) {
			return fmt.Errorf("condition %d: unknown column %q", i, c.Column)
		}
		if err := c.Predicate.Validate(); err != nil {
			return fmt.Errorf("condition %d (%s): %w", i, c.Column, err)
		}
	}
	return nil
}
