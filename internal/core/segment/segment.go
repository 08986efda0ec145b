// Package segment maps a value to a named bucket using an ordered rule list.
package segment

import (
	"fmt"

	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
)

// Rule labels the values its predicate matches.
type Rule struct {
	Label string
	When  predicate.Predicate
}

// RuleSet is evaluated top to bottom; the first matching rule wins and Default
// covers everything else, so classification is total.
type RuleSet struct {
	Rules   []Rule
	Default string
}

// Validate rejects rule sets without a default label and malformed rules.
func (rs RuleSet) Validate() error {
	if rs.Default == "" {
		return fmt.Errorf("segment rules need a default label")
	}
	for i, r := range rs.Rules {
		if r.Label == "" {
			return fmt.Errorf("segment rule %d: label must not be empty", i)
		}
		if err := r.When.Validate(); err != nil {
			return fmt.Errorf("segment rule %d (%s): %w", i, r.Label, err)
		}
	}
	return nil
}

// Classify returns the label of the first rule matching v, else the default.
func Classify(v row.Value, rs RuleSet) string {
	for _, r := range rs.Rules {
		if r.When.Match(v) {
			return r.Label
		}
	}
	return rs.Default
}

// Classify is the method form of Classify.
func (rs RuleSet) Classify(v row.Value) string { return Classify(v, rs) }

// Labels lists every label the rule set can produce, default last.
func (rs RuleSet) Labels() []string {
	seen := make(map[string]struct{}, len(rs.Rules)+1)
	out := make([]string, 0, len(rs.Rules)+1)
	for _, r := range rs.Rules {
		if _, ok := seen[r.Label]; ok {
			continue
		}
		seen[r.Label] = struct{}{}
		out = append(out, r.Label)
	}
	if _, ok := seen[rs.Default]; !ok {
		out = append(out, rs.Default)
	}
	return out
}
