// Package policy maps a degradation metric to a remediation decision. A Table
// is plain data with no side effects, so it can be built from configuration
// and checked against a list of (metric, decision) pairs.
package policy

import (
	"fmt"
	"math"
	"strings"
)

// Decision is the remediation intensity chosen for a degraded entity.
type Decision string

const (
	None      Decision = "none"
	Single    Decision = "single"
	Double    Decision = "double"
	DeferLong Decision = "defer_long"
)

// ParseDecision accepts the configuration spelling of a decision.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case None, Single, Double, DeferLong:
		return d, nil
	default:
		return "", fmt.Errorf("unknown policy outcome %q", s)
	}
}

// Band applies when the metric is strictly above Above.
type Band struct {
	Above   float64
	Outcome Decision
}

// Fallback applies when no band matched. If a secondary metric is present and
// at least SecondaryAtLeast, SecondaryOutcome is used instead of Outcome.
type Fallback struct {
	Outcome          Decision
	SecondaryAtLeast *float64
	SecondaryOutcome Decision
}

// Table is evaluated high to low: the first band whose bound the metric
// exceeds wins, otherwise the fallback decides.
type Table struct {
	Bands    []Band
	Fallback Fallback
}

// Default returns the table used when a group configures no policy.
func Default() Table {
	secondary := 80.0
	return Table{
		Bands: []Band{
			{Above: 95, Outcome: DeferLong},
			{Above: 80, Outcome: Double},
		},
		Fallback: Fallback{
			Outcome:          Single,
			SecondaryAtLeast: &secondary,
			SecondaryOutcome: Double,
		},
	}
}

// Decide returns the decision for metric and the optional secondary metric.
func (t Table) Decide(metric float64, secondary *float64) Decision {
	for _, b := range t.Bands {
		if metric > b.Above {
			return b.Outcome
		}
	}
	fb := t.Fallback
	if secondary != nil && fb.SecondaryAtLeast != nil && *secondary >= *fb.SecondaryAtLeast {
		return fb.SecondaryOutcome
	}
	return fb.Outcome
}

// Validate checks that bands are strictly descending and every outcome is
// known. It returns one message per problem.
func (t Table) Validate() []string {
	var problems []string
	prev := math.Inf(1)
	for i, b := range t.Bands {
		if math.IsNaN(b.Above) {
			problems = append(problems, fmt.Sprintf("band %d: bound is NaN", i))
			continue
		}
		if b.Above >= prev {
			problems = append(problems, fmt.Sprintf("band %d: bound %.2f must be below previous bound %.2f", i, b.Above, prev))
		}
		prev = b.Above
		if _, err := ParseDecision(string(b.Outcome)); err != nil {
			problems = append(problems, fmt.Sprintf("band %d: %v", i, err))
		}
	}
	if _, err := ParseDecision(string(t.Fallback.Outcome)); err != nil {
		problems = append(problems, fmt.Sprintf("fallback: %v", err))
	}
	if t.Fallback.SecondaryAtLeast != nil {
		if _, err := ParseDecision(string(t.Fallback.SecondaryOutcome)); err != nil {
			problems = append(problems, fmt.Sprintf("fallback secondary: %v", err))
		}
	}
	return problems
}
