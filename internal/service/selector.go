package service

import (
	"github.com/shopspring/decimal"

	"kiwigeek/internal/config"
	"kiwigeek/internal/model"
)

// Selector decides which options are shown to the customer
type Selector struct {
	fallbackMargin float64
}

// NewSelector creates a selector using the policy's fallback margin
func NewSelector(policy config.QuotePolicyConfig) *Selector {
	return &Selector{fallbackMargin: policy.FallbackMargin}
}

// Select keeps the valid options. When none is valid it keeps the options
// within budget×(1+fallbackMargin), and when even those are missing it keeps
// the single least-violating option. It returns the kept options and how many
// were hidden.
func (s *Selector) Select(options []model.QuoteOption, verdicts []model.ValidationVerdict, budget *decimal.Decimal) ([]model.QuoteOption, int) {
	if len(options) == 0 {
		return []model.QuoteOption{}, 0
	}

	byIndex := make(map[int]model.ValidationVerdict, len(verdicts))
	for _, v := range verdicts {
		byIndex[v.OptionIndex] = v
	}

	var kept []model.QuoteOption
	for i, option := range options {
		if v, ok := byIndex[i]; ok && v.IsValid {
			kept = append(kept, option)
		}
	}
	if len(kept) > 0 {
		return kept, len(options) - len(kept)
	}

	if budget != nil && budget.IsPositive() {
		limit := budget.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(s.fallbackMargin)))
		for _, option := range options {
			if option.Total().LessThanOrEqual(limit) {
				kept = append(kept, option)
			}
		}
		if len(kept) > 0 {
			return kept, len(options) - len(kept)
		}
	}

	best := 0
	for i := range options {
		if lessViolating(byIndex[i], byIndex[best]) {
			best = i
		}
	}
	return []model.QuoteOption{options[best]}, len(options) - 1
}

// lessViolating orders verdicts by violation count, then by summed delta
func lessViolating(a, b model.ValidationVerdict) bool {
	if len(a.Violations) != len(b.Violations) {
		return len(a.Violations) < len(b.Violations)
	}
	return totalDelta(a).LessThan(totalDelta(b))
}

func totalDelta(v model.ValidationVerdict) decimal.Decimal {
	sum := decimal.Zero
	for _, violation := range v.Violations {
		sum = sum.Add(violation.Delta)
	}
	return sum
}

// quoteScore summarizes a whole quote for best-effort comparison
type quoteScore struct {
	invalidOptions int
	violations     int
	delta          decimal.Decimal
}

func scoreVerdicts(verdicts []model.ValidationVerdict) quoteScore {
	score := quoteScore{delta: decimal.Zero}
	for _, v := range verdicts {
		if !v.IsValid {
			score.invalidOptions++
		}
		score.violations += len(v.Violations)
		score.delta = score.delta.Add(totalDelta(v))
	}
	return score
}

func (a quoteScore) betterThan(b quoteScore) bool {
	if a.invalidOptions != b.invalidOptions {
		return a.invalidOptions < b.invalidOptions
	}
	if a.violations != b.violations {
		return a.violations < b.violations
	}
	return a.delta.LessThan(b.delta)
}
