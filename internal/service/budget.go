package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"kiwigeek/internal/config"
	"kiwigeek/internal/utils"
)

const (
	currencyPattern = `(?:s/\.?|us\$|\$|usd|pen)`
	amountPattern   = `(\d{1,3}(?: \d{3})+(?:[.,]\d{1,2})?|\d[\d.,]*\d|\d)`
	fillerPattern   = `(?:\s*(?:de|del|of|es|is|maximo|max|total|aprox|aproximado|aproximadamente|about|around|alrededor|unos|un|como|hasta|:|=))*`
)

// budgetRule is one amount pattern. Group 1 is the amount, group 2 the
// optional k/mil multiplier.
type budgetRule struct {
	name string
	re   *regexp.Regexp
}

// Rules are ordered from most to least specific
var budgetRules = []budgetRule{
	{
		name: "budget_keyword",
		re:   regexp.MustCompile(`(?:presupuesto|budget)` + fillerPattern + `\s*` + currencyPattern + `?\s*` + amountPattern + `(?:\s*(k|mil)\b)?`),
	},
	{
		name: "possession",
		re:   regexp.MustCompile(`\b(?:tengo|cuento con|dispongo de|i have|i've got)` + fillerPattern + `\s*` + currencyPattern + `?\s*` + amountPattern + `(?:\s*(k|mil)\b)?`),
	},
	{
		name: "currency_prefix",
		re:   regexp.MustCompile(currencyPattern + `\s*` + amountPattern + `(?:\s*(k|mil)\b)?`),
	},
	{
		name: "currency_word",
		re:   regexp.MustCompile(amountPattern + `\s*(?:(k|mil)\s*)?(?:soles|sol|lucas|dolares|dollars|usd|pen)\b`),
	},
	{
		name: "multiplier",
		re:   regexp.MustCompile(amountPattern + `\s*(k|mil)\b`),
	},
}

var thousand = decimal.NewFromInt(1000)

// BudgetExtractor finds a monetary budget in free text
type BudgetExtractor struct {
	min decimal.Decimal
	max decimal.Decimal
}

// NewBudgetExtractor creates an extractor with the plausibility window from the policy
func NewBudgetExtractor(policy config.QuotePolicyConfig) *BudgetExtractor {
	return &BudgetExtractor{
		min: decimal.NewFromFloat(policy.BudgetMin),
		max: decimal.NewFromFloat(policy.BudgetMax),
	}
}

// Extract returns the first plausible budget found by the ordered rules
func (e *BudgetExtractor) Extract(text string) (decimal.Decimal, bool) {
	folded := utils.FoldText(text)
	if folded == "" {
		return decimal.Zero, false
	}

	for _, rule := range budgetRules {
		for _, m := range rule.re.FindAllStringSubmatch(folded, -1) {
			amount, ok := ParseAmount(m[1])
			if !ok {
				continue
			}
			if len(m) > 2 && m[2] != "" {
				amount = amount.Mul(thousand)
			}
			if e.plausible(amount) {
				return amount, true
			}
		}
	}

	return decimal.Zero, false
}

func (e *BudgetExtractor) plausible(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.GreaterThanOrEqual(e.min) && amount.LessThanOrEqual(e.max)
}

// ParseAmount parses a numeric token with thousands and decimal separators in
// either convention: "4,500", "4.500", "4,500.50", "4.500,50", "4.5".
// A single separator followed by exactly three digits is a thousands separator.
func ParseAmount(token string) (decimal.Decimal, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(token), " ", "")
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = normalizeSingleSeparator(s, ",")
	case lastDot >= 0:
		s = normalizeSingleSeparator(s, ".")
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, true
}

func normalizeSingleSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	idx := strings.Index(s, sep)
	if len(s)-idx-1 == 3 {
		return strings.Replace(s, sep, "", 1)
	}
	return strings.Replace(s, sep, ".", 1)
}

var priceNoiseRe = regexp.MustCompile(`[^\d.,\-]`)

// parseMoneyJSON reads a JSON number or a price string such as "S/ 1,299.00"
func parseMoneyJSON(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.Zero, fmt.Errorf("missing amount")
	}

	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount string: %w", err)
		}
		cleaned := priceNoiseRe.ReplaceAllString(s, "")
		cleaned = strings.Trim(cleaned, ".,")
		amount, ok := ParseAmount(cleaned)
		if !ok {
			return decimal.Zero, fmt.Errorf("invalid amount %q", s)
		}
		return amount, nil
	}

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %s: %w", text, err)
	}
	return amount, nil
}
