package model

import (
	"github.com/shopspring/decimal"
)

// Role is the normalized function of a component inside a build
type Role string

// Component roles
const (
	RoleProcessor    Role = "PROCESSOR"
	RoleMotherboard  Role = "MOTHERBOARD"
	RoleMemory       Role = "MEMORY"
	RoleStorage      Role = "STORAGE"
	RoleGraphicsCard Role = "GRAPHICS_CARD"
	RolePowerSupply  Role = "POWER_SUPPLY"
	RoleCase         Role = "CASE"
	RoleCooling      Role = "COOLING"
	RoleMonitor      Role = "MONITOR"
	RolePeripheral   Role = "PERIPHERAL"
	RoleOther        Role = "OTHER"
)

// Scope tells whether the customer asked for the tower alone or a complete PC
type Scope string

// Quote scopes
const (
	ScopeUnknown Scope = ""
	ScopeTower   Scope = "TOWER"
	ScopeFullPC  Scope = "FULL_PC"
)

// Component is one hardware part inside a quote option
type Component struct {
	Category           string          `json:"category"`
	Name               string          `json:"name"`
	Price              decimal.Decimal `json:"price"`
	URL                string          `json:"url"`
	Highlight          string          `json:"highlight,omitempty"`
	IntegratedGraphics bool            `json:"integrated_graphics,omitempty"`
}

// QuoteOption is a single proposed build
type QuoteOption struct {
	Title      string      `json:"title"`
	Strategy   string      `json:"strategy"`
	Components []Component `json:"components"`
}

// Total returns the sum of all component prices
func (o QuoteOption) Total() decimal.Decimal {
	total := decimal.Zero
	for _, c := range o.Components {
		total = total.Add(c.Price)
	}
	return total
}

// Quote is the full generator answer for one user turn
type Quote struct {
	IsActionableQuote bool             `json:"is_actionable_quote"`
	Message           string           `json:"message,omitempty"`
	Scope             Scope            `json:"scope,omitempty"`
	Options           []QuoteOption    `json:"options"`
	DetectedBudget    *decimal.Decimal `json:"detected_budget,omitempty"`
	IntroText         string           `json:"intro_text,omitempty"`
	OutroText         string           `json:"outro_text,omitempty"`
}

// WithOptions returns a copy of the quote carrying a different option set
func (q Quote) WithOptions(options []QuoteOption) *Quote {
	q.Options = options
	return &q
}

// Rule names reported in violations
const (
	RuleBudgetTolerance = "budget_tolerance"
	RuleGPUDominance    = "gpu_dominance"
	RuleGPUTooWeak      = "gpu_too_weak"
	RuleCPUBottleneck   = "cpu_bottleneck"
	RuleCaseCeiling     = "case_ceiling"
	RuleCaseShare       = "case_share"
	RuleCompleteness    = "completeness"
)

// Violation describes one broken rule: what was measured, what was allowed
// and the distance to the violated bound. For an inclusive bound moving the
// measured value by Delta satisfies the rule. When Strict is set the bound is
// exclusive and the value must move by more than Delta.
type Violation struct {
	Rule       string           `json:"rule"`
	Message    string           `json:"message"`
	Measured   decimal.Decimal  `json:"measured"`
	AllowedMin *decimal.Decimal `json:"allowed_min,omitempty"`
	AllowedMax *decimal.Decimal `json:"allowed_max,omitempty"`
	Delta      decimal.Decimal  `json:"delta"`
	Strict     bool             `json:"strict,omitempty"`
}

// ValidationVerdict is the result of validating one quote option
type ValidationVerdict struct {
	OptionIndex int         `json:"option_index"`
	OptionTitle string      `json:"option_title"`
	IsValid     bool        `json:"is_valid"`
	Violations  []Violation `json:"violations"`
}

// HasRule reports whether the verdict carries a violation of the given rule
func (v ValidationVerdict) HasRule(rule string) bool {
	for _, violation := range v.Violations {
		if violation.Rule == rule {
			return true
		}
	}
	return false
}
