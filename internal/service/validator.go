package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kiwigeek/internal/config"
	"kiwigeek/internal/model"
	"kiwigeek/internal/utils"
)

// roleLabels are the customer-facing names used in violation messages
var roleLabels = map[model.Role]string{
	model.RoleProcessor:    "procesador",
	model.RoleMotherboard:  "placa madre",
	model.RoleMemory:       "memoria RAM",
	model.RoleStorage:      "almacenamiento",
	model.RoleGraphicsCard: "tarjeta gráfica",
	model.RolePowerSupply:  "fuente de poder",
	model.RoleCase:         "case",
	model.RoleCooling:      "refrigeración",
	model.RoleMonitor:      "monitor",
	model.RolePeripheral:   "periféricos",
}

var towerRoles = []model.Role{
	model.RoleProcessor,
	model.RoleMotherboard,
	model.RoleMemory,
	model.RoleStorage,
	model.RolePowerSupply,
	model.RoleCase,
	model.RoleGraphicsCard,
}

var fullPCExtraRoles = []model.Role{model.RoleMonitor, model.RolePeripheral}

// Validator checks quote options against the commercial policy
type Validator struct {
	policy   config.QuotePolicyConfig
	roles    *utils.RoleClassifier
	currency string
}

// ValidatorOption configures a Validator
type ValidatorOption func(*Validator)

// WithRoleClassifier replaces the default category synonym table
func WithRoleClassifier(c *utils.RoleClassifier) ValidatorOption {
	return func(v *Validator) { v.roles = c }
}

// WithCurrency sets the currency symbol used in messages
func WithCurrency(symbol string) ValidatorOption {
	return func(v *Validator) { v.currency = symbol }
}

// NewValidator creates a validator for the given policy
func NewValidator(policy config.QuotePolicyConfig, opts ...ValidatorOption) *Validator {
	v := &Validator{
		policy:   policy,
		roles:    utils.NewRoleClassifier(nil),
		currency: "S/",
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Policy returns the policy the validator applies
func (v *Validator) Policy() config.QuotePolicyConfig {
	return v.policy
}

// Currency returns the currency symbol used in messages
func (v *Validator) Currency() string {
	return v.currency
}

// Validate checks a single option as a tower build. budget may be nil, in
// which case the budget rules are skipped.
func (v *Validator) Validate(option model.QuoteOption, budget *decimal.Decimal) model.ValidationVerdict {
	return v.validateOption(0, option, budget, model.ScopeTower)
}

// ValidateQuote returns one verdict per option, in option order
func (v *Validator) ValidateQuote(q *model.Quote, budget *decimal.Decimal) []model.ValidationVerdict {
	if q == nil {
		return nil
	}
	verdicts := make([]model.ValidationVerdict, 0, len(q.Options))
	for i, option := range q.Options {
		verdicts = append(verdicts, v.validateOption(i, option, budget, q.Scope))
	}
	return verdicts
}

// roleSummary aggregates component prices per role
type roleSummary struct {
	totals     map[model.Role]decimal.Decimal
	present    map[model.Role]bool
	integrated bool
}

func (v *Validator) summarize(option model.QuoteOption) roleSummary {
	s := roleSummary{
		totals:  make(map[model.Role]decimal.Decimal),
		present: make(map[model.Role]bool),
	}
	for _, c := range option.Components {
		role := v.roles.Classify(c.Category)
		s.totals[role] = s.totals[role].Add(c.Price)
		s.present[role] = true
		if role == model.RoleProcessor && c.IntegratedGraphics {
			s.integrated = true
		}
	}
	return s
}

func (v *Validator) validateOption(index int, option model.QuoteOption, budget *decimal.Decimal, scope model.Scope) model.ValidationVerdict {
	summary := v.summarize(option)
	total := option.Total()

	var violations []model.Violation
	if budget != nil && budget.IsPositive() {
		violations = appendIfViolated(violations, v.checkBudget(total, *budget))
	}
	violations = appendIfViolated(violations, v.checkGPUDominance(summary))
	if v.policy.GPUBandsEnabled {
		reference := total
		if budget != nil && budget.IsPositive() {
			reference = *budget
		}
		violations = appendIfViolated(violations, v.checkGPUBand(summary, reference))
	}
	violations = appendIfViolated(violations, v.checkCaseCeiling(summary))
	if v.policy.CaseShareEnabled && budget != nil && budget.IsPositive() {
		violations = appendIfViolated(violations, v.checkCaseShare(summary, *budget))
	}
	if v.policy.RequireCompleteness {
		violations = appendIfViolated(violations, v.checkCompleteness(summary, scope))
	}

	if violations == nil {
		violations = []model.Violation{}
	}

	return model.ValidationVerdict{
		OptionIndex: index,
		OptionTitle: option.Title,
		IsValid:     len(violations) == 0,
		Violations:  violations,
	}
}

func appendIfViolated(list []model.Violation, violation *model.Violation) []model.Violation {
	if violation == nil {
		return list
	}
	return append(list, *violation)
}

func (v *Validator) checkBudget(total, budget decimal.Decimal) *model.Violation {
	lower, upper := budgetBounds(budget, v.policy.MarginLow, v.policy.MarginHigh)

	switch {
	case total.GreaterThan(upper):
		delta := total.Sub(upper)
		return &model.Violation{
			Rule: model.RuleBudgetTolerance,
			Message: fmt.Sprintf("El total %s supera el máximo permitido de %s; reduce al menos %s.",
				v.money(total), v.money(upper), v.money(delta)),
			Measured:   total,
			AllowedMin: &lower,
			AllowedMax: &upper,
			Delta:      delta,
		}
	case total.LessThan(lower):
		delta := lower.Sub(total)
		return &model.Violation{
			Rule: model.RuleBudgetTolerance,
			Message: fmt.Sprintf("El total %s está por debajo del mínimo de %s; aprovecha al menos %s más.",
				v.money(total), v.money(lower), v.money(delta)),
			Measured:   total,
			AllowedMin: &lower,
			AllowedMax: &upper,
			Delta:      delta,
		}
	}
	return nil
}

func (v *Validator) checkGPUDominance(s roleSummary) *model.Violation {
	if !s.present[model.RoleGraphicsCard] || !s.present[model.RoleProcessor] {
		return nil
	}
	gpu := s.totals[model.RoleGraphicsCard]
	cpu := s.totals[model.RoleProcessor]
	if gpu.GreaterThan(cpu) {
		return nil
	}

	delta := cpu.Sub(gpu)
	return &model.Violation{
		Rule: model.RuleGPUDominance,
		Message: fmt.Sprintf("La tarjeta gráfica (%s) debe costar más que el procesador (%s); sube la GPU más de %s o baja el procesador.",
			v.money(gpu), v.money(cpu), v.money(delta)),
		Measured:   gpu,
		AllowedMin: &cpu,
		Delta:      delta,
		Strict:     true,
	}
}

func (v *Validator) gpuBand(reference decimal.Decimal) config.BandConfig {
	switch {
	case reference.LessThan(decimal.NewFromFloat(v.policy.GPUTierLow)):
		return v.policy.GPUBandEntry
	case reference.GreaterThan(decimal.NewFromFloat(v.policy.GPUTierHigh)):
		return v.policy.GPUBandHigh
	default:
		return v.policy.GPUBandMid
	}
}

func (v *Validator) checkGPUBand(s roleSummary, reference decimal.Decimal) *model.Violation {
	if !s.present[model.RoleGraphicsCard] || !s.present[model.RoleProcessor] {
		return nil
	}
	gpu := s.totals[model.RoleGraphicsCard]
	cpu := s.totals[model.RoleProcessor]
	if !cpu.IsPositive() {
		return nil
	}

	band := v.gpuBand(reference)
	minGPU := cpu.Mul(decimal.NewFromFloat(band.Min))
	maxGPU := cpu.Mul(decimal.NewFromFloat(band.Max))
	critical := cpu.Mul(decimal.NewFromFloat(band.Critical))

	switch {
	case gpu.LessThan(minGPU):
		delta := minGPU.Sub(gpu)
		return &model.Violation{
			Rule: model.RuleGPUTooWeak,
			Message: fmt.Sprintf("La GPU (%s) es débil para el procesador (%s): debe costar entre %.1fx y %.1fx el procesador; súbela al menos %s.",
				v.money(gpu), v.money(cpu), band.Min, band.Max, v.money(delta)),
			Measured:   gpu,
			AllowedMin: &minGPU,
			AllowedMax: &maxGPU,
			Delta:      delta,
		}
	case gpu.GreaterThan(critical):
		delta := gpu.Sub(critical)
		return &model.Violation{
			Rule: model.RuleCPUBottleneck,
			Message: fmt.Sprintf("El procesador (%s) limitará a la GPU (%s): la GPU no debe superar %.1fx el procesador; baja la GPU %s o mejora el procesador.",
				v.money(cpu), v.money(gpu), band.Critical, v.money(delta)),
			Measured:   gpu,
			AllowedMax: &critical,
			Delta:      delta,
		}
	}
	return nil
}

func (v *Validator) checkCaseCeiling(s roleSummary) *model.Violation {
	if !s.present[model.RoleCase] {
		return nil
	}
	price := s.totals[model.RoleCase]
	ceiling := decimal.NewFromFloat(v.policy.CaseCeiling)
	if price.LessThanOrEqual(ceiling) {
		return nil
	}

	delta := price.Sub(ceiling)
	return &model.Violation{
		Rule: model.RuleCaseCeiling,
		Message: fmt.Sprintf("El case cuesta %s y el máximo es %s; elige uno al menos %s más barato.",
			v.money(price), v.money(ceiling), v.money(delta)),
		Measured:   price,
		AllowedMax: &ceiling,
		Delta:      delta,
	}
}

func (v *Validator) checkCaseShare(s roleSummary, budget decimal.Decimal) *model.Violation {
	if !s.present[model.RoleCase] {
		return nil
	}
	price := s.totals[model.RoleCase]
	lower := budget.Mul(decimal.NewFromFloat(v.policy.CaseShareMin))
	upper := budget.Mul(decimal.NewFromFloat(v.policy.CaseShareMax))

	var delta decimal.Decimal
	switch {
	case price.GreaterThan(upper):
		delta = price.Sub(upper)
	case price.LessThan(lower):
		delta = lower.Sub(price)
	default:
		return nil
	}

	return &model.Violation{
		Rule: model.RuleCaseShare,
		Message: fmt.Sprintf("El case (%s) debe estar entre %s y %s del presupuesto; ajústalo %s.",
			v.money(price), v.money(lower), v.money(upper), v.money(delta)),
		Measured:   price,
		AllowedMin: &lower,
		AllowedMax: &upper,
		Delta:      delta,
	}
}

func (v *Validator) checkCompleteness(s roleSummary, scope model.Scope) *model.Violation {
	required := towerRoles
	if scope == model.ScopeFullPC {
		required = append(append([]model.Role{}, towerRoles...), fullPCExtraRoles...)
	}

	var missing []string
	for _, role := range required {
		if s.present[role] {
			continue
		}
		if role == model.RoleGraphicsCard && s.integrated {
			continue
		}
		missing = append(missing, roleLabels[role])
	}
	if len(missing) == 0 {
		return nil
	}

	count := decimal.NewFromInt(int64(len(missing)))
	zero := decimal.Zero
	return &model.Violation{
		Rule:       model.RuleCompleteness,
		Message:    fmt.Sprintf("Faltan componentes obligatorios: %s.", strings.Join(missing, ", ")),
		Measured:   count,
		AllowedMax: &zero,
		Delta:      count,
	}
}

// budgetBounds returns [budget×(1−low), budget×(1+high)]
func budgetBounds(budget decimal.Decimal, low, high float64) (decimal.Decimal, decimal.Decimal) {
	lower := budget.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(low)))
	upper := budget.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(high)))
	return lower, upper
}

func (v *Validator) money(d decimal.Decimal) string {
	return formatMoney(v.currency, d)
}

// formatMoney renders an amount with at most two decimals: "S/ 4400", "S/ 4399.5"
func formatMoney(currency string, d decimal.Decimal) string {
	return currency + " " + d.Round(2).String()
}
