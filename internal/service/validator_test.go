package service

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"kiwigeek/internal/config"
	"kiwigeek/internal/model"
)

func comp(category string, price int64) model.Component {
	return model.Component{Category: category, Name: category + " item", Price: decimal.NewFromInt(price)}
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// towerOption builds a complete tower whose remaining parts absorb the
// difference up to total
func towerOption(title string, cpu, gpu, box, total int64) model.QuoteOption {
	rest := total - cpu - gpu - box
	mobo := rest * 40 / 100
	ram := rest * 25 / 100
	psu := rest * 15 / 100
	ssd := rest - mobo - ram - psu
	return model.QuoteOption{
		Title:    title,
		Strategy: "test",
		Components: []model.Component{
			comp("Procesador", cpu),
			comp("Tarjeta de Video", gpu),
			comp("Placa Madre", mobo),
			comp("Memoria RAM", ram),
			comp("Almacenamiento SSD", ssd),
			comp("Fuente de Poder", psu),
			comp("Case", box),
		},
	}
}

func findViolation(v model.ValidationVerdict, rule string) *model.Violation {
	for i := range v.Violations {
		if v.Violations[i].Rule == rule {
			return &v.Violations[i]
		}
	}
	return nil
}

func TestValidator_Scenarios(t *testing.T) {
	validator := NewValidator(config.DefaultQuotePolicy())

	t.Run("Budget 4000 total 4050 balanced build is valid", func(t *testing.T) {
		option := towerOption("B", 900, 1500, 300, 4050)
		if !option.Total().Equal(decimal.NewFromInt(4050)) {
			t.Fatalf("fixture total = %s", option.Total())
		}

		verdict := validator.Validate(option, dec(4000))
		if !verdict.IsValid {
			t.Errorf("expected valid verdict, got %+v", verdict.Violations)
		}
	})

	t.Run("Budget 4000 total 5100 exceeds upper bound 4400 by 700", func(t *testing.T) {
		verdict := validator.Validate(towerOption("C", 900, 1500, 300, 5100), dec(4000))
		v := findViolation(verdict, model.RuleBudgetTolerance)
		if v == nil {
			t.Fatalf("expected budget violation, got %+v", verdict.Violations)
		}
		if !v.AllowedMax.Equal(decimal.NewFromInt(4400)) {
			t.Errorf("AllowedMax = %s, want 4400", v.AllowedMax)
		}
		if !v.Delta.Equal(decimal.NewFromInt(700)) {
			t.Errorf("Delta = %s, want 700", v.Delta)
		}
	})

	t.Run("Budget 4000 total 5200 exceeds upper bound 4400 by 800", func(t *testing.T) {
		verdict := validator.Validate(towerOption("C", 900, 1500, 300, 5200), dec(4000))
		v := findViolation(verdict, model.RuleBudgetTolerance)
		if v == nil {
			t.Fatalf("expected budget violation, got %+v", verdict.Violations)
		}
		if !v.Measured.Equal(decimal.NewFromInt(5200)) || !v.Delta.Equal(decimal.NewFromInt(800)) {
			t.Errorf("Measured = %s Delta = %s, want 5200 and 800", v.Measured, v.Delta)
		}
	})

	t.Run("Budget 3000 GPU 600 CPU 900 violates GPU dominance", func(t *testing.T) {
		verdict := validator.Validate(towerOption("A", 900, 600, 200, 3000), dec(3000))
		v := findViolation(verdict, model.RuleGPUDominance)
		if v == nil {
			t.Fatalf("expected gpu_dominance violation, got %+v", verdict.Violations)
		}
		if !v.AllowedMin.Equal(decimal.NewFromInt(900)) {
			t.Errorf("AllowedMin = %s, want 900", v.AllowedMin)
		}
		if !v.Delta.Equal(decimal.NewFromInt(300)) || !v.Strict {
			t.Errorf("Delta = %s strict=%v, want 300 strict", v.Delta, v.Strict)
		}
		if verdict.HasRule(model.RuleBudgetTolerance) {
			t.Error("total is on budget, no budget violation expected")
		}
	})
}

func TestValidator_BudgetTolerance(t *testing.T) {
	validator := NewValidator(config.DefaultQuotePolicy())

	tests := []struct {
		name      string
		total     int64
		wantValid bool
		wantDelta int64
	}{
		{name: "Lower bound inclusive", total: 3600, wantValid: true},
		{name: "Upper bound inclusive", total: 4400, wantValid: true},
		{name: "Just above", total: 4401, wantDelta: 1},
		{name: "Shortfall", total: 3000, wantDelta: 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := validator.Validate(towerOption("X", 900, 1500, 300, tt.total), dec(4000))
			v := findViolation(verdict, model.RuleBudgetTolerance)
			if tt.wantValid {
				if v != nil {
					t.Errorf("unexpected violation %+v", v)
				}
				return
			}
			if v == nil {
				t.Fatal("expected budget violation")
			}
			if !v.Delta.Equal(decimal.NewFromInt(tt.wantDelta)) {
				t.Errorf("Delta = %s, want %d", v.Delta, tt.wantDelta)
			}
		})
	}
}

func TestValidator_NoBudgetSkipsBudgetRule(t *testing.T) {
	validator := NewValidator(config.DefaultQuotePolicy())

	verdict := validator.Validate(towerOption("X", 900, 1500, 300, 9000), nil)
	if !verdict.IsValid {
		t.Errorf("expected valid without budget, got %+v", verdict.Violations)
	}
}

func TestValidator_GPUDominanceEqualPrices(t *testing.T) {
	validator := NewValidator(config.DefaultQuotePolicy())

	verdict := validator.Validate(towerOption("X", 1000, 1000, 300, 4000), dec(4000))
	v := findViolation(verdict, model.RuleGPUDominance)
	if v == nil {
		t.Fatal("equal GPU and CPU prices must violate dominance")
	}
	if !v.Delta.IsZero() || !v.Strict {
		t.Errorf("Delta = %s strict=%v, want 0 past an exclusive bound", v.Delta, v.Strict)
	}
	if !strings.Contains(v.Message, "más de") {
		t.Errorf("Message = %q, must ask for more than the delta", v.Message)
	}
}

func TestValidator_CaseCeiling(t *testing.T) {
	validator := NewValidator(config.DefaultQuotePolicy())

	tests := []struct {
		name      string
		casePrice int64
		wantDelta int64
		wantRule  bool
	}{
		{name: "At ceiling", casePrice: 500},
		{name: "Above ceiling", casePrice: 650, wantRule: true, wantDelta: 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := validator.Validate(towerOption("X", 900, 1500, tt.casePrice, 4000), dec(4000))
			v := findViolation(verdict, model.RuleCaseCeiling)
			if (v != nil) != tt.wantRule {
				t.Fatalf("case_ceiling present = %v, want %v", v != nil, tt.wantRule)
			}
			if v != nil && !v.Delta.Equal(decimal.NewFromInt(tt.wantDelta)) {
				t.Errorf("Delta = %s, want %d", v.Delta, tt.wantDelta)
			}
		})
	}
}

func TestValidator_CaseShareOptIn(t *testing.T) {
	policy := config.DefaultQuotePolicy()
	policy.CaseShareEnabled = true
	validator := NewValidator(policy)

	// 3-5% of 4000 is 120..200
	verdict := validator.Validate(towerOption("X", 900, 1500, 300, 4000), dec(4000))
	v := findViolation(verdict, model.RuleCaseShare)
	if v == nil {
		t.Fatal("expected case_share violation")
	}
	if !v.Delta.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Delta = %s, want 100", v.Delta)
	}
	if verdict.HasRule(model.RuleCaseCeiling) {
		t.Error("case under the ceiling must not report case_ceiling")
	}
}

func TestValidator_GPUBands(t *testing.T) {
	policy := config.DefaultQuotePolicy()
	policy.GPUBandsEnabled = true
	validator := NewValidator(policy)

	tests := []struct {
		name      string
		cpu, gpu  int64
		wantRule  string
		wantDelta string
	}{
		// entry tier (budget 4000): band 1.7-2.0, critical 2.5
		{name: "Inside band", cpu: 800, gpu: 1500},
		{name: "Between max and critical is tolerated", cpu: 600, gpu: 1400},
		{name: "Too weak", cpu: 900, gpu: 1200, wantRule: model.RuleGPUTooWeak, wantDelta: "330"},
		{name: "Bottleneck", cpu: 500, gpu: 1400, wantRule: model.RuleCPUBottleneck, wantDelta: "150"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := validator.Validate(towerOption("X", tt.cpu, tt.gpu, 300, 4000), dec(4000))
			weak := findViolation(verdict, model.RuleGPUTooWeak)
			bottleneck := findViolation(verdict, model.RuleCPUBottleneck)

			switch tt.wantRule {
			case "":
				if weak != nil || bottleneck != nil {
					t.Errorf("unexpected band violation: %+v", verdict.Violations)
				}
			case model.RuleGPUTooWeak:
				if weak == nil {
					t.Fatalf("expected gpu_too_weak, got %+v", verdict.Violations)
				}
				if !weak.Delta.Equal(decimal.RequireFromString(tt.wantDelta)) {
					t.Errorf("Delta = %s, want %s", weak.Delta, tt.wantDelta)
				}
			case model.RuleCPUBottleneck:
				if bottleneck == nil {
					t.Fatalf("expected cpu_bottleneck, got %+v", verdict.Violations)
				}
				if !bottleneck.Delta.Equal(decimal.RequireFromString(tt.wantDelta)) {
					t.Errorf("Delta = %s, want %s", bottleneck.Delta, tt.wantDelta)
				}
			}
		})
	}
}

func TestValidator_GPUBandsOffByDefault(t *testing.T) {
	validator := NewValidator(config.DefaultQuotePolicy())

	verdict := validator.Validate(towerOption("X", 900, 1000, 300, 4000), dec(4000))
	if verdict.HasRule(model.RuleGPUTooWeak) || verdict.HasRule(model.RuleCPUBottleneck) {
		t.Errorf("band rules must be opt-in, got %+v", verdict.Violations)
	}
}

func TestValidator_Completeness(t *testing.T) {
	validator := NewValidator(config.DefaultQuotePolicy())

	t.Run("Missing parts", func(t *testing.T) {
		option := model.QuoteOption{Title: "X", Components: []model.Component{
			comp("Procesador", 900),
			comp("Tarjeta Gráfica", 1500),
		}}
		verdict := validator.Validate(option, nil)
		v := findViolation(verdict, model.RuleCompleteness)
		if v == nil {
			t.Fatal("expected completeness violation")
		}
		if !v.Measured.Equal(decimal.NewFromInt(5)) {
			t.Errorf("missing = %s, want 5", v.Measured)
		}
	})

	t.Run("Integrated graphics exempts the GPU", func(t *testing.T) {
		option := towerOption("X", 900, 1500, 300, 4000)
		option.Components = option.Components[:1:1]
		option.Components[0].IntegratedGraphics = true
		option.Components = append(option.Components,
			comp("Placa Madre", 500), comp("Memoria", 300), comp("SSD", 250),
			comp("Fuente", 200), comp("Gabinete", 150))

		verdict := validator.Validate(option, nil)
		if !verdict.IsValid {
			t.Errorf("expected valid iGPU build, got %+v", verdict.Violations)
		}
	})

	t.Run("Full PC needs monitor and peripherals", func(t *testing.T) {
		quote := &model.Quote{
			IsActionableQuote: true,
			Scope:             model.ScopeFullPC,
			Options:           []model.QuoteOption{towerOption("X", 900, 1500, 300, 4000)},
		}
		verdicts := validator.ValidateQuote(quote, nil)
		if len(verdicts) != 1 {
			t.Fatalf("verdicts = %d, want 1", len(verdicts))
		}
		v := findViolation(verdicts[0], model.RuleCompleteness)
		if v == nil || !v.Measured.Equal(decimal.NewFromInt(2)) {
			t.Errorf("expected 2 missing parts, got %+v", v)
		}
	})

	t.Run("Disabled by policy", func(t *testing.T) {
		policy := config.DefaultQuotePolicy()
		policy.RequireCompleteness = false
		lenient := NewValidator(policy)

		option := model.QuoteOption{Title: "X", Components: []model.Component{comp("Procesador", 900)}}
		if verdict := lenient.Validate(option, nil); !verdict.IsValid {
			t.Errorf("expected valid, got %+v", verdict.Violations)
		}
	})
}

func TestValidator_CoolingIsNotProcessor(t *testing.T) {
	validator := NewValidator(config.DefaultQuotePolicy())

	option := towerOption("X", 900, 1500, 300, 4000)
	option.Components = append(option.Components, comp("CPU Cooler", 2000))

	verdict := validator.Validate(option, nil)
	if verdict.HasRule(model.RuleGPUDominance) {
		t.Error("cooler price must not count as processor price")
	}
}

func TestValidateQuote_Indexes(t *testing.T) {
	validator := NewValidator(config.DefaultQuotePolicy())

	quote := &model.Quote{
		IsActionableQuote: true,
		Options: []model.QuoteOption{
			towerOption("A", 900, 1500, 300, 3600),
			towerOption("B", 900, 1500, 300, 4000),
			towerOption("C", 900, 1500, 300, 6000),
		},
	}

	verdicts := validator.ValidateQuote(quote, dec(4000))
	if len(verdicts) != 3 {
		t.Fatalf("verdicts = %d, want 3", len(verdicts))
	}
	for i, v := range verdicts {
		if v.OptionIndex != i || v.OptionTitle != quote.Options[i].Title {
			t.Errorf("verdict %d index/title = %d/%s", i, v.OptionIndex, v.OptionTitle)
		}
	}
	if !verdicts[0].IsValid || !verdicts[1].IsValid || verdicts[2].IsValid {
		t.Errorf("validity = %v %v %v, want true true false", verdicts[0].IsValid, verdicts[1].IsValid, verdicts[2].IsValid)
	}
}
