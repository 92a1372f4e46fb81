package service

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"kiwigeek/internal/config"
)

func TestBuildSystemInstruction(t *testing.T) {
	policy := config.DefaultQuotePolicy()
	policy.MarginHigh = 0.15

	instruction := BuildSystemInstruction(`[{"name":"Ryzen 5 5600","price":599}]`, policy, "S/")

	wants := []string{
		"PREGUNTA PRIMERO",
		"nunca más de S/ 500",
		"[P - 10%]",
		"[P + 15%]",
		WhatsAppClosingNote,
		`"isActionableQuote": true`,
		`[{"name":"Ryzen 5 5600","price":599}]`,
	}
	for _, want := range wants {
		if !strings.Contains(instruction, want) {
			t.Errorf("system instruction missing %q", want)
		}
	}
	if !strings.HasSuffix(instruction, `"price":599}]`) {
		t.Error("catalog should close the instruction")
	}
}

func TestComposeUserPrompt(t *testing.T) {
	if got := composeUserPrompt("hola", nil, "S/"); got != "hola" {
		t.Errorf("without budget = %q", got)
	}

	budget := decimal.NewFromInt(4000)
	got := composeUserPrompt("solo torre", &budget, "S/")
	if got != "solo torre\n\n(Presupuesto confirmado del cliente: S/ 4000)" {
		t.Errorf("with budget = %q", got)
	}
}
