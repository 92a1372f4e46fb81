package service

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"kiwigeek/internal/model"
)

func TestRenderQuoteText(t *testing.T) {
	quote := &model.Quote{
		IsActionableQuote: true,
		IntroText:         "Aquí tienes:",
		Options: []model.QuoteOption{{
			Title:    "OPCIÓN C - POTENCIA PURA",
			Strategy: "Todo a la GPU",
			Components: []model.Component{
				{Category: "Procesador", Name: "Ryzen 5 5600", Price: decimal.NewFromInt(599), URL: "https://kiwigeek.pe/p/1"},
				{Category: "Tarjeta de Video", Name: "RTX 4070", Price: decimal.RequireFromString("2499.90"), Highlight: "💡 +60 FPS en 1440p"},
			},
		}},
	}

	text := RenderQuoteText(quote, "S/")

	wants := []string{
		"Aquí tienes:\n\n=== OPCIÓN C - POTENCIA PURA ===",
		"> ESTRATEGIA: Todo a la GPU",
		"* PROCESADOR: Ryzen 5 5600 ... S/ 599 -> [Ver Producto](https://kiwigeek.pe/p/1)",
		"* TARJETA DE VIDEO: RTX 4070 ... S/ 2499.9\n  💡 +60 FPS en 1440p",
		"TOTAL: S/ 3098.9",
	}
	for _, want := range wants {
		if !strings.Contains(text, want) {
			t.Errorf("rendered text missing %q:\n%s", want, text)
		}
	}
	if !strings.HasSuffix(text, WhatsAppClosingNote) {
		t.Errorf("missing default closing note:\n%s", text)
	}
}

func TestRenderQuoteText_NonActionable(t *testing.T) {
	quote := &model.Quote{Message: "¿Solo torre o PC completa?"}

	if got := RenderQuoteText(quote, "S/"); got != "¿Solo torre o PC completa?" {
		t.Errorf("RenderQuoteText() = %q", got)
	}
	if got := RenderQuoteText(nil, "S/"); got != "" {
		t.Errorf("RenderQuoteText(nil) = %q", got)
	}
}
