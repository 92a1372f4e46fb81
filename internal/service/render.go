package service

import (
	"fmt"
	"strings"

	"kiwigeek/internal/model"
)

// RenderQuoteText formats a quote as plain chat text:
//
//	=== OPCIÓN A - AHORRO ===
//	> ESTRATEGIA: ...
//	* PROCESADOR: Ryzen 5 5600 ... S/ 599 -> [Ver Producto](url)
//	----------------------------------
//	TOTAL: S/ 3600
func RenderQuoteText(q *model.Quote, currency string) string {
	if q == nil {
		return ""
	}
	if !q.IsActionableQuote {
		return firstNonEmpty(q.Message, q.IntroText)
	}

	var b strings.Builder
	if q.IntroText != "" {
		b.WriteString(q.IntroText)
		b.WriteString("\n\n")
	}

	for _, option := range q.Options {
		fmt.Fprintf(&b, "=== %s ===\n", option.Title)
		if option.Strategy != "" {
			fmt.Fprintf(&b, "> ESTRATEGIA: %s\n", option.Strategy)
		}
		for _, c := range option.Components {
			fmt.Fprintf(&b, "* %s: %s ... %s", strings.ToUpper(c.Category), c.Name, formatMoney(currency, c.Price))
			if c.URL != "" {
				fmt.Fprintf(&b, " -> [Ver Producto](%s)", c.URL)
			}
			b.WriteString("\n")
			if c.Highlight != "" {
				fmt.Fprintf(&b, "  %s\n", c.Highlight)
			}
		}
		b.WriteString("----------------------------------\n")
		fmt.Fprintf(&b, "TOTAL: %s\n\n", formatMoney(currency, option.Total()))
	}

	outro := q.OutroText
	if outro == "" {
		outro = WhatsAppClosingNote
	}
	b.WriteString(outro)

	return strings.TrimSpace(b.String())
}
