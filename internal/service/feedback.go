package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kiwigeek/internal/model"
)

// MalformedOutputFeedback is sent when the generator answer could not be decoded
const MalformedOutputFeedback = `Tu respuesta anterior no se pudo leer como JSON válido.
Responde de nuevo ÚNICAMENTE con un objeto JSON que siga exactamente el esquema indicado:
sin bloques markdown, sin comentarios, sin comas finales y con todas las claves entre comillas dobles.`

// BuildCorrectionFeedback describes every violation of every option so the
// generator can fix them in its next answer. Valid options are listed as
// such so they are kept unchanged.
func BuildCorrectionFeedback(verdicts []model.ValidationVerdict, currency string) string {
	var b strings.Builder
	b.WriteString("Tu cotización anterior no cumple las reglas de negocio. ")
	b.WriteString("Corrige solo lo necesario y responde de nuevo con el JSON completo de todas las opciones.\n")

	for _, verdict := range verdicts {
		fmt.Fprintf(&b, "\nOpción %d \"%s\": ", verdict.OptionIndex+1, verdict.OptionTitle)
		if verdict.IsValid {
			b.WriteString("cumple todas las reglas, mantenla.\n")
			continue
		}
		fmt.Fprintf(&b, "%d problema(s).\n", len(verdict.Violations))
		for _, violation := range verdict.Violations {
			fmt.Fprintf(&b, "- [%s] %s", violation.Rule, violation.Message)
			fmt.Fprintf(&b, " Medido: %s.", describeAmount(violation.Rule, currency, violation.Measured))
			if allowed := describeRange(violation, currency); allowed != "" {
				fmt.Fprintf(&b, " Permitido: %s.", allowed)
			}
			adjustment := describeAmount(violation.Rule, currency, violation.Delta)
			if violation.Strict {
				adjustment = "más de " + adjustment
			}
			fmt.Fprintf(&b, " Ajuste mínimo: %s.\n", adjustment)
		}
	}

	return b.String()
}

func describeRange(v model.Violation, currency string) string {
	switch {
	case v.AllowedMin != nil && v.AllowedMax != nil:
		return fmt.Sprintf("entre %s y %s",
			describeAmount(v.Rule, currency, *v.AllowedMin),
			describeAmount(v.Rule, currency, *v.AllowedMax))
	case v.AllowedMin != nil && v.Strict:
		return "más de " + describeAmount(v.Rule, currency, *v.AllowedMin)
	case v.AllowedMin != nil:
		return "al menos " + describeAmount(v.Rule, currency, *v.AllowedMin)
	case v.AllowedMax != nil:
		return "hasta " + describeAmount(v.Rule, currency, *v.AllowedMax)
	}
	return ""
}

// describeAmount renders counts for completeness and money for everything else
func describeAmount(rule, currency string, d decimal.Decimal) string {
	if rule == model.RuleCompleteness {
		return d.String() + " componente(s) faltante(s)"
	}
	return formatMoney(currency, d)
}
