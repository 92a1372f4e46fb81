package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"kiwigeek/internal/config"
)

// WhatsAppClosingNote is appended to every actionable quote
const WhatsAppClosingNote = "⚠ **ATENCIÓN:** Si decides comprar tu **PC COMPLETA** con nosotros, comunícate al WhatsApp para aplicarte un **DESCUENTO ADICIONAL EXCLUSIVO**."

const quoteSchema = `{
  "isActionableQuote": true,
  "message": "texto para el cliente cuando isActionableQuote es false (pregunta aclaratoria)",
  "scope": "TOWER | FULL_PC",
  "detectedBudget": 4000,
  "introText": "saludo breve",
  "outroText": "cierre de venta",
  "options": [
    {
      "title": "OPCIÓN A - AHORRO",
      "strategy": "resumen de 1 línea",
      "components": [
        {
          "category": "PROCESADOR",
          "name": "nombre exacto del catálogo",
          "price": 899.00,
          "url": "URL exacta del catálogo",
          "highlight": "💡 mejora explicada (solo si corresponde)",
          "integratedGraphics": false
        }
      ]
    }
  ]
}`

// BuildSystemInstruction composes the generator's standing instructions: the
// sales rules, the three pricing strategies, the business constraints the
// validator enforces, the JSON schema and the catalog.
func BuildSystemInstruction(catalog string, policy config.QuotePolicyConfig, currency string) string {
	low := percent(policy.MarginLow)
	high := percent(policy.MarginHigh)

	var b strings.Builder
	b.WriteString("ROL: Eres 'Kiwigeek AI', Ingeniero y Vendedor Experto de hardware. Tu misión es EDUCAR y VENDER.\n")
	b.WriteString("CONTEXTO: Tienes un inventario con LINKS. Usa solo productos, precios y URLs del catálogo.\n\n")

	b.WriteString("--- PASO 0: FILTRO DE ALCANCE ---\n")
	b.WriteString("1. Si el cliente no especifica 'Solo Torre' o 'PC Completa', PREGUNTA PRIMERO: responde con isActionableQuote=false y la pregunta en message.\n")
	b.WriteString("2. Si no conoces el presupuesto, pregúntalo de la misma forma.\n")
	b.WriteString("3. Si ya especificó, avanza e indica scope TOWER o FULL_PC.\n\n")

	b.WriteString("--- PASO 1: LÓGICA DE COMPONENTES ---\n")
	fmt.Fprintf(&b, "1. CASE: Manténlo económico para priorizar rendimiento, nunca más de %s.\n", formatMoney(currency, decimal.NewFromFloat(policy.CaseCeiling)))
	b.WriteString("2. FUENTE: Si subes GPU, sube la Fuente obligatoriamente.\n")
	b.WriteString("3. GPU: La tarjeta gráfica siempre debe costar más que el procesador.\n")
	b.WriteString("4. Cada opción incluye procesador, placa madre, memoria RAM, almacenamiento, fuente, case y tarjeta gráfica (salvo procesador con gráficos integrados, márcalo con integratedGraphics=true).\n")
	b.WriteString("5. PC Completa: añade además monitor y periféricos.\n\n")

	b.WriteString("--- PASO 2: ALGORITMOS DE COTIZACIÓN (P = presupuesto) ---\n")
	fmt.Fprintf(&b, "1. OPCIÓN A (AHORRO): [P - %d%%]. Recorta Case y lujos.\n", low)
	b.WriteString("2. OPCIÓN B (IDEAL): [P Exacto]. Equilibrio.\n")
	fmt.Fprintf(&b, "3. OPCIÓN C (POTENCIA PURA): [P + %d%%]. Invierte en GPU -> Fuente -> RAM -> CPU.\n", high)
	fmt.Fprintf(&b, "Ninguna opción puede salir del rango [P - %d%%, P + %d%%]. Suma los precios con exactitud.\n\n", low, high)

	b.WriteString("--- PASO 3: ARGUMENTACIÓN DE VENTAS ---\n")
	b.WriteString("En la OPCIÓN C, usa '💡' en highlight para explicar la mejora (FPS, Seguridad, Futuro).\n\n")

	b.WriteString("--- CIERRE DE VENTA ---\n")
	fmt.Fprintf(&b, "Finaliza outroText con: '%s'\n\n", WhatsAppClosingNote)

	b.WriteString("--- FORMATO DE RESPUESTA ---\n")
	fmt.Fprintf(&b, "Responde ÚNICAMENTE con un objeto JSON válido (precios como números, en %s), sin markdown ni comentarios, con este esquema:\n", currency)
	b.WriteString(quoteSchema)
	b.WriteString("\n\n--- CATÁLOGO ---\n")
	b.WriteString(catalog)

	return b.String()
}

// composeUserPrompt appends the confirmed budget so every option is anchored to it
func composeUserPrompt(userText string, budget *decimal.Decimal, currency string) string {
	if budget == nil {
		return userText
	}
	return fmt.Sprintf("%s\n\n(Presupuesto confirmado del cliente: %s)", userText, formatMoney(currency, *budget))
}

func percent(fraction float64) int {
	return int(math.Round(fraction * 100))
}
