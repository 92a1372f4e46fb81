package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kiwigeek/internal/model"
	"kiwigeek/internal/utils"
)

// wireQuote is the JSON shape the generator is instructed to produce. A few
// snake_case aliases are accepted because models drift between conventions.
type wireQuote struct {
	IsActionableQuote      *flexBool       `json:"isActionableQuote"`
	IsActionableQuoteSnake *flexBool       `json:"is_actionable_quote"`
	Message                string          `json:"message"`
	Scope                  string          `json:"scope"`
	DetectedBudget         json.RawMessage `json:"detectedBudget"`
	DetectedBudgetSnake    json.RawMessage `json:"detected_budget"`
	IntroText              string          `json:"introText"`
	IntroTextSnake         string          `json:"intro_text"`
	OutroText              string          `json:"outroText"`
	OutroTextSnake         string          `json:"outro_text"`
	Options                []wireOption    `json:"options"`
}

type wireOption struct {
	Title      string          `json:"title"`
	Strategy   string          `json:"strategy"`
	Components []wireComponent `json:"components"`
}

type wireComponent struct {
	Category                string          `json:"category"`
	Name                    string          `json:"name"`
	Price                   json.RawMessage `json:"price"`
	URL                     string          `json:"url"`
	Highlight               string          `json:"highlight"`
	IntegratedGraphics      flexBool        `json:"integratedGraphics"`
	IntegratedGraphicsSnake flexBool        `json:"integrated_graphics"`
}

// flexBool accepts JSON booleans and the string or numeric spellings models
// emit instead ("true", "sí", 1)
type flexBool bool

func (b *flexBool) UnmarshalJSON(raw []byte) error {
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		text = s
	}

	switch utils.FoldText(text) {
	case "true", "yes", "si", "1":
		*b = true
	case "false", "no", "0", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", raw)
	}
	return nil
}

// QuoteDecoder turns raw generator text into a structured quote
type QuoteDecoder struct {
	logger *zap.Logger
}

// NewQuoteDecoder creates a decoder; a nil logger disables logging
func NewQuoteDecoder(logger *zap.Logger) *QuoteDecoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteDecoder{logger: logger}
}

// Decode repairs and parses raw generator output. Any failure is reported as
// ErrUndecodable.
func (d *QuoteDecoder) Decode(raw string) (*model.Quote, error) {
	var wire wireQuote
	stage, err := utils.ParseAIJSON(raw, &wire)
	if err != nil {
		d.logger.Debug("generator output is not JSON",
			zap.String("raw", utils.Truncate(raw, 200)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	quote, err := wire.toQuote()
	if err != nil {
		d.logger.Debug("generator output has an invalid shape", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	if stage == utils.StageLenient {
		d.logger.Info("generator output needed lenient repairs",
			zap.Int("options", len(quote.Options)))
	}

	return quote, nil
}

func (w *wireQuote) toQuote() (*model.Quote, error) {
	actionable := w.IsActionableQuote
	if actionable == nil {
		actionable = w.IsActionableQuoteSnake
	}
	if actionable == nil {
		return nil, fmt.Errorf("missing isActionableQuote")
	}

	quote := &model.Quote{
		IsActionableQuote: bool(*actionable),
		Message:           strings.TrimSpace(w.Message),
		Scope:             parseScope(w.Scope),
		IntroText:         strings.TrimSpace(firstNonEmpty(w.IntroText, w.IntroTextSnake)),
		OutroText:         strings.TrimSpace(firstNonEmpty(w.OutroText, w.OutroTextSnake)),
		Options:           []model.QuoteOption{},
	}

	budgetRaw := w.DetectedBudget
	if len(budgetRaw) == 0 {
		budgetRaw = w.DetectedBudgetSnake
	}
	if len(budgetRaw) > 0 && string(budgetRaw) != "null" {
		if budget, err := parseMoneyJSON(budgetRaw); err == nil && budget.IsPositive() {
			quote.DetectedBudget = &budget
		}
	}

	if !quote.IsActionableQuote {
		if quote.Message == "" && quote.IntroText == "" {
			return nil, fmt.Errorf("non-actionable quote without message")
		}
		return quote, nil
	}

	if len(w.Options) == 0 {
		return nil, fmt.Errorf("actionable quote without options")
	}

	for i, wo := range w.Options {
		option, err := wo.toOption(i)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i+1, err)
		}
		quote.Options = append(quote.Options, option)
	}

	return quote, nil
}

func (w *wireOption) toOption(index int) (model.QuoteOption, error) {
	if len(w.Components) == 0 {
		return model.QuoteOption{}, fmt.Errorf("option without components")
	}

	option := model.QuoteOption{
		Title:      strings.TrimSpace(w.Title),
		Strategy:   strings.TrimSpace(w.Strategy),
		Components: make([]model.Component, 0, len(w.Components)),
	}
	if option.Title == "" {
		option.Title = fmt.Sprintf("Opción %d", index+1)
	}

	for j, wc := range w.Components {
		name := strings.TrimSpace(wc.Name)
		if name == "" {
			return model.QuoteOption{}, fmt.Errorf("component %d has no name", j+1)
		}
		price, err := parseMoneyJSON(wc.Price)
		if err != nil {
			return model.QuoteOption{}, fmt.Errorf("component %q: %w", name, err)
		}
		if price.IsNegative() {
			return model.QuoteOption{}, fmt.Errorf("component %q has negative price %s", name, price)
		}

		option.Components = append(option.Components, model.Component{
			Category:           strings.TrimSpace(wc.Category),
			Name:               name,
			Price:              price,
			URL:                strings.TrimSpace(wc.URL),
			Highlight:          strings.TrimSpace(wc.Highlight),
			IntegratedGraphics: bool(wc.IntegratedGraphics || wc.IntegratedGraphicsSnake),
		})
	}

	return option, nil
}

func parseScope(raw string) model.Scope {
	switch utils.FoldText(strings.ReplaceAll(raw, "_", " ")) {
	case "tower", "torre", "solo torre", "only tower":
		return model.ScopeTower
	case "full pc", "pc completa", "complete", "completa", "full":
		return model.ScopeFullPC
	default:
		return model.ScopeUnknown
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// canonical wire shape, used for re-encoding and for prompt examples
type canonicalQuote struct {
	IsActionableQuote bool              `json:"isActionableQuote"`
	Message           string            `json:"message,omitempty"`
	Scope             model.Scope       `json:"scope,omitempty"`
	DetectedBudget    *json.Number      `json:"detectedBudget,omitempty"`
	IntroText         string            `json:"introText,omitempty"`
	OutroText         string            `json:"outroText,omitempty"`
	Options           []canonicalOption `json:"options"`
}

type canonicalOption struct {
	Title      string               `json:"title"`
	Strategy   string               `json:"strategy"`
	Components []canonicalComponent `json:"components"`
}

type canonicalComponent struct {
	Category           string      `json:"category"`
	Name               string      `json:"name"`
	Price              json.Number `json:"price"`
	URL                string      `json:"url"`
	Highlight          string      `json:"highlight,omitempty"`
	IntegratedGraphics bool        `json:"integratedGraphics,omitempty"`
}

// EncodeQuote renders a quote in the canonical wire format. Decoding the
// result yields a structurally identical quote.
func EncodeQuote(q *model.Quote) ([]byte, error) {
	if q == nil {
		return nil, fmt.Errorf("nil quote")
	}

	out := canonicalQuote{
		IsActionableQuote: q.IsActionableQuote,
		Message:           q.Message,
		Scope:             q.Scope,
		DetectedBudget:    numberPtr(q.DetectedBudget),
		IntroText:         q.IntroText,
		OutroText:         q.OutroText,
		Options:           make([]canonicalOption, 0, len(q.Options)),
	}

	for _, o := range q.Options {
		co := canonicalOption{
			Title:      o.Title,
			Strategy:   o.Strategy,
			Components: make([]canonicalComponent, 0, len(o.Components)),
		}
		for _, c := range o.Components {
			co.Components = append(co.Components, canonicalComponent{
				Category:           c.Category,
				Name:               c.Name,
				Price:              json.Number(c.Price.String()),
				URL:                c.URL,
				Highlight:          c.Highlight,
				IntegratedGraphics: c.IntegratedGraphics,
			})
		}
		out.Options = append(out.Options, co)
	}

	return json.Marshal(out)
}

func numberPtr(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	n := json.Number(d.String())
	return &n
}
