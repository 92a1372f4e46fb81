package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kiwigeek/internal/model"
)

// LoopState is a step of the correction loop
type LoopState string

// Loop states. Accepted, BestEffortAccepted and Failed are terminal.
const (
	StateRequesting         LoopState = "requesting"
	StateDecoding           LoopState = "decoding"
	StateValidating         LoopState = "validating"
	StateAwaitingCorrection LoopState = "awaiting_correction"
	StateAccepted           LoopState = "accepted"
	StateBestEffortAccepted LoopState = "best_effort_accepted"
	StateFailed             LoopState = "failed"
)

// Terminal reports whether no further transition follows
func (s LoopState) Terminal() bool {
	return s == StateAccepted || s == StateBestEffortAccepted || s == StateFailed
}

// Messages shown to the customer when the loop cannot deliver a clean quote
const (
	BestEffortCaveat = "Esta cotización no cumple todas nuestras reglas de presupuesto y balance; te recomendamos confirmarla con un asesor antes de comprar."
	FailedMessage    = "Lo siento, no pudimos procesar tu solicitud en este momento. Por favor intenta reformularla."
)

// LoopOutcome is the terminal result of one correction loop run
type LoopOutcome struct {
	State    LoopState
	Quote    *model.Quote
	Verdicts []model.ValidationVerdict
	Attempts int
	Caveat   string
}

// LoopHooks receive progress notifications; all fields are optional
type LoopHooks struct {
	OnState      func(state LoopState, attempt int)
	OnThinking   func(thinking, content string) error
	OnCorrection func(attempt int, feedback string, verdicts []model.ValidationVerdict)
}

// CorrectionLoop asks the generator for a quote, validates it and asks for
// corrections until the quote passes or the attempt budget is spent
type CorrectionLoop struct {
	decoder     *QuoteDecoder
	validator   *Validator
	maxAttempts int
	logger      *zap.Logger
}

// NewCorrectionLoop creates a loop bounded by maxAttempts generator round-trips
func NewCorrectionLoop(decoder *QuoteDecoder, validator *Validator, maxAttempts int, logger *zap.Logger) *CorrectionLoop {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorrectionLoop{
		decoder:     decoder,
		validator:   validator,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// MaxAttempts returns the generator round-trip bound
func (l *CorrectionLoop) MaxAttempts() int {
	return l.maxAttempts
}

// Produce runs the loop for one user turn
func (l *CorrectionLoop) Produce(ctx context.Context, conv Conversation, userText string, budget *decimal.Decimal) (*LoopOutcome, error) {
	return l.ProduceWithHooks(ctx, conv, userText, budget, LoopHooks{})
}

type candidate struct {
	quote    *model.Quote
	verdicts []model.ValidationVerdict
	score    quoteScore
}

// ProduceWithHooks runs the loop and reports progress through hooks.
// Generator failures are returned wrapped in ErrGeneratorUnavailable;
// context cancellation is returned as is.
func (l *CorrectionLoop) ProduceWithHooks(ctx context.Context, conv Conversation, userText string, budget *decimal.Decimal, hooks LoopHooks) (*LoopOutcome, error) {
	notify := func(state LoopState, attempt int) {
		if hooks.OnState != nil {
			hooks.OnState(state, attempt)
		}
	}

	prompt := composeUserPrompt(userText, budget, l.validator.Currency())
	var best *candidate

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		notify(StateRequesting, attempt)
		raw, err := l.send(ctx, conv, prompt, hooks.OnThinking)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			l.logger.Warn("generator call failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrGeneratorUnavailable, err)
		}

		notify(StateDecoding, attempt)
		quote, err := l.decoder.Decode(raw)
		if err != nil {
			l.logger.Info("generator output undecodable, requesting strict format",
				zap.Int("attempt", attempt), zap.Error(err))
			prompt = MalformedOutputFeedback
			if hooks.OnCorrection != nil {
				hooks.OnCorrection(attempt, prompt, nil)
			}
			continue
		}

		if !quote.IsActionableQuote {
			notify(StateAccepted, attempt)
			return &LoopOutcome{State: StateAccepted, Quote: quote, Attempts: attempt}, nil
		}

		notify(StateValidating, attempt)
		verdicts := l.validator.ValidateQuote(quote, budget)
		current := &candidate{quote: quote, verdicts: verdicts, score: scoreVerdicts(verdicts)}

		if current.score.invalidOptions == 0 {
			notify(StateAccepted, attempt)
			return &LoopOutcome{State: StateAccepted, Quote: quote, Verdicts: verdicts, Attempts: attempt}, nil
		}

		if best == nil || current.score.betterThan(best.score) {
			best = current
		}

		l.logger.Info("quote violates policy",
			zap.Int("attempt", attempt),
			zap.Int("invalid_options", current.score.invalidOptions),
			zap.Int("violations", current.score.violations))

		if attempt == l.maxAttempts {
			break
		}

		notify(StateAwaitingCorrection, attempt)
		prompt = BuildCorrectionFeedback(verdicts, l.validator.Currency())
		if hooks.OnCorrection != nil {
			hooks.OnCorrection(attempt, prompt, verdicts)
		}
	}

	if best != nil {
		notify(StateBestEffortAccepted, l.maxAttempts)
		return &LoopOutcome{
			State:    StateBestEffortAccepted,
			Quote:    best.quote,
			Verdicts: best.verdicts,
			Attempts: l.maxAttempts,
			Caveat:   BestEffortCaveat,
		}, nil
	}

	notify(StateFailed, l.maxAttempts)
	return &LoopOutcome{State: StateFailed, Attempts: l.maxAttempts, Caveat: FailedMessage}, nil
}

func (l *CorrectionLoop) send(ctx context.Context, conv Conversation, prompt string, onThinking func(thinking, content string) error) (string, error) {
	if conv == nil {
		return "", errors.New("no generator conversation")
	}
	if streaming, ok := conv.(StreamingConversation); ok && onThinking != nil {
		return streaming.SendStream(ctx, prompt, onThinking)
	}
	return conv.Send(ctx, prompt)
}
