package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kiwigeek/internal/model"
)

// Turn result states that are not loop states
const (
	StateGeneratorUnavailable = "generator_unavailable"
)

// Customer-facing messages
const (
	GreetingMessage = "¡Hola! Soy Kiwigeek AI 🥝. Dime tu presupuesto (ej: 'PC de 4000 soles') y si buscas solo la torre o la PC completa."
	ResendMessage   = "Tuvimos un problema de conexión con nuestro asistente. Por favor vuelve a enviar tu mensaje."
	ResetMessage    = "El asistente sigue sin responder. Reinicia la conversación para continuar."
)

// TurnStore persists turn logs and customer feedback
type TurnStore interface {
	LogTurn(ctx context.Context, rec *model.TurnRecord) error
	ListTurns(ctx context.Context, sessionID string, limit int) ([]model.TurnRecord, error)
	LogFeedback(ctx context.Context, req *model.FeedbackRequest) error
}

// TurnMetrics records per-turn observations
type TurnMetrics interface {
	ObserveTurn(state string, attempts, filtered int, took time.Duration)
	GeneratorFailure(provider string)
	SessionReset()
}

// TurnEventCallback is called for streaming turn events
type TurnEventCallback func(event string, data any) error

// AssistantService drives one customer turn end to end
type AssistantService struct {
	sessions  *SessionStore
	extractor *BudgetExtractor
	decoder   *QuoteDecoder
	validator *Validator
	loop      *CorrectionLoop
	selector  *Selector
	store     TurnStore
	metrics   TurnMetrics
	provider  string
	logger    *zap.Logger
}

// AssistantDeps groups the collaborators of AssistantService. Store and
// Metrics are optional.
type AssistantDeps struct {
	Sessions  *SessionStore
	Extractor *BudgetExtractor
	Decoder   *QuoteDecoder
	Validator *Validator
	Loop      *CorrectionLoop
	Selector  *Selector
	Store     TurnStore
	Metrics   TurnMetrics
	Provider  string
	Logger    *zap.Logger
}

// NewAssistantService creates a new assistant service
func NewAssistantService(deps AssistantDeps) *AssistantService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssistantService{
		sessions:  deps.Sessions,
		extractor: deps.Extractor,
		decoder:   deps.Decoder,
		validator: deps.Validator,
		loop:      deps.Loop,
		selector:  deps.Selector,
		store:     deps.Store,
		metrics:   deps.Metrics,
		provider:  deps.Provider,
		logger:    logger,
	}
}

// HandleTurn processes one user message and returns the presentation result
func (s *AssistantService) HandleTurn(ctx context.Context, sessionID, text string) (*model.TurnResult, error) {
	return s.handle(ctx, sessionID, text, nil)
}

// HandleTurnStream works like HandleTurn and reports progress through callback
func (s *AssistantService) HandleTurnStream(ctx context.Context, sessionID, text string, callback TurnEventCallback) (*model.TurnResult, error) {
	return s.handle(ctx, sessionID, text, callback)
}

func (s *AssistantService) handle(ctx context.Context, sessionID, text string, callback TurnEventCallback) (*model.TurnResult, error) {
	startTime := time.Now()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	emit := func(event string, data any) {
		if callback == nil {
			return
		}
		if err := callback(event, data); err != nil {
			s.logger.Debug("stream callback failed", zap.String("event", event), zap.Error(err))
		}
	}

	sess, created := s.sessions.GetOrCreate(sessionID)
	turnCtx, token := sess.BeginTurn(ctx)
	defer sess.EndTurn(token)

	log := s.logger.With(zap.String("session_id", sess.ID), zap.Int64("turn", token))
	if created {
		log.Info("session created")
	}

	emit("start", map[string]any{"session_id": sess.ID, "turn": token})

	budget := sess.Budget()
	var detected *decimal.Decimal
	if budget == nil {
		if amount, ok := s.extractor.Extract(text); ok {
			detected = &amount
			budget = &amount
			log.Info("budget detected", zap.String("budget", amount.String()))
		}
	}

	hooks := LoopHooks{
		OnState: func(state LoopState, attempt int) {
			if state == StateRequesting {
				emit("attempt", map[string]any{
					"attempt":      attempt,
					"max_attempts": s.loop.MaxAttempts(),
					"status":       "Kiwigeek está calculando la mejor configuración...",
				})
			}
		},
		OnCorrection: func(attempt int, _ string, verdicts []model.ValidationVerdict) {
			emit("correction", map[string]any{"attempt": attempt, "verdicts": verdicts})
		},
	}
	if callback != nil {
		hooks.OnThinking = func(thinking, content string) error {
			if thinking != "" {
				emit("thinking", map[string]any{"content": thinking})
			}
			return nil
		}
	}

	// exchanges of a superseded turn never reach the session's conversation
	conv := forkConversation(sess.Conversation())
	outcome, err := s.loop.ProduceWithHooks(turnCtx, conv, text, budget, hooks)
	if err != nil {
		if !sess.IsCurrent(token) || errors.Is(err, context.Canceled) {
			log.Info("turn superseded")
			return nil, ErrTurnSuperseded
		}
		if errors.Is(err, ErrGeneratorUnavailable) {
			return s.handleGeneratorFailure(sess, token, budget, startTime, err, log)
		}
		return nil, err
	}

	result := &model.TurnResult{
		SessionID: sess.ID,
		Turn:      token,
		State:     string(outcome.State),
		Attempts:  outcome.Attempts,
		Warnings:  []string{},
	}

	switch {
	case outcome.State == StateFailed:
		result.Message = outcome.Caveat
	case outcome.Quote != nil && !outcome.Quote.IsActionableQuote:
		result.Quote = outcome.Quote
		result.Message = RenderQuoteText(outcome.Quote, s.validator.Currency())
	case outcome.Quote != nil:
		selected, filtered := s.selector.Select(outcome.Quote.Options, outcome.Verdicts, budget)
		result.Quote = outcome.Quote.WithOptions(selected)
		result.Verdicts = outcome.Verdicts
		result.FilteredCount = filtered
		if filtered > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Ocultamos %d opción(es) que no cumplían nuestras reglas de presupuesto y balance.", filtered))
		}
		if outcome.State == StateBestEffortAccepted {
			result.Warnings = append(result.Warnings, outcome.Caveat)
		}
		result.Message = RenderQuoteText(result.Quote, s.validator.Currency())
	}

	if budget == nil && outcome.Quote != nil && outcome.Quote.DetectedBudget != nil {
		detected = outcome.Quote.DetectedBudget
	}

	if !sess.Commit(token, TurnCommit{UserText: text, Reply: result.Message, Budget: detected, Conversation: conv}) {
		log.Info("turn superseded before commit")
		return nil, ErrTurnSuperseded
	}

	result.Budget = sess.Budget()
	took := time.Since(startTime)
	result.Took = took.Milliseconds()

	if s.metrics != nil {
		s.metrics.ObserveTurn(result.State, result.Attempts, result.FilteredCount, took)
	}

	log.Info("turn completed",
		zap.String("state", result.State),
		zap.Int("attempts", result.Attempts),
		zap.Int("filtered", result.FilteredCount),
		zap.Duration("took", took))

	s.persist(sess.ID, token, text, result)

	emit("result", result)
	return result, nil
}

func (s *AssistantService) handleGeneratorFailure(sess *Session, token int64, budget *decimal.Decimal, startTime time.Time, cause error, log *zap.Logger) (*model.TurnResult, error) {
	if s.metrics != nil {
		s.metrics.GeneratorFailure(s.provider)
	}

	failures := sess.RecordFailure(token, s.sessions.NewConversation)
	if failures == 0 {
		return nil, ErrTurnSuperseded
	}

	log.Warn("generator unavailable", zap.Int("consecutive_failures", failures), zap.Error(cause))
	if failures >= 2 {
		return nil, fmt.Errorf("%w: %w", ErrSessionNeedsReset, cause)
	}

	took := time.Since(startTime)
	if s.metrics != nil {
		s.metrics.ObserveTurn(StateGeneratorUnavailable, 0, 0, took)
	}

	return &model.TurnResult{
		SessionID: sess.ID,
		Turn:      token,
		State:     StateGeneratorUnavailable,
		Message:   ResendMessage,
		Budget:    budget,
		Warnings:  []string{},
		Took:      took.Milliseconds(),
	}, nil
}

// persist logs the turn without blocking the response
func (s *AssistantService) persist(sessionID string, turn int64, text string, result *model.TurnResult) {
	if s.store == nil {
		return
	}

	rec := &model.TurnRecord{
		SessionID:      sessionID,
		Turn:           turn,
		UserText:       text,
		State:          result.State,
		Attempts:       result.Attempts,
		FilteredCount:  result.FilteredCount,
		Quote:          model.QuoteJSON{Quote: result.Quote},
		Warnings:       model.StringArray(result.Warnings),
		ResponseTimeMs: int(result.Took),
	}
	if result.Budget != nil {
		b := result.Budget.String()
		rec.Budget = &b
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.LogTurn(ctx, rec); err != nil {
			s.logger.Warn("failed to persist turn", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
}

// Session returns the public snapshot of a session
func (s *AssistantService) Session(id string) (*model.SessionView, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	view := sess.View()
	return &view, nil
}

// ResetSession clears budget, history and conversation of a session
func (s *AssistantService) ResetSession(id string) (*model.SessionView, error) {
	sess, err := s.sessions.Reset(id)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SessionReset()
	}
	s.logger.Info("session reset", zap.String("session_id", id))
	view := sess.View()
	return &view, nil
}

// Turns lists persisted turns of a session
func (s *AssistantService) Turns(ctx context.Context, sessionID string, limit int) ([]model.TurnRecord, error) {
	if s.store == nil {
		return []model.TurnRecord{}, nil
	}
	return s.store.ListTurns(ctx, sessionID, limit)
}

// LogFeedback records what the customer did with an option
func (s *AssistantService) LogFeedback(ctx context.Context, req *model.FeedbackRequest) error {
	if s.store == nil {
		return nil
	}
	return s.store.LogFeedback(ctx, req)
}

// ValidateStandalone validates a raw or structured quote without a session
func (s *AssistantService) ValidateStandalone(req *model.ValidateRequest) (*model.ValidateResponse, error) {
	quote := req.Quote
	if quote == nil {
		if strings.TrimSpace(req.Raw) == "" {
			return nil, fmt.Errorf("%w: either raw or quote is required", ErrUndecodable)
		}
		decoded, err := s.decoder.Decode(req.Raw)
		if err != nil {
			return nil, err
		}
		quote = decoded
	}

	budget := req.Budget
	if budget == nil {
		budget = quote.DetectedBudget
	}

	verdicts := s.validator.ValidateQuote(quote, budget)
	selected, filtered := s.selector.Select(quote.Options, verdicts, budget)

	valid := true
	for _, v := range verdicts {
		valid = valid && v.IsValid
	}

	return &model.ValidateResponse{
		Quote:         quote,
		Verdicts:      verdicts,
		Selected:      selected,
		FilteredCount: filtered,
		IsValid:       valid,
	}, nil
}
