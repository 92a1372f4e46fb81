package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"

	"kiwigeek/internal/config"
)

// GigaChatGenerator is a QuoteGenerator backed by the GigaChat API
type GigaChatGenerator struct {
	client *gigago.Client
	cfg    config.GigaChatConfig
	logger *zap.Logger
}

// NewGigaChatGenerator authenticates against GigaChat and returns a generator
func NewGigaChatGenerator(ctx context.Context, cfg *config.GigaChatConfig, logger *zap.Logger) (*GigaChatGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GIGACHAT_API_KEY is not set")
	}

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	return &GigaChatGenerator{client: client, cfg: *cfg, logger: logger}, nil
}

// Name implements QuoteGenerator
func (g *GigaChatGenerator) Name() string {
	return "gigachat"
}

// IsEnabled implements QuoteGenerator
func (g *GigaChatGenerator) IsEnabled() bool {
	return g.client != nil
}

// Close releases the underlying client
func (g *GigaChatGenerator) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

// NewConversation implements QuoteGenerator
func (g *GigaChatGenerator) NewConversation(systemInstruction string) Conversation {
	model := g.client.GenerativeModel(g.cfg.Model)
	model.SystemInstruction = systemInstruction
	applySampling(model, g.cfg)

	return &gigaChatConversation{model: model, logger: g.logger}
}

// applySampling copies the configured sampling parameters onto model. Unset
// (non-positive) values keep the API defaults.
func applySampling(model *gigago.GenerativeModel, cfg config.GigaChatConfig) {
	model.Temperature = cfg.Temperature
	if cfg.TopP > 0 {
		model.TopP = cfg.TopP
	}
	if cfg.MaxTokens > 0 {
		model.MaxTokens = int32(cfg.MaxTokens)
	}
	if cfg.RepetitionPenalty > 0 {
		model.RepetitionPenalty = cfg.RepetitionPenalty
	}
}

type gigaChatTurn struct {
	prompt string
	answer string
}

// gigaChatConversation replays earlier exchanges as a transcript inside the
// user message on every call
type gigaChatConversation struct {
	model  *gigago.GenerativeModel
	logger *zap.Logger

	mu    sync.Mutex
	turns []gigaChatTurn
}

// Fork implements ForkableConversation
func (c *gigaChatConversation) Fork() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := make([]gigaChatTurn, len(c.turns))
	copy(turns, c.turns)
	return &gigaChatConversation{model: c.model, logger: c.logger, turns: turns}
}

func (c *gigaChatConversation) transcript(prompt string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.turns) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString("Historial de la conversación:\n")
	for _, t := range c.turns {
		fmt.Fprintf(&b, "\nCLIENTE: %s\nASISTENTE: %s\n", t.prompt, t.answer)
	}
	b.WriteString("\nMensaje actual del cliente:\n")
	b.WriteString(prompt)
	return b.String()
}

// Send implements Conversation
func (c *gigaChatConversation) Send(ctx context.Context, prompt string) (string, error) {
	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: c.transcript(prompt)},
	}

	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from GigaChat")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)

	c.mu.Lock()
	c.turns = append(c.turns, gigaChatTurn{prompt: prompt, answer: answer})
	c.mu.Unlock()

	return answer, nil
}
