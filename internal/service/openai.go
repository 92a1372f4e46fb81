package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"kiwigeek/internal/config"
)

// OpenAIClient handles OpenAI-compatible API interactions
type OpenAIClient struct {
	config      *config.GeneratorConfig
	httpClient  *http.Client
	chunkParser StreamChunkParser // Provider-specific chunk parser
	extraBody   map[string]any
	logger      *zap.Logger
}

// NewOpenAIClient creates a new OpenAI-compatible client with auto-detection of provider
func NewOpenAIClient(cfg *config.GeneratorConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	parser, provider := DetectChunkParser(cfg.APIBase)
	logger.Info("generator provider detected",
		zap.String("provider", provider),
		zap.String("api_base", cfg.APIBase),
		zap.String("model", cfg.ChatModel))

	client := &OpenAIClient{
		config:      cfg,
		chunkParser: parser,
		logger:      logger,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}

	// Parse extra_body once, e.g. {"chat_template_kwargs": {"thinking": true}}
	if cfg.ChatExtraBody != "" {
		var extraBody map[string]any
		if err := json.Unmarshal([]byte(cfg.ChatExtraBody), &extraBody); err == nil {
			client.extraBody = extraBody
		} else {
			logger.Warn("failed to parse OPENAI_CHAT_EXTRA_BODY", zap.Error(err))
		}
	}

	return client
}

// IsEnabled returns whether the client is configured and ready
func (c *OpenAIClient) IsEnabled() bool {
	return c.config.Enabled
}

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	TopP           float64         `json:"top_p,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ExtraBody      map[string]any  `json:"extra_body,omitempty"`
}

// ChatMessage represents a single message in the conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat specifies the format of the response
type ResponseFormat struct {
	Type string `json:"type"` // "json_object" or "text"
}

// ChatCompletionResponse represents the API response
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// StreamCallback is called for each chunk in streaming mode
type StreamCallback func(chunk *StreamChunk) error

// applyDefaults fills unset request parameters from config
func (c *OpenAIClient) applyDefaults(req *ChatCompletionRequest) {
	if req.Model == "" {
		req.Model = c.config.ChatModel
	}
	if req.Temperature == 0 && c.config.ChatTemperature > 0 {
		req.Temperature = c.config.ChatTemperature
	}
	if req.TopP == 0 && c.config.ChatTopP > 0 {
		req.TopP = c.config.ChatTopP
	}
	if req.MaxTokens == 0 && c.config.ChatMaxTokens > 0 {
		req.MaxTokens = c.config.ChatMaxTokens
	}
	if req.ExtraBody == nil && c.extraBody != nil {
		req.ExtraBody = c.extraBody
	}
	if req.ResponseFormat == nil && c.config.JSONMode {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
}

func (c *OpenAIClient) newRequest(ctx context.Context, req ChatCompletionRequest) (*http.Request, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(c.config.APIBase, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))
	return httpReq, nil
}

// ChatCompletion performs a chat completion request
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if !c.config.Enabled {
		return nil, fmt.Errorf("OpenAI API is not enabled (missing API key)")
	}

	c.applyDefaults(&req)

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.logger.Debug("chat completion finished",
		zap.String("model", result.Model),
		zap.Int("prompt_tokens", result.Usage.PromptTokens),
		zap.Int("completion_tokens", result.Usage.CompletionTokens))

	return &result, nil
}

// ChatCompletionStream performs a streaming chat completion request
func (c *OpenAIClient) ChatCompletionStream(ctx context.Context, req ChatCompletionRequest, callback StreamCallback) error {
	if !c.config.Enabled {
		return fmt.Errorf("OpenAI API is not enabled (missing API key)")
	}

	c.applyDefaults(&req)
	req.Stream = true

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return c.readStream(resp.Body, callback)
}

// readStream consumes an SSE body of "data: {...}" lines until [DONE] or EOF
func (c *OpenAIClient) readStream(body io.Reader, callback StreamCallback) error {
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read stream: %w", err)
		}

		trimmed := bytes.TrimSpace(line)
		if bytes.HasPrefix(trimmed, []byte("data:")) {
			data := bytes.TrimSpace(bytes.TrimPrefix(trimmed, []byte("data:")))

			if bytes.Equal(data, []byte("[DONE]")) {
				return nil
			}

			chunk, parseErr := c.chunkParser.ParseChunk(data)
			if parseErr != nil {
				if _, ok := parseErr.(*streamError); ok {
					return parseErr
				}
				c.logger.Warn("failed to parse stream chunk", zap.Error(parseErr))
			} else if cbErr := callback(chunk); cbErr != nil {
				return fmt.Errorf("callback error: %w", cbErr)
			}
		}

		if err == io.EOF {
			return nil
		}
	}
}

// OpenAIGenerator exposes an OpenAIClient as a QuoteGenerator
type OpenAIGenerator struct {
	client *OpenAIClient
}

// NewOpenAIGenerator creates a generator backed by the OpenAI-compatible client
func NewOpenAIGenerator(client *OpenAIClient) *OpenAIGenerator {
	return &OpenAIGenerator{client: client}
}

// Name implements QuoteGenerator
func (g *OpenAIGenerator) Name() string {
	return "openai"
}

// IsEnabled implements QuoteGenerator
func (g *OpenAIGenerator) IsEnabled() bool {
	return g.client != nil && g.client.IsEnabled()
}

// NewConversation implements QuoteGenerator
func (g *OpenAIGenerator) NewConversation(systemInstruction string) Conversation {
	return &openAIConversation{
		client:   g.client,
		messages: []ChatMessage{{Role: "system", Content: systemInstruction}},
	}
}

// openAIConversation keeps the message history sent with every request
type openAIConversation struct {
	client *OpenAIClient

	mu       sync.Mutex
	messages []ChatMessage
}

// Fork implements ForkableConversation
func (c *openAIConversation) Fork() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]ChatMessage, len(c.messages))
	copy(messages, c.messages)
	return &openAIConversation{client: c.client, messages: messages}
}

func (c *openAIConversation) withPrompt(prompt string) []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]ChatMessage, len(c.messages), len(c.messages)+1)
	copy(messages, c.messages)
	return append(messages, ChatMessage{Role: "user", Content: prompt})
}

func (c *openAIConversation) remember(prompt, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages,
		ChatMessage{Role: "user", Content: prompt},
		ChatMessage{Role: "assistant", Content: answer},
	)
}

// Send implements Conversation
func (c *openAIConversation) Send(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.ChatCompletion(ctx, ChatCompletionRequest{Messages: c.withPrompt(prompt)})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from generator")
	}

	answer := resp.Choices[0].Message.Content
	c.remember(prompt, answer)
	return answer, nil
}

// SendStream implements StreamingConversation
func (c *openAIConversation) SendStream(ctx context.Context, prompt string, callback func(thinking, content string) error) (string, error) {
	var fullContent strings.Builder
	var fullThinking strings.Builder
	chunkCount := 0

	err := c.client.ChatCompletionStream(ctx, ChatCompletionRequest{Messages: c.withPrompt(prompt)}, func(chunk *StreamChunk) error {
		chunkCount++

		if chunk.ThinkingContent != "" {
			fullThinking.WriteString(chunk.ThinkingContent)
			if err := callback(chunk.ThinkingContent, ""); err != nil {
				return err
			}
		}

		if chunk.Content != "" {
			fullContent.WriteString(chunk.Content)
			if err := callback("", chunk.Content); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("streaming error: %w", err)
	}

	c.client.logger.Debug("streaming completed",
		zap.Int("chunks", chunkCount),
		zap.Int("thinking_chars", fullThinking.Len()),
		zap.Int("content_chars", fullContent.Len()))

	answer := fullContent.String()
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("empty streamed response")
	}
	c.remember(prompt, answer)
	return answer, nil
}
