package service

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StreamChunkParser turns one SSE data payload into a StreamChunk
type StreamChunkParser interface {
	ParseChunk(data []byte) (*StreamChunk, error)
}

// streamError is the error object some providers send inside the stream
type streamError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (e *streamError) Error() string {
	return fmt.Sprintf("provider stream error (%s): %s", e.Type, e.Message)
}

type rawStreamChunk struct {
	Choices []struct {
		Delta struct {
			Role             string  `json:"role,omitempty"`
			Content          string  `json:"content,omitempty"`
			ReasoningContent *string `json:"reasoning_content,omitempty"` // DeepSeek
			Reasoning        *string `json:"reasoning,omitempty"`         // some NIM models
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Error *streamError `json:"error,omitempty"`
}

func parseStreamChunk(data []byte, withReasoning bool) (*StreamChunk, error) {
	var raw rawStreamChunk
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Error != nil {
		return nil, raw.Error
	}

	chunk := &StreamChunk{}
	if len(raw.Choices) == 0 {
		return chunk, nil
	}

	choice := raw.Choices[0]
	chunk.Role = choice.Delta.Role
	chunk.Content = choice.Delta.Content
	chunk.Done = choice.FinishReason != ""

	if withReasoning {
		switch {
		case choice.Delta.ReasoningContent != nil:
			chunk.ThinkingContent = *choice.Delta.ReasoningContent
		case choice.Delta.Reasoning != nil:
			chunk.ThinkingContent = *choice.Delta.Reasoning
		}
	}
	return chunk, nil
}

// OpenAIStreamChunkParser reads plain chat-completion chunks
type OpenAIStreamChunkParser struct{}

func (p *OpenAIStreamChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	return parseStreamChunk(data, false)
}

// NVIDIAStreamChunkParser also surfaces the reasoning text that NVIDIA NIM
// and DeepSeek models stream next to the answer
type NVIDIAStreamChunkParser struct{}

func (p *NVIDIAStreamChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	return parseStreamChunk(data, true)
}

// DetectChunkParser picks the parser for an API base URL and returns a short
// provider label for logs
func DetectChunkParser(baseURL string) (StreamChunkParser, string) {
	switch {
	case strings.Contains(baseURL, "integrate.api.nvidia.com"), strings.Contains(baseURL, "api.deepseek.com"):
		return &NVIDIAStreamChunkParser{}, "nvidia"
	case strings.Contains(baseURL, "api.openai.com"):
		return &OpenAIStreamChunkParser{}, "openai"
	default:
		return &OpenAIStreamChunkParser{}, "openai-compatible"
	}
}
