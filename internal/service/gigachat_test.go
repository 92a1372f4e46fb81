package service

import (
	"strings"
	"testing"

	"github.com/Role1776/gigago"

	"kiwigeek/internal/config"
)

func TestApplySampling(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GigaChatConfig
		want gigago.GenerativeModel
	}{
		{
			name: "All parameters",
			cfg:  config.GigaChatConfig{Temperature: 0.15, TopP: 0.85, MaxTokens: 8192, RepetitionPenalty: 1.1},
			want: gigago.GenerativeModel{Temperature: 0.15, TopP: 0.85, MaxTokens: 8192, RepetitionPenalty: 1.1},
		},
		{
			name: "Unset values keep defaults",
			cfg:  config.GigaChatConfig{Temperature: 0.3},
			want: gigago.GenerativeModel{Temperature: 0.3, TopP: 1, MaxTokens: 512, RepetitionPenalty: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &gigago.GenerativeModel{TopP: 1, MaxTokens: 512, RepetitionPenalty: 1}
			applySampling(model, tt.cfg)

			if model.Temperature != tt.want.Temperature || model.TopP != tt.want.TopP ||
				model.MaxTokens != tt.want.MaxTokens || model.RepetitionPenalty != tt.want.RepetitionPenalty {
				t.Errorf("model = {T:%v P:%v M:%v R:%v}, want {T:%v P:%v M:%v R:%v}",
					model.Temperature, model.TopP, model.MaxTokens, model.RepetitionPenalty,
					tt.want.Temperature, tt.want.TopP, tt.want.MaxTokens, tt.want.RepetitionPenalty)
			}
		})
	}
}

func TestGigaChatConversation_Fork(t *testing.T) {
	conv := &gigaChatConversation{turns: []gigaChatTurn{{prompt: "hola", answer: "¿presupuesto?"}}}

	fork := conv.Fork().(*gigaChatConversation)
	fork.turns = append(fork.turns, gigaChatTurn{prompt: "rama descartada", answer: "x"})

	original := conv.transcript("PC de 4000")
	if strings.Contains(original, "rama descartada") {
		t.Errorf("fork leaked into the original transcript: %q", original)
	}
	if !strings.Contains(original, "CLIENTE: hola") || !strings.HasSuffix(original, "PC de 4000") {
		t.Errorf("transcript = %q", original)
	}
	if !strings.Contains(fork.transcript("y monitor"), "rama descartada") {
		t.Error("fork lost its own exchange")
	}
}
