package service

import (
	"context"
	"testing"

	"github.com/om01deshmukh/Atheron-AI/internal/config"
)

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name             string
		prompt, compl    int
		pricePM, complPM float64
		want             string
	}{
		{"zero tokens", 0, 0, 1, 1, "0"},
		{"sonar defaults", 1000, 500, 1, 1, "0.0015"},
		{"asymmetric pricing", 1_000_000, 1_000_000, 1, 3, "4"},
		{"fractional price", 200, 0, 0.5, 0, "0.0001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCost(tt.prompt, tt.compl, tt.pricePM, tt.complPM)
			if got.String() != tt.want {
				t.Errorf("CalculateCost = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCostNilUsage(t *testing.T) {
	c := NewChatService(&config.Config{PromptPricePerM: 1, CompletionPricePerM: 1}, nil, nil, nil)
	if got := c.Cost(nil); !got.IsZero() {
		t.Errorf("Cost(nil) = %s, want 0", got)
	}
}

func TestSystemPromptWithoutSearch(t *testing.T) {
	c := NewChatService(&config.Config{SearchEnabled: false}, nil, NewSearchService(), nil)

	if got := c.SystemPrompt(context.Background(), "what is a quasar"); got != AtheySystemPrompt {
		t.Errorf("prompt modified with search disabled")
	}
	// Blank question skips augmentation even when search is on.
	c2 := NewChatService(&config.Config{SearchEnabled: true}, nil, NewSearchService(), nil)
	if got := c2.SystemPrompt(context.Background(), "   "); got != AtheySystemPrompt {
		t.Errorf("prompt modified for blank question")
	}
}
