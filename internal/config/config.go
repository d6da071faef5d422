package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	DatabaseURL   string `env:"DATABASE_URL,required"`
	PerplexityKey string `env:"PERPLEXITY_API_KEY,required"`
	PerplexityURL string `env:"PERPLEXITY_BASE_URL" envDefault:"https://api.perplexity.ai"`
	ChatModel     string `env:"CHAT_MODEL" envDefault:"sonar"`

	// Server
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Auth
	AuthSecret string `env:"AUTH_SECRET,required"`

	// Web search augmentation
	SearchEnabled    bool `env:"SEARCH_ENABLED" envDefault:"false"`
	SearchMaxResults int  `env:"SEARCH_MAX_RESULTS" envDefault:"5"`

	// Pricing (USD per 1M tokens, used for cost accounting on assistant turns)
	PromptPricePerM     float64 `env:"PROMPT_PRICE_PER_M" envDefault:"1"`
	CompletionPricePerM float64 `env:"COMPLETION_PRICE_PER_M" envDefault:"1"`

	// Operator alerts via Telegram (disabled when token is empty)
	AlertBotToken string `env:"ALERT_BOT_TOKEN"`
	AlertChatID   int64  `env:"ALERT_CHAT_ID"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
