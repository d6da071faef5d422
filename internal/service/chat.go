package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/om01deshmukh/Atheron-AI/internal/config"
	"github.com/om01deshmukh/Atheron-AI/internal/domain"
	"github.com/om01deshmukh/Atheron-AI/internal/sources"
	"github.com/om01deshmukh/Atheron-AI/internal/turn"
)

// Persister is the write path the turn detector drives, with priced usage
// attached before the assistant save.
type Persister interface {
	turn.Persister
	SetCost(cost decimal.Decimal)
}

// ChatService ties the provider stream to turn persistence: it builds the
// outbound system prompt (optionally augmented with web results), prices
// completed turns, and provides the persister the turn detector writes
// finished turns through.
type ChatService struct {
	cfg      *config.Config
	llm      *PerplexityService
	search   *SearchService
	sessions *SessionService
}

func NewChatService(cfg *config.Config, llm *PerplexityService, search *SearchService, sessions *SessionService) *ChatService {
	return &ChatService{cfg: cfg, llm: llm, search: search, sessions: sessions}
}

func (c *ChatService) Stream(ctx context.Context, system string, messages []ChatMessage) (<-chan StreamEvent, error) {
	return c.llm.ChatStream(ctx, system, messages)
}

// SystemPrompt returns the Athey instruction, augmented with fresh web
// results for the user's question when search is enabled. Search failures
// degrade silently to the plain prompt.
func (c *ChatService) SystemPrompt(ctx context.Context, question string) string {
	if !c.cfg.SearchEnabled || strings.TrimSpace(question) == "" {
		return AtheySystemPrompt
	}

	results, err := c.search.SearchWeb(ctx, question, c.cfg.SearchMaxResults)
	if err != nil {
		slog.Debug("web search failed", "error", err)
		return AtheySystemPrompt
	}
	if len(results) == 0 {
		return AtheySystemPrompt
	}

	var b strings.Builder
	b.WriteString(AtheySystemPrompt)
	b.WriteString("\n\nCURRENT WEB RESULTS:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.URL, r.Description)
	}
	return b.String()
}

// Cost prices a completed assistant turn from provider token usage.
func (c *ChatService) Cost(usage *Usage) decimal.Decimal {
	if usage == nil {
		return decimal.Zero
	}
	return CalculateCost(usage.PromptTokens, usage.CompletionTokens,
		c.cfg.PromptPricePerM, c.cfg.CompletionPricePerM)
}

// CalculateCost converts token counts and per-1M-token prices to USD.
func CalculateCost(promptTokens, completionTokens int, promptPerM, completionPerM float64) decimal.Decimal {
	perMillion := decimal.NewFromInt(1_000_000)
	prompt := decimal.NewFromInt(int64(promptTokens)).
		Mul(decimal.NewFromFloat(promptPerM)).Div(perMillion)
	completion := decimal.NewFromInt(int64(completionTokens)).
		Mul(decimal.NewFromFloat(completionPerM)).Div(perMillion)
	return prompt.Add(completion)
}

// TurnPersister adapts SessionService to the turn detector's contract for
// one user's conversation. Assistant content is run through the source
// extractor before it is written, so the wire delimiters never reach
// storage.
type TurnPersister struct {
	sessions *SessionService
	userID   uuid.UUID

	mu        sync.Mutex
	sessionID uuid.UUID
	bound     bool
	cost      decimal.Decimal
}

// NewTurnPersister builds a persister for the user, optionally bound to an
// existing session id.
func (c *ChatService) NewTurnPersister(userID uuid.UUID, sessionID string) (Persister, error) {
	p := &TurnPersister{sessions: c.sessions, userID: userID}
	if sessionID != "" {
		id, err := uuid.Parse(sessionID)
		if err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		p.sessionID = id
		p.bound = true
	}
	return p, nil
}

func (p *TurnPersister) SaveUserTurn(ctx context.Context, text string) (string, error) {
	p.mu.Lock()
	bound := p.bound
	sessionID := p.sessionID
	p.mu.Unlock()

	if !bound {
		session, err := p.sessions.Create(ctx, p.userID, "")
		if err != nil {
			return "", err
		}
		sessionID = session.ID
		p.mu.Lock()
		p.sessionID = sessionID
		p.bound = true
		p.mu.Unlock()
	}

	if _, err := p.sessions.SaveMessage(ctx, p.userID, sessionID, domain.RoleUser, text, decimal.Zero); err != nil {
		return "", err
	}
	return sessionID.String(), nil
}

func (p *TurnPersister) SaveAssistantTurn(ctx context.Context, sessionID, text string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("parse session id: %w", err)
	}

	clean, _ := sources.Extract(text)
	if clean == "" {
		return nil
	}

	p.mu.Lock()
	cost := p.cost
	p.mu.Unlock()

	_, err = p.sessions.SaveMessage(ctx, p.userID, id, domain.RoleAssistant, clean, cost)
	return err
}

// SetCost records the priced usage of the in-flight response so the final
// save carries it.
func (p *TurnPersister) SetCost(cost decimal.Decimal) {
	p.mu.Lock()
	p.cost = cost
	p.mu.Unlock()
}
