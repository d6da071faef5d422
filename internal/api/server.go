package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/om01deshmukh/Atheron-AI/internal/auth"
	"github.com/om01deshmukh/Atheron-AI/internal/config"
	"github.com/om01deshmukh/Atheron-AI/internal/domain"
	"github.com/om01deshmukh/Atheron-AI/internal/service"
)

// SessionStore is the persistence surface the CRUD routes need.
type SessionStore interface {
	Create(ctx context.Context, userID uuid.UUID, title string) (domain.ChatSession, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.ChatSession, error)
	Delete(ctx context.Context, userID, sessionID uuid.UUID) error
	GetMessages(ctx context.Context, userID, sessionID uuid.UUID) ([]domain.Message, error)
	SaveMessage(ctx context.Context, userID, sessionID uuid.UUID, role, content string, cost decimal.Decimal) (domain.Message, error)
}

// UserEnsurer resolves verified identities to stored users.
type UserEnsurer interface {
	Ensure(ctx context.Context, identity auth.Identity) (domain.User, error)
}

// Chat is the provider-facing surface the streaming route needs.
type Chat interface {
	SystemPrompt(ctx context.Context, question string) string
	Stream(ctx context.Context, system string, messages []service.ChatMessage) (<-chan service.StreamEvent, error)
	Cost(usage *service.Usage) decimal.Decimal
	NewTurnPersister(userID uuid.UUID, sessionID string) (service.Persister, error)
}

// Alerter receives operator notifications; may be a no-op.
type Alerter interface {
	Error(err error, context string)
}

type Server struct {
	cfg      *config.Config
	sessions SessionStore
	users    UserEnsurer
	chat     Chat
	alerts   Alerter
}

type Deps struct {
	Cfg      *config.Config
	Sessions SessionStore
	Users    UserEnsurer
	Chat     Chat
	Alerts   Alerter
}

func NewServer(deps Deps) *Server {
	return &Server{
		cfg:      deps.Cfg,
		sessions: deps.Sessions,
		users:    deps.Users,
		chat:     deps.Chat,
		alerts:   deps.Alerts,
	}
}

// Handler assembles the route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleGetMessages)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handleSaveMessage)
	mux.HandleFunc("POST /api/chat", s.handleChat)

	var h http.Handler = mux
	h = s.withAuth(h)
	h = withLogging(h)
	h = s.withRecover(h)
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
