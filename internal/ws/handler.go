// Package ws exposes the live chat channel over WebSocket. Each inbound
// message runs the same pipeline as the HTTP chat route: user turn persisted
// first, provider stream relayed as typed frames, assistant turn committed
// by the turn detector.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/om01deshmukh/Atheron-AI/internal/auth"
	"github.com/om01deshmukh/Atheron-AI/internal/config"
	"github.com/om01deshmukh/Atheron-AI/internal/domain"
	"github.com/om01deshmukh/Atheron-AI/internal/service"
	"github.com/om01deshmukh/Atheron-AI/internal/sources"
	"github.com/om01deshmukh/Atheron-AI/internal/turn"
)

// UserEnsurer resolves verified identities to stored users.
type UserEnsurer interface {
	Ensure(ctx context.Context, identity auth.Identity) (domain.User, error)
}

// Chat is the provider-facing surface the channel needs.
type Chat interface {
	SystemPrompt(ctx context.Context, question string) string
	Stream(ctx context.Context, system string, messages []service.ChatMessage) (<-chan service.StreamEvent, error)
	Cost(usage *service.Usage) decimal.Decimal
	NewTurnPersister(userID uuid.UUID, sessionID string) (service.Persister, error)
}

type Handler struct {
	cfg   *config.Config
	users UserEnsurer
	chat  Chat
}

func NewHandler(cfg *config.Config, users UserEnsurer, chat Chat) *Handler {
	return &Handler{cfg: cfg, users: users, chat: chat}
}

// ServeHTTP authenticates the token query parameter and upgrades to
// WebSocket. Unauthenticated connections are rejected before upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	identity, err := auth.Verify(h.cfg.AuthSecret, token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	user, err := h.users.Ensure(r.Context(), identity)
	if err != nil {
		slog.Error("ensure user", "error", err, "auth_id", identity.Subject)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("accept websocket", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	h.handleConnection(r.Context(), conn, &user)
}

func (h *Handler) handleConnection(ctx context.Context, conn *websocket.Conn, user *domain.User) {
	var (
		mu     sync.Mutex
		cancel context.CancelFunc
	)
	stopCurrent := func() {
		mu.Lock()
		defer mu.Unlock()
		if cancel != nil {
			cancel()
			cancel = nil
		}
	}
	defer stopCurrent()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			slog.Debug("websocket read", "error", err)
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(ctx, conn, "", "invalid message format")
			continue
		}

		switch msg.Type {
		case "message":
			stopCurrent()
			msgCtx, c := context.WithCancel(ctx)
			mu.Lock()
			cancel = c
			mu.Unlock()
			go h.handleMessage(msgCtx, conn, msg, user)

		case "cancel":
			stopCurrent()

		default:
			h.sendError(ctx, conn, msg.ID, "unknown message type")
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, msg ClientMessage, user *domain.User) {
	messages := make([]service.ChatMessage, 0, len(msg.Messages))
	for _, t := range msg.Messages {
		if t.Role != domain.RoleUser && t.Role != domain.RoleAssistant {
			continue
		}
		if t.Content == "" {
			continue
		}
		messages = append(messages, service.ChatMessage{Role: t.Role, Content: t.Content})
	}
	if len(messages) == 0 {
		h.sendError(ctx, conn, msg.ID, "No messages")
		return
	}

	persister, err := h.chat.NewTurnPersister(user.ID, msg.SessionID)
	if err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid session id")
		return
	}

	detector := turn.NewDetector(persister, turn.Options{})
	if msg.SessionID != "" {
		detector.BindSession(msg.SessionID)
	}

	question := lastUserText(messages)
	detector.UserTurn(ctx, question)

	system := h.chat.SystemPrompt(ctx, question)
	events, err := h.chat.Stream(ctx, system, messages)
	if err != nil {
		slog.Error("dispatch chat", "error", err)
		h.sendError(ctx, conn, msg.ID, "model provider unavailable")
		return
	}

	for ev := range events {
		switch ev.Type {
		case service.EventStart:
			h.send(ctx, conn, ServerMessage{
				Type: "start", MessageID: msg.ID, SessionID: detector.SessionID(),
			})

		case service.EventDelta:
			h.send(ctx, conn, ServerMessage{Type: "delta", MessageID: msg.ID, Delta: ev.Delta})
			detector.AssistantDelta(ev.Text)

		case service.EventComplete:
			persister.SetCost(h.chat.Cost(ev.Usage))
			detector.AssistantComplete(ctx, ev.Text)

			clean, srcs := sources.Extract(ev.Text)
			h.send(ctx, conn, ServerMessage{
				Type: "complete", MessageID: msg.ID,
				SessionID: detector.SessionID(), Text: clean, Sources: srcs,
			})

		case service.EventError:
			slog.Error("chat stream", "error", ev.Err)
			h.sendError(ctx, conn, msg.ID, "stream interrupted")
		}
	}
}

func lastUserText(msgs []service.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("encode ws message", "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write", "error", err)
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, msgID, errMsg string) {
	h.send(ctx, conn, ServerMessage{Type: "error", MessageID: msgID, Error: errMsg})
}
