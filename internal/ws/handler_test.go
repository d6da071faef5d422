package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/om01deshmukh/Atheron-AI/internal/auth"
	"github.com/om01deshmukh/Atheron-AI/internal/config"
	"github.com/om01deshmukh/Atheron-AI/internal/domain"
	"github.com/om01deshmukh/Atheron-AI/internal/service"
)

const testSecret = "test-secret"

type mockUsers struct{}

func (mockUsers) Ensure(_ context.Context, identity auth.Identity) (domain.User, error) {
	return domain.User{ID: uuid.New(), AuthID: identity.Subject}, nil
}

type mockPersister struct {
	mu        sync.Mutex
	sessionID string
	user      []string
	assistant []string
}

func (m *mockPersister) SaveUserTurn(_ context.Context, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = append(m.user, text)
	return m.sessionID, nil
}

func (m *mockPersister) SaveAssistantTurn(_ context.Context, _, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assistant = append(m.assistant, text)
	return nil
}

func (m *mockPersister) SetCost(decimal.Decimal) {}

type mockChat struct {
	events    []service.StreamEvent
	persister *mockPersister
}

func (m *mockChat) SystemPrompt(context.Context, string) string { return "sys" }

func (m *mockChat) Stream(context.Context, string, []service.ChatMessage) (<-chan service.StreamEvent, error) {
	ch := make(chan service.StreamEvent, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (m *mockChat) Cost(*service.Usage) decimal.Decimal { return decimal.Zero }

func (m *mockChat) NewTurnPersister(uuid.UUID, string) (service.Persister, error) {
	return m.persister, nil
}

func newTestHandler(chat *mockChat) *Handler {
	return NewHandler(&config.Config{AuthSecret: testSecret}, mockUsers{}, chat)
}

func wsURL(srv *httptest.Server, token string) string {
	u := strings.Replace(srv.URL, "http://", "ws://", 1)
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func readServerMessage(ctx context.Context, t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return msg
}

func TestRejectsMissingToken(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRejectsBadToken(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?token=not-a-token")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

const assistantText = "Black holes bend passing light because their gravity curves spacetime around them. [1]\n\n" +
	"<!-- SOURCES_START -->[{\"domain\":\"nasa.gov\",\"title\":\"Black Holes\",\"url\":\"https://nasa.gov/bh\",\"description\":\"Overview\"}]<!-- SOURCES_END -->"

func TestMessageRoundTrip(t *testing.T) {
	sessionID := uuid.NewString()
	persister := &mockPersister{sessionID: sessionID}
	chat := &mockChat{
		persister: persister,
		events: []service.StreamEvent{
			{Type: service.EventStart},
			{Type: service.EventDelta, Delta: "Black holes", Text: "Black holes"},
			{Type: service.EventComplete, Text: assistantText},
		},
	}

	srv := httptest.NewServer(newTestHandler(chat))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := auth.Sign(testSecret, auth.Identity{Subject: "user-1"})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	conn, _, err := websocket.Dial(ctx, wsURL(srv, token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	out, _ := json.Marshal(ClientMessage{
		Type: "message",
		ID:   "m1",
		Messages: []TurnPayload{
			{Role: domain.RoleUser, Content: "why do black holes bend light"},
		},
	})
	if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
		t.Fatalf("write: %v", err)
	}

	start := readServerMessage(ctx, t, conn)
	if start.Type != "start" || start.MessageID != "m1" {
		t.Errorf("start = %+v", start)
	}

	delta := readServerMessage(ctx, t, conn)
	if delta.Type != "delta" || delta.Delta != "Black holes" {
		t.Errorf("delta = %+v", delta)
	}

	complete := readServerMessage(ctx, t, conn)
	if complete.Type != "complete" || complete.SessionID != sessionID {
		t.Errorf("complete = %+v", complete)
	}
	if strings.Contains(complete.Text, "SOURCES_START") || strings.Contains(complete.Text, "[1]") {
		t.Errorf("markers leaked to client: %q", complete.Text)
	}
	if len(complete.Sources) != 1 || complete.Sources[0].Domain != "nasa.gov" {
		t.Errorf("sources = %+v", complete.Sources)
	}

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.user) != 1 || persister.user[0] != "why do black holes bend light" {
		t.Errorf("user turns = %v", persister.user)
	}
	if len(persister.assistant) != 1 {
		t.Errorf("assistant turns = %v, want exactly one", persister.assistant)
	}
}

func TestRejectsEmptyHistory(t *testing.T) {
	chat := &mockChat{persister: &mockPersister{}}
	srv := httptest.NewServer(newTestHandler(chat))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := auth.Sign(testSecret, auth.Identity{Subject: "user-1"})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	conn, _, err := websocket.Dial(ctx, wsURL(srv, token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	out, _ := json.Marshal(ClientMessage{Type: "message", ID: "m2"})
	if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readServerMessage(ctx, t, conn)
	if msg.Type != "error" || msg.Error != "No messages" {
		t.Errorf("got %+v, want No messages error", msg)
	}
}
