package ws

import "github.com/om01deshmukh/Atheron-AI/internal/domain"

// ClientMessage is one frame sent by the browser.
type ClientMessage struct {
	// Type is "message" to start a turn or "cancel" to abort the current one.
	Type      string        `json:"type"`
	ID        string        `json:"id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Messages  []TurnPayload `json:"messages,omitempty"`
}

// TurnPayload is one role-tagged turn of the conversation history.
type TurnPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ServerMessage mirrors the stream's lifecycle events back to the client.
type ServerMessage struct {
	Type      string          `json:"type"` // start, delta, complete, error
	MessageID string          `json:"id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Delta     string          `json:"delta,omitempty"`
	Text      string          `json:"text,omitempty"`
	Sources   []domain.Source `json:"sources,omitempty"`
	Error     string          `json:"error,omitempty"`
}
