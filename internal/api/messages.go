package api

import (
	"encoding/json"

	"github.com/om01deshmukh/Atheron-AI/internal/domain"
	"github.com/om01deshmukh/Atheron-AI/internal/service"
)

// incomingMessage is one role-tagged turn as the browser UI sends it. The
// body is either a plain string or a list of typed parts (assistant-ui
// emits both shapes, sometimes under "parts" instead of "content").
type incomingMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Parts   json.RawMessage `json:"parts"`
}

type messagePart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// extractText flattens a message body to plain text. Unrecognized shapes
// yield the empty string and are later excluded from the outbound request
// rather than raising.
func extractText(msg incomingMessage) string {
	if text := textFromBody(msg.Content); text != "" {
		return text
	}
	return textFromBody(msg.Parts)
}

func textFromBody(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []messagePart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var out string
	for _, p := range parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// normalizeMessages converts the wire turns to the provider format,
// dropping turns with no extractable text or an unknown role.
func normalizeMessages(msgs []incomingMessage) []service.ChatMessage {
	formatted := make([]service.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role != domain.RoleUser && msg.Role != domain.RoleAssistant {
			continue
		}
		text := extractText(msg)
		if text == "" {
			continue
		}
		formatted = append(formatted, service.ChatMessage{Role: msg.Role, Content: text})
	}
	return formatted
}

// lastUserText returns the text of the final user turn, the one this
// request is asking the model to answer.
func lastUserText(msgs []service.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
