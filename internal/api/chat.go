package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/om01deshmukh/Atheron-AI/internal/config"
	"github.com/om01deshmukh/Atheron-AI/internal/domain"
	"github.com/om01deshmukh/Atheron-AI/internal/service"
	"github.com/om01deshmukh/Atheron-AI/internal/sources"
	"github.com/om01deshmukh/Atheron-AI/internal/turn"
)

type chatRequest struct {
	SessionID string            `json:"session_id"`
	Messages  []incomingMessage `json:"messages"`
}

type startEvent struct {
	SessionID string `json:"session_id,omitempty"`
}

type deltaEvent struct {
	Delta string `json:"delta"`
}

type completeEvent struct {
	SessionID string          `json:"session_id,omitempty"`
	Text      string          `json:"text"`
	Sources   []domain.Source `json:"sources"`
}

// handleChat proxies one turn to the model provider and relays the response
// as server-sent lifecycle events. The user turn is persisted before the
// provider request is dispatched so the assistant turn can attach to the
// same session; a failed session creation degrades to an unpersisted chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	messages := normalizeMessages(req.Messages)
	if len(messages) == 0 {
		writeError(w, http.StatusBadRequest, "No messages")
		return
	}
	if len(messages) > config.MaxHistoryMessages {
		messages = messages[len(messages)-config.MaxHistoryMessages:]
	}

	persister, err := s.chat.NewTurnPersister(user.ID, req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	detector := turn.NewDetector(persister, turn.Options{})
	if req.SessionID != "" {
		detector.BindSession(req.SessionID)
	}

	question := lastUserText(messages)
	detector.UserTurn(r.Context(), question)

	system := s.chat.SystemPrompt(r.Context(), question)
	events, err := s.chat.Stream(r.Context(), system, messages)
	if err != nil {
		slog.Error("dispatch chat", "error", err)
		if s.alerts != nil {
			s.alerts.Error(err, "chat dispatch")
		}
		writeError(w, http.StatusBadGateway, "model provider unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	for ev := range events {
		switch ev.Type {
		case service.EventStart:
			writeSSE(w, flusher, "start", startEvent{SessionID: detector.SessionID()})

		case service.EventDelta:
			writeSSE(w, flusher, "delta", deltaEvent{Delta: ev.Delta})
			detector.AssistantDelta(ev.Text)

		case service.EventComplete:
			persister.SetCost(s.chat.Cost(ev.Usage))
			detector.AssistantComplete(r.Context(), ev.Text)

			clean, srcs := sources.Extract(ev.Text)
			if srcs == nil {
				srcs = []domain.Source{}
			}
			writeSSE(w, flusher, "complete", completeEvent{
				SessionID: detector.SessionID(),
				Text:      clean,
				Sources:   srcs,
			})

		case service.EventError:
			slog.Error("chat stream", "error", ev.Err)
			if s.alerts != nil {
				s.alerts.Error(ev.Err, "chat stream")
			}
			writeSSE(w, flusher, "error", errorResponse{Error: "stream interrupted"})
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode sse event", "error", err, "event", event)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	if flusher != nil {
		flusher.Flush()
	}
}
