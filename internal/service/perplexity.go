package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/om01deshmukh/Atheron-AI/internal/config"
)

// PerplexityService is a client for an OpenAI-compatible chat completions
// API. The model is expected to honor the Athey prompt contract and append
// the sources block at the end of its output.
type PerplexityService struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewPerplexityService(apiKey, baseURL, model string) *PerplexityService {
	return &PerplexityService{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
	}
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// EventType identifies a lifecycle event on a streaming chat response.
type EventType string

const (
	EventStart    EventType = "start"
	EventDelta    EventType = "delta"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// StreamEvent is one typed lifecycle event of a streaming response.
// Delta carries the incremental chunk, Text the full text accumulated so
// far (the final text on EventComplete).
type StreamEvent struct {
	Type  EventType
	Delta string
	Text  string
	Usage *Usage
	Err   error
}

// Chat performs a non-streaming completion.
func (s *PerplexityService) Chat(ctx context.Context, system string, messages []ChatMessage) (*ChatResponse, error) {
	payload, err := json.Marshal(ChatRequest{
		Model:    s.model,
		Messages: withSystem(system, messages),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := s.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &chatResp, nil
}

// ChatStream performs a streaming completion and returns a channel of
// lifecycle events. The channel is closed after EventComplete or EventError.
func (s *PerplexityService) ChatStream(ctx context.Context, system string, messages []ChatMessage) (<-chan StreamEvent, error) {
	payload, err := json.Marshal(ChatRequest{
		Model:    s.model,
		Messages: withSystem(system, messages),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := s.post(ctx, payload)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 16)
	go s.consumeStream(resp.Body, events)
	return events, nil
}

func (s *PerplexityService) post(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// consumeStream reads SSE data lines off the response body and converts
// them into lifecycle events.
func (s *PerplexityService) consumeStream(body io.ReadCloser, events chan<- StreamEvent) {
	defer body.Close()
	defer close(events)

	events <- StreamEvent{Type: EventStart}

	var full strings.Builder
	var usage *Usage

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Tolerate malformed keepalive or vendor extension lines.
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			full.WriteString(delta)
			events <- StreamEvent{Type: EventDelta, Delta: delta, Text: full.String()}
		}
	}

	if err := scanner.Err(); err != nil {
		events <- StreamEvent{Type: EventError, Err: fmt.Errorf("read stream: %w", err)}
		return
	}

	events <- StreamEvent{Type: EventComplete, Text: full.String(), Usage: usage}
}

func withSystem(system string, messages []ChatMessage) []ChatMessage {
	if system == "" {
		return messages
	}
	out := make([]ChatMessage, 0, len(messages)+1)
	out = append(out, ChatMessage{Role: "system", Content: system})
	return append(out, messages...)
}
