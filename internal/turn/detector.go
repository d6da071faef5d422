// Package turn decides when a conversational turn is final and persists it
// exactly once. The chat transport feeds it typed lifecycle events (user
// turn, assistant delta, assistant complete); deltas restart a quiescence
// timer so partial output is never written, and a last-saved memo guards
// against duplicate writes. Persistence is fire-and-forget: failures are
// logged, never retried.
package turn

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/om01deshmukh/Atheron-AI/internal/config"
)

// Persister is the storage collaborator a Detector writes finished turns to.
type Persister interface {
	// SaveUserTurn persists a user turn, creating the session lazily on the
	// first message of a new conversation. It returns the session id that
	// subsequent assistant turns must attach to.
	SaveUserTurn(ctx context.Context, text string) (sessionID string, err error)
	SaveAssistantTurn(ctx context.Context, sessionID, text string) error
}

// Options tune the quiescence policy. Zero values fall back to the defaults
// in config.
type Options struct {
	Window      time.Duration
	MinLen      int
	Placeholder string
}

// Detector tracks one active conversation view.
type Detector struct {
	persister Persister
	window    time.Duration
	minLen    int
	placeholder string

	mu            sync.Mutex
	sessionID     string
	historyMode   bool
	lastSavedUser string
	lastSavedAsst string
	pending       string
	timer         *time.Timer
}

func NewDetector(p Persister, opts Options) *Detector {
	if opts.Window <= 0 {
		opts.Window = config.QuiescenceWindow
	}
	if opts.MinLen <= 0 {
		opts.MinLen = config.MinAssistantContentLen
	}
	if opts.Placeholder == "" {
		opts.Placeholder = config.LoadingPlaceholder
	}
	return &Detector{
		persister:   p,
		window:      opts.Window,
		minLen:      opts.MinLen,
		placeholder: opts.Placeholder,
	}
}

// BindSession attaches the detector to an already-persisted session, as when
// the user reopens a conversation from the sidebar.
func (d *Detector) BindSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionID = sessionID
}

// SetHistoryMode marks the view as showing loaded history. History turns are
// already persisted and must never be written again; all events are ignored
// until the mode is cleared.
func (d *Detector) SetHistoryMode(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.historyMode = on
}

// Reset clears all per-conversation state, for a session switch or new chat.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.sessionID = ""
	d.historyMode = false
	d.lastSavedUser = ""
	d.lastSavedAsst = ""
	d.pending = ""
}

// SessionID returns the session the detector is currently bound to, which may
// be empty when session creation failed or no user turn has committed yet.
func (d *Detector) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// UserTurn commits a live user message. The write is synchronous so the
// session id is captured before the assistant request is dispatched. A
// failed save leaves the detector unbound: the assistant turn then has
// nowhere to attach and is dropped, while the live chat keeps rendering.
func (d *Detector) UserTurn(ctx context.Context, text string) {
	text = strings.TrimSpace(text)

	d.mu.Lock()
	if d.historyMode || text == "" || text == d.lastSavedUser {
		d.mu.Unlock()
		return
	}
	d.lastSavedUser = text
	d.mu.Unlock()

	sessionID, err := d.persister.SaveUserTurn(ctx, text)
	if err != nil {
		slog.Error("save user turn", "error", err)
		return
	}

	d.mu.Lock()
	d.sessionID = sessionID
	d.mu.Unlock()
}

// AssistantDelta records a content mutation of the live assistant turn and
// restarts the quiescence timer. Nothing is persisted until no further delta
// arrives for the full window.
func (d *Detector) AssistantDelta(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.historyMode || d.sessionID == "" {
		return
	}
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < d.minLen || strings.Contains(trimmed, d.placeholder) {
		return
	}

	d.pending = trimmed
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.window, d.fireQuiescence)
}

// AssistantComplete finalizes the assistant turn immediately, bypassing the
// timer, for transports that deliver an explicit end-of-stream. The text is
// known-final here, so the length and placeholder gates do not apply: a
// short answer that ends with a complete event is still a real turn.
func (d *Detector) AssistantComplete(ctx context.Context, text string) {
	d.mu.Lock()
	d.stopTimerLocked()
	d.pending = ""
	d.mu.Unlock()

	d.commitAssistant(ctx, strings.TrimSpace(text), false)
}

func (d *Detector) fireQuiescence() {
	d.mu.Lock()
	text := d.pending
	d.pending = ""
	d.mu.Unlock()

	if text == "" {
		return
	}
	d.commitAssistant(context.Background(), text, true)
}

// commitAssistant writes the turn once. gated applies the in-flight content
// checks, for the timer path where the text is only presumed final.
func (d *Detector) commitAssistant(ctx context.Context, text string, gated bool) {
	d.mu.Lock()
	if d.historyMode || d.sessionID == "" || text == "" || text == d.lastSavedAsst {
		d.mu.Unlock()
		return
	}
	if gated && (len(text) < d.minLen || strings.Contains(text, d.placeholder)) {
		d.mu.Unlock()
		return
	}
	d.lastSavedAsst = text
	sessionID := d.sessionID
	d.mu.Unlock()

	if err := d.persister.SaveAssistantTurn(ctx, sessionID, text); err != nil {
		slog.Error("save assistant turn", "error", err, "session_id", sessionID)
	}
}

func (d *Detector) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
