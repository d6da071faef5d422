package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakePersister struct {
	mu             sync.Mutex
	userTurns      []string
	assistantTurns []string
	sessionID      string
	userErr        error
	assistantErr   error
}

func (f *fakePersister) SaveUserTurn(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return "", f.userErr
	}
	f.userTurns = append(f.userTurns, text)
	return f.sessionID, nil
}

func (f *fakePersister) SaveAssistantTurn(ctx context.Context, sessionID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assistantErr != nil {
		return f.assistantErr
	}
	f.assistantTurns = append(f.assistantTurns, text)
	return nil
}

func (f *fakePersister) assistantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.assistantTurns)
}

func (f *fakePersister) userCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.userTurns)
}

const longText = "This answer is comfortably longer than the fifty character minimum gate."

func newTestDetector(p Persister, window time.Duration) *Detector {
	return NewDetector(p, Options{Window: window, MinLen: 50, Placeholder: "Hold on"})
}

func TestUserTurnCapturesSession(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1"}
	d := newTestDetector(p, 20*time.Millisecond)

	d.UserTurn(context.Background(), "What is dark matter?")

	if got := d.SessionID(); got != "sess-1" {
		t.Errorf("SessionID() = %q, want sess-1", got)
	}
	if p.userCount() != 1 {
		t.Errorf("user turns = %d, want 1", p.userCount())
	}
}

func TestUserTurnSavedOncePerDistinctText(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1"}
	d := newTestDetector(p, 20*time.Millisecond)
	ctx := context.Background()

	d.UserTurn(ctx, "same question")
	d.UserTurn(ctx, "same question")
	d.UserTurn(ctx, "  same question  ")

	if p.userCount() != 1 {
		t.Errorf("user turns = %d, want 1", p.userCount())
	}

	d.UserTurn(ctx, "different question")
	if p.userCount() != 2 {
		t.Errorf("user turns = %d, want 2", p.userCount())
	}
}

func TestUserTurnFailureLeavesDetectorUnbound(t *testing.T) {
	p := &fakePersister{userErr: errors.New("db down")}
	d := newTestDetector(p, 10*time.Millisecond)
	ctx := context.Background()

	d.UserTurn(ctx, "hello there")
	if d.SessionID() != "" {
		t.Fatalf("SessionID() = %q, want empty after failed save", d.SessionID())
	}

	// Assistant turn has no session to attach to and must be dropped.
	d.AssistantComplete(ctx, longText)
	if p.assistantCount() != 0 {
		t.Errorf("assistant turns = %d, want 0", p.assistantCount())
	}
}

func TestQuiescenceTimerHoldsWhileMutating(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1"}
	d := newTestDetector(p, 60*time.Millisecond)
	d.UserTurn(context.Background(), "q")

	// Deltas arriving faster than the window must not persist anything.
	for i := 0; i < 5; i++ {
		d.AssistantDelta(longText + strings.Repeat(" more", i))
		time.Sleep(15 * time.Millisecond)
	}
	if p.assistantCount() != 0 {
		t.Fatalf("persisted during active streaming: %d turns", p.assistantCount())
	}

	// Once the gap exceeds the window, exactly one save fires.
	time.Sleep(120 * time.Millisecond)
	if p.assistantCount() != 1 {
		t.Fatalf("assistant turns = %d, want 1", p.assistantCount())
	}
}

func TestQuiescenceSavesLatestText(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1"}
	d := newTestDetector(p, 30*time.Millisecond)
	d.UserTurn(context.Background(), "q")

	d.AssistantDelta(longText + " v1")
	d.AssistantDelta(longText + " v2 final")

	time.Sleep(80 * time.Millisecond)
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.assistantTurns) != 1 || p.assistantTurns[0] != longText+" v2 final" {
		t.Fatalf("assistant turns = %v", p.assistantTurns)
	}
}

func TestDuplicateObservationsAfterStabilization(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1"}
	d := newTestDetector(p, 20*time.Millisecond)
	ctx := context.Background()
	d.UserTurn(ctx, "q")

	// Repeated observations of the same final text: the memo allows one save.
	d.AssistantComplete(ctx, longText)
	d.AssistantComplete(ctx, longText)
	d.AssistantDelta(longText)
	time.Sleep(60 * time.Millisecond)

	if p.assistantCount() != 1 {
		t.Errorf("assistant turns = %d, want 1", p.assistantCount())
	}
}

func TestCompleteBypassesTimer(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1"}
	d := newTestDetector(p, time.Hour)
	ctx := context.Background()
	d.UserTurn(ctx, "q")

	d.AssistantDelta(longText)
	d.AssistantComplete(ctx, longText)

	if p.assistantCount() != 1 {
		t.Errorf("assistant turns = %d, want 1", p.assistantCount())
	}
}

func TestDeltaContentGates(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1"}
	d := newTestDetector(p, 15*time.Millisecond)
	ctx := context.Background()
	d.UserTurn(ctx, "q")

	// In-flight text below the minimum or still showing the loading
	// placeholder must never arm the timer.
	d.AssistantDelta("too short")
	d.AssistantDelta("Hold on" + strings.Repeat(".", 60))

	time.Sleep(50 * time.Millisecond)
	if p.assistantCount() != 0 {
		t.Errorf("assistant turns = %d, want 0", p.assistantCount())
	}
}

func TestCompletePersistsShortFinalAnswer(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1"}
	d := newTestDetector(p, time.Hour)
	ctx := context.Background()
	d.UserTurn(ctx, "is the earth round")

	// An explicit end-of-stream marks the text final: the length gate only
	// protects the timer path.
	d.AssistantComplete(ctx, "Yes, that is correct.")

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.assistantTurns) != 1 || p.assistantTurns[0] != "Yes, that is correct." {
		t.Errorf("assistant turns = %v", p.assistantTurns)
	}
}

func TestHistoryModeIgnoresEvents(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1"}
	d := newTestDetector(p, 15*time.Millisecond)
	ctx := context.Background()

	d.BindSession("sess-1")
	d.SetHistoryMode(true)

	d.UserTurn(ctx, "loaded question")
	d.AssistantDelta(longText)
	d.AssistantComplete(ctx, longText)
	time.Sleep(50 * time.Millisecond)

	if p.userCount() != 0 || p.assistantCount() != 0 {
		t.Errorf("history replay persisted turns: user=%d assistant=%d",
			p.userCount(), p.assistantCount())
	}
}

func TestResetClearsMemos(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1"}
	d := newTestDetector(p, 20*time.Millisecond)
	ctx := context.Background()

	d.UserTurn(ctx, "question")
	d.Reset()
	p.sessionID = "sess-2"
	d.UserTurn(ctx, "question")

	if p.userCount() != 2 {
		t.Errorf("user turns = %d, want 2 after reset", p.userCount())
	}
	if d.SessionID() != "sess-2" {
		t.Errorf("SessionID() = %q, want sess-2", d.SessionID())
	}
}

func TestAssistantFailureIsNotRetried(t *testing.T) {
	p := &fakePersister{sessionID: "sess-1", assistantErr: errors.New("db down")}
	d := newTestDetector(p, 10*time.Millisecond)
	ctx := context.Background()
	d.UserTurn(ctx, "q")

	d.AssistantComplete(ctx, longText)
	time.Sleep(40 * time.Millisecond)

	if p.assistantCount() != 0 {
		t.Errorf("assistant turns = %d, want 0", p.assistantCount())
	}
	// The memo keeps the failed text; a repeat observation does not re-save.
	p.mu.Lock()
	p.assistantErr = nil
	p.mu.Unlock()
	d.AssistantComplete(ctx, longText)
	if p.assistantCount() != 0 {
		t.Errorf("failed turn was retried")
	}
}
