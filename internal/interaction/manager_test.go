package interaction

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/gatewaycore/internal/parser"
)

func TestSetGetRoundTrip(t *testing.T) {
	m := NewManager(DefaultTTL)
	m.Set("sess-1", PendingInteraction{
		ToolCallID: "t1",
		Question:   "Proceed?",
		Kind:       parser.InteractionAskUserQuestion,
	})

	got, ok := m.Get("sess-1")
	if !ok {
		t.Fatal("expected pending interaction to be present")
	}
	if got.ToolCallID != "t1" || got.Question != "Proceed?" {
		t.Errorf("got = %+v", got)
	}
}

func TestSetReplacesPriorEntry(t *testing.T) {
	m := NewManager(DefaultTTL)
	m.Set("sess-1", PendingInteraction{ToolCallID: "t1"})
	m.Set("sess-1", PendingInteraction{ToolCallID: "t2"})

	got, ok := m.Get("sess-1")
	if !ok || got.ToolCallID != "t2" {
		t.Errorf("expected replacement entry t2, got %+v ok=%v", got, ok)
	}
}

func TestGetExpiresEntry(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	m.Set("sess-1", PendingInteraction{ToolCallID: "t1"})
	time.Sleep(20 * time.Millisecond)

	_, ok := m.Get("sess-1")
	if ok {
		t.Error("expected expired entry to be gone")
	}
}

func TestClearRemovesEntry(t *testing.T) {
	m := NewManager(DefaultTTL)
	m.Set("sess-1", PendingInteraction{ToolCallID: "t1"})
	m.Clear("sess-1")

	_, ok := m.Get("sess-1")
	if ok {
		t.Error("expected cleared entry to be gone")
	}
}

func TestCleanupExpiredSweepsStaleEntries(t *testing.T) {
	m := NewManager(5 * time.Millisecond)
	m.Set("sess-1", PendingInteraction{ToolCallID: "t1"})
	time.Sleep(15 * time.Millisecond)

	m.cleanupExpired()

	m.mu.Lock()
	n := len(m.entries)
	m.mu.Unlock()
	if n != 0 {
		t.Errorf("expected cleanupExpired to empty the map, got %d entries", n)
	}
}
