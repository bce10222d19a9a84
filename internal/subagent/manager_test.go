package subagent

import (
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager(Config{}, nil, nil, nil)
}

func reserveAndRegister(t *testing.T, m *Manager, sessionKey string) string {
	t.Helper()
	admission := m.ReserveSlot(sessionKey)
	if !admission.Allowed {
		t.Fatalf("expected admission, got %+v", admission)
	}
	runID := admission.ReserveID // reuse as a stable unique id for the test
	ok := m.Register(Context{
		RunID:               runID,
		RequesterSessionKey: sessionKey,
		ChildSessionKey:     "child:" + runID,
		Task:                "do something",
	}, admission.ReserveID)
	if !ok {
		t.Fatalf("expected register to succeed")
	}
	return runID
}

// TestS1AdmissionSaturation is the literal S1 scenario.
func TestS1AdmissionSaturation(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	var runIDs []string
	for i := 0; i < 5; i++ {
		runIDs = append(runIDs, reserveAndRegister(t, m, "S"))
	}

	denied := m.ReserveSlot("S")
	if denied.Allowed || denied.Reason != "concurrency" {
		t.Fatalf("expected concurrency denial, got %+v", denied)
	}

	m.MarkCompleted(runIDs[0], OutcomeOK, "done", time.Now())

	allowed := m.ReserveSlot("S")
	if !allowed.Allowed || allowed.ReserveID == "" {
		t.Fatalf("expected admission after completing one, got %+v", allowed)
	}

	m.mu.Lock()
	m.reserved[allowed.ReserveID] = Reservation{
		ReserveID:           allowed.ReserveID,
		RequesterSessionKey: "S",
		ReservedAt:          time.Now().Add(-31 * time.Second),
	}
	m.purgeExpiredReservationsLocked()
	_, stillReserved := m.reserved[allowed.ReserveID]
	m.mu.Unlock()
	if stillReserved {
		t.Fatal("expected the stale reservation to be reclaimed after 30s")
	}
}

// TestS2CapacityWithSuggestions is the literal S2 scenario.
func TestS2CapacityWithSuggestions(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	var oldest []string
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 14; i++ {
		runID := reserveAndRegister(t, m, "S")
		endedAt := base.Add(time.Duration(i) * time.Minute)
		m.MarkCompleted(runID, OutcomeOK, "done", endedAt)
		if i < 3 {
			oldest = append(oldest, runID)
		}
	}
	reserveAndRegister(t, m, "S") // the 1 running

	denied := m.ReserveSlot("S")
	if denied.Allowed {
		t.Fatalf("expected capacity denial, got %+v", denied)
	}
	if denied.Reason != "capacity" {
		t.Errorf("reason = %q, want capacity", denied.Reason)
	}
	if len(denied.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d: %v", len(denied.Suggestions), denied.Suggestions)
	}
	for i, want := range oldest {
		if denied.Suggestions[i] != want {
			t.Errorf("suggestion[%d] = %q, want %q", i, denied.Suggestions[i], want)
		}
	}
}

func TestRegisterRejectsUnknownReservation(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	ok := m.Register(Context{RunID: "r1", RequesterSessionKey: "S"}, "nonexistent-reserve-id")
	if ok {
		t.Fatal("expected Register to reject an unknown reservation id")
	}
}

func TestMarkCompletedNoopWhenNotRunning(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	m.MarkCompleted("never-ran", OutcomeOK, "x", time.Now())
	if _, ok := m.Get("never-ran"); ok {
		t.Fatal("expected no record to be created for an unknown runId")
	}
}

func TestRemoveSubagentRejectsRunning(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	runID := reserveAndRegister(t, m, "S")
	err := m.RemoveSubagent(runID, "S")
	if err == nil {
		t.Fatal("expected RemoveSubagent to reject a running subagent")
	}
	if re, ok := err.(*RemovalError); !ok || re.Reason != "running" {
		t.Errorf("err = %v, want RemovalError{running}", err)
	}
}

func TestRemoveSubagentRejectsWrongSession(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	runID := reserveAndRegister(t, m, "S")
	m.MarkCompleted(runID, OutcomeOK, "done", time.Now())

	err := m.RemoveSubagent(runID, "other-session")
	if err == nil {
		t.Fatal("expected permission error")
	}
	if re, ok := err.(*RemovalError); !ok || re.Reason != "permission" {
		t.Errorf("err = %v, want RemovalError{permission}", err)
	}

	if err := m.RemoveSubagent(runID, "S"); err != nil {
		t.Fatalf("expected the rightful owner to remove it, got %v", err)
	}
	if _, ok := m.Get(runID); ok {
		t.Fatal("expected record to be gone after removal")
	}
}

// TestNoCompletedRecordRemovedExceptByRemoveSubagent is invariant #4.
func TestNoCompletedRecordRemovedExceptByRemoveSubagent(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	runID := reserveAndRegister(t, m, "S")
	m.MarkCompleted(runID, OutcomeOK, "done", time.Now())

	m.ReserveSlot("S")
	m.ReserveSlot("other-session")

	if _, ok := m.Get(runID); !ok {
		t.Fatal("completed record vanished without a RemoveSubagent call")
	}
}
