package subagent

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubSpawner struct {
	err     error
	spawned []Context
}

func (s *stubSpawner) SpawnChild(ctx context.Context, runCtx Context, systemPrompt string) error {
	s.spawned = append(s.spawned, runCtx)
	return s.err
}

func TestSessionsSpawnSuccess(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	spawner := &stubSpawner{}
	tools := &Tools{Manager: m, Spawner: spawner}

	result := tools.SessionsSpawn(context.Background(), SpawnRequest{
		RequesterSessionKey: "S",
		Task:                "write something",
	})

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.RunID == "" || result.ChildSessionKey == "" {
		t.Fatalf("expected run id and child session key, got %+v", result)
	}
	if len(spawner.spawned) != 1 {
		t.Fatalf("expected spawner to be invoked once, got %d", len(spawner.spawned))
	}

	record, ok := m.Get(result.RunID)
	if !ok || !record.IsRunning() {
		t.Errorf("expected a running record, got %+v ok=%v", record, ok)
	}
}

func TestSessionsSpawnDeniedOnSaturation(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	tools := &Tools{Manager: m, Spawner: &stubSpawner{}}

	for i := 0; i < 5; i++ {
		result := tools.SessionsSpawn(context.Background(), SpawnRequest{RequesterSessionKey: "S", Task: "t"})
		if result.Error != "" {
			t.Fatalf("unexpected denial on iteration %d: %s", i, result.Error)
		}
	}

	result := tools.SessionsSpawn(context.Background(), SpawnRequest{RequesterSessionKey: "S", Task: "t"})
	if result.Error == "" {
		t.Fatal("expected the 6th spawn to be denied")
	}
}

func TestSessionsSpawnMarksErrorOnSpawnFailure(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	spawner := &stubSpawner{err: errors.New("boom")}
	tools := &Tools{Manager: m, Spawner: spawner}

	result := tools.SessionsSpawn(context.Background(), SpawnRequest{RequesterSessionKey: "S", Task: "t"})
	if result.Error == "" {
		t.Fatal("expected an error result when the spawner fails")
	}

	running, completed := m.ListForSession("S")
	ok := len(running) == 0 && len(completed) == 1
	var record RunRecord
	if ok {
		record = completed[0]
	}
	if !ok || record.IsRunning() || record.Outcome != OutcomeError {
		t.Errorf("expected the record to be completed with OutcomeError, got %+v ok=%v", record, ok)
	}
}

func TestSessionsSubagentRemove(t *testing.T) {
	m := newTestManager()
	defer m.Close()
	tools := &Tools{Manager: m}

	result := tools.SessionsSpawn(context.Background(), SpawnRequest{RequesterSessionKey: "S", Task: "t"})
	removeWhileRunning := tools.SessionsSubagentRemove("S", result.RunID)
	if removeWhileRunning.Status != "error" {
		t.Fatalf("expected remove to fail while running, got %+v", removeWhileRunning)
	}

	m.MarkCompleted(result.RunID, OutcomeOK, "done", time.Now())
	removeAfterCompletion := tools.SessionsSubagentRemove("S", result.RunID)
	if removeAfterCompletion.Status != "ok" {
		t.Fatalf("expected remove to succeed once completed, got %+v", removeAfterCompletion)
	}
}
