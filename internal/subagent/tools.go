package subagent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nextlevelbuilder/gatewaycore/internal/sessions"
)

// SessionSpawner starts the actual child session/process once a slot has
// been reserved — wiring the backend queue and process executor, owned by
// the caller (cmd layer), not this package.
type SessionSpawner interface {
	SpawnChild(ctx context.Context, runCtx Context, systemPrompt string) error
}

// SessionLister/SessionSender round out the sessions_* tool surface (§6)
// that addresses sessions rather than the subagent registry.
type SessionLister interface {
	ListSessions(requesterSessionKey string) []SessionSummary
}

type SessionSummary struct {
	Key     string
	Label   string
	Updated string
}

type SessionSender interface {
	SendToSession(ctx context.Context, sessionKey, message string) error
}

// SessionHistoryReader reads back a session transcript's assistant replies
// for the sessions_history tool.
type SessionHistoryReader interface {
	ReadHistory(sessionKey string) ([]string, error)
}

// Tools bundles the collaborators needed to implement the five LLM-facing
// tool functions of §6 as plain Go methods — the handler registration
// itself (turning these into JSON-schema tool definitions) happens in the
// cmd-level tool registry, mirroring the teacher's Registry/applyDenyList
// split between tool logic and tool wiring.
type Tools struct {
	Manager  *Manager
	Spawner  SessionSpawner
	Lister   SessionLister
	Sender   SessionSender
	History  SessionHistoryReader
}

// SpawnRequest/SpawnResult mirror the sessions_spawn tool's input/output
// schema (§6) — string/number/bool/array/object only, no unions.
type SpawnRequest struct {
	RequesterSessionKey string
	Task                string
	Label               string
	PlanMode            bool
	Cleanup             string
	Model               string
	Origin              Origin
	ParentIsSubagent    bool
}

type SpawnResult struct {
	RunID           string
	ChildSessionKey string
	Error           string
	Suggestions     []string
}

// SessionsSpawn implements sessions_spawn: reserves a slot, and on success
// registers the run and starts the child. If the spawner fails after
// registration, the run is marked completed with OutcomeError and the
// returned result carries only the error.
func (t *Tools) SessionsSpawn(ctx context.Context, req SpawnRequest) SpawnResult {
	admission := t.Manager.ReserveSlot(req.RequesterSessionKey)
	if !admission.Allowed {
		return SpawnResult{
			Error:       fmt.Sprintf("subagent admission denied: %s", admission.Reason),
			Suggestions: admission.Suggestions,
		}
	}

	label := req.Label
	if label == "" {
		label = truncateLabel(req.Task, 50)
	}

	runID := uuid.NewString()
	agentID, _ := sessions.ParseSessionKey(req.RequesterSessionKey)
	if agentID == "" {
		agentID = req.RequesterSessionKey
	}
	childSessionKey := sessions.BuildSubagentSessionKey(agentID, runID)

	runCtx := Context{
		RunID:               runID,
		RequesterSessionKey: req.RequesterSessionKey,
		ChildSessionKey:     childSessionKey,
		Task:                req.Task,
		Label:               label,
		PlanMode:            req.PlanMode,
		Cleanup:             req.Cleanup,
		Model:               req.Model,
		Origin:              req.Origin,
	}

	if !t.Manager.Register(runCtx, admission.ReserveID) {
		return SpawnResult{Error: "subagent admission denied: reservation expired"}
	}

	if t.Spawner != nil {
		systemPrompt := BuildSystemPrompt(req.Task, label, req.ParentIsSubagent)
		if err := t.Spawner.SpawnChild(ctx, runCtx, systemPrompt); err != nil {
			t.Manager.MarkCompleted(runID, OutcomeError, err.Error(), time.Now())
			return SpawnResult{Error: fmt.Sprintf("failed to start subagent: %v", err)}
		}
	}

	return SpawnResult{RunID: runID, ChildSessionKey: childSessionKey}
}

type RemoveResult struct {
	Status  string // "ok" | "error"
	Message string
	Error   string
}

// SessionsSubagentRemove implements sessions_subagent_remove.
func (t *Tools) SessionsSubagentRemove(requesterSessionKey, runID string) RemoveResult {
	if err := t.Manager.RemoveSubagent(runID, requesterSessionKey); err != nil {
		return RemoveResult{Status: "error", Error: err.Error()}
	}
	return RemoveResult{Status: "ok", Message: fmt.Sprintf("removed subagent %s", shortID(runID))}
}

// SessionsList implements sessions_list.
func (t *Tools) SessionsList(requesterSessionKey string) []SessionSummary {
	if t.Lister == nil {
		return nil
	}
	return t.Lister.ListSessions(requesterSessionKey)
}

// SessionsSend implements sessions_send.
func (t *Tools) SessionsSend(ctx context.Context, sessionKey, message string) error {
	if t.Sender == nil {
		return fmt.Errorf("sessions_send: no sender configured")
	}
	return t.Sender.SendToSession(ctx, sessionKey, message)
}

// SessionsHistory implements sessions_history.
func (t *Tools) SessionsHistory(sessionKey string) ([]string, error) {
	if t.History == nil {
		return nil, nil
	}
	return t.History.ReadHistory(sessionKey)
}

func truncateLabel(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
