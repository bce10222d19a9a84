// Package runner is the gateway-level glue that turns a subagent.Context
// into an actual CLI invocation: it resolves the backend (C1), submits the
// call through the per-backend queue (C2), runs the process (C3), parses
// its output (C4), appends the transcript (C5), records the outcome on the
// subagent manager, and kicks off the announce flow (C7). It implements
// subagent.SessionSpawner, the seam the teacher's own SubagentManager.Spawn
// left as a goroutine launch in internal/tools/subagent.go — generalized
// here from "run the in-process LLM loop" to "run an external CLI backend
// to completion".
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/gatewaycore/internal/backend"
	"github.com/nextlevelbuilder/gatewaycore/internal/bus"
	"github.com/nextlevelbuilder/gatewaycore/internal/config"
	"github.com/nextlevelbuilder/gatewaycore/internal/interaction"
	"github.com/nextlevelbuilder/gatewaycore/internal/parser"
	"github.com/nextlevelbuilder/gatewaycore/internal/process"
	"github.com/nextlevelbuilder/gatewaycore/internal/sessions"
	"github.com/nextlevelbuilder/gatewaycore/internal/subagent"
)

// Runner owns the collaborators a subagent run needs beyond admission
// control: the config (for backend resolution), the per-backend queue, the
// subagent manager (to record the outcome), and the session/transcript
// stores.
type Runner struct {
	Config       *config.Config
	Queue        *backend.Queue
	Subagents    *subagent.Manager
	Sessions     *sessions.Manager
	Interactions *interaction.Manager
	Publisher    bus.EventPublisher
	AnnounceDeps subagent.AnnounceDeps
	AnnounceTimeoutMs int

	// Tools backs the sessions_* tool surface (§6) a run's tool_use events
	// dispatch into. Built and assigned by the cmd layer once SessionSpawner
	// wiring (this same Runner) exists, since Tools.Spawner needs it.
	Tools *subagent.Tools

	// DefaultBackend names the BackendSpec used for subagent runs when the
	// caller doesn't pin one explicitly (subagents always use one backend
	// in this core; per-run backend choice is a gateway-level concern).
	DefaultBackend string
}

var _ subagent.SessionSpawner = (*Runner)(nil)

// SpawnChild implements subagent.SessionSpawner. It returns an error only
// if the run could not be started at all (unknown backend, empty argv);
// once the child process is launched, any later failure is recorded via
// Subagents.MarkCompletedWithReason and surfaced through the announce flow instead of
// returned here, since by then SessionsSpawn has already responded to the
// caller.
func (r *Runner) SpawnChild(ctx context.Context, runCtx subagent.Context, systemPrompt string) error {
	resolved, err := backend.Resolve(r.DefaultBackend, r.Config)
	if err != nil {
		return err
	}

	model := runCtx.Model
	if model != "" {
		model = resolved.ResolveModel(model)
	}

	invReq := backend.InvocationRequest{
		Prompt:       runCtx.Task,
		SystemPrompt: systemPrompt,
		Model:        model,
		IsFirstCall:  true,
		TimeoutMs:    0,
	}
	procReq, err := backend.BuildRequest(resolved.Spec, invReq)
	if err != nil {
		return fmt.Errorf("runner: build request: %w", err)
	}
	if len(procReq.Argv) == 0 {
		return fmt.Errorf("runner: empty argv for backend %q", resolved.BackendID)
	}

	queueKey := backend.QueueKey(resolved.BackendID, runCtx.RunID, resolved.Spec.Serialize)
	startedAt := time.Now()

	resultCh := r.Queue.Submit(context.Background(), queueKey, func(ctx context.Context) error {
		return r.runOne(ctx, runCtx, resolved.Spec, resolved.BackendID, model, procReq)
	})

	go func() {
		<-resultCh
		_ = startedAt // retained for a future run-duration metric
	}()

	return nil
}

// maxSessionToolRounds bounds the tool-call/resume loop within one run
// (§6): a misbehaving backend that keeps emitting sessions_* calls without
// ever producing a final reply must not wedge the queue slot forever.
const maxSessionToolRounds = 8

// runOne executes one CLI call for runCtx to completion: runs the process,
// parses its output, appends the transcript, dispatches any sessions_*
// tool_use the backend emitted and resumes the CLI with its result (§6),
// marks the subagent completed, and fires the announce flow. Errors here
// never propagate to SpawnChild's caller — they're folded into the recorded
// Outcome instead.
func (r *Runner) runOne(ctx context.Context, runCtx subagent.Context, spec config.BackendSpec, backendID, model string, req process.Request) error {
	mode := parser.Mode(spec.Output)
	if mode == "" {
		mode = parser.ModeText
	}

	result, err := process.Run(ctx, req)
	endedAt := time.Now()
	if err != nil {
		slog.Error("subagent process run failed", "runId", runCtx.RunID, "error", err)
		r.complete(runCtx, subagent.OutcomeError, err.Error(), "", endedAt, parser.Usage{})
		return err
	}
	if result.Killed {
		failoverErr := process.NewFailoverError(result, backendID, model)
		r.complete(runCtx, subagent.OutcomeTimeout, "process timed out", string(failoverErr.Reason), endedAt, parser.Usage{})
		return nil
	}

	parsed, parseErr := parser.Parse(mode, result.Stdout, spec.SessionIDFields)
	if parseErr != nil {
		r.complete(runCtx, subagent.OutcomeError, parseErr.Error(), "", endedAt, parser.Usage{})
		return parseErr
	}
	r.appendTranscript(runCtx, parsed)

	enabled := enabledSessionTools(spec.EnableTools)
	usage := parsed.Usage
	for round := 0; round < maxSessionToolRounds; round++ {
		call := pendingSessionToolCall(parsed.ToolUses, parsed.ToolResults, enabled)
		if call == nil {
			break
		}
		if parsed.SessionID == "" {
			slog.Warn("subagent tool dispatch: backend reported no session id, cannot resume", "runId", runCtx.RunID, "tool", call.Name)
			break
		}

		content := r.dispatchSessionTool(ctx, runCtx, *call)
		invReq := backend.InvocationRequest{
			Model:      model,
			SessionID:  parsed.SessionID,
			ToolResult: &backend.ToolResultPayload{ToolUseID: call.ID, Content: content},
		}
		resumeReq, buildErr := backend.BuildRequest(spec, invReq)
		if buildErr != nil {
			slog.Error("subagent tool dispatch: resume build failed", "runId", runCtx.RunID, "error", buildErr)
			break
		}

		result, err = process.Run(ctx, resumeReq)
		endedAt = time.Now()
		if err != nil {
			slog.Error("subagent process resume failed", "runId", runCtx.RunID, "error", err)
			r.complete(runCtx, subagent.OutcomeError, err.Error(), "", endedAt, usage)
			return err
		}
		if result.Killed {
			failoverErr := process.NewFailoverError(result, backendID, model)
			r.complete(runCtx, subagent.OutcomeTimeout, "process timed out", string(failoverErr.Reason), endedAt, usage)
			return nil
		}

		resumed, parseErr := parser.Parse(mode, result.Stdout, spec.SessionIDFields)
		if parseErr != nil {
			r.complete(runCtx, subagent.OutcomeError, parseErr.Error(), "", endedAt, usage)
			return parseErr
		}
		r.appendTranscript(runCtx, resumed)
		usage.Merge(resumed.Usage)
		parsed = resumed
	}
	r.recordPendingInteraction(runCtx, parsed)

	outcome := subagent.OutcomeOK
	reason := ""
	summary := parsed.Text
	if result.ExitCode != 0 {
		outcome = subagent.OutcomeError
		failoverErr := process.NewFailoverError(result, backendID, model)
		reason = string(failoverErr.Reason)
		slog.Warn("subagent backend exited non-zero", "runId", runCtx.RunID, "reason", reason, "exitCode", result.ExitCode)
		if summary == "" {
			summary = failoverErr.Error()
		}
	}
	r.complete(runCtx, outcome, summary, reason, endedAt, usage)
	return nil
}

// pendingSessionToolCall finds the highest-indexed tool_use naming one of
// the sessions_* tools (§6) with no matching tool_result yet — the same
// unmatched-tool-use rule parser.detectPendingInteraction applies to
// AskUserQuestion/ExitPlanMode, generalized to this core's own tool surface.
func pendingSessionToolCall(toolUses []parser.CliToolUseEvent, toolResults []parser.CliToolResultEvent, enabled map[string]bool) *parser.CliToolUseEvent {
	answered := make(map[string]bool, len(toolResults))
	for _, res := range toolResults {
		answered[res.ToolUseID] = true
	}
	for i := len(toolUses) - 1; i >= 0; i-- {
		if !answered[toolUses[i].ID] && enabled[toolUses[i].Name] {
			call := toolUses[i]
			return &call
		}
	}
	return nil
}

var allSessionToolNames = map[string]bool{
	"sessions_spawn":           true,
	"sessions_subagent_remove": true,
	"sessions_history":         true,
	"sessions_send":            true,
	"sessions_list":            true,
}

// enabledSessionTools resolves a backend's BackendSpec.EnableTools (the JSON
// schema advertised to the CLI, §6) into the subset of the five sessions_*
// tools this runner will actually dispatch for that backend. An empty list
// means the backend advertises (and so may call) all five — the common case
// for a backend config that predates per-tool allowlisting.
func enabledSessionTools(specEnableTools []string) map[string]bool {
	if len(specEnableTools) == 0 {
		return allSessionToolNames
	}
	enabled := make(map[string]bool, len(specEnableTools))
	for _, name := range specEnableTools {
		if allSessionToolNames[name] {
			enabled[name] = true
		}
	}
	return enabled
}

// dispatchSessionTool executes call against r.Tools and returns the
// tool_result content to resume the CLI with (§6). Dispatch errors are
// returned as a {"error": "..."} content payload rather than failing the
// run — the backend decides how to react to a tool error, same as any
// other tool_result.
func (r *Runner) dispatchSessionTool(ctx context.Context, runCtx subagent.Context, call parser.CliToolUseEvent) string {
	if r.Tools == nil {
		return toolResultJSON(map[string]string{"error": "tool dispatch unavailable"})
	}

	switch call.Name {
	case "sessions_spawn":
		req := subagent.SpawnRequest{RequesterSessionKey: runCtx.ChildSessionKey, ParentIsSubagent: true}
		req.Task, _ = call.Input["task"].(string)
		req.Label, _ = call.Input["label"].(string)
		req.PlanMode, _ = call.Input["planMode"].(bool)
		req.Cleanup, _ = call.Input["cleanup"].(string)
		return toolResultJSON(r.Tools.SessionsSpawn(ctx, req))

	case "sessions_subagent_remove":
		runID, _ := call.Input["runId"].(string)
		return toolResultJSON(r.Tools.SessionsSubagentRemove(runCtx.ChildSessionKey, runID))

	case "sessions_history":
		sessionKey, _ := call.Input["sessionKey"].(string)
		lines, err := r.Tools.SessionsHistory(sessionKey)
		if err != nil {
			return toolResultJSON(map[string]string{"error": err.Error()})
		}
		return toolResultJSON(map[string][]string{"lines": lines})

	case "sessions_send":
		sessionKey, _ := call.Input["sessionKey"].(string)
		message, _ := call.Input["message"].(string)
		if err := r.Tools.SessionsSend(ctx, sessionKey, message); err != nil {
			return toolResultJSON(map[string]string{"error": err.Error()})
		}
		return toolResultJSON(map[string]string{"status": "ok"})

	case "sessions_list":
		return toolResultJSON(map[string]any{"sessions": r.Tools.SessionsList(runCtx.ChildSessionKey)})

	default:
		return toolResultJSON(map[string]string{"error": "unknown tool: " + call.Name})
	}
}

func toolResultJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

func (r *Runner) complete(runCtx subagent.Context, outcome subagent.Outcome, summary, reason string, endedAt time.Time, usage parser.Usage) {
	r.Subagents.MarkCompletedWithReason(runCtx.RunID, outcome, summary, reason, endedAt)
	if r.Sessions != nil {
		r.Sessions.AccumulateTokens(runCtx.ChildSessionKey, int64(usage.InputTokens), int64(usage.OutputTokens))
	}

	record, ok := r.Subagents.Get(runCtx.RunID)
	if !ok {
		return
	}
	go func() {
		subagent.RunSubagentAnnounceFlow(context.Background(), r.Subagents, r.AnnounceDeps, record, r.AnnounceTimeoutMs)
	}()
}

func (r *Runner) appendTranscript(runCtx subagent.Context, parsed *parser.ParsedOutput) {
	if r.Config == nil || r.Config.Sessions.Storage == "" {
		return
	}
	path := filepath.Join(config.ExpandHome(r.Config.Sessions.Storage), sessionFileName(runCtx.ChildSessionKey))
	transcript := sessions.NewTranscript(path, r.Publisher, "")
	transcript.AppendRun(parsed.ToolUses, parsed.ToolResults, parsed.Text, parsed.Usage)
}

// recordPendingInteraction surfaces a detected AskUserQuestion/plan-approval
// call (§4.4) to the interaction manager, so the session that receives the
// next user reply can resolve it back into a tool_result (§4.6).
func (r *Runner) recordPendingInteraction(runCtx subagent.Context, parsed *parser.ParsedOutput) {
	if r.Interactions == nil || parsed.PendingInteraction == nil {
		return
	}
	pi := parsed.PendingInteraction
	now := time.Now()
	r.Interactions.Set(runCtx.ChildSessionKey, interaction.PendingInteraction{
		SessionKey:  runCtx.ChildSessionKey,
		ToolCallID:  pi.ToolCallID,
		Question:    pi.Question,
		Options:     pi.Options,
		MultiSelect: pi.MultiSelect,
		Kind:        pi.Type,
		CreatedAt:   now,
		ExpiresAt:   now.Add(interaction.DefaultTTL),
	})
}

func sessionFileName(sessionKey string) string {
	safe := make([]byte, 0, len(sessionKey))
	for i := 0; i < len(sessionKey); i++ {
		c := sessionKey[i]
		if c == ':' {
			safe = append(safe, '_')
			continue
		}
		safe = append(safe, c)
	}
	return string(safe) + ".jsonl"
}
