package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// QueueMode is the enumerated dispatch-mode tag consulted before an
// announcement is delivered (§9).
type QueueMode string

const (
	QueueOff         QueueMode = "off"
	QueueFollowup    QueueMode = "followup"
	QueueCollect     QueueMode = "collect"
	QueueInterrupt   QueueMode = "interrupt"
	QueueSteer       QueueMode = "steer"
	QueueSteerBacklog QueueMode = "steer-backlog"
)

// AgentWaitResult is the reply shape of the agent.wait RPC (§6).
type AgentWaitResult struct {
	Status    string // "ok" | "error" | "timeout"
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     string
}

// GatewayClient is the set of gateway RPCs the announce flow consumes
// (§6). Defined here, satisfied by internal/gatewayclient, so this package
// compiles and tests against a stub without depending on the concrete
// websocket transport.
type GatewayClient interface {
	AgentWait(ctx context.Context, runID string, timeoutMs int) (AgentWaitResult, error)
	SendAgentMessage(ctx context.Context, params AgentMessageParams) error
	SessionsPatch(ctx context.Context, key, label string) error
	SessionsDelete(ctx context.Context, key string, deleteTranscript bool) error
}

// AgentMessageParams mirrors the `agent` RPC's param shape (§6).
type AgentMessageParams struct {
	SessionKey    string
	Message       string
	Channel       string
	AccountID     string
	To            string
	ThreadID      string
	Deliver       bool
	IdempotencyKey string
	ExpectFinal   bool
}

// Dispatcher is the subset of the parent-session dispatcher the announce
// flow needs: whether a run is currently active for a session, and
// best-effort attempts to steer a message into it or queue it for later.
type Dispatcher interface {
	QueueMode(sessionKey string) QueueMode
	IsRunActive(sessionKey string) bool
	Steer(sessionKey, message string) bool
	Enqueue(sessionKey, message string)
}

// TranscriptReader abstracts reading the child's latest assistant reply,
// satisfied by sessions.ReadLatestAssistantReply.
type TranscriptReader func(transcriptPath string) (string, error)

// AnnounceDeps bundles the externally supplied collaborators
// runSubagentAnnounceFlow needs, so the flow itself stays free of direct
// package-level dependencies on sessions/gatewayclient.
type AnnounceDeps struct {
	Gateway           GatewayClient
	Dispatcher        Dispatcher
	ReadTranscript    TranscriptReader
	TranscriptPath    func(childSessionKey string) string
	ResolveOrigin     func(childSessionKey string) Origin
	EstimateCostUSD   func(model string, inputTokens, outputTokens int64) (float64, bool)
	Now               func() time.Time
}

// RunSubagentAnnounceFlow implements the 7-step best-effort announce flow
// of §4.7. Every outbound step is wrapped and logged on failure — only the
// manager's admission/registration critical section must not fail silently
// (§7).
func RunSubagentAnnounceFlow(ctx context.Context, mgr *Manager, deps AnnounceDeps, record RunRecord, timeoutMs int) {
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}

	waitMs := timeoutMs
	if waitMs <= 0 || waitMs > 60000 {
		waitMs = 60000
	}
	if deps.Gateway != nil {
		waitResult, err := deps.Gateway.AgentWait(ctx, record.RunID, waitMs)
		if err != nil {
			slog.Warn("subagent announce: agent.wait failed", "runId", record.RunID, "error", err)
		} else {
			if record.StartedAt == nil && waitResult.StartedAt != nil {
				record.StartedAt = waitResult.StartedAt
			}
			if record.EndedAt == nil && waitResult.EndedAt != nil {
				record.EndedAt = waitResult.EndedAt
			}
		}
	}

	transcriptPath := ""
	if deps.TranscriptPath != nil {
		transcriptPath = deps.TranscriptPath(record.ChildSessionKey)
	}
	reply := ""
	if deps.ReadTranscript != nil && transcriptPath != "" {
		text, err := deps.ReadTranscript(transcriptPath)
		if err != nil {
			slog.Warn("subagent announce: transcript read failed", "runId", record.RunID, "error", err)
		} else {
			reply = text
		}
	}
	if reply == "" {
		reply = record.Summary
	}

	summary := extractSummary(reply)

	statsLine := buildStatsLine(record, now, deps.EstimateCostUSD, transcriptPath)

	triggerMessage := buildTriggerMessage(record, summary, statsLine)

	origin := record.Origin
	if deps.ResolveOrigin != nil {
		resolved := deps.ResolveOrigin(record.ChildSessionKey)
		origin = mergeOrigin(record.Origin, resolved)
	}

	dispatched := false
	if deps.Dispatcher != nil {
		mode := deps.Dispatcher.QueueMode(record.RequesterSessionKey)
		active := deps.Dispatcher.IsRunActive(record.RequesterSessionKey)
		switch mode {
		case QueueSteer, QueueSteerBacklog:
			if deps.Dispatcher.Steer(record.RequesterSessionKey, triggerMessage) {
				dispatched = true
			}
		}
		if !dispatched && active {
			switch mode {
			case QueueFollowup, QueueCollect, QueueSteerBacklog, QueueInterrupt, QueueSteer:
				deps.Dispatcher.Enqueue(record.RequesterSessionKey, triggerMessage)
				dispatched = true
			}
		}
	}

	// The remaining two outbound steps (deliver-or-fallback, and patch/
	// cleanup the child session) don't depend on each other's outcome, so
	// they run concurrently via errgroup — bounding the fan-out without
	// letting one side's failure cancel the other, since every branch below
	// only ever logs and returns nil.
	var g errgroup.Group

	if !dispatched && deps.Gateway != nil {
		g.Go(func() error {
			params := AgentMessageParams{
				SessionKey:     record.RequesterSessionKey,
				Message:        triggerMessage,
				Channel:        origin.Channel,
				AccountID:      origin.AccountID,
				To:             origin.To,
				ThreadID:       origin.ThreadID,
				Deliver:        true,
				IdempotencyKey: uuid.NewString(),
				ExpectFinal:    true,
			}
			if err := deps.Gateway.SendAgentMessage(ctx, params); err != nil {
				slog.Warn("subagent announce: agent delivery failed", "runId", record.RunID, "error", err)
			}
			return nil
		})
	}

	if deps.Gateway != nil {
		g.Go(func() error {
			if err := deps.Gateway.SessionsPatch(ctx, record.ChildSessionKey, record.Label); err != nil {
				slog.Warn("subagent announce: sessions.patch failed", "runId", record.RunID, "error", err)
			}
			if record.Cleanup == "delete" && !record.PlanMode {
				if err := deps.Gateway.SessionsDelete(ctx, record.ChildSessionKey, true); err != nil {
					slog.Warn("subagent announce: sessions.delete failed", "runId", record.RunID, "error", err)
				}
			}
			return nil
		})
	}

	g.Wait()

	mgr.MarkNotified(record.RunID)
}

// extractSummary implements step 3: prefer the substring after the last
// SUMMARY: marker, else the trailing 200 chars.
func extractSummary(reply string) string {
	const marker = "SUMMARY:"
	if idx := strings.LastIndex(reply, marker); idx != -1 {
		s := strings.TrimSpace(reply[idx+len(marker):])
		return truncate(s, 200)
	}
	return truncate(reply, 200)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

func buildStatsLine(record RunRecord, now func() time.Time, estimateCost func(string, int64, int64) (float64, bool), transcriptPath string) string {
	runtime := "n/a"
	if record.StartedAt != nil {
		end := now()
		if record.EndedAt != nil {
			end = *record.EndedAt
		}
		runtime = formatDuration(end.Sub(*record.StartedAt))
	}

	tokens := fmt.Sprintf("in=%d out=%d total=%d", record.InputTokens, record.OutputTokens, record.InputTokens+record.OutputTokens)

	cost := "n/a"
	if estimateCost != nil {
		if usd, ok := estimateCost(record.Model, record.InputTokens, record.OutputTokens); ok {
			cost = fmt.Sprintf("$%.4f", usd)
		}
	}

	path := transcriptPath
	if path == "" {
		path = "n/a"
	}

	return fmt.Sprintf("runtime=%s tokens=%s cost=%s childSessionKey=%s childSessionId=%s transcript=%s",
		runtime, tokens, cost, record.ChildSessionKey, orNA(record.ChildSessionID), path)
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// buildTriggerMessage implements step 5's three branches.
func buildTriggerMessage(record RunRecord, summary, statsLine string) string {
	if record.PlanMode {
		if record.Outcome == OutcomeOK {
			return fmt.Sprintf("Subagent %s submitted a plan for approval:\n\n%s\n\n%s",
				shortID(record.RunID), summary, statsLine)
		}
		return fmt.Sprintf("Subagent %s failed to produce a plan:\n\n%s\n\n%s",
			shortID(record.RunID), summary, statsLine)
	}

	if record.Outcome != OutcomeOK && record.Reason != "" {
		return fmt.Sprintf(
			"Subagent %s completed (%s, reason=%s).\nTask: %s\nSummary: %s\nStats: %s",
			shortID(record.RunID), record.Outcome, record.Reason, labelOrTaskPrefix(record), summary, statsLine,
		)
	}

	return fmt.Sprintf(
		"Subagent %s completed (%s).\nTask: %s\nSummary: %s\nStats: %s",
		shortID(record.RunID), record.Outcome, labelOrTaskPrefix(record), summary, statsLine,
	)
}

// mergeOrigin implements §4.7's origin resolution: requester-captured
// values win because they're fresher than whatever the session currently
// has stored.
func mergeOrigin(captured, stored Origin) Origin {
	out := stored
	if captured.Channel != "" {
		out.Channel = captured.Channel
	}
	if captured.AccountID != "" {
		out.AccountID = captured.AccountID
	}
	if captured.To != "" {
		out.To = captured.To
	}
	if captured.ThreadID != "" {
		out.ThreadID = captured.ThreadID
	}
	return out
}
