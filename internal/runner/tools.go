package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/nextlevelbuilder/gatewaycore/internal/config"
	"github.com/nextlevelbuilder/gatewaycore/internal/sessions"
	"github.com/nextlevelbuilder/gatewaycore/internal/subagent"
)

// sessionAdapter implements subagent.SessionLister, subagent.SessionSender,
// and subagent.SessionHistoryReader against this core's own session store,
// so a single Runner can back the whole sessions_* tool surface (§6)
// without Tools needing to know about transcripts or storage layout.
type sessionAdapter struct {
	r *Runner
}

// NewSessionAdapter builds the sessionAdapter backing the sessions_* tool
// surface's Lister/Sender/History collaborators (§6), wired by the cmd
// layer once this Runner's other fields are in place.
func (r *Runner) NewSessionAdapter() *sessionAdapter {
	return &sessionAdapter{r: r}
}

// ListSessions implements sessions_list: every known session scoped to the
// requester's own agent.
func (a *sessionAdapter) ListSessions(requesterSessionKey string) []subagent.SessionSummary {
	if a.r == nil || a.r.Sessions == nil {
		return nil
	}
	agentID, _ := sessions.ParseSessionKey(requesterSessionKey)
	infos := a.r.Sessions.List(agentID)
	out := make([]subagent.SessionSummary, 0, len(infos))
	for _, info := range infos {
		out = append(out, subagent.SessionSummary{
			Key:     info.Key,
			Label:   info.Label,
			Updated: info.Updated.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return out
}

// SendToSession implements sessions_send: appends a user-role record to the
// target session's transcript. It does not interrupt a run in progress for
// that session — steering a live run is the announce flow's Dispatcher
// concern (§4.7), a different mechanism from addressing an arbitrary session.
func (a *sessionAdapter) SendToSession(ctx context.Context, sessionKey, message string) error {
	if a.r == nil || a.r.Config == nil || a.r.Config.Sessions.Storage == "" {
		return fmt.Errorf("sessions_send: no session storage configured")
	}
	path := filepath.Join(config.ExpandHome(a.r.Config.Sessions.Storage), sessionFileName(sessionKey))
	transcript := sessions.NewTranscript(path, a.r.Publisher, "")
	return transcript.AppendUserMessage(message)
}

// ReadHistory implements sessions_history: every transcript line for
// sessionKey, each re-marshaled to a compact JSON string.
func (a *sessionAdapter) ReadHistory(sessionKey string) ([]string, error) {
	if a.r == nil || a.r.Config == nil || a.r.Config.Sessions.Storage == "" {
		return nil, nil
	}
	path := filepath.Join(config.ExpandHome(a.r.Config.Sessions.Storage), sessionFileName(sessionKey))
	records, err := sessions.ReadRawRecords(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, rec := range records {
		var buf bytes.Buffer
		if err := json.Compact(&buf, rec); err != nil {
			out = append(out, string(rec))
			continue
		}
		out = append(out, buf.String())
	}
	return out, nil
}
