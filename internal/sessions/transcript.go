package sessions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nextlevelbuilder/gatewaycore/internal/bus"
	"github.com/nextlevelbuilder/gatewaycore/internal/parser"
)

// EventTranscriptUpdate is the bus event name published after every
// successful append (§4.5).
const EventTranscriptUpdate = "sessionTranscriptUpdate"

// transcriptVersion is the schema version stamped on every header record.
const transcriptVersion = 1

// headerRecord is the first line ever written to a transcript file.
type headerRecord struct {
	Type      string `json:"type"` // always "session"
	Version   int    `json:"version"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // unix ms
	Cwd       string `json:"cwd"`
}

// toolCallEntry is one structured tool invocation recorded on an assistant
// record.
type toolCallEntry struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// assistantRecord is appended once per run that produced at least one tool
// event (§4.5 step 1).
type assistantRecord struct {
	Role       string          `json:"role"` // "assistant"
	Timestamp  int64           `json:"timestamp"`
	ToolCalls  []toolCallEntry `json:"toolCalls,omitempty"`
	Text       string          `json:"text,omitempty"`
	StopReason string          `json:"stopReason"` // "toolUse" | "stop"
	Usage      parser.Usage    `json:"usage,omitempty"`
}

// toolResultRecord is appended once per CliToolResultEvent, in order,
// strictly after the assistant record (§4.5 step 2).
type toolResultRecord struct {
	Role      string `json:"role"` // "toolResult"
	Timestamp int64  `json:"timestamp"`
	ToolUseID string `json:"toolUseId"`
	Content   string `json:"content"`
	IsError   bool   `json:"isError"`
}

// userRecord is appended by sessions_send (§6) — a message addressed into
// this session from outside its own run, distinct from the prompt that
// starts a run.
type userRecord struct {
	Role      string `json:"role"` // "user"
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// Transcript is the append-only JSON-lines writer for one session. It is
// grounded on Manager.Save's atomic write pattern, adapted from "rewrite
// the whole file" to "append one record and fsync" since a transcript must
// never lose history a reader has already seen.
type Transcript struct {
	path      string
	publisher bus.EventPublisher
	sessionID string
	cwd       string
}

// NewTranscript returns a writer for the transcript file at path. The
// header record is written lazily, on the first Append call, so opening a
// Transcript for a session that never produces a tool event never creates
// an empty file.
func NewTranscript(path string, publisher bus.EventPublisher, cwd string) *Transcript {
	return &Transcript{path: path, publisher: publisher, sessionID: uuid.NewString(), cwd: cwd}
}

func (t *Transcript) ensureHeader() error {
	if _, err := os.Stat(t.path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return err
	}
	header := headerRecord{
		Type:      "session",
		Version:   transcriptVersion,
		ID:        t.sessionID,
		Timestamp: time.Now().UnixMilli(),
		Cwd:       t.cwd,
	}
	return t.appendLine(header)
}

// AppendRun writes the assistant record (only if the run produced at least
// one tool use or tool result; a text-only run writes nothing) followed by
// one toolResult record per CliToolResultEvent,
// in order, each timestamped strictly after the assistant record. Writer
// errors are logged and swallowed — transcript writing never fails the run
// (§4.5, §7).
func (t *Transcript) AppendRun(toolUses []parser.CliToolUseEvent, toolResults []parser.CliToolResultEvent, text string, usage parser.Usage) {
	if len(toolUses) == 0 && len(toolResults) == 0 {
		return
	}
	if err := t.ensureHeader(); err != nil {
		slog.Warn("transcript: header write failed", "path", t.path, "error", err)
		return
	}

	now := time.Now().UnixMilli()
	stopReason := "stop"
	var calls []toolCallEntry
	for _, tu := range toolUses {
		calls = append(calls, toolCallEntry{ID: tu.ID, Name: tu.Name, Input: tu.Input})
	}
	if len(calls) > 0 {
		stopReason = "toolUse"
	}

	assistant := assistantRecord{
		Role:       "assistant",
		Timestamp:  now,
		ToolCalls:  calls,
		Text:       text,
		StopReason: stopReason,
		Usage:      usage,
	}
	if err := t.appendLine(assistant); err != nil {
		slog.Warn("transcript: assistant record write failed", "path", t.path, "error", err)
		return
	}

	for i, tr := range toolResults {
		record := toolResultRecord{
			Role:      "toolResult",
			Timestamp: now + int64(i) + 1, // monotonically greater than the assistant record
			ToolUseID: tr.ToolUseID,
			Content:   tr.Content,
			IsError:   tr.IsError,
		}
		if err := t.appendLine(record); err != nil {
			slog.Warn("transcript: tool result record write failed", "path", t.path, "error", err)
			return
		}
	}

	if t.publisher != nil {
		t.publisher.Broadcast(bus.Event{Name: EventTranscriptUpdate, Payload: map[string]any{"path": t.path}})
	}
}

// AppendUserMessage writes a single user-role record, used by sessions_send
// (§6) to address a message into a session from outside its own run.
func (t *Transcript) AppendUserMessage(text string) error {
	if err := t.ensureHeader(); err != nil {
		return err
	}
	record := userRecord{Role: "user", Timestamp: time.Now().UnixMilli(), Text: text}
	if err := t.appendLine(record); err != nil {
		return err
	}
	if t.publisher != nil {
		t.publisher.Broadcast(bus.Event{Name: EventTranscriptUpdate, Payload: map[string]any{"path": t.path}})
	}
	return nil
}

// appendLine marshals v and appends it (plus a trailing newline) to the
// transcript file, fsyncing before returning so a crash immediately after
// Append never loses the record a reader may already have been told about.
func (t *Transcript) appendLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("transcript: open %s: %w", t.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}
