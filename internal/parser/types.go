// Package parser turns one CLI backend's raw stdout into a uniform shape —
// text, structured tool calls, token usage, and the CLI-native session id —
// regardless of which of the four output modes the backend speaks. It is
// grounded on the streamjson adapter's content-block walk (assistant
// text/tool_use blocks, user tool_result blocks, per-line decoding), adapted
// from an event-emitting adapter into a pure parse-and-return function.
package parser

// Mode is one of the four shapes a BackendSpec.Output can declare.
type Mode string

const (
	ModeText         Mode = "text"
	ModeJSON         Mode = "json"
	ModeJSONL        Mode = "jsonl"
	ModeStreamJSONL  Mode = "stream-jsonl"
)

// Usage is the rolling token-usage accumulator, merged across every line
// that carries a usage sub-object.
type Usage struct {
	InputTokens           int
	OutputTokens          int
	CacheReadInputTokens  int
	CacheWriteInputTokens int
	TotalTokens           int
}

// Merge folds other into u, field by field (both sides additive — later
// lines report cumulative or incremental counts depending on the backend,
// and the spec treats every occurrence as additive).
func (u *Usage) Merge(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
	u.CacheWriteInputTokens += other.CacheWriteInputTokens
	u.TotalTokens += other.TotalTokens
}

// CliToolUseEvent is one tool_use content block from an assistant message.
type CliToolUseEvent struct {
	ID    string
	Name  string
	Input map[string]any
}

// CliToolResultEvent is one tool_result content block from a user message,
// with array-form content already flattened to a single string (§4.4).
type CliToolResultEvent struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// InteractionKind tags the two pending-interaction variants §4.4/§4.6 model.
type InteractionKind string

const (
	InteractionAskUserQuestion InteractionKind = "ask_user_question"
	InteractionPlanApproval    InteractionKind = "plan_approval"
)

// QuestionOption is one selectable option of an AskUserQuestion tool call.
type QuestionOption struct {
	Label string
}

// DetectedInteraction is the at-most-one pending interaction a run's output
// can surface — a tool_use with no matching tool_result, naming either an
// AskUserQuestion or an ExitPlanMode call.
type DetectedInteraction struct {
	Type        InteractionKind
	ToolCallID  string
	Question    string
	Options     []QuestionOption
	MultiSelect bool
}

// ParsedOutput is the uniform result of parsing one backend invocation's
// stdout, regardless of Mode.
type ParsedOutput struct {
	Text                string
	ToolUses            []CliToolUseEvent
	ToolResults         []CliToolResultEvent
	Usage               Usage
	SessionID           string
	PendingInteraction  *DetectedInteraction
}
