package parser

import (
	"strings"
	"testing"
)

func TestParseTextTrims(t *testing.T) {
	out, err := Parse(ModeText, "  hello world  \n", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.Text != "hello world" {
		t.Errorf("Text = %q, want %q", out.Text, "hello world")
	}
}

func TestParseJSONExtractsSessionIDAndUsage(t *testing.T) {
	doc := `{"session_id":"sid-1","result":"done","usage":{"input_tokens":10,"output_tokens":5}}`
	out, err := Parse(ModeJSON, doc, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.SessionID != "sid-1" {
		t.Errorf("SessionID = %q, want sid-1", out.SessionID)
	}
	if out.Usage.InputTokens != 10 || out.Usage.OutputTokens != 5 {
		t.Errorf("Usage = %+v", out.Usage)
	}
	if out.Text != "done" {
		t.Errorf("Text = %q, want done", out.Text)
	}
}

func TestParseJSONLMergesUsageAndSessionFromFirstOccurrence(t *testing.T) {
	doc := strings.Join([]string{
		`{"conversation_id":"c1","message":"part one ","usage":{"input_tokens":3}}`,
		`{"message":"part two","usage":{"output_tokens":4}}`,
	}, "\n")
	out, err := Parse(ModeJSONL, doc, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.SessionID != "c1" {
		t.Errorf("SessionID = %q, want c1", out.SessionID)
	}
	if out.Text != "part one part two" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.Usage.InputTokens != 3 || out.Usage.OutputTokens != 4 {
		t.Errorf("Usage = %+v", out.Usage)
	}
}

// TestS3PendingAskUserQuestion is the literal S3 scenario.
func TestS3PendingAskUserQuestion(t *testing.T) {
	line := `{"type":"assistant","session_id":"sid","message":{"content":[{"type":"tool_use","id":"t1","name":"AskUserQuestion","input":{"questions":[{"question":"Proceed?","options":[{"label":"Yes"},{"label":"No"}],"multiSelect":false}]}}]}}`
	out, err := Parse(ModeStreamJSONL, line, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.Text != "" {
		t.Errorf("Text = %q, want empty", out.Text)
	}
	if len(out.ToolUses) != 1 || out.ToolUses[0].ID != "t1" || out.ToolUses[0].Name != "AskUserQuestion" {
		t.Fatalf("ToolUses = %+v", out.ToolUses)
	}
	if len(out.ToolResults) != 0 {
		t.Fatalf("ToolResults = %+v, want empty", out.ToolResults)
	}
	if out.SessionID != "sid" {
		t.Errorf("SessionID = %q, want sid", out.SessionID)
	}
	pi := out.PendingInteraction
	if pi == nil {
		t.Fatal("expected a pending interaction")
	}
	if pi.Type != InteractionAskUserQuestion || pi.ToolCallID != "t1" || pi.Question != "Proceed?" || pi.MultiSelect {
		t.Errorf("PendingInteraction = %+v", pi)
	}
	if len(pi.Options) != 2 || pi.Options[0].Label != "Yes" || pi.Options[1].Label != "No" {
		t.Errorf("Options = %+v", pi.Options)
	}
}

// TestS4ToolResultArrayFlattening is the literal S4 scenario.
func TestS4ToolResultArrayFlattening(t *testing.T) {
	doc := strings.Join([]string{
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"toolu_1","name":"Bash","input":{}}]}}`,
		`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"toolu_1","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}],"is_error":false}]}}`,
	}, "\n")
	out, err := Parse(ModeStreamJSONL, doc, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(out.ToolResults) != 1 {
		t.Fatalf("ToolResults = %+v", out.ToolResults)
	}
	r := out.ToolResults[0]
	if r.ToolUseID != "toolu_1" || r.Content != "ab" || r.IsError {
		t.Errorf("ToolResult = %+v", r)
	}
	// every tool_use now has a matching result: no pending interaction.
	if out.PendingInteraction != nil {
		t.Errorf("expected no pending interaction, got %+v", out.PendingInteraction)
	}
}

func TestExitPlanModeYieldsPlanApproval(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t9","name":"ExitPlanMode","input":{}}]}}`
	out, err := Parse(ModeStreamJSONL, line, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pi := out.PendingInteraction
	if pi == nil || pi.Type != InteractionPlanApproval || pi.ToolCallID != "t9" {
		t.Fatalf("PendingInteraction = %+v", pi)
	}
}

// TestS8RoundTrip is the literal round-trip invariant: parsing a
// stream-jsonl built from assistant(text+tool_use)+user(tool_result)+result
// recovers (text, toolUses, toolResults, usage, sessionId) exactly.
func TestS8RoundTrip(t *testing.T) {
	doc := strings.Join([]string{
		`{"type":"assistant","session_id":"sid-rt","message":{"content":[{"type":"text","text":"thinking..."},{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}],"usage":{"input_tokens":7}}}`,
		`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"file.txt","is_error":false}]}}`,
		`{"type":"result","usage":{"output_tokens":9},"result":"fallback"}`,
	}, "\n")
	out, err := Parse(ModeStreamJSONL, doc, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.Text != "thinking..." {
		t.Errorf("Text = %q, want thinking...", out.Text)
	}
	if len(out.ToolUses) != 1 || out.ToolUses[0].ID != "t1" || out.ToolUses[0].Name != "Bash" {
		t.Fatalf("ToolUses = %+v", out.ToolUses)
	}
	if len(out.ToolResults) != 1 || out.ToolResults[0].Content != "file.txt" {
		t.Fatalf("ToolResults = %+v", out.ToolResults)
	}
	if out.Usage.InputTokens != 7 || out.Usage.OutputTokens != 9 {
		t.Errorf("Usage = %+v", out.Usage)
	}
	if out.SessionID != "sid-rt" {
		t.Errorf("SessionID = %q, want sid-rt", out.SessionID)
	}
	// text was non-empty so result.result must NOT override it.
	if strings.Contains(out.Text, "fallback") {
		t.Errorf("result.result leaked into Text: %q", out.Text)
	}
}

func TestResultSubstitutesTextWhenEmpty(t *testing.T) {
	doc := strings.Join([]string{
		`{"type":"assistant","message":{"content":[]}}`,
		`{"type":"result","result":"final answer"}`,
	}, "\n")
	out, err := Parse(ModeStreamJSONL, doc, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.Text != "final answer" {
		t.Errorf("Text = %q, want final answer", out.Text)
	}
}
