package subagent

import (
	"strings"
	"testing"
)

func TestStatusTextForPromptEmptyWhenNone(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	if got := StatusTextForPrompt(m, "S"); got != "" {
		t.Errorf("expected empty status text, got %q", got)
	}
}

func TestStatusTextForPromptShowsCountAndTags(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	runID := reserveAndRegister(t, m, "S")
	m.mu.Lock()
	r := m.running[runID]
	r.PlanMode = true
	m.running[runID] = r
	m.mu.Unlock()

	text := StatusTextForPrompt(m, "S")
	if !strings.Contains(text, "(1/15)") {
		t.Errorf("expected header with used/max, got %q", text)
	}
	if !strings.Contains(text, "[PLAN:AWAITING APPROVAL]") {
		t.Errorf("expected plan-awaiting tag, got %q", text)
	}
	if !strings.Contains(text, shortID(runID)) {
		t.Errorf("expected short run id in status text, got %q", text)
	}
}

func TestStatusTextForPromptApprovedTag(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	runID := reserveAndRegister(t, m, "S")
	approved := true
	m.mu.Lock()
	r := m.running[runID]
	r.PlanMode = true
	r.PlanApproved = &approved
	m.running[runID] = r
	m.mu.Unlock()

	text := StatusTextForPrompt(m, "S")
	if !strings.Contains(text, "[PLAN:APPROVED]") {
		t.Errorf("expected approved tag, got %q", text)
	}
}

func TestBuildSystemPromptMentionsParentAndTask(t *testing.T) {
	prompt := BuildSystemPrompt("write a poem", "poem-writer", false)
	if !strings.Contains(prompt, "write a poem") {
		t.Error("expected task text in prompt")
	}
	if !strings.Contains(prompt, "main agent") {
		t.Error("expected main agent framing for a top-level spawn")
	}
}

func TestShortIDTruncatesTo8(t *testing.T) {
	if got := shortID("abcdefgh12345"); got != "abcdefgh" {
		t.Errorf("shortID = %q, want abcdefgh", got)
	}
	if got := shortID("short"); got != "short" {
		t.Errorf("shortID = %q, want short (unchanged)", got)
	}
}

func TestLabelOrTaskPrefixUsesLabelWhenPresent(t *testing.T) {
	r := RunRecord{Label: "my-label", Task: "a very long task description goes here"}
	if got := labelOrTaskPrefix(r); got != "my-label" {
		t.Errorf("got %q, want my-label", got)
	}
}
