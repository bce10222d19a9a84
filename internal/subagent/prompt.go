package subagent

import (
	"fmt"
	"sort"
	"strings"
)

// BuildSystemPrompt constructs the system prompt handed to a spawned child,
// adapted from the teacher's buildSubagentSystemPrompt (subagent_config.go):
// the parent/depth framing and the NO-clarification/NO-user-conversation
// rules are kept, generalized to this spec's flat (non-recursive) spawn
// model where a subagent cannot itself spawn further subagents.
func BuildSystemPrompt(task, label string, parentIsSubagent bool) string {
	parentLabel := "main agent"
	if parentIsSubagent {
		parentLabel = "parent subagent"
	}

	prompt := fmt.Sprintf(`# Subagent Context

You are a **subagent** spawned by the %s for a specific task.

## Your Role
- You were created to handle: %s
- Complete this task. That is your entire purpose.
- You are NOT the %s. Do not try to be.

## Rules
1. **Stay focused** — do your assigned task, nothing else.
2. **Complete the task** — your final message is automatically reported to the %s.
3. **Never ask for clarification** — work with what you have.
4. **Be ephemeral** — you may be terminated after task completion.

## Output Format
Your final response IS the deliverable. If asked to produce content, output
it directly rather than describing it. The %s receives your exact final
response.

## Session Context
- Label: %s`,
		parentLabel, task,
		parentLabel, parentLabel, parentLabel, label)

	return prompt
}

// planTag renders the [PLAN]/[PLAN:APPROVED]/[PLAN:AWAITING APPROVAL] tag
// for a status line, per §4.7.
func planTag(r RunRecord) string {
	if !r.PlanMode {
		return ""
	}
	if r.PlanApproved == nil {
		return " [PLAN:AWAITING APPROVAL]"
	}
	if *r.PlanApproved {
		return " [PLAN:APPROVED]"
	}
	return " [PLAN]"
}

func statusOf(r RunRecord) string {
	if r.IsRunning() {
		return "running"
	}
	return string(r.Outcome)
}

func labelOrTaskPrefix(r RunRecord) string {
	if r.Label != "" {
		return r.Label
	}
	task := r.Task
	if len(task) > 50 {
		return task[:50]
	}
	return task
}

// StatusTextForPrompt renders the Markdown status block described in §4.7:
// a `(used/MAX_RETAINED)` header followed by one line per running and
// completed subagent for sessionKey, oldest first. Empty string if none.
func StatusTextForPrompt(m *Manager, sessionKey string) string {
	running, completedList := m.ListForSession(sessionKey)
	used := len(running) + len(completedList)
	if used == 0 {
		return ""
	}

	sort.Slice(running, func(i, j int) bool {
		return startedBefore(running[i], running[j])
	})
	sort.Slice(completedList, func(i, j int) bool {
		return startedBefore(completedList[i], completedList[j])
	})

	var b strings.Builder
	fmt.Fprintf(&b, "**Subagents (%d/%d):**\n", used, m.cfg.MaxRetained)
	for _, r := range running {
		fmt.Fprintf(&b, "- `%s` %s — %s%s\n", shortID(r.RunID), labelOrTaskPrefix(r), statusOf(r), planTag(r))
	}
	for _, r := range completedList {
		fmt.Fprintf(&b, "- `%s` %s — %s%s\n", shortID(r.RunID), labelOrTaskPrefix(r), statusOf(r), planTag(r))
	}
	return b.String()
}

func startedBefore(a, b RunRecord) bool {
	if a.StartedAt == nil || b.StartedAt == nil {
		return false
	}
	return a.StartedAt.Before(*b.StartedAt)
}

func shortID(runID string) string {
	if len(runID) <= 8 {
		return runID
	}
	return runID[:8]
}
