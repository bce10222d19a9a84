// Package sessions — session key builder and parser.
//
// Session keys follow the canonical format:
//
//	agent:{agentId}:{rest}
//
// This core only ever mints one {rest} shape — subagent child sessions —
// since every other session (DM/group/cron) belongs to the surrounding
// gateway's channel routing, out of scope here:
//
//	Subagent: subagent:{runId}
//
// Example:
//
//	agent:default:subagent:3fae9c21
package sessions

import (
	"fmt"
	"strings"
)

// BuildSubagentSessionKey builds the session key for a subagent child run.
//
//	agent:{agentId}:subagent:{runId}
func BuildSubagentSessionKey(agentID, runID string) string {
	return fmt.Sprintf("agent:%s:subagent:%s", agentID, runID)
}

// ParseSessionKey extracts the agentID and rest from a canonical session key.
// Returns ("", "") if the key is not in the expected format.
func ParseSessionKey(key string) (agentID, rest string) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || parts[0] != "agent" {
		return "", ""
	}
	return parts[1], parts[2]
}

// IsSubagentSession checks if a session key indicates a subagent session.
func IsSubagentSession(key string) bool {
	_, rest := ParseSessionKey(key)
	return strings.HasPrefix(strings.ToLower(rest), "subagent:")
}
