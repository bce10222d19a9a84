package interaction

import (
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/gatewaycore/internal/parser"
)

// ParseUserAnswer implements §4.6's answer-parsing rules, resolving a free-
// form user reply against the options a pending AskUserQuestion offered.
// It is idempotent: feeding its own output back through with the same
// options returns the same result again (§8 invariant #9), because every
// branch that resolves an index also accepts the resolved label directly.
func ParseUserAnswer(input string, options []parser.QuestionOption, multiSelect bool) string {
	trimmed := strings.TrimSpace(input)

	if len(options) == 0 {
		return trimmed
	}

	if multiSelect && strings.Contains(trimmed, ",") {
		tokens := strings.Split(trimmed, ",")
		var labels []string
		seen := make(map[string]bool)
		for _, tok := range tokens {
			label, ok := resolveToken(strings.TrimSpace(tok), options)
			if !ok {
				continue
			}
			if seen[label] {
				continue
			}
			seen[label] = true
			labels = append(labels, label)
		}
		if len(labels) > 0 {
			return strings.Join(labels, ", ")
		}
	}

	if idx, err := strconv.Atoi(trimmed); err == nil {
		if idx >= 1 && idx <= len(options) {
			return options[idx-1].Label
		}
	}

	for _, opt := range options {
		if strings.EqualFold(opt.Label, trimmed) {
			return opt.Label
		}
	}

	return trimmed
}

// resolveToken resolves one multi-select token to an option label, either
// by 1-based index or by case-insensitive label match — accepting a label
// directly is what makes re-parsing already-resolved output a no-op.
func resolveToken(tok string, options []parser.QuestionOption) (string, bool) {
	if idx, err := strconv.Atoi(tok); err == nil {
		if idx >= 1 && idx <= len(options) {
			return options[idx-1].Label, true
		}
		return "", false
	}
	for _, opt := range options {
		if strings.EqualFold(opt.Label, tok) {
			return opt.Label, true
		}
	}
	return "", false
}
