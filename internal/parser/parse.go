package parser

import (
	"encoding/json"
	"strings"
)

// Parse dispatches to the right parse function for mode, returning nil and
// ErrParse if the output cannot be decoded — callers fall back to treating
// stdout as raw text (§7's ParseError).
func Parse(mode Mode, stdout string, sessionIDFields []string) (*ParsedOutput, error) {
	if len(sessionIDFields) == 0 {
		sessionIDFields = defaultSessionIDFields
	}
	switch mode {
	case ModeText:
		return &ParsedOutput{Text: strings.TrimSpace(stdout)}, nil
	case ModeJSON:
		return parseJSON(stdout, sessionIDFields)
	case ModeJSONL:
		return parseJSONL(stdout, sessionIDFields)
	case ModeStreamJSONL:
		return parseStreamJSONL(stdout, sessionIDFields)
	default:
		return nil, ErrParse
	}
}

var defaultSessionIDFields = []string{"session_id", "sessionId", "conversation_id", "conversationId"}

func sessionIDFrom(root map[string]any, fields []string) string {
	for _, f := range fields {
		if v, ok := root[f].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// concatenatedText implements §4.4's "concatenate text from message,
// content, result, then root" rule: the root object's "message", "content",
// "result" and "text" keys are checked in that order and each one holding a
// non-empty string is appended to the output.
func concatenatedText(root map[string]any) string {
	var parts []string
	for _, key := range []string{"message", "content", "result", "text"} {
		if v, ok := root[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "")
}

func parseJSON(stdout string, sessionIDFields []string) (*ParsedOutput, error) {
	var root map[string]any
	if err := json.Unmarshal([]byte(stdout), &root); err != nil {
		return nil, ErrParse
	}
	out := &ParsedOutput{
		Text:      concatenatedText(root),
		SessionID: sessionIDFrom(root, sessionIDFields),
	}
	if u := asMap(root["usage"]); u != nil {
		out.Usage = extractUsage(u)
	}
	return out, nil
}

func parseJSONL(stdout string, sessionIDFields []string) (*ParsedOutput, error) {
	out := &ParsedOutput{}
	var texts []string
	parsedAny := false
	for _, line := range splitNonEmptyLines(stdout) {
		var root map[string]any
		if err := json.Unmarshal([]byte(line), &root); err != nil {
			continue
		}
		parsedAny = true
		if t := concatenatedText(root); t != "" {
			texts = append(texts, t)
		}
		if out.SessionID == "" {
			out.SessionID = sessionIDFrom(root, sessionIDFields)
		}
		if u := asMap(root["usage"]); u != nil {
			out.Usage.Merge(extractUsage(u))
		}
	}
	if !parsedAny {
		return nil, ErrParse
	}
	out.Text = strings.Join(texts, "")
	return out, nil
}

func splitNonEmptyLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
