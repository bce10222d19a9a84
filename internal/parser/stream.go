package parser

import (
	"encoding/json"
	"strings"
)

// streamLine is the per-line envelope for stream-jsonl. All fields are
// optional since assistant/user/result lines each populate a different
// subset (§4.4).
type streamLine struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Message   *streamMessage  `json:"message"`
	Usage     json.RawMessage `json:"usage"`
	Result    string          `json:"result"`
}

type streamMessage struct {
	Content []streamBlock          `json:"content"`
	Usage   map[string]any         `json:"usage"`
}

type streamBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

func parseStreamJSONL(stdout string, sessionIDFields []string) (*ParsedOutput, error) {
	out := &ParsedOutput{}
	var textParts []string
	parsedAny := false

	for _, raw := range splitNonEmptyLines(stdout) {
		var line streamLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			continue
		}
		parsedAny = true

		if out.SessionID == "" {
			if line.SessionID != "" {
				out.SessionID = line.SessionID
			} else {
				var root map[string]any
				if json.Unmarshal([]byte(raw), &root) == nil {
					out.SessionID = sessionIDFrom(root, sessionIDFields)
				}
			}
		}

		switch line.Type {
		case "assistant":
			if line.Message == nil {
				continue
			}
			for _, block := range line.Message.Content {
				switch block.Type {
				case "text":
					if block.Text != "" {
						textParts = append(textParts, block.Text)
					}
				case "tool_use":
					out.ToolUses = append(out.ToolUses, CliToolUseEvent{
						ID:    block.ID,
						Name:  block.Name,
						Input: block.Input,
					})
				}
			}
			if line.Message.Usage != nil {
				out.Usage.Merge(extractUsage(line.Message.Usage))
			}
		case "user":
			if line.Message == nil {
				continue
			}
			for _, block := range line.Message.Content {
				if block.Type != "tool_result" {
					continue
				}
				out.ToolResults = append(out.ToolResults, CliToolResultEvent{
					ToolUseID: block.ToolUseID,
					Content:   flattenContent(block.Content),
					IsError:   block.IsError,
				})
			}
		case "result":
			if len(line.Usage) > 0 {
				var u map[string]any
				if json.Unmarshal(line.Usage, &u) == nil {
					out.Usage.Merge(extractUsage(u))
				}
			}
			if len(textParts) == 0 && line.Result != "" {
				textParts = append(textParts, line.Result)
			}
		}
	}

	if !parsedAny {
		return nil, ErrParse
	}
	out.Text = strings.Join(textParts, "")
	out.PendingInteraction = detectPendingInteraction(out.ToolUses, out.ToolResults)
	return out, nil
}

// flattenContent handles tool_result.content in either of its two wire
// shapes: a bare string, or an array of {type, text} blocks whose text
// fields are concatenated in order (§4.4).
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var blocks []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "")
	}
	return ""
}
