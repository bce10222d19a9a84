package backend

import (
	"encoding/json"
	"strings"

	"github.com/nextlevelbuilder/gatewaycore/internal/config"
	"github.com/nextlevelbuilder/gatewaycore/internal/process"
)

// InvocationRequest describes one logical CLI call before it's lowered into
// a process.Request: the prompt/task text, the resolved model, the prior
// session id (if resuming), and whether this is the first call in the
// session (governs systemPromptWhen="first").
type InvocationRequest struct {
	Prompt        string
	SystemPrompt  string
	Model         string
	SessionID     string // empty if this is the first call
	IsFirstCall   bool
	Images        []string
	ToolResult    *ToolResultPayload
	Cwd           string
	TimeoutMs     int
	ExtraEnv      map[string]string
}

// ToolResultPayload is serialized to a single stdin JSON line when resuming
// with a pending tool result (§6).
type ToolResultPayload struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

func (p ToolResultPayload) marshalLine() (string, error) {
	data, err := json.Marshal(struct {
		Type      string `json:"type"`
		ToolUseID string `json:"tool_use_id"`
		Content   string `json:"content"`
	}{Type: "tool_result", ToolUseID: p.ToolUseID, Content: p.Content})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// BuildRequest lowers req against spec into a process.Request: argv is
// assembled by appending the model flag, the system prompt flag (only when
// IsFirstCall or systemPromptWhen="always"), session-continuity flags,
// image flags, and finally the prompt itself as an argument or via stdin
// per spec.Input. When req.ToolResult is set and a session is being
// resumed, stdin carries the tool-result JSON line instead of the prompt.
func BuildRequest(spec config.BackendSpec, req InvocationRequest) (process.Request, error) {
	argv := append([]string{spec.Command}, spec.Args...)

	if spec.ModelArg != "" && req.Model != "" {
		argv = append(argv, spec.ModelArg, req.Model)
	}

	if spec.SystemPromptArg != "" && req.SystemPrompt != "" {
		switch spec.SystemPromptWhen {
		case "always":
			argv = append(argv, spec.SystemPromptArg, req.SystemPrompt)
		case "never":
		default: // "first" or unset
			if req.IsFirstCall {
				argv = append(argv, spec.SystemPromptArg, req.SystemPrompt)
			}
		}
	}

	argv = append(argv, sessionFlags(spec, req)...)
	argv = append(argv, imageFlags(spec, req.Images)...)

	var stdin string
	switch {
	case req.ToolResult != nil && req.SessionID != "":
		line, err := req.ToolResult.marshalLine()
		if err != nil {
			return process.Request{}, err
		}
		stdin = line
	case spec.Input == "stdin":
		stdin = req.Prompt
	default:
		if promptFits(spec, req.Prompt) {
			argv = append(argv, req.Prompt)
		} else {
			stdin = req.Prompt
		}
	}

	return process.Request{
		Argv:         argv,
		Cwd:          req.Cwd,
		Env:          mergedEnv(spec, req.ExtraEnv),
		StdinPayload: stdin,
		TimeoutMs:    req.TimeoutMs,
	}, nil
}

func promptFits(spec config.BackendSpec, prompt string) bool {
	if spec.Input == "arg" {
		return true
	}
	if spec.MaxPromptArgChars <= 0 {
		return true
	}
	return len(prompt) <= spec.MaxPromptArgChars
}

// sessionFlags appends the backend's resume/session flags per sessionMode:
// "always" always passes the session flag (with an empty id if absent),
// "existing" only when req.SessionID is non-empty, "none" never.
func sessionFlags(spec config.BackendSpec, req InvocationRequest) []string {
	mode := spec.SessionMode
	if mode == "" {
		mode = "existing"
	}
	if mode == "none" {
		return nil
	}
	if mode == "existing" && req.SessionID == "" {
		return nil
	}

	if len(spec.ResumeArgs) > 0 && req.SessionID != "" {
		return expandSessionTokens(spec.ResumeArgs, req.SessionID)
	}
	if len(spec.SessionArgs) > 0 {
		return expandSessionTokens(spec.SessionArgs, req.SessionID)
	}
	if spec.SessionArg != "" {
		return []string{spec.SessionArg, req.SessionID}
	}
	return nil
}

// expandSessionTokens substitutes the literal template token "{sessionId}"
// with sessionID in each element of tokens.
func expandSessionTokens(tokens []string, sessionID string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = strings.ReplaceAll(tok, "{sessionId}", sessionID)
	}
	return out
}

// imageFlags appends image arguments per imageMode: "repeat" passes the
// flag once per image, "list" passes the flag once followed by every image
// path as separate arguments.
func imageFlags(spec config.BackendSpec, images []string) []string {
	if spec.ImageArg == "" || len(images) == 0 {
		return nil
	}
	if spec.ImageMode == "list" {
		out := make([]string, 0, len(images)+1)
		out = append(out, spec.ImageArg)
		out = append(out, images...)
		return out
	}
	out := make([]string, 0, len(images)*2)
	for _, img := range images {
		out = append(out, spec.ImageArg, img)
	}
	return out
}

// mergedEnv unions a default PATH, the caller's environment overrides, and
// the backend's own env block, in that precedence order (backend wins).
func mergedEnv(spec config.BackendSpec, extra map[string]string) []string {
	merged := map[string]string{"PATH": "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
	if !spec.ClearEnv {
		for k, v := range extra {
			merged[k] = v
		}
	}
	for k, v := range spec.Env {
		merged[k] = v
	}
	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}
