package config

import "strings"

// BackendSpec is the immutable declarative description of how to invoke one
// external LLM CLI backend. It is resolved by name (the "provider" the
// gateway passes in) and never mutated after load — a config reload replaces
// the whole map, never a field in place.
type BackendSpec struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`

	ResumeArgs  []string `json:"resume_args,omitempty"`  // template tokens, e.g. "--resume", "{sessionId}"
	SessionArg  string   `json:"session_arg,omitempty"`  // single-flag form
	SessionArgs []string `json:"session_args,omitempty"` // multi-flag form
	SessionMode string   `json:"session_mode,omitempty"` // always|existing|none

	SystemPromptArg  string `json:"system_prompt_arg,omitempty"`
	SystemPromptWhen string `json:"system_prompt_when,omitempty"` // first|always|never

	ModelArg     string            `json:"model_arg,omitempty"`
	ModelAliases map[string]string `json:"model_aliases,omitempty"` // alias (any case) -> canonical model id

	ImageArg  string `json:"image_arg,omitempty"`
	ImageMode string `json:"image_mode,omitempty"` // repeat|list

	Input             string `json:"input,omitempty"` // arg|stdin
	MaxPromptArgChars int    `json:"max_prompt_arg_chars,omitempty"`

	Output       string `json:"output,omitempty"` // text|json|jsonl|stream-jsonl
	ResumeOutput string `json:"resume_output,omitempty"`

	Env      map[string]string `json:"env,omitempty"`
	ClearEnv bool              `json:"clear_env,omitempty"`

	SandboxMode      string            `json:"sandbox_mode,omitempty"` // off|inherit|always
	SandboxOverrides map[string]string `json:"sandbox_overrides,omitempty"`

	Serialize  bool     `json:"serialize,omitempty"`
	EnableTools []string `json:"enable_tools,omitempty"`

	SessionIDFields []string `json:"session_id_fields,omitempty"`
}

// DefaultSessionIDFields is used when a BackendSpec doesn't declare its own.
var DefaultSessionIDFields = []string{"session_id", "sessionId", "conversation_id", "conversationId"}

// ResolveModelAlias normalizes modelID through ModelAliases with a
// case-insensitive fallback. Returns modelID unchanged if no alias matches.
func (b BackendSpec) ResolveModelAlias(modelID string) string {
	if canonical, ok := b.ModelAliases[modelID]; ok {
		return canonical
	}
	for alias, canonical := range b.ModelAliases {
		if strings.EqualFold(alias, modelID) {
			return canonical
		}
	}
	return modelID
}
