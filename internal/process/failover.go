package process

import (
	"fmt"
	"strings"
)

// FailoverReason classifies why a backend invocation did not produce a
// usable reply, so the orchestrator can decide whether another backend
// should be tried instead (failover decisions themselves are outside this
// package, per §4.3/§7).
type FailoverReason string

const (
	ReasonTimeout          FailoverReason = "timeout"
	ReasonRateLimit        FailoverReason = "rate-limit"
	ReasonAuth             FailoverReason = "auth"
	ReasonQuota            FailoverReason = "quota"
	ReasonNetwork          FailoverReason = "network"
	ReasonModelUnavailable FailoverReason = "model-unavailable"
	ReasonUnknown          FailoverReason = "unknown"
)

// FailoverError is raised for any non-zero exit, always surfaced and never
// retried at this layer (§7).
type FailoverError struct {
	Reason   FailoverReason
	Provider string
	Model    string
	Status   int
}

func (e *FailoverError) Error() string {
	return fmt.Sprintf("process: backend %q model %q exited %d: %s", e.Provider, e.Model, e.Status, e.Reason)
}

// classifyPatterns pairs substrings to look for (already lowercased) with the
// reason they indicate. Checked in order; the first match wins.
var classifyPatterns = []struct {
	reason   FailoverReason
	needles  []string
}{
	{ReasonRateLimit, []string{"rate limit", "rate_limit", "429", "too many requests"}},
	{ReasonAuth, []string{"unauthorized", "authentication", "invalid api key", "401", "403", "permission denied"}},
	{ReasonQuota, []string{"quota", "insufficient_quota", "billing", "credit balance"}},
	{ReasonModelUnavailable, []string{"model not found", "model_not_found", "unsupported model", "does not exist"}},
	{ReasonNetwork, []string{"connection refused", "no such host", "timeout", "timed out", "econnreset", "dns", "tls handshake"}},
}

// ClassifyFailoverReason derives a FailoverReason from raw backend error
// text (typically stderr). It is a pure function of the text: same input,
// same output, no hidden state.
func ClassifyFailoverReason(errorText string) FailoverReason {
	lower := strings.ToLower(errorText)
	for _, p := range classifyPatterns {
		for _, needle := range p.needles {
			if strings.Contains(lower, needle) {
				return p.reason
			}
		}
	}
	return ReasonUnknown
}

// NewFailoverError builds a FailoverError for a finished Result, classifying
// its reason from stderr (falling back to stdout if stderr is empty) unless
// the result was already killed by the executor's timeout, in which case
// the reason is always "timeout".
func NewFailoverError(r Result, provider, model string) *FailoverError {
	if r.Killed {
		return &FailoverError{Reason: ReasonTimeout, Provider: provider, Model: model, Status: r.ExitCode}
	}
	text := r.Stderr
	if text == "" {
		text = r.Stdout
	}
	return &FailoverError{
		Reason:   ClassifyFailoverReason(text),
		Provider: provider,
		Model:    model,
		Status:   r.ExitCode,
	}
}
