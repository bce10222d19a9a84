package process

import "testing"

func TestClassifyFailoverReason(t *testing.T) {
	cases := []struct {
		text string
		want FailoverReason
	}{
		{"Error: rate limit exceeded, please retry", ReasonRateLimit},
		{"HTTP 429 Too Many Requests", ReasonRateLimit},
		{"401 Unauthorized: invalid api key", ReasonAuth},
		{"insufficient_quota: you have exceeded your quota", ReasonQuota},
		{"model not found: claude-9", ReasonModelUnavailable},
		{"dial tcp: connection refused", ReasonNetwork},
		{"request timed out after 30s", ReasonNetwork},
		{"something completely unrelated exploded", ReasonUnknown},
	}
	for _, c := range cases {
		if got := ClassifyFailoverReason(c.text); got != c.want {
			t.Errorf("ClassifyFailoverReason(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestClassifyFailoverReasonIsPure(t *testing.T) {
	text := "rate limit hit"
	a := ClassifyFailoverReason(text)
	b := ClassifyFailoverReason(text)
	if a != b {
		t.Errorf("ClassifyFailoverReason not pure: %q != %q", a, b)
	}
}

func TestNewFailoverErrorTimeoutTakesPrecedence(t *testing.T) {
	r := Result{Killed: true, Stderr: "rate limit"}
	err := NewFailoverError(r, "claude", "sonnet")
	if err.Reason != ReasonTimeout {
		t.Errorf("Reason = %q, want timeout when Killed is true", err.Reason)
	}
}

func TestNewFailoverErrorFallsBackToStdout(t *testing.T) {
	r := Result{Stdout: "connection refused by upstream"}
	err := NewFailoverError(r, "claude", "sonnet")
	if err.Reason != ReasonNetwork {
		t.Errorf("Reason = %q, want network", err.Reason)
	}
}
