package process

import "testing"

func TestIsStopped(t *testing.T) {
	if !isStopped("T") {
		t.Error("isStopped(\"T\") = false, want true")
	}
	if isStopped("R") {
		t.Error("isStopped(\"R\") = true, want false")
	}
	if isStopped("S") {
		t.Error("isStopped(\"S\") = true, want false")
	}
}

func TestMatchesSessionPattern(t *testing.T) {
	cmdline := "claude --resume abc-123-def --print"
	if !matchesSessionPattern(cmdline, []string{"abc-123-def"}) {
		t.Error("expected match on session id substring")
	}
	if matchesSessionPattern(cmdline, []string{"zzz-999"}) {
		t.Error("unexpected match on unrelated id")
	}
}

func TestResumeKillPattern(t *testing.T) {
	re, err := resumeKillPattern("claude", []string{"--resume", "{sessionId}"}, "abc-123")
	if err != nil {
		t.Fatalf("resumeKillPattern: %v", err)
	}
	if !re.MatchString("claude --resume abc-123 --print") {
		t.Error("expected resume pattern to match reconstructed command line")
	}
	if re.MatchString("other-binary --resume abc-123") {
		t.Error("resume pattern matched a different command")
	}
}

func TestContainsSessionIDToken(t *testing.T) {
	if !containsSessionIDToken([]string{"--resume", "{sessionId}"}) {
		t.Error("expected token detection to find {sessionId}")
	}
	if containsSessionIDToken([]string{"--resume"}) {
		t.Error("unexpected token detection without {sessionId}")
	}
}

func TestCleanStaleProcessesNoopWithoutMatches(t *testing.T) {
	result := CleanStaleProcesses(CleanupRequest{
		SessionIDPatterns: []string{"no-such-session-id-ever"},
	})
	if len(result.Killed) != 0 {
		t.Errorf("expected no kills, got %v", result.Killed)
	}
}
