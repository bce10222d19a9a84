package process

import (
	"context"
	"testing"
)

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Argv:      []string{"sh", "-c", "echo hello; exit 3"},
		TimeoutMs: 5000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.Killed {
		t.Error("Killed = true, want false")
	}
}

func TestRunWritesStdinPayload(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Argv:         []string{"cat"},
		StdinPayload: "piped-in",
		TimeoutMs:    5000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stdout != "piped-in" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "piped-in")
	}
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Argv:      []string{"sleep", "5"},
		TimeoutMs: 100,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Killed {
		t.Error("Killed = false, want true after timeout")
	}
}

func TestRunEmptyArgvErrors(t *testing.T) {
	_, err := Run(context.Background(), Request{})
	if err == nil {
		t.Error("expected error for empty argv")
	}
}
