// Package process runs one CLI backend invocation to completion: it starts
// the child (on the host or, via internal/sandbox, inside a container),
// collects stdout/stderr, and enforces a hard timeout by killing the whole
// process group. It is grounded on the teacher's shell tool executor
// (internal/tools/shell.go's executeOnHost/executeInSandbox), generalized
// from "run one shell string" to "run an arbitrary argv with optional stdin
// and a process-group-aware timeout".
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/gatewaycore/internal/sandbox"
)

// Result is the outcome of one child process run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Signal   string
	Killed   bool
}

// Request describes one invocation of the process executor.
type Request struct {
	Argv         []string
	Cwd          string
	Env          []string // "KEY=VALUE" pairs, as passed to exec.Cmd.Env
	StdinPayload string
	TimeoutMs    int

	// Sandbox, when non-nil, routes the command through docker exec
	// instead of running it directly on the host.
	Sandbox *SandboxContext
}

// SandboxContext carries the pieces needed to wrap argv for in-container
// execution (§4.3's sandboxed-execution branch).
type SandboxContext struct {
	Container string
	Workdir   string
	Env       map[string]string
}

// Run executes req.Argv (wrapped for sandboxed execution if req.Sandbox is
// set), returning its captured output. Timeout is fatal: the process group
// is killed and Result.Killed is true; Run still returns a Result, not an
// error, in that case — callers classify the outcome via FailoverReason.
func Run(ctx context.Context, req Request) (Result, error) {
	if len(req.Argv) == 0 {
		return Result{}, errors.New("process: empty argv")
	}

	argv := req.Argv
	if req.Sandbox != nil {
		argv = sandbox.BuildDockerExecArgv(req.Sandbox.Container, req.Sandbox.Workdir, req.Sandbox.Env, req.Argv)
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = req.Cwd
	if len(req.Env) > 0 {
		cmd.Env = req.Env
	}
	if req.StdinPayload != "" {
		cmd.Stdin = bytes.NewBufferString(req.StdinPayload)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Put the child in its own process group so a timeout kill reaches
	// every descendant it may have spawned, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	startErr := cmd.Start()
	if startErr != nil {
		return Result{}, fmt.Errorf("process: start: %w", startErr)
	}

	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd.Process.Pid)
		return Result{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Signal: "SIGKILL",
			Killed: true,
		}, nil
	}

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if waitErr == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			result.Signal = status.Signal().String()
		}
		return result, nil
	}
	return result, fmt.Errorf("process: wait: %w", waitErr)
}

// killProcessGroup sends SIGKILL to the process group rooted at pid. The
// negative pid is the POSIX convention for "the group", valid because Run
// sets Setpgid so pid is also the group id.
func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
