// Package sandbox wraps a shell command for execution inside a Docker
// container via `docker exec`, the way the backend process executor (C3)
// needs to run CLI backends under `sandboxContext.enabled`.
//
// The teacher repo (vanducng-goclaw) only ships the usage site of this
// package (internal/tools/shell.go's ExecTool, which holds a
// sandbox.Manager interface and calls sb.Exec(ctx, argv, cwd)) — the
// concrete implementation is authored here, generalized from "run one
// shell command in a sandbox" to the full `docker exec -i [-w workdir]
// [-e K=V]... <container> sh -lc '<cmd>'` argv builder this spec requires.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrSandboxDisabled is returned by Manager.Get when sandboxing is
// configured off; callers fall back to host execution.
var ErrSandboxDisabled = errors.New("sandbox: disabled")

// Config configures how containers are created and addressed.
type Config struct {
	Enabled         bool
	Image           string
	WorkspaceAccess string // none|ro|rw
	Env             map[string]string
}

// DefaultConfig returns the zero-value-safe default sandbox configuration.
func DefaultConfig() Config {
	return Config{
		Image:           "gatewaycore-sandbox:bookworm-slim",
		WorkspaceAccess: "rw",
	}
}

// ExecResult is the outcome of one in-container command execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Sandbox is a running container a command can be executed in.
type Sandbox interface {
	// Exec runs argv inside the container, rooted at cwd, and returns its
	// captured output. argv is NOT additionally shell-escaped by the
	// implementation — callers needing shell semantics must pass
	// []string{"sh", "-lc", innerCommand} with innerCommand already quoted.
	Exec(ctx context.Context, argv []string, cwd string) (ExecResult, error)
}

// Manager resolves a sandbox key (e.g. a session key) to a running
// container, creating one on first use.
type Manager interface {
	Get(ctx context.Context, key, workspaceDir string) (Sandbox, error)
}

// DockerManager is a Manager backed by `docker exec` against
// already-running, externally-provisioned containers keyed by sandbox key.
// Provisioning a fresh container (docker run) is the surrounding gateway's
// job; this core only ever execs into one that already exists.
type DockerManager struct {
	cfg       Config
	container func(key string) (containerName string, ok bool)
}

// NewDockerManager builds a DockerManager. container resolves a sandbox key
// to its container name; it returns ok=false if no container is currently
// provisioned for that key.
func NewDockerManager(cfg Config, container func(key string) (string, bool)) *DockerManager {
	return &DockerManager{cfg: cfg, container: container}
}

func (m *DockerManager) Get(ctx context.Context, key, workspaceDir string) (Sandbox, error) {
	if !m.cfg.Enabled {
		return nil, ErrSandboxDisabled
	}
	name, ok := m.container(key)
	if !ok {
		return nil, fmt.Errorf("sandbox: no container provisioned for key %q", key)
	}
	return &dockerSandbox{container: name, env: m.cfg.Env}, nil
}

type dockerSandbox struct {
	container string
	env       map[string]string
}

func (s *dockerSandbox) Exec(ctx context.Context, argv []string, cwd string) (ExecResult, error) {
	dockerArgv := BuildDockerExecArgv(s.container, cwd, s.env, argv)
	cmd := exec.CommandContext(ctx, dockerArgv[0], dockerArgv[1:]...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
		err = nil
	}
	if err != nil {
		return ExecResult{}, err
	}
	return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

// BuildDockerExecArgv builds the argv for `docker exec -i [-w workdir]
// [-e K=V]... <container> sh -lc '<cmd>'`, as specified in §4.3. innerArgv
// (e.g. the backend's own argv) is joined into a single shell command with
// every token single-quoted — see QuoteShellArg — so untrusted prompt
// contents can never be interpreted by the inner shell. This is the
// function the S5 sandbox-quoting test exercises.
func BuildDockerExecArgv(container, workdir string, env map[string]string, innerArgv []string) []string {
	argv := []string{"docker", "exec", "-i"}
	if workdir != "" {
		argv = append(argv, "-w", workdir)
	}
	for k, v := range env {
		argv = append(argv, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	argv = append(argv, container, "sh", "-lc", JoinQuoted(innerArgv))
	return argv
}

// JoinQuoted single-quotes every token in argv (§4.3's security invariant)
// and joins them with spaces, producing the inner `sh -lc` payload.
func JoinQuoted(argv []string) string {
	quoted := make([]string, len(argv))
	for i, tok := range argv {
		quoted[i] = QuoteShellArg(tok)
	}
	return strings.Join(quoted, " ")
}

// QuoteShellArg wraps tok in single quotes, replacing any embedded single
// quote with '\'' (close-quote, escaped-quote, reopen-quote) so the token
// is always interpreted literally by a POSIX shell regardless of content —
// this is what makes prompt injection via the argv unexploitable.
func QuoteShellArg(tok string) string {
	return "'" + strings.ReplaceAll(tok, "'", `'\''`) + "'"
}
