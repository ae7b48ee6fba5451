// Package gitx provides typed access to the git CLI. Every command targets
// one repository directory through "git -C <dir>", and every failure carries
// git's stderr so callers can log something actionable.
package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes a git command. The default ExecRunner shells out to the
// git binary; tests substitute their own to inject failures.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (string, error)
}

// Invocation describes one git command.
type Invocation struct {
	Dir   string
	Args  []string
	Env   []string
	Stdin io.Reader
}

// Subcommand returns the git subcommand name ("push", "fetch", ...).
func (i Invocation) Subcommand() string {
	if len(i.Args) == 0 {
		return ""
	}
	return i.Args[0]
}

// ExecRunner runs git as a child process.
type ExecRunner struct{}

// Run executes the invocation and returns stdout. Stderr is captured
// separately and included in the error on failure.
func (ExecRunner) Run(ctx context.Context, inv Invocation) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := command(ctx, inv)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &Error{
			Args:   inv.Args,
			Dir:    inv.Dir,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

func command(ctx context.Context, inv Invocation) *exec.Cmd {
	args := append([]string{"-C", inv.Dir}, inv.Args...)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), baseEnv...)
	cmd.Env = append(cmd.Env, inv.Env...)
	cmd.Stdin = inv.Stdin
	return cmd
}

// baseEnv keeps git from prompting or reading user-specific config that
// would change command output. Paths are always literal: page names may
// contain glob characters.
var baseEnv = []string{
	"GIT_TERMINAL_PROMPT=0",
	"GIT_CONFIG_NOSYSTEM=1",
	"GIT_LITERAL_PATHSPECS=1",
	"LC_ALL=C",
}

// Error is a failed git command.
type Error struct {
	Args   []string
	Dir    string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("git %s in %s: %v (stderr: %s)", strings.Join(e.Args, " "), e.Dir, e.Err, e.Stderr)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the process exit code, or -1 when the command did not
// run to completion.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func stderrContains(err error, needle string) bool {
	var gitErr *Error
	if errors.As(err, &gitErr) {
		return strings.Contains(gitErr.Stderr, needle)
	}
	return false
}

// Repository represents a git repository at a specific directory.
type Repository struct {
	dir    string
	env    []string
	runner Runner
}

// Option configures a Repository.
type Option func(*Repository)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(repo *Repository) { repo.runner = r }
}

// WithEnv adds environment variables to every command, e.g. GIT_SSH_COMMAND.
func WithEnv(env ...string) Option {
	return func(repo *Repository) { repo.env = append(repo.env, env...) }
}

// NewRepository returns a Repository targeting dir.
func NewRepository(dir string, opts ...Option) *Repository {
	r := &Repository{dir: dir, runner: ExecRunner{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns stdout.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	return r.RunWith(ctx, nil, nil, args...)
}

// RunWith is Run with extra environment and an optional stdin.
func (r *Repository) RunWith(ctx context.Context, env []string, stdin io.Reader, args ...string) (string, error) {
	inv := Invocation{
		Dir:   r.dir,
		Args:  args,
		Env:   append(append([]string(nil), r.env...), env...),
		Stdin: stdin,
	}
	return r.runner.Run(ctx, inv)
}

// Command returns an *exec.Cmd for a git command without running it, for
// callers that stream stdout. It bypasses the configured Runner.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	return command(ctx, Invocation{Dir: r.dir, Args: args, Env: r.env})
}

// Clone clones url into dir on branch and returns the new Repository.
func Clone(ctx context.Context, url, dir, branch string, opts ...Option) (*Repository, error) {
	parent := NewRepository(".", opts...)
	args := []string{"clone", "--quiet", "--origin", "origin"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dir)
	if _, err := parent.Run(ctx, args...); err != nil {
		return nil, err
	}
	return NewRepository(dir, opts...), nil
}

// SSHCommand builds a GIT_SSH_COMMAND value that authenticates with the
// given private key only.
func SSHCommand(privateKey string) string {
	return fmt.Sprintf("ssh -i %s -o IdentitiesOnly=yes -o StrictHostKeyChecking=accept-new -o BatchMode=yes", shellQuote(privateKey))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
