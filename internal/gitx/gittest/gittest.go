// Package gittest builds throwaway repositories for tests: a bare "remote"
// seeded with one commit on main, plus helper clones that act as other
// writers.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Branch is the branch every helper works on.
const Branch = "main"

var identityEnv = []string{
	"GIT_AUTHOR_NAME=Seed",
	"GIT_AUTHOR_EMAIL=seed@wiki.test",
	"GIT_COMMITTER_NAME=Seed",
	"GIT_COMMITTER_EMAIL=seed@wiki.test",
	"GIT_CONFIG_NOSYSTEM=1",
	"GIT_TERMINAL_PROMPT=0",
}

// RequireGit skips the test when no git binary is available.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// Git runs git in dir and fails the test on error.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(), identityEnv...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// NewRemote creates a bare repository whose main branch holds a single
// commit adding README.md, and returns its path.
func NewRemote(t testing.TB) string {
	t.Helper()
	RequireGit(t)

	root := t.TempDir()
	bare := filepath.Join(root, "remote.git")
	Git(t, root, "init", "--quiet", "--bare", bare)
	Git(t, bare, "symbolic-ref", "HEAD", "refs/heads/"+Branch)

	seed := filepath.Join(root, "seed")
	Git(t, root, "init", "--quiet", seed)
	Git(t, seed, "checkout", "--quiet", "-b", Branch)
	if err := os.WriteFile(filepath.Join(seed, "README.md"), []byte("# Wiki\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	Git(t, seed, "add", "README.md")
	Git(t, seed, "commit", "--quiet", "-m", "initial")
	Git(t, seed, "push", "--quiet", bare, Branch+":refs/heads/"+Branch)

	return bare
}

// Clone clones remote into a fresh temp directory and returns it.
func Clone(t testing.TB, remote string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "clone")
	Git(t, filepath.Dir(dir), "clone", "--quiet", "--branch", Branch, remote, dir)
	return dir
}

// CommitAndPush writes content to path in the clone at dir, commits it and
// pushes to origin. It returns the new commit id.
func CommitAndPush(t testing.TB, dir, path, content, message string) string {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	Git(t, dir, "add", "--", path)
	Git(t, dir, "commit", "--quiet", "-m", message)
	Git(t, dir, "push", "--quiet", "origin", Branch)
	return Git(t, dir, "rev-parse", "HEAD")
}

// Tip returns the commit id of main in the repository at dir.
func Tip(t testing.TB, dir string) string {
	t.Helper()
	return Git(t, dir, "rev-parse", "refs/heads/"+Branch)
}
