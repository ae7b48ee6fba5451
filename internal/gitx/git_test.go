package gitx

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/gitx/gittest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClone(t *testing.T) (*Repository, string) {
	t.Helper()
	remote := gittest.NewRemote(t)
	dir := gittest.Clone(t, remote)
	return NewRepository(dir), remote
}

func TestRepository_RunCapturesStderr(t *testing.T) {
	gittest.RequireGit(t)
	repo := NewRepository(t.TempDir())

	_, err := repo.Run(context.Background(), "rev-parse", "HEAD")
	require.Error(t, err)

	var gitErr *Error
	require.True(t, errors.As(err, &gitErr))
	assert.NotEmpty(t, gitErr.Stderr)
	assert.Contains(t, err.Error(), "git rev-parse HEAD")
	assert.NotEqual(t, -1, ExitCode(err))
}

func TestRepository_RevParseAndAncestry(t *testing.T) {
	repo, _ := newClone(t)
	ctx := context.Background()

	head, err := repo.RevParse(ctx, "HEAD")
	require.NoError(t, err)
	assert.Len(t, head, 40)

	_, err = repo.RevParse(ctx, "no-such-branch")
	assert.ErrorIs(t, err, ErrUnknownRevision)

	ok, err := repo.IsAncestor(ctx, head, head)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_BuildCommitWithPrivateIndex(t *testing.T) {
	repo, _ := newClone(t)
	ctx := context.Background()

	parent, err := repo.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	blob, err := repo.HashObject(ctx, []byte("hello\n"))
	require.NoError(t, err)

	ix, err := repo.NewIndex(ctx)
	require.NoError(t, err)
	defer ix.Remove()

	require.NoError(t, ix.ReadTree(ctx, parent))
	require.NoError(t, ix.Add(ctx, "100644", blob, "notes/a.txt"))
	tree, err := ix.WriteTree(ctx)
	require.NoError(t, err)

	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	author := Signature{Person: Person{Name: "Callym", Email: "callym@example.com"}, When: when}
	commit, err := repo.CommitTree(ctx, tree, parent, "[create] notes/a.txt", author, author)
	require.NoError(t, err)

	// The ref has not moved yet.
	head, err := repo.RevParse(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, parent, head)

	require.NoError(t, repo.UpdateRef(ctx, "refs/heads/main", commit, parent))
	err = repo.UpdateRef(ctx, "refs/heads/main", commit, parent)
	assert.ErrorIs(t, err, ErrRefMoved)

	content, err := repo.ReadBlob(ctx, commit, "notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))

	_, err = repo.ReadBlob(ctx, commit, "notes")
	assert.ErrorIs(t, err, ErrPathNotFound)
	_, err = repo.ReadBlob(ctx, commit, "missing.md")
	assert.ErrorIs(t, err, ErrPathNotFound)

	entry, err := repo.Commit(ctx, commit)
	require.NoError(t, err)
	assert.Equal(t, commit, entry.ID)
	assert.Equal(t, []string{parent}, entry.Parents)
	assert.Equal(t, "callym@example.com", entry.Author.Email)
	assert.Equal(t, when, entry.Author.When)
	assert.Equal(t, "[create] notes/a.txt", entry.Message)

	changes, err := repo.Changes(ctx, commit)
	require.NoError(t, err)
	assert.Equal(t, []Change{{Status: "A", Path: "notes/a.txt"}}, changes)
}

func TestRepository_LogIsLazyAndRestartable(t *testing.T) {
	repo, remote := newClone(t)
	ctx := context.Background()

	other := gittest.Clone(t, remote)
	gittest.CommitAndPush(t, other, "page.md", "one", "first")
	gittest.CommitAndPush(t, other, "other.md", "x", "unrelated")
	gittest.CommitAndPush(t, other, "page.md", "two", "second")

	tip, err := repo.Fetch(ctx, "origin", "main")
	require.NoError(t, err)

	collect := func() []string {
		var msgs []string
		for e, err := range repo.Log(ctx, tip, LogOptions{Path: "page.md"}) {
			require.NoError(t, err)
			msgs = append(msgs, e.Message)
		}
		return msgs
	}

	first := collect()
	assert.Equal(t, []string{"second", "first"}, first)
	assert.Equal(t, first, collect())

	// Stopping early must not hang or error.
	for e, err := range repo.Log(ctx, tip, LogOptions{}) {
		require.NoError(t, err)
		assert.Equal(t, "second", e.Message)
		break
	}

	var byAuthor []string
	for e, err := range repo.Log(ctx, tip, LogOptions{Author: "seed@wiki.test", Limit: 2}) {
		require.NoError(t, err)
		byAuthor = append(byAuthor, e.Message)
	}
	assert.Equal(t, []string{"second", "unrelated"}, byAuthor)
}

func TestRepository_LogTreatsPathLiterally(t *testing.T) {
	repo, remote := newClone(t)
	ctx := context.Background()

	other := gittest.Clone(t, remote)
	gittest.CommitAndPush(t, other, "notes/d.txt", "d", "plain")
	gittest.CommitAndPush(t, other, "notes/[draft].txt", "x", "bracketed")

	tip, err := repo.Fetch(ctx, "origin", "main")
	require.NoError(t, err)

	var msgs []string
	for e, err := range repo.Log(ctx, tip, LogOptions{Path: "notes/[draft].txt"}) {
		require.NoError(t, err)
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"bracketed"}, msgs)

	for _, err := range repo.Log(ctx, tip, LogOptions{Path: "notes/*"}) {
		require.NoError(t, err)
		t.Fatal("wildcard path matched a commit")
	}
}

func TestRepository_FetchAndPush(t *testing.T) {
	repo, remote := newClone(t)
	ctx := context.Background()

	_, err := repo.Fetch(ctx, "origin", "does-not-exist")
	assert.ErrorIs(t, err, ErrRemoteRefMissing)

	parent, err := repo.RevParse(ctx, "HEAD")
	require.NoError(t, err)
	tree, err := repo.Run(ctx, "rev-parse", "HEAD^{tree}")
	require.NoError(t, err)

	sig := Signature{Person: Person{Name: "A", Email: "a@example.com"}}
	commit, err := repo.CommitTree(ctx, strings.TrimSpace(tree), parent, "empty change", sig, sig)
	require.NoError(t, err)

	require.NoError(t, repo.Push(ctx, "origin", commit, "main"))
	assert.Equal(t, commit, gittest.Tip(t, remote))

	tip, err := repo.Fetch(ctx, "origin", "main")
	require.NoError(t, err)
	assert.Equal(t, commit, tip)
}

func TestRepository_PushRejectedWhenRemoteMoved(t *testing.T) {
	repo, remote := newClone(t)
	ctx := context.Background()

	parent, err := repo.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	other := gittest.Clone(t, remote)
	gittest.CommitAndPush(t, other, "elsewhere.md", "x", "concurrent")

	tree, err := repo.Run(ctx, "rev-parse", "HEAD^{tree}")
	require.NoError(t, err)
	sig := Signature{Person: Person{Name: "A", Email: "a@example.com"}}
	commit, err := repo.CommitTree(ctx, strings.TrimSpace(tree), parent, "stale", sig, sig)
	require.NoError(t, err)

	err = repo.Push(ctx, "origin", commit, "main")
	assert.ErrorIs(t, err, ErrPushRejected)
}

type recordingRunner struct {
	calls []string
	next  Runner
}

func (r *recordingRunner) Run(ctx context.Context, inv Invocation) (string, error) {
	r.calls = append(r.calls, inv.Subcommand())
	return r.next.Run(ctx, inv)
}

func TestRepository_WithRunnerAndEnv(t *testing.T) {
	gittest.RequireGit(t)
	rec := &recordingRunner{next: ExecRunner{}}
	repo := NewRepository(t.TempDir(), WithRunner(rec), WithEnv("GIT_SSH_COMMAND="+SSHCommand("/keys/id's")))

	_, _ = repo.Run(context.Background(), "status")
	assert.True(t, slices.Contains(rec.calls, "status"))
	assert.Equal(t, `ssh -i '/keys/id'\''s' -o IdentitiesOnly=yes -o StrictHostKeyChecking=accept-new -o BatchMode=yes`, SSHCommand("/keys/id's"))
}
