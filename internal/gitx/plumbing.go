package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownRevision is returned when a revision does not resolve.
	ErrUnknownRevision = errors.New("unknown revision")
	// ErrPathNotFound is returned when a path is absent from a tree.
	ErrPathNotFound = errors.New("path not found in tree")
	// ErrRefMoved is returned by UpdateRef when the ref no longer holds the
	// expected old value.
	ErrRefMoved = errors.New("ref moved concurrently")
	// ErrRemoteRefMissing is returned by Fetch when the remote has no such branch.
	ErrRemoteRefMissing = errors.New("remote ref missing")
	// ErrPushRejected is returned by Push when the remote refuses a
	// non-fast-forward update.
	ErrPushRejected = errors.New("push rejected")
)

// Person is a commit author or committer.
type Person struct {
	Name  string
	Email string
}

func (p Person) String() string {
	return fmt.Sprintf("%s <%s>", p.Name, p.Email)
}

// Signature is a Person at a point in time.
type Signature struct {
	Person
	When time.Time
}

// Change is one path touched by a commit.
type Change struct {
	Status string // A, M, D, T
	Path   string
}

// RevParse resolves rev to a full object id.
func (r *Repository) RevParse(ctx context.Context, rev string) (string, error) {
	out, err := r.Run(ctx, "rev-parse", "--verify", "--quiet", rev+"^{object}")
	if err != nil {
		if ExitCode(err) == 1 {
			return "", fmt.Errorf("%w: %s", ErrUnknownRevision, rev)
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GitDir returns the absolute path of the .git directory.
func (r *Repository) GitDir(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// IsAncestor reports whether ancestor is reachable from descendant. A commit
// is its own ancestor.
func (r *Repository) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, err := r.Run(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	if ExitCode(err) == 1 {
		return false, nil
	}
	return false, err
}

// RevList returns the commits reachable from include but not from exclude,
// oldest first. An empty exclude lists the full history.
func (r *Repository) RevList(ctx context.Context, include, exclude string) ([]string, error) {
	args := []string{"rev-list", "--reverse", include}
	if exclude != "" {
		args = append(args, "^"+exclude)
	}
	out, err := r.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

// LsTree looks up path in treeish and returns its mode, type and object id.
func (r *Repository) LsTree(ctx context.Context, treeish, path string) (mode, typ, id string, err error) {
	out, err := r.Run(ctx, "ls-tree", "-z", "--full-tree", treeish, "--", path)
	if err != nil {
		if stderrContains(err, "Not a valid object name") || stderrContains(err, "not a tree object") {
			return "", "", "", fmt.Errorf("%w: %s", ErrUnknownRevision, treeish)
		}
		return "", "", "", err
	}
	entry := strings.TrimSuffix(out, "\x00")
	if entry == "" {
		return "", "", "", fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	meta, name, ok := strings.Cut(entry, "\t")
	if !ok || name != path {
		return "", "", "", fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	fields := strings.Fields(meta)
	if len(fields) != 3 {
		return "", "", "", fmt.Errorf("unexpected ls-tree output %q", entry)
	}
	return fields[0], fields[1], fields[2], nil
}

// ReadBlob returns the content of path at treeish.
func (r *Repository) ReadBlob(ctx context.Context, treeish, path string) ([]byte, error) {
	_, typ, id, err := r.LsTree(ctx, treeish, path)
	if err != nil {
		return nil, err
	}
	if typ != "blob" {
		return nil, fmt.Errorf("%w: %s is a %s", ErrPathNotFound, path, typ)
	}
	out, err := r.Run(ctx, "cat-file", "blob", id)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// HashObject writes content to the object database and returns the blob id.
func (r *Repository) HashObject(ctx context.Context, content []byte) (string, error) {
	out, err := r.RunWith(ctx, nil, bytes.NewReader(content), "hash-object", "-w", "--stdin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Index is a private index file used to build trees without touching the
// repository's own index or working tree.
type Index struct {
	repo *Repository
	path string
}

// NewIndex creates an empty private index inside the git directory.
func (r *Repository) NewIndex(ctx context.Context) (*Index, error) {
	gitDir, err := r.GitDir(ctx)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(gitDir, "wiki-index-*")
	if err != nil {
		return nil, fmt.Errorf("create private index: %w", err)
	}
	path := f.Name()
	f.Close()
	// git refuses an empty file as an index; it must not exist.
	os.Remove(path)
	return &Index{repo: r, path: filepath.Clean(path)}, nil
}

func (ix *Index) env() []string {
	return []string{"GIT_INDEX_FILE=" + ix.path}
}

// Remove deletes the index file.
func (ix *Index) Remove() {
	os.Remove(ix.path)
	os.Remove(ix.path + ".lock")
}

// ReadTree loads treeish into the index. An empty treeish empties it.
func (ix *Index) ReadTree(ctx context.Context, treeish string) error {
	args := []string{"read-tree"}
	if treeish == "" {
		args = append(args, "--empty")
	} else {
		args = append(args, treeish)
	}
	_, err := ix.repo.RunWith(ctx, ix.env(), nil, args...)
	return err
}

// Add stages blob id at path with mode (e.g. "100644").
func (ix *Index) Add(ctx context.Context, mode, id, path string) error {
	_, err := ix.repo.RunWith(ctx, ix.env(), nil, "update-index", "--add", "--cacheinfo", mode+","+id+","+path)
	return err
}

// Delete unstages path.
func (ix *Index) Delete(ctx context.Context, path string) error {
	_, err := ix.repo.RunWith(ctx, ix.env(), nil, "update-index", "--force-remove", "--", path)
	return err
}

// WriteTree writes the index as a tree object.
func (ix *Index) WriteTree(ctx context.Context) (string, error) {
	out, err := ix.repo.RunWith(ctx, ix.env(), nil, "write-tree")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CommitTree creates a commit object for tree with the given parent (empty
// for a root commit) and returns its id. No ref is updated.
func (r *Repository) CommitTree(ctx context.Context, tree, parent, message string, author, committer Signature) (string, error) {
	env := []string{
		"GIT_AUTHOR_NAME=" + author.Name,
		"GIT_AUTHOR_EMAIL=" + author.Email,
		"GIT_AUTHOR_DATE=" + gitDate(author.When),
		"GIT_COMMITTER_NAME=" + committer.Name,
		"GIT_COMMITTER_EMAIL=" + committer.Email,
		"GIT_COMMITTER_DATE=" + gitDate(committer.When),
	}
	args := []string{"commit-tree", tree}
	if parent != "" {
		args = append(args, "-p", parent)
	}
	args = append(args, "-F", "-")
	out, err := r.RunWith(ctx, env, strings.NewReader(message), args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func gitDate(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return strconv.FormatInt(t.Unix(), 10) + " " + t.Format("-0700")
}

// UpdateRef moves ref to newID only if it currently holds oldID. An empty
// oldID requires the ref to not exist yet.
func (r *Repository) UpdateRef(ctx context.Context, ref, newID, oldID string) error {
	old := oldID
	if old == "" {
		old = strings.Repeat("0", len(newID))
	}
	_, err := r.Run(ctx, "update-ref", ref, newID, old)
	if err != nil {
		if stderrContains(err, "cannot lock ref") || stderrContains(err, "is at") || stderrContains(err, "but expected") {
			return fmt.Errorf("%w: %s", ErrRefMoved, ref)
		}
		return err
	}
	return nil
}

// ResetHard points the checked-out branch's index and working tree at rev.
func (r *Repository) ResetHard(ctx context.Context, rev string) error {
	_, err := r.Run(ctx, "reset", "--quiet", "--hard", rev)
	return err
}

// Changes lists the paths commit touches relative to its first parent.
func (r *Repository) Changes(ctx context.Context, commit string) ([]Change, error) {
	out, err := r.Run(ctx, "diff-tree", "--no-commit-id", "--root", "-r", "-z", "--no-renames", "--name-status", commit)
	if err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimSuffix(out, "\x00"), "\x00")
	changes := make([]Change, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		changes = append(changes, Change{Status: fields[i], Path: fields[i+1]})
	}
	return changes, nil
}

// Fetch updates refs/remotes/<remote>/<branch> from the remote and returns
// the fetched tip.
func (r *Repository) Fetch(ctx context.Context, remote, branch string) (string, error) {
	tracking := TrackingRef(remote, branch)
	_, err := r.Run(ctx, "fetch", "--quiet", "--no-tags", remote, "+refs/heads/"+branch+":"+tracking)
	if err != nil {
		if stderrContains(err, "couldn't find remote ref") {
			return "", fmt.Errorf("%w: %s/%s", ErrRemoteRefMissing, remote, branch)
		}
		return "", err
	}
	return r.RevParse(ctx, tracking)
}

// Push sends commit to the remote branch. The push is never forced, so a
// remote that moved ahead rejects it.
func (r *Repository) Push(ctx context.Context, remote, commit, branch string) error {
	_, err := r.Run(ctx, "push", remote, commit+":refs/heads/"+branch)
	if err != nil {
		if stderrContains(err, "[rejected]") || stderrContains(err, "non-fast-forward") {
			return fmt.Errorf("%w: %w", ErrPushRejected, err)
		}
		return err
	}
	return nil
}

// TrackingRef is the remote-tracking ref for branch.
func TrackingRef(remote, branch string) string {
	return "refs/remotes/" + remote + "/" + branch
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
