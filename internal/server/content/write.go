package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dmitrijs2005/gitwiki/internal/gitx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Op constrains a write against the current state of the path.
type Op int

const (
	// OpPut creates or replaces the path.
	OpPut Op = iota
	// OpCreate requires the path to be absent.
	OpCreate
	// OpUpdate requires the path to exist.
	OpUpdate
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	default:
		return "put"
	}
}

// State is where an accepted write ended up.
type State int

const (
	// StateCommitted: the branch points at the commit; no push attempted yet.
	StateCommitted State = iota + 1
	// StatePushPending: committed locally, remote not yet updated.
	StatePushPending
	// StatePushed: the remote branch holds the commit.
	StatePushed
)

func (s State) String() string {
	switch s {
	case StateCommitted:
		return "committed"
	case StatePushPending:
		return "push_pending"
	case StatePushed:
		return "pushed"
	default:
		return "unknown"
	}
}

// WriteRequest is one page write.
type WriteRequest struct {
	Path    string
	Content []byte
	// Mime must match the type inferred from Path. Empty means inferred.
	Mime    string
	Author  gitx.Person
	Message string
	Op      Op
}

// WriteResult describes an accepted write.
type WriteResult struct {
	Commit       string
	State        State
	Rebases      int
	PushAttempts int
}

const fileMode = "100644"

// Write commits req on top of the tip and synchronizes with the remote.
//
// A non-nil result means the commit exists locally. When the remote could
// not be updated the result is StatePushPending and the error is a
// *SyncError matching ErrSyncTimeout or ErrPushFailed. Any other error means
// nothing was committed.
func (s *Store) Write(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	ctx, span := s.tracer.Start(ctx, "content.Write", trace.WithAttributes(
		attribute.String("wiki.path", req.Path),
		attribute.String("wiki.op", req.Op.String()),
	))
	defer span.End()

	res, err := s.write(ctx, req)
	outcome := "rejected"
	if res != nil {
		outcome = res.State.String()
		s.rebases.Add(ctx, int64(res.Rebases))
		span.SetAttributes(
			attribute.String("wiki.commit", res.Commit),
			attribute.String("wiki.state", res.State.String()),
			attribute.Int("wiki.rebases", res.Rebases),
			attribute.Int("wiki.push_attempts", res.PushAttempts),
		)
	}
	s.writes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("wiki.op", req.Op.String()),
		attribute.String("wiki.outcome", outcome),
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *Store) validate(req WriteRequest) (WriteRequest, error) {
	p, err := CleanPath(req.Path)
	if err != nil {
		return req, err
	}
	req.Path = p

	inferred := InferMime(p)
	if req.Mime == "" {
		req.Mime = inferred
	}
	if essence(req.Mime) != inferred {
		return req, invalid("mime %q does not match %q inferred from %s", req.Mime, inferred, p)
	}
	if !s.policy.Allowed(req.Mime) {
		return req, invalid("mime %q is not allowed", req.Mime)
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return req, invalid("commit message is empty")
	}
	req.Author.Name = strings.TrimSpace(req.Author.Name)
	req.Author.Email = strings.TrimSpace(req.Author.Email)
	if req.Author.Name == "" || req.Author.Email == "" {
		return req, invalid("author name and email are required")
	}
	who := req.Author.Name + req.Author.Email
	if strings.ContainsAny(who, "<>") || strings.ContainsFunc(who, unicode.IsControl) {
		return req, invalid("author contains forbidden characters")
	}
	return req, nil
}

func (s *Store) write(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	req, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	// A write that reached the lock runs to completion even if the caller
	// goes away.
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := s.repo.HashObject(ctx, req.Content)
	if err != nil {
		return nil, fmt.Errorf("hash content: %w", err)
	}
	ix, err := s.repo.NewIndex(ctx)
	if err != nil {
		return nil, err
	}
	defer ix.Remove()

	now := s.cfg.Now()
	base := s.Tip()
	parent := base
	res := &WriteResult{}

	var commit string
	for attempt := 1; ; attempt++ {
		commit, err = s.stage(ctx, ix, parent, blob, req, now)
		if err != nil {
			return nil, err
		}

		remote, err := s.fetch(ctx)
		if err != nil {
			if err := s.publish(ctx, commit, base); err != nil {
				return nil, err
			}
			s.pending.Store(true)
			res.Commit, res.State = commit, StatePushPending
			s.logger.Warn(ctx, "fetch failed, commit kept locally", "path", req.Path, "commit", commit, "error", err)
			return res, &SyncError{Kind: syncKind(err), Commit: commit, Err: err}
		}

		upToDate, err := s.repo.IsAncestor(ctx, remote, parent)
		if err != nil {
			return nil, err
		}
		if upToDate {
			break
		}
		if attempt >= s.cfg.SyncAttempts {
			s.logger.Warn(ctx, "remote kept advancing, write abandoned", "path", req.Path, "attempts", attempt)
			return nil, fmt.Errorf("%w: remote advanced during %d attempts", ErrSyncConflict, attempt)
		}

		parent, err = s.rebase(ctx, ix, parent, remote, now)
		if err != nil {
			return nil, fmt.Errorf("rebase onto %s: %w", remote, err)
		}
		res.Rebases++
		s.logger.Info(ctx, "remote advanced, retrying on new tip", "path", req.Path, "remote", remote, "attempt", attempt)
	}

	if err := s.publish(ctx, commit, base); err != nil {
		return nil, err
	}
	s.pending.Store(true)
	res.Commit, res.State = commit, StateCommitted

	attempts, err := s.push(ctx, commit)
	res.PushAttempts = attempts
	if errors.Is(err, gitx.ErrPushRejected) {
		// The remote moved after the fetch: catch up once while still
		// holding the lock.
		s.logger.Info(ctx, "push rejected, replaying onto remote", "path", req.Path, "commit", commit)
		more, replayed, rerr := s.reconcile(ctx)
		res.PushAttempts += more
		if replayed {
			res.Rebases++
		}
		res.Commit = s.Tip()
		if rerr == nil {
			res.State = StatePushed
			s.logger.Info(ctx, "page written", "path", req.Path, "commit", res.Commit, "author", req.Author.Email, "rebases", res.Rebases)
			return res, nil
		}
		res.State = StatePushPending
		s.logger.Warn(ctx, "catch-up after rejected push failed, commit kept locally", "path", req.Path, "commit", res.Commit, "error", rerr)
		var syncErr *SyncError
		if errors.As(rerr, &syncErr) {
			return res, rerr
		}
		return res, &SyncError{Kind: ErrPushFailed, Commit: res.Commit, Err: rerr}
	}
	if err != nil {
		res.State = StatePushPending
		s.logger.Warn(ctx, "push failed, commit kept locally", "path", req.Path, "commit", commit, "attempts", attempts, "error", err)
		return res, &SyncError{Kind: ErrPushFailed, Commit: commit, Err: err}
	}

	s.pending.Store(false)
	res.State = StatePushed
	s.logger.Info(ctx, "page written", "path", req.Path, "commit", commit, "author", req.Author.Email, "rebases", res.Rebases)
	return res, nil
}

// stage builds the commit for req on parent without touching the branch or
// the working tree. The op constraint is checked against parent.
func (s *Store) stage(ctx context.Context, ix *gitx.Index, parent, blob string, req WriteRequest, now time.Time) (string, error) {
	mode := fileMode
	existingMode, typ, _, err := s.repo.LsTree(ctx, parent, req.Path)
	exists := err == nil
	switch {
	case err != nil && !errors.Is(err, gitx.ErrPathNotFound):
		return "", err
	case exists && typ != "blob":
		return "", invalid("path %s is a directory", req.Path)
	case exists:
		mode = existingMode
	}
	if !exists {
		if err := s.checkParents(ctx, parent, req.Path); err != nil {
			return "", err
		}
	}

	switch {
	case req.Op == OpCreate && exists:
		return "", fmt.Errorf("%w: %s", ErrExists, req.Path)
	case req.Op == OpUpdate && !exists:
		return "", fmt.Errorf("%w: %s", ErrNotFound, req.Path)
	}

	if err := ix.ReadTree(ctx, parent); err != nil {
		return "", err
	}
	if err := ix.Add(ctx, mode, blob, req.Path); err != nil {
		return "", err
	}
	tree, err := ix.WriteTree(ctx)
	if err != nil {
		return "", err
	}

	author := gitx.Signature{Person: req.Author, When: now}
	committer := gitx.Signature{Person: s.cfg.Committer, When: now}
	return s.repo.CommitTree(ctx, tree, parent, req.Message, author, committer)
}

// checkParents rejects a new path whose leading directories already exist
// at rev as files.
func (s *Store) checkParents(ctx context.Context, rev, p string) error {
	for i := strings.IndexByte(p, '/'); i >= 0; i = nextSlash(p, i) {
		dir := p[:i]
		_, typ, _, err := s.repo.LsTree(ctx, rev, dir)
		switch {
		case errors.Is(err, gitx.ErrPathNotFound):
			return nil
		case err != nil:
			return err
		case typ == "blob":
			return invalid("path %s is under file %s", p, dir)
		}
	}
	return nil
}

func nextSlash(p string, i int) int {
	j := strings.IndexByte(p[i+1:], '/')
	if j < 0 {
		return -1
	}
	return i + 1 + j
}

// rebase replays the commits reachable from local but not from onto on top
// of onto and returns the new head. Each replayed commit keeps its author
// and message; touched paths take the replayed commit's version.
func (s *Store) rebase(ctx context.Context, ix *gitx.Index, local, onto string, now time.Time) (string, error) {
	ids, err := s.repo.RevList(ctx, local, onto)
	if err != nil {
		return "", err
	}

	head := onto
	for _, id := range ids {
		orig, err := s.repo.Commit(ctx, id)
		if err != nil {
			return "", err
		}
		changes, err := s.repo.Changes(ctx, id)
		if err != nil {
			return "", err
		}

		if err := ix.ReadTree(ctx, head); err != nil {
			return "", err
		}
		for _, c := range changes {
			if c.Status == "D" {
				if err := ix.Delete(ctx, c.Path); err != nil {
					return "", err
				}
				continue
			}
			mode, _, blob, err := s.repo.LsTree(ctx, id, c.Path)
			if err != nil {
				return "", err
			}
			if err := ix.Add(ctx, mode, blob, c.Path); err != nil {
				return "", err
			}
		}
		tree, err := ix.WriteTree(ctx)
		if err != nil {
			return "", err
		}

		committer := gitx.Signature{Person: s.cfg.Committer, When: now}
		head, err = s.repo.CommitTree(ctx, tree, head, orig.Message, orig.Author, committer)
		if err != nil {
			return "", err
		}
		s.logger.Debug(ctx, "replayed unpushed commit", "from", id, "to", head)
	}
	return head, nil
}
