// Package content is the git-backed page store. It owns one working copy
// cloned from one remote branch. Readers see the last published tip without
// locking; writers are serialized, committed through a private index and
// synchronized with the remote by fetch, rebase-and-retry and push.
package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/filex"
	"github.com/dmitrijs2005/gitwiki/internal/gitx"
	"github.com/dmitrijs2005/gitwiki/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Remote is the name the store gives its single remote.
	Remote = "origin"

	DefaultBranch            = "main"
	DefaultSyncTimeout       = 30 * time.Second
	DefaultSyncAttempts      = 3
	DefaultPushAttempts      = 5
	DefaultPushRetryInterval = 500 * time.Millisecond

	tracerName = "github.com/dmitrijs2005/gitwiki/internal/server/content"
)

// Config configures a Store.
type Config struct {
	// Dir is the working copy. It is cloned from RemoteURL when missing.
	Dir       string
	RemoteURL string
	Branch    string
	// PrivateKey, when set, is passed to ssh for every remote operation.
	PrivateKey string
	Committer  gitx.Person

	AllowedMimeTypes []string

	// SyncTimeout bounds each fetch and push attempt.
	SyncTimeout time.Duration
	// SyncAttempts bounds rebase-and-retry cycles per write.
	SyncAttempts int
	// PushAttempts bounds fetch and push retries.
	PushAttempts      int
	PushRetryInterval time.Duration

	Logger logging.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
	Runner gitx.Runner
	Now    func() time.Time
}

func (c *Config) setDefaults() {
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = DefaultSyncTimeout
	}
	if c.SyncAttempts <= 0 {
		c.SyncAttempts = DefaultSyncAttempts
	}
	if c.PushAttempts <= 0 {
		c.PushAttempts = DefaultPushAttempts
	}
	if c.PushRetryInterval <= 0 {
		c.PushRetryInterval = DefaultPushRetryInterval
	}
	if c.Committer.Name == "" {
		c.Committer.Name = "gitwiki"
	}
	if c.Committer.Email == "" {
		c.Committer.Email = "gitwiki@localhost"
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	if c.Meter == nil {
		c.Meter = otel.Meter(tracerName)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Store is the content store. It is safe for concurrent use.
type Store struct {
	cfg    Config
	repo   *gitx.Repository
	policy Policy
	logger logging.Logger
	tracer trace.Tracer

	writes  metric.Int64Counter
	rebases metric.Int64Counter

	// mu serializes writers and pushes.
	mu      sync.Mutex
	tip     atomic.Pointer[string]
	pending atomic.Bool
}

// Open prepares the working copy and returns a Store positioned at the
// local branch tip. A missing working copy is cloned first.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.setDefaults()
	if cfg.Dir == "" {
		return nil, errors.New("content: working directory must be set")
	}

	var opts []gitx.Option
	if cfg.Runner != nil {
		opts = append(opts, gitx.WithRunner(cfg.Runner))
	}
	if cfg.PrivateKey != "" {
		opts = append(opts, gitx.WithEnv("GIT_SSH_COMMAND="+gitx.SSHCommand(cfg.PrivateKey)))
	}

	s := &Store{
		cfg:    cfg,
		policy: NewPolicy(cfg.AllowedMimeTypes),
		logger: cfg.Logger.With("module", "content"),
		tracer: cfg.Tracer,
	}

	var err error
	if s.writes, err = cfg.Meter.Int64Counter("wiki.content.writes",
		metric.WithDescription("Page writes by outcome")); err != nil {
		return nil, err
	}
	if s.rebases, err = cfg.Meter.Int64Counter("wiki.content.rebases",
		metric.WithDescription("Replays onto an advanced remote")); err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); errors.Is(err, os.ErrNotExist) {
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("content: %s is not a git working copy and no remote is configured", dir)
		}
		if err := ensureEmpty(dir); err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "cloning pages repository", "remote", cfg.RemoteURL, "dir", dir, "branch", cfg.Branch)
		if s.repo, err = gitx.Clone(ctx, cfg.RemoteURL, dir, cfg.Branch, opts...); err != nil {
			return nil, fmt.Errorf("content: clone: %w", err)
		}
	} else if err != nil {
		return nil, err
	} else {
		s.repo = gitx.NewRepository(dir, opts...)
	}

	branch, err := s.repo.CurrentBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("content: read current branch: %w", err)
	}
	if branch != cfg.Branch {
		return nil, fmt.Errorf("content: working copy is on branch %q, want %q", branch, cfg.Branch)
	}

	tip, err := s.repo.RevParse(ctx, s.branchRef())
	if err != nil {
		return nil, fmt.Errorf("content: resolve tip: %w", err)
	}
	s.tip.Store(&tip)

	tracked, err := s.repo.RevParse(ctx, gitx.TrackingRef(Remote, cfg.Branch))
	switch {
	case errors.Is(err, gitx.ErrUnknownRevision):
		s.pending.Store(true)
	case err != nil:
		return nil, fmt.Errorf("content: resolve remote tip: %w", err)
	default:
		pushed, err := s.repo.IsAncestor(ctx, tip, tracked)
		if err != nil {
			return nil, err
		}
		s.pending.Store(!pushed)
	}

	s.logger.Info(ctx, "content store ready", "dir", dir, "tip", tip, "pending", s.pending.Load())
	return s, nil
}

func ensureEmpty(dir string) error {
	if _, err := filex.EnsureDir(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("content: %s exists, is not empty and is not a git working copy", dir)
	}
	return nil
}

func (s *Store) branchRef() string {
	return "refs/heads/" + s.cfg.Branch
}

// Tip returns the published tip commit id.
func (s *Store) Tip() string {
	return *s.tip.Load()
}

// Pending reports whether local commits are waiting to be pushed.
func (s *Store) Pending() bool {
	return s.pending.Load()
}

// Dir returns the working copy directory.
func (s *Store) Dir() string {
	return s.repo.Dir()
}

// Policy returns the mime policy in force.
func (s *Store) Policy() Policy {
	return s.policy
}

// Read returns the content of path at the published tip. It never waits
// for writers.
func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	return s.readAt(ctx, path, s.Tip())
}

var revisionPattern = regexp.MustCompile(`^[0-9a-fA-F]{4,64}$`)

// ReadAt returns the content of path at a historical commit.
func (s *Store) ReadAt(ctx context.Context, path, revision string) ([]byte, error) {
	if !revisionPattern.MatchString(revision) {
		return nil, invalid("revision %q is not a commit id", revision)
	}
	return s.readAt(ctx, path, revision)
}

func (s *Store) readAt(ctx context.Context, path, rev string) ([]byte, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	data, err := s.repo.ReadBlob(ctx, rev, path)
	if err != nil {
		if errors.Is(err, gitx.ErrPathNotFound) || errors.Is(err, gitx.ErrUnknownRevision) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}

// Exists reports whether path is a file at the published tip.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	path, err := CleanPath(path)
	if err != nil {
		return false, err
	}
	_, typ, _, err := s.repo.LsTree(ctx, s.Tip(), path)
	if errors.Is(err, gitx.ErrPathNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return typ == "blob", nil
}

// publish moves the branch from old to commit, then syncs the checked-out
// tree. A failed tree sync is logged only; the ref is authoritative.
func (s *Store) publish(ctx context.Context, commit, old string) error {
	if err := s.repo.UpdateRef(ctx, s.branchRef(), commit, old); err != nil {
		return err
	}
	s.tip.Store(&commit)
	if err := s.repo.ResetHard(ctx, commit); err != nil {
		s.logger.Warn(ctx, "working tree sync failed", "commit", commit, "error", err)
	}
	return nil
}
