package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dmitrijs2005/gitwiki/internal/gitx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func syncKind(err error) error {
	if errors.Is(err, ErrSyncTimeout) {
		return ErrSyncTimeout
	}
	return ErrPushFailed
}

func (s *Store) retryOptions(ctx context.Context, what string) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.PushRetryInterval
	b.MaxInterval = 32 * s.cfg.PushRetryInterval
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.PushAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn(ctx, what+" failed, retrying", "error", err, "next", next)
		}),
	}
}

// fetch updates the remote-tracking ref and returns the remote tip. Timed
// out attempts are reported as ErrSyncTimeout.
func (s *Store) fetch(ctx context.Context) (string, error) {
	op := func() (string, error) {
		actx, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
		defer cancel()

		tip, err := s.repo.Fetch(actx, Remote, s.cfg.Branch)
		switch {
		case err == nil:
			return tip, nil
		case errors.Is(err, gitx.ErrRemoteRefMissing):
			return "", backoff.Permanent(err)
		case actx.Err() != nil && ctx.Err() == nil:
			return "", fmt.Errorf("%w: fetch exceeded %s: %w", ErrSyncTimeout, s.cfg.SyncTimeout, err)
		default:
			return "", err
		}
	}
	return backoff.Retry(ctx, op, s.retryOptions(ctx, "fetch")...)
}

// push sends commit to the remote branch and returns how many attempts it
// took. A rejected push is not retried.
func (s *Store) push(ctx context.Context, commit string) (int, error) {
	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		actx, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
		defer cancel()

		err := s.repo.Push(actx, Remote, commit, s.cfg.Branch)
		if errors.Is(err, gitx.ErrPushRejected) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op, s.retryOptions(ctx, "push")...)
	return attempts, err
}

// Sync reconciles the local branch with the remote. Pending local commits
// are replayed onto the remote tip when it moved and pushed; otherwise the
// local branch fast-forwards to pick up commits made elsewhere.
func (s *Store) Sync(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "content.Sync")
	defer span.End()

	err := s.sync(ctx)
	span.SetAttributes(attribute.Bool("wiki.pending", s.Pending()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Store) sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _, err := s.reconcile(ctx)
	return err
}

// reconcile is the body of Sync; the caller holds s.mu. It reports the push
// attempts made and whether local commits were replayed onto the remote.
func (s *Store) reconcile(ctx context.Context) (attempts int, replayed bool, err error) {
	local := s.Tip()
	remote, err := s.fetch(ctx)
	if err != nil {
		return 0, false, &SyncError{Kind: syncKind(err), Commit: local, Err: err}
	}
	if remote == local {
		s.pending.Store(false)
		return 0, false, nil
	}

	ahead, err := s.repo.IsAncestor(ctx, remote, local)
	if err != nil {
		return 0, false, err
	}
	if !ahead {
		behind, err := s.repo.IsAncestor(ctx, local, remote)
		if err != nil {
			return 0, false, err
		}
		next := remote
		if !behind {
			ix, err := s.repo.NewIndex(ctx)
			if err != nil {
				return 0, false, err
			}
			defer ix.Remove()
			if next, err = s.rebase(ctx, ix, local, remote, s.cfg.Now()); err != nil {
				return 0, false, fmt.Errorf("rebase onto %s: %w", remote, err)
			}
		}
		if err := s.publish(ctx, next, local); err != nil {
			return 0, false, err
		}
		s.logger.Info(ctx, "local branch moved to remote", "from", local, "to", next, "replayed", !behind)
		local = next
		if behind {
			s.pending.Store(false)
			return 0, false, nil
		}
		replayed = true
	}

	attempts, err = s.push(ctx, local)
	if err != nil {
		s.pending.Store(true)
		return attempts, replayed, &SyncError{Kind: ErrPushFailed, Commit: local, Err: err}
	}
	s.pending.Store(false)
	s.logger.Info(ctx, "pending commits pushed", "commit", local, "attempts", attempts)
	return attempts, replayed, nil
}
