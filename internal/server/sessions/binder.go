// Package sessions binds opaque browser tokens to verified profile URLs.
//
// A session stores only the profile URL. Identity and role are looked up in
// the vault on every Resolve, so a session never holds a stale copy of a
// record.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	"github.com/dmitrijs2005/gitwiki/internal/logging"
	"github.com/dmitrijs2005/gitwiki/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
)

const DefaultTTL = 7 * 24 * time.Hour

// Directory resolves a profile URL to a vault record.
type Directory interface {
	Lookup(profileURL string) (vault.Record, bool)
}

// Session is a live token mapping.
type Session struct {
	Token      string
	ProfileURL string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Principal is the caller behind a resolved session. Record is nil for an
// identity the vault does not know; such a caller is a guest.
type Principal struct {
	Session Session
	Record  *vault.Record
}

// IsGuest reports whether the principal has no vault record.
func (p *Principal) IsGuest() bool { return p == nil || p.Record == nil }

// CanWrite reports whether the principal may create or edit pages.
func (p *Principal) CanWrite() bool { return !p.IsGuest() }

// IsAdministrator reports whether the principal holds the administrator role.
func (p *Principal) IsAdministrator() bool {
	return !p.IsGuest() && p.Record.IsAdministrator()
}

// Role returns the record role, or "guest".
func (p *Principal) Role() string {
	if p.IsGuest() {
		return "guest"
	}
	return string(p.Record.Role)
}

// Binder creates, resolves and invalidates sessions.
type Binder struct {
	repo   sessions.Repository
	dir    Directory
	ttl    time.Duration
	now    func() time.Time
	logger logging.Logger
}

// Option configures a Binder.
type Option func(*Binder)

// WithTTL sets the session lifetime. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(b *Binder) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Binder) { b.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(b *Binder) { b.logger = l.With("module", "sessions") }
}

// NewBinder returns a Binder over repo that resolves roles through dir.
func NewBinder(repo sessions.Repository, dir Directory, opts ...Option) *Binder {
	b := &Binder{
		repo:   repo,
		dir:    dir,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TTL returns the configured session lifetime.
func (b *Binder) TTL() time.Duration { return b.ttl }

// Create mints a session for a verified profile URL. An URL unknown to the
// vault still gets a session; it resolves to a guest principal.
func (b *Binder) Create(ctx context.Context, profileURL string) (*Session, error) {
	key, err := common.NormalizeProfileURL(profileURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	token, err := common.MakeRandHexString(common.SessionTokenBytes)
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	s := &Session{
		Token:      token,
		ProfileURL: key,
		CreatedAt:  now,
		ExpiresAt:  now.Add(b.ttl),
	}
	if err := b.repo.Put(ctx, sessions.Entry(*s)); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	_, known := b.dir.Lookup(key)
	b.logger.Info(ctx, "session created", "profile_url", key, "known", known)
	return s, nil
}

// Resolve returns the principal for token. Unknown, expired or unreadable
// tokens all resolve to (nil, false); store errors are logged, not returned.
func (b *Binder) Resolve(ctx context.Context, token string) (*Principal, bool) {
	if token == "" {
		return nil, false
	}

	e, err := b.repo.Get(ctx, token)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			b.logger.Warn(ctx, "session lookup failed", "error", err)
		}
		return nil, false
	}

	if !b.now().Before(e.ExpiresAt) {
		if err := b.repo.Delete(ctx, token); err != nil {
			b.logger.Warn(ctx, "expired session delete failed", "error", err)
		}
		return nil, false
	}

	p := &Principal{Session: Session(*e)}
	if rec, ok := b.dir.Lookup(e.ProfileURL); ok {
		p.Record = &rec
	}
	return p, true
}

// Invalidate deletes the session. Unknown tokens are not an error.
func (b *Binder) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := b.repo.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Sweep removes expired sessions and reports how many were deleted.
func (b *Binder) Sweep(ctx context.Context) (int64, error) {
	n, err := b.repo.DeleteExpired(ctx, b.now())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	if n > 0 {
		b.logger.Debug(ctx, "expired sessions removed", "count", n)
	}
	return n, nil
}
