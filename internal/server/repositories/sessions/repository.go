// Package sessions declares the session-token store contract and its
// PostgreSQL and in-memory implementations. A store only maps an opaque
// token to a profile URL with an expiry; it knows nothing about roles.
package sessions

import (
	"context"
	"time"
)

// Entry is one stored session.
type Entry struct {
	Token      string
	ProfileURL string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Repository persists session tokens.
//
// Get returns common.ErrorNotFound for an unknown token. Expiry is enforced
// by the caller; stores may keep expired rows until DeleteExpired runs.
type Repository interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, token string) (*Entry, error)
	Delete(ctx context.Context, token string) error
	DeleteByProfile(ctx context.Context, profileURL string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
