package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	"github.com/dmitrijs2005/gitwiki/internal/dbx"
)

// PostgresRepository stores sessions over dbx.DBTX (satisfied by *sql.DB or
// *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put inserts the session, replacing any row with the same token.
func (r *PostgresRepository) Put(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO sessions (token, profile_url, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO UPDATE
		SET profile_url = EXCLUDED.profile_url, expires_at = EXCLUDED.expires_at
	`
	if _, err := r.db.ExecContext(ctx, query, e.Token, e.ProfileURL, e.CreatedAt, e.ExpiresAt); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

// Get returns the session for token, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, token string) (*Entry, error) {
	query := `
		SELECT profile_url, created_at, expires_at
		FROM sessions
		WHERE token = $1
	`
	e := &Entry{Token: token}
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&e.ProfileURL, &e.CreatedAt, &e.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

// Delete removes a session by token. Deleting an unknown token is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM sessions
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteByProfile removes every session of one identity.
func (r *PostgresRepository) DeleteByProfile(ctx context.Context, profileURL string) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE profile_url = $1
	`
	res, err := r.db.ExecContext(ctx, query, profileURL)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res), nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res), nil
}
