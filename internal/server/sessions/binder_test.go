package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	"github.com/dmitrijs2005/gitwiki/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory map[string]vault.Record

func (d fakeDirectory) Lookup(profileURL string) (vault.Record, bool) {
	key, err := common.NormalizeProfileURL(profileURL)
	if err != nil {
		return vault.Record{}, false
	}
	r, ok := d[key]
	return r, ok
}

type failingRepo struct {
	sessions.Repository
	err error
}

func (f failingRepo) Get(context.Context, string) (*sessions.Entry, error) { return nil, f.err }
func (f failingRepo) Put(context.Context, sessions.Entry) error          { return f.err }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newBinder(t *testing.T) (*Binder, *sessions.MemoryRepository, fakeDirectory, *clock) {
	t.Helper()
	repo := sessions.NewMemoryRepository()
	dir := fakeDirectory{
		"https://admin.example/": {
			Identity: vault.Identity{Name: "admin", ProfileURL: "https://admin.example/"},
			Role:     vault.RoleAdministrator,
		},
		"https://alice.example/": {
			Identity: vault.Identity{Name: "alice", Email: "alice@example.com", ProfileURL: "https://alice.example/"},
			Role:     vault.RoleStandard,
		},
	}
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewBinder(repo, dir, WithClock(c.now), WithTTL(time.Hour)), repo, dir, c
}

func TestCreateResolve_KnownIdentity(t *testing.T) {
	ctx := context.Background()
	b, repo, _, _ := newBinder(t)

	s, err := b.Create(ctx, "HTTPS://Alice.Example")
	require.NoError(t, err)
	assert.Len(t, s.Token, common.SessionTokenBytes*2)
	assert.Equal(t, "https://alice.example/", s.ProfileURL)
	assert.Equal(t, time.Hour, s.ExpiresAt.Sub(s.CreatedAt))
	assert.Equal(t, 1, repo.Len())

	p, ok := b.Resolve(ctx, s.Token)
	require.True(t, ok)
	assert.False(t, p.IsGuest())
	assert.True(t, p.CanWrite())
	assert.False(t, p.IsAdministrator())
	assert.Equal(t, "standard", p.Role())
	assert.Equal(t, "alice", p.Record.Name)
}

func TestCreate_UnknownIdentityIsGuest(t *testing.T) {
	ctx := context.Background()
	b, _, _, _ := newBinder(t)

	s, err := b.Create(ctx, "https://stranger.example/")
	require.NoError(t, err)

	p, ok := b.Resolve(ctx, s.Token)
	require.True(t, ok)
	assert.True(t, p.IsGuest())
	assert.False(t, p.CanWrite())
	assert.Equal(t, "guest", p.Role())
}

func TestResolve_ReResolvesVaultEveryTime(t *testing.T) {
	ctx := context.Background()
	b, _, dir, _ := newBinder(t)

	s, err := b.Create(ctx, "https://bob.example/")
	require.NoError(t, err)

	p, ok := b.Resolve(ctx, s.Token)
	require.True(t, ok)
	assert.True(t, p.IsGuest())

	dir["https://bob.example/"] = vault.Record{
		Identity: vault.Identity{Name: "bob", ProfileURL: "https://bob.example/"},
		Role:     vault.RoleAdministrator,
	}

	p, ok = b.Resolve(ctx, s.Token)
	require.True(t, ok)
	assert.True(t, p.IsAdministrator())
}

func TestResolve_ExpiredAndUnknown(t *testing.T) {
	ctx := context.Background()
	b, repo, _, c := newBinder(t)

	_, ok := b.Resolve(ctx, "")
	assert.False(t, ok)
	_, ok = b.Resolve(ctx, "deadbeef")
	assert.False(t, ok)

	s, err := b.Create(ctx, "https://admin.example/")
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour)
	_, ok = b.Resolve(ctx, s.Token)
	assert.False(t, ok)
	assert.Equal(t, 0, repo.Len())
}

func TestResolve_StoreErrorFailsSoft(t *testing.T) {
	b := NewBinder(failingRepo{err: errors.New("db down")}, fakeDirectory{})
	p, ok := b.Resolve(context.Background(), "tok")
	assert.False(t, ok)
	assert.Nil(t, p)
}

func TestCreate_StoreError(t *testing.T) {
	b := NewBinder(failingRepo{err: errors.New("db down")}, fakeDirectory{})
	_, err := b.Create(context.Background(), "https://alice.example/")
	assert.ErrorContains(t, err, "db down")
}

func TestCreate_InvalidURL(t *testing.T) {
	b, _, _, _ := newBinder(t)
	_, err := b.Create(context.Background(), "ftp://x")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestInvalidate_Idempotent(t *testing.T) {
	ctx := context.Background()
	b, _, _, _ := newBinder(t)

	s, err := b.Create(ctx, "https://admin.example/")
	require.NoError(t, err)

	require.NoError(t, b.Invalidate(ctx, s.Token))
	require.NoError(t, b.Invalidate(ctx, s.Token))
	require.NoError(t, b.Invalidate(ctx, ""))

	_, ok := b.Resolve(ctx, s.Token)
	assert.False(t, ok)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	b, repo, _, c := newBinder(t)

	_, err := b.Create(ctx, "https://admin.example/")
	require.NoError(t, err)
	c.t = c.t.Add(30 * time.Minute)
	_, err = b.Create(ctx, "https://alice.example/")
	require.NoError(t, err)

	c.t = c.t.Add(45 * time.Minute)
	n, err := b.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, repo.Len())
}

func TestNilPrincipal(t *testing.T) {
	var p *Principal
	assert.True(t, p.IsGuest())
	assert.False(t, p.CanWrite())
	assert.False(t, p.IsAdministrator())
}
