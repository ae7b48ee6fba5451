package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()

	require.NoError(t, r.Put(ctx, Entry{Token: "a", ProfileURL: "https://alice.example/", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, r.Put(ctx, Entry{Token: "b", ProfileURL: "https://alice.example/", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, r.Put(ctx, Entry{Token: "c", ProfileURL: "https://bob.example/", ExpiresAt: now}))

	e, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "https://alice.example/", e.ProfileURL)

	_, err = r.Get(ctx, "zzz")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	n, err := r.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Delete(ctx, "a"))
	require.NoError(t, r.Delete(ctx, "a"))
	assert.Equal(t, 0, r.Len())

	require.NoError(t, r.Put(ctx, Entry{Token: "x", ProfileURL: "https://bob.example/", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, r.Put(ctx, Entry{Token: "y", ProfileURL: "https://bob.example/", ExpiresAt: now.Add(time.Hour)}))
	n, err = r.DeleteByProfile(ctx, "https://bob.example/")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
