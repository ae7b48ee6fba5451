package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
)

// MemoryRepository keeps sessions in process memory. Sessions do not
// survive a restart; it backs development setups and tests.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]Entry
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]Entry)}
}

func (r *MemoryRepository) Put(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[e.Token] = e
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, token string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &e, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, token)
	return nil
}

func (r *MemoryRepository) DeleteByProfile(ctx context.Context, profileURL string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for token, e := range r.m {
		if e.ProfileURL == profileURL {
			delete(r.m, token)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for token, e := range r.m {
		if !e.ExpiresAt.After(now) {
			delete(r.m, token)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored sessions.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
