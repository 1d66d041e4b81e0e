package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/portal-api/internal/model"
)

// MemoryStore keeps sessions in process.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(cleanup time.Duration) *MemoryStore {
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &MemoryStore{cache: cache.New(DefaultTTL, cleanup)}
}

func (m *MemoryStore) Save(_ context.Context, s model.Session, ttl time.Duration) error {
	m.cache.Set(s.ID, s, ttl)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (model.Session, error) {
	v, ok := m.cache.Get(id)
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return v.(model.Session), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	if _, ok := m.cache.Get(id); !ok {
		return ErrNotFound
	}
	m.cache.Delete(id)
	return nil
}
