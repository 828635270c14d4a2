package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/askmany/askmany/pkg/types"
)

// Model cache defaults. Dispatch resolves every model row per fan-out, so
// even a short TTL takes most reads off the database.
const (
	DefaultModelCacheSize = 256
	DefaultModelCacheTTL  = 30 * time.Second
)

// CachedStore wraps a Store with an expiring LRU over model lookups.
// Writes invalidate the affected entries; everything else passes through.
type CachedStore struct {
	Store
	byID   *expirable.LRU[int64, types.Model]
	byName *expirable.LRU[string, types.Model]
}

// NewCachedStore wraps inner. Zero size and ttl pick the defaults.
func NewCachedStore(inner Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = DefaultModelCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultModelCacheTTL
	}
	return &CachedStore{
		Store:  inner,
		byID:   expirable.NewLRU[int64, types.Model](size, nil, ttl),
		byName: expirable.NewLRU[string, types.Model](size, nil, ttl),
	}
}

func (s *CachedStore) GetModel(ctx context.Context, id int64) (*types.Model, error) {
	if m, ok := s.byID.Get(id); ok {
		return &m, nil
	}

	m, err := s.Store.GetModel(ctx, id)
	if err != nil || m == nil {
		return m, err
	}
	s.byID.Add(m.ID, *m)
	s.byName.Add(m.Name, *m)
	return m, nil
}

func (s *CachedStore) GetModelByName(ctx context.Context, name string) (*types.Model, error) {
	if m, ok := s.byName.Get(name); ok {
		return &m, nil
	}

	m, err := s.Store.GetModelByName(ctx, name)
	if err != nil || m == nil {
		return m, err
	}
	s.byID.Add(m.ID, *m)
	s.byName.Add(m.Name, *m)
	return m, nil
}

func (s *CachedStore) CreateModel(ctx context.Context, m *types.Model) error {
	if err := s.Store.CreateModel(ctx, m); err != nil {
		return err
	}
	s.byID.Add(m.ID, *m)
	s.byName.Add(m.Name, *m)
	return nil
}

func (s *CachedStore) UpdateModel(ctx context.Context, m *types.Model) error {
	s.invalidate(m.ID)
	if err := s.Store.UpdateModel(ctx, m); err != nil {
		return err
	}
	s.invalidate(m.ID)
	return nil
}

func (s *CachedStore) SetModelActive(ctx context.Context, id int64, active bool) error {
	if err := s.Store.SetModelActive(ctx, id, active); err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

func (s *CachedStore) DeleteModel(ctx context.Context, id int64) error {
	if err := s.Store.DeleteModel(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

func (s *CachedStore) invalidate(id int64) {
	if m, ok := s.byID.Get(id); ok {
		s.byName.Remove(m.Name)
	}
	s.byID.Remove(id)
}
