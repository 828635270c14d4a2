package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/askmany/askmany/pkg/types"
)

// MemoryStore implements Store using in-memory maps.
type MemoryStore struct {
	mu           sync.RWMutex
	models       map[int64]*types.Model
	prompts      map[int64]*Prompt
	results      map[int64]*Result
	settings     map[string]*Setting
	nextModelID  int64
	nextPromptID int64
	nextResultID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models:   make(map[int64]*types.Model),
		prompts:  make(map[int64]*Prompt),
		results:  make(map[int64]*Result),
		settings: make(map[string]*Setting),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateModel(_ context.Context, m *types.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextModelID++
	m.ID = s.nextModelID
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	copied := *m
	s.models[m.ID] = &copied
	return nil
}

func (s *MemoryStore) GetModel(_ context.Context, id int64) (*types.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.models[id]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (s *MemoryStore) GetModelByName(_ context.Context, name string) (*types.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.models {
		if m.Name == name {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListModels(_ context.Context, activeOnly bool) ([]types.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	models := make([]types.Model, 0, len(s.models))
	for _, m := range s.models {
		if activeOnly && !m.IsActive {
			continue
		}
		models = append(models, *m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

func (s *MemoryStore) UpdateModel(_ context.Context, m *types.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.models[m.ID]
	if !ok {
		return nil
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now()

	copied := *m
	s.models[m.ID] = &copied
	return nil
}

func (s *MemoryStore) SetModelActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.models[id]; ok {
		m.IsActive = active
		m.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) DeleteModel(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.models, id)
	return nil
}

func (s *MemoryStore) CreatePrompt(_ context.Context, p *Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPromptID++
	p.ID = s.nextPromptID
	p.CreatedAt = time.Now()

	copied := *p
	copied.Tags = append([]string(nil), p.Tags...)
	s.prompts[p.ID] = &copied
	return nil
}

func (s *MemoryStore) GetPrompt(_ context.Context, id int64) (*Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prompts[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	copied.Tags = append([]string(nil), p.Tags...)
	return &copied, nil
}

func (s *MemoryStore) ListPrompts(_ context.Context, filter PromptFilter) ([]Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prompts := make([]Prompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		if filter.FavoriteOnly && !p.IsFavorite {
			continue
		}
		if filter.Tag != "" && !slices.Contains(p.Tags, filter.Tag) {
			continue
		}
		copied := *p
		copied.Tags = append([]string(nil), p.Tags...)
		prompts = append(prompts, copied)
	}
	// Newest first, matching the Postgres ordering.
	sort.Slice(prompts, func(i, j int) bool { return prompts[i].CreatedAt.After(prompts[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(prompts) {
			return []Prompt{}, nil
		}
		prompts = prompts[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(prompts) {
		prompts = prompts[:filter.Limit]
	}
	return prompts, nil
}

func (s *MemoryStore) SearchPrompts(_ context.Context, text string) ([]Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(text)
	var matches []Prompt
	for _, p := range s.prompts {
		if strings.Contains(strings.ToLower(p.Text), needle) {
			copied := *p
			copied.Tags = append([]string(nil), p.Tags...)
			matches = append(matches, copied)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches, nil
}

func (s *MemoryStore) SetPromptFavorite(_ context.Context, id int64, favorite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.prompts[id]; ok {
		p.IsFavorite = favorite
	}
	return nil
}

func (s *MemoryStore) DeletePrompt(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prompts, id)
	return nil
}

func (s *MemoryStore) SaveResult(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextResultID++
	r.ID = s.nextResultID
	r.SavedAt = time.Now()
	if r.ModelName == "" {
		if m, ok := s.models[r.ModelID]; ok {
			r.ModelName = m.Name
		}
	}

	copied := *r
	s.results[r.ID] = &copied
	return nil
}

func (s *MemoryStore) ResultsByPrompt(_ context.Context, promptID int64) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Result
	for _, r := range s.results {
		if r.PromptID == promptID {
			results = append(results, *r)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].SavedAt.After(results[j].SavedAt) })
	return results, nil
}

func (s *MemoryStore) ListResults(_ context.Context, limit, offset int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, len(s.results))
	for _, r := range s.results {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].SavedAt.After(results[j].SavedAt) })

	if offset > 0 {
		if offset >= len(results) {
			return []Result{}, nil
		}
		results = results[offset:]
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) DeleteResultsByPrompt(_ context.Context, promptID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, r := range s.results {
		if r.PromptID == promptID {
			delete(s.results, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = &Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return nil
}

func (s *MemoryStore) GetSetting(_ context.Context, key string) (*Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	setting, ok := s.settings[key]
	if !ok {
		return nil, nil
	}
	copied := *setting
	return &copied, nil
}
