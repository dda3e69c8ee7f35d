package companions

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// LocalStore keeps the catalog in memory. Used when no DATABASE_URL is
// configured.
type LocalStore struct {
	mu         sync.RWMutex
	companions map[string]Companion
	categories map[string]Category
	now        func() time.Time
}

func NewLocalStore() *LocalStore {
	return &LocalStore{
		companions: make(map[string]Companion),
		categories: make(map[string]Category),
		now:        time.Now,
	}
}

func (s *LocalStore) CreateCompanion(_ context.Context, c Companion) (Companion, error) {
	if err := c.Validate(); err != nil {
		return Companion{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = newID()
	c.Traits = c.Traits.Clamped()
	c.CreatedAt = s.now().UTC()
	c.UpdatedAt = c.CreatedAt
	s.companions[c.ID] = c
	return c, nil
}

func (s *LocalStore) GetCompanion(_ context.Context, id string) (Companion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.companions[id]
	if !ok {
		return Companion{}, ErrNotFound
	}
	return c, nil
}

func (s *LocalStore) ListCompanions(_ context.Context, ownerID string) ([]Companion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Companion, 0, len(s.companions))
	for _, c := range s.companions {
		if ownerID != "" && c.OwnerID != ownerID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *LocalStore) UpdateCompanion(_ context.Context, c Companion) (Companion, error) {
	if err := c.Validate(); err != nil {
		return Companion{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.companions[c.ID]
	if !ok {
		return Companion{}, ErrNotFound
	}
	c.Traits = c.Traits.Clamped()
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now().UTC()
	s.companions[c.ID] = c
	return c, nil
}

func (s *LocalStore) DeleteCompanion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companions[id]; !ok {
		return ErrNotFound
	}
	delete(s.companions, id)
	return nil
}

func (s *LocalStore) CreateCategory(_ context.Context, name string) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cat := range s.categories {
		if strings.EqualFold(cat.Name, name) {
			return Category{}, ErrCategoryExists
		}
	}
	cat := Category{ID: newID(), Name: name}
	s.categories[cat.ID] = cat
	return cat, nil
}

func (s *LocalStore) ListCategories(_ context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Category, 0, len(s.categories))
	for _, cat := range s.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *LocalStore) Close() {}
