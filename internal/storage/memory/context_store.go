package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sitebrain/sitebrain/internal/core"
)

// ContextStore is an in-memory core.ContextStore.
type ContextStore struct {
	mu       sync.RWMutex
	contexts map[string]core.Context
}

// NewContextStore constructs a ContextStore.
func NewContextStore() *ContextStore {
	return &ContextStore{contexts: make(map[string]core.Context)}
}

// CreateContext stores a new context entry.
func (s *ContextStore) CreateContext(_ context.Context, c core.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contexts[c.ID]; exists {
		return errors.New("context already exists")
	}
	s.contexts[c.ID] = c
	return nil
}

// GetContext fetches a context entry by ID.
func (s *ContextStore) GetContext(_ context.Context, id string) (core.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[id]
	if !ok {
		return core.Context{}, core.ErrNotFound
	}
	return c, nil
}

// UpdateContext merges the patch and bumps UpdatedAt.
func (s *ContextStore) UpdateContext(_ context.Context, id string, patch core.ContextPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		return core.ErrNotFound
	}
	patch.Apply(&c)
	c.UpdatedAt = time.Now().UTC()
	s.contexts[id] = c
	return nil
}

// DeleteContext removes a context entry.
func (s *ContextStore) DeleteContext(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.contexts, id)
	return nil
}

// ListContextsBySite returns the site's contexts sorted by creation time.
func (s *ContextStore) ListContextsBySite(_ context.Context, siteID string) ([]core.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Context
	for _, c := range s.contexts {
		if c.SiteID == siteID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
