package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sitebrain/sitebrain/internal/core"
)

type pageKey struct {
	siteID string
	url    string
}

// PageStore is an in-memory core.PageStore keyed by (siteID, url).
type PageStore struct {
	mu    sync.RWMutex
	pages map[string]core.Page
	byURL map[pageKey]string
}

// NewPageStore constructs a PageStore.
func NewPageStore() *PageStore {
	return &PageStore{
		pages: make(map[string]core.Page),
		byURL: make(map[pageKey]string),
	}
}

// UpsertPage returns the existing page for (SiteID, URL) or inserts the
// provided one, keeping discovery idempotent across repeated crawls.
func (s *PageStore) UpsertPage(_ context.Context, page core.Page) (core.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pageKey{siteID: page.SiteID, url: page.URL}
	if id, exists := s.byURL[key]; exists {
		return s.pages[id], nil
	}
	s.pages[page.ID] = page
	s.byURL[key] = page.ID
	return page, nil
}

// GetPage fetches a page by ID.
func (s *PageStore) GetPage(_ context.Context, id string) (core.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[id]
	if !ok {
		return core.Page{}, core.ErrNotFound
	}
	return page, nil
}

// UpdatePage merges the patch and bumps UpdatedAt.
func (s *PageStore) UpdatePage(_ context.Context, id string, patch core.PagePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[id]
	if !ok {
		return core.ErrNotFound
	}
	patch.Apply(&page)
	page.UpdatedAt = time.Now().UTC()
	s.pages[id] = page
	return nil
}

// ListPagesBySite returns the site's pages sorted by URL for stable output.
func (s *PageStore) ListPagesBySite(_ context.Context, siteID string) ([]core.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Page
	for _, page := range s.pages {
		if page.SiteID == siteID {
			out = append(out, page)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}
