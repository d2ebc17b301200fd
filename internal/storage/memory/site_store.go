// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sitebrain/sitebrain/internal/core"
)

// SiteStore is an in-memory core.SiteStore.
type SiteStore struct {
	mu    sync.RWMutex
	sites map[string]core.Site
}

// NewSiteStore constructs a SiteStore.
func NewSiteStore() *SiteStore {
	return &SiteStore{sites: make(map[string]core.Site)}
}

// CreateSite stores a new site.
func (s *SiteStore) CreateSite(_ context.Context, site core.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sites[site.ID]; exists {
		return errors.New("site already exists")
	}
	s.sites[site.ID] = site
	return nil
}

// GetSite fetches a site by ID.
func (s *SiteStore) GetSite(_ context.Context, id string) (core.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return core.Site{}, core.ErrNotFound
	}
	return site, nil
}

// UpdateSiteStatus transitions the site-level crawl status.
func (s *SiteStore) UpdateSiteStatus(_ context.Context, id string, status core.CrawlStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return core.ErrNotFound
	}
	site.CrawlStatus = status
	site.UpdatedAt = time.Now().UTC()
	s.sites[id] = site
	return nil
}

// ListSitesByOwner returns the owner's sites, sorted by creation time.
func (s *SiteStore) ListSitesByOwner(_ context.Context, ownerID string) ([]core.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Site
	for _, site := range s.sites {
		if site.OwnerID == ownerID {
			out = append(out, site)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
