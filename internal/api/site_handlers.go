package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sitebrain/sitebrain/internal/core"
)

type createSiteRequest struct {
	Name      string `json:"name"`
	SourceURL string `json:"sourceUrl"`
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		s.writeError(w, http.StatusBadRequest, "missing X-Owner-ID header")
		return
	}
	var req createSiteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.SourceURL) == "" {
		s.writeError(w, http.StatusBadRequest, "name and sourceUrl are required")
		return
	}

	id, err := s.ids.NewID()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	now := s.clock.Now()
	site := core.Site{
		ID:          id,
		Name:        req.Name,
		SourceURL:   req.SourceURL,
		OwnerID:     owner,
		CrawlStatus: core.CrawlStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.sites.CreateSite(r.Context(), site); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.enqueue(r.Context(), core.CrawlRequest{SiteID: site.ID, Attempt: 1}); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, site)
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.authorizeSite(r, chi.URLParam(r, "site_id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, site)
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		s.writeError(w, http.StatusBadRequest, "missing X-Owner-ID header")
		return
	}
	sites, err := s.sites.ListSitesByOwner(r.Context(), owner)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if sites == nil {
		sites = []core.Site{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"sites": sites})
}

func (s *Server) reindexSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.authorizeSite(r, chi.URLParam(r, "site_id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.enqueue(r.Context(), core.CrawlRequest{SiteID: site.ID, Attempt: 1}); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{"siteId": site.ID, "status": "queued"})
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	site, err := s.authorizeSite(r, chi.URLParam(r, "site_id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	pages, err := s.pages.ListPagesBySite(r.Context(), site.ID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if pages == nil {
		pages = []core.Page{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"pages": pages})
}

func (s *Server) reindexPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.pages.GetPage(r.Context(), chi.URLParam(r, "page_id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if _, err := s.authorizeSite(r, page.SiteID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.enqueue(r.Context(), core.CrawlRequest{SiteID: page.SiteID, PageID: page.ID, Attempt: 1}); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{"pageId": page.ID, "status": "queued"})
}

func (s *Server) enqueue(ctx context.Context, req core.CrawlRequest) error {
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.dispatcher.Enqueue(queueCtx, req)
}
