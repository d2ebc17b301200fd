// Package api exposes the HTTP interface: the public widget endpoints and
// the authenticated dashboard under /v1.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/chat"
	"github.com/sitebrain/sitebrain/internal/config"
	"github.com/sitebrain/sitebrain/internal/contexts"
	"github.com/sitebrain/sitebrain/internal/core"
	"github.com/sitebrain/sitebrain/internal/crawl"
	"github.com/sitebrain/sitebrain/internal/metrics"
)

// Server wires HTTP handlers to the services and stores.
type Server struct {
	router     chi.Router
	sites      core.SiteStore
	pages      core.PageStore
	contexts   *contexts.Service
	responder  *chat.Responder
	dispatcher *crawl.Dispatcher
	ids        core.IDGenerator
	clock      core.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	sites core.SiteStore,
	pages core.PageStore,
	contextSvc *contexts.Service,
	responder *chat.Responder,
	dispatcher *crawl.Dispatcher,
	ids core.IDGenerator,
	clock core.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		sites:      sites,
		pages:      pages,
		contexts:   contextSvc,
		responder:  responder,
		dispatcher: dispatcher,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Widget endpoints ship inside customer pages and carry no credentials.
	r.Post("/chatSessions", s.createChatSession)
	r.Post("/chatMessages", s.postChatMessage)
	r.Post("/getChatSessions", s.pollChatMessages)

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/sites", func(r chi.Router) {
			r.Post("/", s.createSite)
			r.Get("/", s.listSites)
			r.Route("/{site_id}", func(r chi.Router) {
				r.Get("/", s.getSite)
				r.Post("/reindex", s.reindexSite)
				r.Get("/pages", s.listPages)
				r.Get("/contexts", s.listContexts)
				r.Post("/contexts", s.createContext)
				r.Get("/chatSessions", s.listChatSessions)
			})
		})
		r.Post("/pages/{page_id}/reindex", s.reindexPage)
		r.Route("/contexts/{context_id}", func(r chi.Router) {
			r.Get("/", s.getContext)
			r.Put("/", s.updateContext)
			r.Delete("/", s.deleteContext)
		})
		r.Get("/chatSessions/{session_id}/messages", s.listSessionMessages)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

// ownerID is the dashboard principal. The gateway in front of the service
// resolves the account and forwards it in this header.
func ownerID(r *http.Request) string {
	return r.Header.Get("X-Owner-ID")
}

// authorizeSite loads the site and enforces the ownership contract for
// dashboard routes.
func (s *Server) authorizeSite(r *http.Request, siteID string) (core.Site, error) {
	site, err := s.sites.GetSite(r.Context(), siteID)
	if err != nil {
		return core.Site{}, err
	}
	if owner := ownerID(r); owner != "" && site.OwnerID != owner {
		return core.Site{}, core.ErrUnauthorized
	}
	return site, nil
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, map[string]string{"error": msg})
}

// writeStoreError maps the service error taxonomy onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrUnauthorized):
		s.writeError(w, http.StatusForbidden, "forbidden")
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
