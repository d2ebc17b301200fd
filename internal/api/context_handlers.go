package api

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sitebrain/sitebrain/internal/contexts"
	"github.com/sitebrain/sitebrain/internal/core"
)

type createContextRequest struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Content  string `json:"content,omitempty"`
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`

	FileName        string `json:"fileName,omitempty"`
	FileData        string `json:"fileData,omitempty"` // base64
	FileContentType string `json:"fileContentType,omitempty"`
}

type updateContextRequest struct {
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

func (s *Server) listContexts(w http.ResponseWriter, r *http.Request) {
	site, err := s.authorizeSite(r, chi.URLParam(r, "site_id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	list, err := s.contexts.ListBySite(r.Context(), site.ID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []core.Context{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"contexts": list})
}

func (s *Server) createContext(w http.ResponseWriter, r *http.Request) {
	site, err := s.authorizeSite(r, chi.URLParam(r, "site_id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	var req createContextRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	params := contexts.CreateParams{
		SiteID:          site.ID,
		Type:            core.ContextType(req.Type),
		Title:           req.Title,
		Content:         req.Content,
		Question:        req.Question,
		Answer:          req.Answer,
		FileName:        req.FileName,
		FileContentType: req.FileContentType,
	}
	if req.FileData != "" {
		data, err := base64.StdEncoding.DecodeString(req.FileData)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "fileData is not valid base64")
			return
		}
		params.FileData = data
	}

	created, err := s.contexts.Create(r.Context(), params)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrUnauthorized) {
			s.writeStoreError(w, err)
			return
		}
		// Remaining create failures are malformed input.
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, created)
}

// loadOwnedContext resolves a context and enforces ownership through its site.
func (s *Server) loadOwnedContext(r *http.Request) (core.Context, error) {
	c, err := s.contexts.Get(r.Context(), chi.URLParam(r, "context_id"))
	if err != nil {
		return core.Context{}, err
	}
	if _, err := s.authorizeSite(r, c.SiteID); err != nil {
		return core.Context{}, err
	}
	return c, nil
}

func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadOwnedContext(r)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, c)
}

func (s *Server) updateContext(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadOwnedContext(r)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	var req updateContextRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	updated, err := s.contexts.Update(r.Context(), c.ID, contexts.UpdateParams{
		Title:    req.Title,
		Content:  req.Content,
		Question: req.Question,
		Answer:   req.Answer,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, updated)
}

func (s *Server) deleteContext(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadOwnedContext(r)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.contexts.Delete(r.Context(), c.ID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
