package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sitebrain/sitebrain/internal/core"
)

type createChatSessionRequest struct {
	SiteID string `json:"siteId"`
}

type postChatMessageRequest struct {
	ChatSessionID string `json:"chatSessionId"`
	Content       string `json:"content"`
}

type pollChatMessagesRequest struct {
	ChatSessionID string `json:"chatSessionId"`
	CreatedAfter  string `json:"createdAfter,omitempty"` // RFC 3339
}

func (s *Server) createChatSession(w http.ResponseWriter, r *http.Request) {
	var req createChatSessionRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.SiteID) == "" {
		s.writeError(w, http.StatusBadRequest, "missing siteId")
		return
	}
	session, err := s.responder.CreateSession(r.Context(), req.SiteID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, map[string]any{
		"sessionId": session.ID,
		"siteId":    session.SiteID,
		"createdAt": session.CreatedAt,
	})
}

// postChatMessage acknowledges with 202; the reply lands in the history
// once generation finishes and the widget picks it up by polling.
func (s *Server) postChatMessage(w http.ResponseWriter, r *http.Request) {
	var req postChatMessageRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.ChatSessionID) == "" {
		s.writeError(w, http.StatusBadRequest, "missing chatSessionId")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.writeError(w, http.StatusBadRequest, "missing content")
		return
	}
	msg, err := s.responder.Accept(r.Context(), req.ChatSessionID, req.Content)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{"messageId": msg.ID})
}

func (s *Server) pollChatMessages(w http.ResponseWriter, r *http.Request) {
	var req pollChatMessagesRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.ChatSessionID) == "" {
		s.writeError(w, http.StatusBadRequest, "missing chatSessionId")
		return
	}
	var after time.Time
	if req.CreatedAfter != "" {
		parsed, err := time.Parse(time.RFC3339, req.CreatedAfter)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "createdAfter must be RFC 3339")
			return
		}
		after = parsed
	}
	msgs, err := s.responder.Messages(r.Context(), req.ChatSessionID, after)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []core.ChatMessage{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"messages": msgs})
}

// Dashboard views over the same chat data.

func (s *Server) listChatSessions(w http.ResponseWriter, r *http.Request) {
	site, err := s.authorizeSite(r, chi.URLParam(r, "site_id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	sessions, err := s.responder.SessionsBySite(r.Context(), site.ID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []core.ChatSession{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) listSessionMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.responder.Messages(r.Context(), chi.URLParam(r, "session_id"), time.Time{})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []core.ChatMessage{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"messages": msgs})
}
