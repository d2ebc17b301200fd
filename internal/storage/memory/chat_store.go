package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sitebrain/sitebrain/internal/core"
)

// ChatStore is an in-memory core.ChatStore.
type ChatStore struct {
	mu       sync.RWMutex
	sessions map[string]core.ChatSession
	messages map[string][]core.ChatMessage
}

// NewChatStore constructs a ChatStore.
func NewChatStore() *ChatStore {
	return &ChatStore{
		sessions: make(map[string]core.ChatSession),
		messages: make(map[string][]core.ChatMessage),
	}
}

// CreateSession stores a new anonymous session.
func (s *ChatStore) CreateSession(_ context.Context, session core.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return errors.New("session already exists")
	}
	s.sessions[session.ID] = session
	return nil
}

// GetSession fetches a session by ID.
func (s *ChatStore) GetSession(_ context.Context, id string) (core.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return core.ChatSession{}, core.ErrNotFound
	}
	return session, nil
}

// ListSessionsBySite returns the site's sessions, newest first.
func (s *ChatStore) ListSessionsBySite(_ context.Context, siteID string) ([]core.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ChatSession
	for _, session := range s.sessions {
		if session.SiteID == siteID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AppendMessage appends to the session's history.
func (s *ChatStore) AppendMessage(_ context.Context, msg core.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[msg.ChatSessionID]; !ok {
		return core.ErrNotFound
	}
	s.messages[msg.ChatSessionID] = append(s.messages[msg.ChatSessionID], msg)
	return nil
}

// ListMessages returns messages ordered by CreatedAt; a non-zero after keeps
// only strictly newer messages.
func (s *ChatStore) ListMessages(_ context.Context, sessionID string, after time.Time) ([]core.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, core.ErrNotFound
	}
	var out []core.ChatMessage
	for _, msg := range s.messages[sessionID] {
		if !after.IsZero() && !msg.CreatedAt.After(after) {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
