package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sitebrain/sitebrain/internal/core"
)

// ChatStore persists chat sessions and messages in Postgres.
type ChatStore struct {
	db DB
}

func NewChatStore(db DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) CreateSession(ctx context.Context, session core.ChatSession) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO chat_sessions (id, site_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, session.SiteID, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chat session: %w", err)
	}
	return nil
}

func (s *ChatStore) GetSession(ctx context.Context, id string) (core.ChatSession, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, site_id, created_at, updated_at FROM chat_sessions WHERE id = $1`, id)
	var session core.ChatSession
	err := row.Scan(&session.ID, &session.SiteID, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ChatSession{}, core.ErrNotFound
	}
	if err != nil {
		return core.ChatSession{}, fmt.Errorf("select chat session: %w", err)
	}
	return session, nil
}

func (s *ChatStore) ListSessionsBySite(ctx context.Context, siteID string) ([]core.ChatSession, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, site_id, created_at, updated_at
		 FROM chat_sessions WHERE site_id = $1 ORDER BY created_at`, siteID)
	if err != nil {
		return nil, fmt.Errorf("select chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []core.ChatSession
	for rows.Next() {
		var session core.ChatSession
		if err := rows.Scan(&session.ID, &session.SiteID, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *ChatStore) AppendMessage(ctx context.Context, msg core.ChatMessage) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO chat_messages (id, chat_session_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ChatSessionID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *ChatStore) ListMessages(ctx context.Context, sessionID string, after time.Time) ([]core.ChatMessage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, chat_session_id, role, content, created_at
		 FROM chat_messages WHERE chat_session_id = $1 AND created_at > $2
		 ORDER BY created_at`, sessionID, after)
	if err != nil {
		return nil, fmt.Errorf("select chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.ChatMessage
	for rows.Next() {
		var msg core.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.ChatSessionID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
