package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sitebrain/sitebrain/internal/core"
)

// ContextStore persists owner-supplied contexts in Postgres.
type ContextStore struct {
	db DB
}

func NewContextStore(db DB) *ContextStore {
	return &ContextStore{db: db}
}

func (s *ContextStore) CreateContext(ctx context.Context, c core.Context) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO contexts (id, site_id, ctx_type, title, content, embedding, blob_path, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.SiteID, c.Type, c.Title, c.Content, c.Embedding, c.BlobPath, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert context: %w", err)
	}
	return nil
}

func (s *ContextStore) GetContext(ctx context.Context, id string) (core.Context, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, site_id, ctx_type, title, content, embedding, blob_path, created_at, updated_at
		 FROM contexts WHERE id = $1`, id)
	var c core.Context
	err := row.Scan(&c.ID, &c.SiteID, &c.Type, &c.Title, &c.Content, &c.Embedding, &c.BlobPath, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Context{}, core.ErrNotFound
	}
	if err != nil {
		return core.Context{}, fmt.Errorf("select context: %w", err)
	}
	return c, nil
}

func (s *ContextStore) UpdateContext(ctx context.Context, id string, patch core.ContextPatch) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE contexts SET
			title = CASE WHEN $2::text IS NULL OR $2 = '' THEN title ELSE $2 END,
			content = CASE WHEN $3::text IS NULL OR $3 = '' THEN content ELSE $3 END,
			embedding = CASE
				WHEN $4::real[] IS NOT NULL AND cardinality($4::real[]) > 0 THEN $4
				WHEN $5 THEN '{}'::real[]
				ELSE embedding END,
			blob_path = CASE WHEN $6::text IS NULL OR $6 = '' THEN blob_path ELSE $6 END,
			updated_at = now()
		 WHERE id = $1`,
		id, patch.Title, patch.Content, patch.Embedding, patch.ClearEmbedding, patch.BlobPath)
	if err != nil {
		return fmt.Errorf("update context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *ContextStore) DeleteContext(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM contexts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *ContextStore) ListContextsBySite(ctx context.Context, siteID string) ([]core.Context, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, site_id, ctx_type, title, content, embedding, blob_path, created_at, updated_at
		 FROM contexts WHERE site_id = $1 ORDER BY created_at`, siteID)
	if err != nil {
		return nil, fmt.Errorf("select contexts: %w", err)
	}
	defer rows.Close()

	var contexts []core.Context
	for rows.Next() {
		var c core.Context
		if err := rows.Scan(&c.ID, &c.SiteID, &c.Type, &c.Title, &c.Content, &c.Embedding, &c.BlobPath, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		contexts = append(contexts, c)
	}
	return contexts, rows.Err()
}
