package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sitebrain/sitebrain/internal/core"
)

// PageStore persists pages in Postgres. The (site_id, url) unique
// constraint makes UpsertPage idempotent.
type PageStore struct {
	db DB
}

func NewPageStore(db DB) *PageStore {
	return &PageStore{db: db}
}

func (s *PageStore) UpsertPage(ctx context.Context, page core.Page) (core.Page, error) {
	// The no-op DO UPDATE lets RETURNING yield the surviving row on conflict.
	row := s.db.QueryRow(ctx,
		`INSERT INTO pages (id, site_id, url, html, markdown, embedding, crawl_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (site_id, url) DO UPDATE SET url = EXCLUDED.url
		 RETURNING id, site_id, url, html, markdown, embedding, crawl_status, created_at, updated_at`,
		page.ID, page.SiteID, page.URL, page.HTML, page.Markdown, page.Embedding, page.CrawlStatus, page.CreatedAt, page.UpdatedAt)
	var out core.Page
	if err := row.Scan(&out.ID, &out.SiteID, &out.URL, &out.HTML, &out.Markdown, &out.Embedding, &out.CrawlStatus, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return core.Page{}, fmt.Errorf("upsert page: %w", err)
	}
	return out, nil
}

func (s *PageStore) GetPage(ctx context.Context, id string) (core.Page, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, site_id, url, html, markdown, embedding, crawl_status, created_at, updated_at
		 FROM pages WHERE id = $1`, id)
	var page core.Page
	err := row.Scan(&page.ID, &page.SiteID, &page.URL, &page.HTML, &page.Markdown, &page.Embedding, &page.CrawlStatus, &page.CreatedAt, &page.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Page{}, core.ErrNotFound
	}
	if err != nil {
		return core.Page{}, fmt.Errorf("select page: %w", err)
	}
	return page, nil
}

func (s *PageStore) UpdatePage(ctx context.Context, id string, patch core.PagePatch) error {
	// Empty strings and empty vectors keep the stored value.
	tag, err := s.db.Exec(ctx,
		`UPDATE pages SET
			crawl_status = COALESCE($2, crawl_status),
			html = CASE WHEN $3::text IS NULL OR $3 = '' THEN html ELSE $3 END,
			markdown = CASE WHEN $4::text IS NULL OR $4 = '' THEN markdown ELSE $4 END,
			embedding = CASE WHEN $5::real[] IS NULL OR cardinality($5::real[]) = 0 THEN embedding ELSE $5 END,
			updated_at = now()
		 WHERE id = $1`,
		id, patch.CrawlStatus, patch.HTML, patch.Markdown, patch.Embedding)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *PageStore) ListPagesBySite(ctx context.Context, siteID string) ([]core.Page, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, site_id, url, html, markdown, embedding, crawl_status, created_at, updated_at
		 FROM pages WHERE site_id = $1 ORDER BY created_at`, siteID)
	if err != nil {
		return nil, fmt.Errorf("select pages: %w", err)
	}
	defer rows.Close()

	var pages []core.Page
	for rows.Next() {
		var page core.Page
		if err := rows.Scan(&page.ID, &page.SiteID, &page.URL, &page.HTML, &page.Markdown, &page.Embedding, &page.CrawlStatus, &page.CreatedAt, &page.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}
