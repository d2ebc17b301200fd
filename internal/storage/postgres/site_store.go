package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sitebrain/sitebrain/internal/core"
)

// SiteStore persists sites in Postgres.
type SiteStore struct {
	db DB
}

func NewSiteStore(db DB) *SiteStore {
	return &SiteStore{db: db}
}

func (s *SiteStore) CreateSite(ctx context.Context, site core.Site) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO sites (id, name, source_url, owner_id, crawl_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		site.ID, site.Name, site.SourceURL, site.OwnerID, site.CrawlStatus, site.CreatedAt, site.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

func (s *SiteStore) GetSite(ctx context.Context, id string) (core.Site, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, source_url, owner_id, crawl_status, created_at, updated_at
		 FROM sites WHERE id = $1`, id)
	var site core.Site
	err := row.Scan(&site.ID, &site.Name, &site.SourceURL, &site.OwnerID, &site.CrawlStatus, &site.CreatedAt, &site.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Site{}, core.ErrNotFound
	}
	if err != nil {
		return core.Site{}, fmt.Errorf("select site: %w", err)
	}
	return site, nil
}

func (s *SiteStore) UpdateSiteStatus(ctx context.Context, id string, status core.CrawlStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sites SET crawl_status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update site status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *SiteStore) ListSitesByOwner(ctx context.Context, ownerID string) ([]core.Site, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, source_url, owner_id, crawl_status, created_at, updated_at
		 FROM sites WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select sites: %w", err)
	}
	defer rows.Close()

	var sites []core.Site
	for rows.Next() {
		var site core.Site
		if err := rows.Scan(&site.ID, &site.Name, &site.SourceURL, &site.OwnerID, &site.CrawlStatus, &site.CreatedAt, &site.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}
