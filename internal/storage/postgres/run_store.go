package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sitebrain/sitebrain/internal/core"
)

// RunStore persists crawl run checkpoints in Postgres.
type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run core.CrawlRun) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO crawl_runs (id, site_id, status, step, cursor, urls, pages_succeeded, pages_failed, error_text, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.SiteID, run.Status, run.Step, run.Cursor, run.URLs,
		run.PagesSucceeded, run.PagesFailed, run.ErrorText, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (core.CrawlRun, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, site_id, status, step, cursor, urls, pages_succeeded, pages_failed, error_text, started_at, finished_at
		 FROM crawl_runs WHERE id = $1`, id)
	var run core.CrawlRun
	err := row.Scan(&run.ID, &run.SiteID, &run.Status, &run.Step, &run.Cursor, &run.URLs,
		&run.PagesSucceeded, &run.PagesFailed, &run.ErrorText, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.CrawlRun{}, core.ErrNotFound
	}
	if err != nil {
		return core.CrawlRun{}, fmt.Errorf("select crawl run: %w", err)
	}
	return run, nil
}

func (s *RunStore) Checkpoint(ctx context.Context, id string, step core.RunStep, cursor int, urls []string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE crawl_runs SET
			step = $2,
			cursor = $3,
			urls = CASE WHEN $4::text[] IS NULL THEN urls ELSE $4 END
		 WHERE id = $1`,
		id, step, cursor, urls)
	if err != nil {
		return fmt.Errorf("checkpoint crawl run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *RunStore) FinishRun(ctx context.Context, id string, status core.RunStatus, succeeded, failed int, errText string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE crawl_runs SET
			status = $2,
			pages_succeeded = $3,
			pages_failed = $4,
			error_text = $5,
			finished_at = now()
		 WHERE id = $1`,
		id, status, succeeded, failed, errText)
	if err != nil {
		return fmt.Errorf("finish crawl run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *RunStore) ListUnfinished(ctx context.Context) ([]core.CrawlRun, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, site_id, status, step, cursor, urls, pages_succeeded, pages_failed, error_text, started_at, finished_at
		 FROM crawl_runs WHERE status = $1 ORDER BY started_at`, core.RunStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("select crawl runs: %w", err)
	}
	defer rows.Close()

	var runs []core.CrawlRun
	for rows.Next() {
		var run core.CrawlRun
		if err := rows.Scan(&run.ID, &run.SiteID, &run.Status, &run.Step, &run.Cursor, &run.URLs,
			&run.PagesSucceeded, &run.PagesFailed, &run.ErrorText, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan crawl run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
