package crawl

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/core"
	"github.com/sitebrain/sitebrain/internal/metrics"
)

// Config controls orchestrator behavior.
type Config struct {
	// PageConcurrency bounds how many pages of one run are in flight at once.
	PageConcurrency int
}

// Orchestrator drives the site crawl state machine. Every step is
// checkpointed to the run log, so a crashed run resumes from its last
// recorded step instead of starting over.
type Orchestrator struct {
	sites    core.SiteStore
	pages    core.PageStore
	runs     core.RunStore
	resolver core.SitemapResolver
	pipeline *Pipeline
	clock    core.Clock
	ids      core.IDGenerator
	cfg      Config
	logger   *zap.Logger
}

func NewOrchestrator(
	sites core.SiteStore,
	pages core.PageStore,
	runs core.RunStore,
	resolver core.SitemapResolver,
	pipeline *Pipeline,
	clock core.Clock,
	ids core.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 20
	}
	return &Orchestrator{
		sites:    sites,
		pages:    pages,
		runs:     runs,
		resolver: resolver,
		pipeline: pipeline,
		clock:    clock,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}
}

// CrawlSite executes a full crawl for the site: resolve the sitemap,
// process every page with bounded concurrency, then roll up. Page failures
// are counted but never fail the site; only sitemap resolution does.
func (o *Orchestrator) CrawlSite(ctx context.Context, siteID string) error {
	site, err := o.sites.GetSite(ctx, siteID)
	if err != nil {
		return fmt.Errorf("load site: %w", err)
	}

	runID, err := o.ids.NewID()
	if err != nil {
		return fmt.Errorf("new run id: %w", err)
	}
	run := core.CrawlRun{
		ID:        runID,
		SiteID:    siteID,
		Status:    core.RunStatusRunning,
		Step:      core.RunStepResolve,
		StartedAt: o.clock.Now(),
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	if err := o.sites.UpdateSiteStatus(ctx, siteID, core.CrawlStatusCrawling); err != nil {
		return fmt.Errorf("mark site crawling: %w", err)
	}

	return o.resume(ctx, site, run)
}

// ResumePending picks up runs left in the running state by a previous
// process and drives each one from its checkpointed step to completion.
func (o *Orchestrator) ResumePending(ctx context.Context) error {
	runs, err := o.runs.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished runs: %w", err)
	}
	for _, run := range runs {
		site, err := o.sites.GetSite(ctx, run.SiteID)
		if err != nil {
			o.logger.Error("resume skipped, site lookup failed",
				zap.String("run_id", run.ID), zap.String("site_id", run.SiteID), zap.Error(err))
			continue
		}
		o.logger.Info("resuming crawl run",
			zap.String("run_id", run.ID),
			zap.String("site_id", run.SiteID),
			zap.String("step", string(run.Step)),
			zap.Int("cursor", run.Cursor),
		)
		if err := o.resume(ctx, site, run); err != nil {
			o.logger.Error("resumed run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return nil
}

// resume drives a run forward from its current step.
func (o *Orchestrator) resume(ctx context.Context, site core.Site, run core.CrawlRun) error {
	succeeded, failed := run.PagesSucceeded, run.PagesFailed

	if run.Step == core.RunStepResolve {
		urls, err := o.resolver.Resolve(ctx, site.SourceURL)
		if err != nil {
			// Sitemap failure is the one path that fails the whole site.
			o.finishRun(ctx, run.ID, core.RunStatusFailed, 0, 0, err.Error())
			if markErr := o.sites.UpdateSiteStatus(ctx, site.ID, core.CrawlStatusFailed); markErr != nil {
				o.logger.Error("mark site failed", zap.String("site_id", site.ID), zap.Error(markErr))
			}
			return fmt.Errorf("resolve sitemap: %w", err)
		}
		run.URLs = urls
		run.Step = core.RunStepDispatch
		run.Cursor = 0
		if err := o.runs.Checkpoint(ctx, run.ID, core.RunStepDispatch, 0, urls); err != nil {
			return fmt.Errorf("checkpoint dispatch: %w", err)
		}
	}

	if run.Step == core.RunStepDispatch {
		s, f, err := o.dispatch(ctx, site, run)
		if err != nil {
			return err
		}
		succeeded += s
		failed += f
		if err := o.runs.Checkpoint(ctx, run.ID, core.RunStepRollup, len(run.URLs), nil); err != nil {
			return fmt.Errorf("checkpoint rollup: %w", err)
		}
	}

	// Rollup. The site completes even when every page failed; customers see
	// per-page failures on the dashboard instead of a dead site.
	if err := o.sites.UpdateSiteStatus(ctx, site.ID, core.CrawlStatusCompleted); err != nil {
		return fmt.Errorf("mark site completed: %w", err)
	}
	o.finishRun(ctx, run.ID, core.RunStatusCompleted, succeeded, failed, "")
	o.logger.Info("crawl run completed",
		zap.String("run_id", run.ID),
		zap.String("site_id", site.ID),
		zap.Int("pages_succeeded", succeeded),
		zap.Int("pages_failed", failed),
	)
	return nil
}

// dispatch processes run.URLs[run.Cursor:] through the page pipeline with a
// bounded worker pool. The cursor is only advanced past pages whose pipeline
// has settled, so after a crash every in-flight page is re-dispatched; the
// idempotent upsert folds the re-run into the existing row.
func (o *Orchestrator) dispatch(ctx context.Context, site core.Site, run core.CrawlRun) (succeeded, failed int, err error) {
	sem := make(chan struct{}, o.cfg.PageConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	total := len(run.URLs)
	settled := make([]bool, total)
	for i := 0; i < run.Cursor && i < total; i++ {
		settled[i] = true
	}
	watermark := run.Cursor

	// markSettled records one page outcome and checkpoints the cursor to the
	// contiguous settled prefix.
	markSettled := func(i int, ok bool) {
		mu.Lock()
		if ok {
			succeeded++
		} else {
			failed++
		}
		settled[i] = true
		advanced := false
		for watermark < total && settled[watermark] {
			watermark++
			advanced = true
		}
		cursor := watermark
		mu.Unlock()
		if advanced {
			if ckErr := o.runs.Checkpoint(ctx, run.ID, core.RunStepDispatch, cursor, nil); ckErr != nil {
				o.logger.Error("checkpoint cursor failed", zap.String("run_id", run.ID), zap.Error(ckErr))
			}
		}
	}

	for i := run.Cursor; i < total; i++ {
		url := run.URLs[i]

		candidate, newErr := o.newPage(site.ID, url)
		if newErr != nil {
			o.logger.Error("new page id failed", zap.String("url", url), zap.Error(newErr))
			markSettled(i, false)
			continue
		}
		page, upsertErr := o.pages.UpsertPage(ctx, candidate)
		if upsertErr != nil {
			o.logger.Error("upsert page failed", zap.String("url", url), zap.Error(upsertErr))
			markSettled(i, false)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return succeeded, failed, ctx.Err()
		}
		wg.Add(1)
		go func(idx int, p core.Page) {
			defer wg.Done()
			defer func() { <-sem }()
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()

			procErr := o.pipeline.ProcessPage(ctx, p)
			markSettled(idx, procErr == nil)
		}(i, page)
	}
	wg.Wait()
	return succeeded, failed, nil
}

// ReindexPage re-runs the pipeline for one existing page.
func (o *Orchestrator) ReindexPage(ctx context.Context, pageID string) error {
	page, err := o.pages.GetPage(ctx, pageID)
	if err != nil {
		return fmt.Errorf("load page: %w", err)
	}
	return o.pipeline.ProcessPage(ctx, page)
}

func (o *Orchestrator) newPage(siteID, url string) (core.Page, error) {
	id, err := o.ids.NewID()
	if err != nil {
		return core.Page{}, err
	}
	now := o.clock.Now()
	return core.Page{
		ID:          id,
		SiteID:      siteID,
		URL:         url,
		CrawlStatus: core.CrawlStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (o *Orchestrator) finishRun(ctx context.Context, runID string, status core.RunStatus, succeeded, failed int, errText string) {
	metrics.ObserveRun(string(status))
	if err := o.runs.FinishRun(ctx, runID, status, succeeded, failed, errText); err != nil {
		o.logger.Error("finish run failed", zap.String("run_id", runID), zap.Error(err))
	}
}
