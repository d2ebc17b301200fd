// Package crawl implements the site crawl orchestrator and its page pipeline.
package crawl

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/core"
	"github.com/sitebrain/sitebrain/internal/metrics"
)

// Pipeline processes one page end to end: fetch, optional headless
// promotion, Markdown normalization, embedding, and the final patch.
type Pipeline struct {
	pages     core.PageStore
	fetcher   core.Fetcher
	headless  core.Fetcher
	detector  core.PromotionDetector
	converter core.Converter
	embedder  core.Embedder
	logger    *zap.Logger
}

func NewPipeline(
	pages core.PageStore,
	fetcher core.Fetcher,
	headless core.Fetcher,
	detector core.PromotionDetector,
	converter core.Converter,
	embedder core.Embedder,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		pages:     pages,
		fetcher:   fetcher,
		headless:  headless,
		detector:  detector,
		converter: converter,
		embedder:  embedder,
		logger:    logger,
	}
}

// ProcessPage runs the full pipeline for one page row. Failures mark the
// page failed and return a page-scoped error; they never touch the site row.
func (p *Pipeline) ProcessPage(ctx context.Context, page core.Page) error {
	if err := p.pages.UpdatePage(ctx, page.ID, core.PagePatch{
		CrawlStatus: core.StatusPtr(core.CrawlStatusCrawling),
	}); err != nil {
		return fmt.Errorf("mark page crawling: %w", err)
	}

	patch, err := p.buildPatch(ctx, page)
	if err != nil {
		// Infrastructure errors (context cancellation, store outage) are not
		// the page's fault; leave its status for the resumed run to settle.
		if !core.PageScoped(err) {
			return fmt.Errorf("page %s: %w", page.URL, err)
		}
		p.logger.Warn("page pipeline failed",
			zap.String("page_id", page.ID),
			zap.String("url", page.URL),
			zap.Error(err),
		)
		metrics.ObservePage(page.URL, string(core.CrawlStatusFailed))
		if markErr := p.pages.UpdatePage(ctx, page.ID, core.PagePatch{
			CrawlStatus: core.StatusPtr(core.CrawlStatusFailed),
		}); markErr != nil {
			p.logger.Error("mark page failed", zap.String("page_id", page.ID), zap.Error(markErr))
		}
		return fmt.Errorf("page %s: %w", page.URL, err)
	}

	if err := p.pages.UpdatePage(ctx, page.ID, patch); err != nil {
		return fmt.Errorf("store page result: %w", err)
	}
	metrics.ObservePage(page.URL, string(core.CrawlStatusCompleted))
	p.logger.Debug("page processed", zap.String("page_id", page.ID), zap.String("url", page.URL))
	return nil
}

func (p *Pipeline) buildPatch(ctx context.Context, page core.Page) (core.PagePatch, error) {
	resp, err := p.fetcher.Fetch(ctx, page.URL)
	if err != nil {
		return core.PagePatch{}, fmt.Errorf("fetch: %w", err)
	}
	resp = p.maybePromote(ctx, page.URL, resp)

	markdown, err := p.converter.ToMarkdown(page.URL, string(resp.Body))
	if err != nil {
		return core.PagePatch{}, fmt.Errorf("convert: %w", err)
	}

	embedding, err := p.embedder.Embed(ctx, markdown)
	if err != nil {
		return core.PagePatch{}, fmt.Errorf("embed: %w", err)
	}

	return core.PagePatch{
		CrawlStatus: core.StatusPtr(core.CrawlStatusCompleted),
		HTML:        core.StringPtr(string(resp.Body)),
		Markdown:    core.StringPtr(markdown),
		Embedding:   embedding,
	}, nil
}

// maybePromote re-fetches through the headless renderer when the probe body
// looks script-rendered. A failed promotion falls back to the probe body.
func (p *Pipeline) maybePromote(ctx context.Context, url string, resp core.FetchResponse) core.FetchResponse {
	if p.detector == nil || p.headless == nil || !p.detector.ShouldPromote(resp) {
		return resp
	}
	rendered, err := p.headless.Fetch(ctx, url)
	if err != nil {
		p.logger.Warn("headless promotion failed", zap.String("url", url), zap.Error(err))
		return resp
	}
	rendered.Rendered = true
	return rendered
}
