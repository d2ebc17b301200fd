package crawl

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/core"
)

// Worker consumes crawl requests from the queue and hands them to the
// orchestrator. A request with a PageID reindexes one page; otherwise it
// crawls the whole site.
type Worker struct {
	queue        core.Queue
	orchestrator *Orchestrator
	logger       *zap.Logger
}

func NewWorker(queue core.Queue, orchestrator *Orchestrator, logger *zap.Logger) *Worker {
	return &Worker{
		queue:        queue,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Run blocks, consuming requests until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, req)
	}
}

func (w *Worker) process(ctx context.Context, req core.CrawlRequest) {
	if req.PageID != "" {
		if err := w.orchestrator.ReindexPage(ctx, req.PageID); err != nil {
			w.logger.Warn("page reindex failed",
				zap.String("site_id", req.SiteID),
				zap.String("page_id", req.PageID),
				zap.Error(err),
			)
		}
		return
	}
	if err := w.orchestrator.CrawlSite(ctx, req.SiteID); err != nil {
		w.logger.Warn("site crawl failed",
			zap.String("site_id", req.SiteID),
			zap.Error(err),
		)
	}
}

// Dispatcher fans queue work out to a pool of workers.
type Dispatcher struct {
	queue   core.Queue
	workers []*Worker
}

func NewDispatcher(queue core.Queue, workers []*Worker) *Dispatcher {
	return &Dispatcher{queue: queue, workers: workers}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, req core.CrawlRequest) error {
	return d.queue.Enqueue(ctx, req)
}
