package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/core"
	queuemem "github.com/sitebrain/sitebrain/internal/queue/memory"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestWorkerProcessesSiteCrawlRequest(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.resolver.urls = []string{"https://example.com/a"}

	q := queuemem.New(4)
	worker := NewWorker(q, e.orch, zap.NewNop())
	dispatcher := NewDispatcher(q, []*Worker{worker})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(done)
	}()

	require.NoError(t, dispatcher.Enqueue(ctx, core.CrawlRequest{SiteID: "site-1"}))

	waitFor(t, func() bool {
		site, err := e.sites.GetSite(context.Background(), "site-1")
		return err == nil && site.CrawlStatus == core.CrawlStatusCompleted
	})

	pages, err := e.pages.ListPagesBySite(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	cancel()
	<-done
}

func TestWorkerProcessesReindexRequest(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	page, err := e.pages.UpsertPage(context.Background(), core.Page{
		ID:          "page-1",
		SiteID:      "site-1",
		URL:         "https://example.com/a",
		CrawlStatus: core.CrawlStatusFailed,
	})
	require.NoError(t, err)

	q := queuemem.New(4)
	worker := NewWorker(q, e.orch, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	require.NoError(t, q.Enqueue(ctx, core.CrawlRequest{SiteID: "site-1", PageID: page.ID}))

	waitFor(t, func() bool {
		got, err := e.pages.GetPage(context.Background(), page.ID)
		return err == nil && got.CrawlStatus == core.CrawlStatusCompleted
	})
}
