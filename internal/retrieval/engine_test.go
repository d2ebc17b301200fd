package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitebrain/sitebrain/internal/core"
	"github.com/sitebrain/sitebrain/internal/storage/memory"
)

func seedPage(t *testing.T, store *memory.PageStore, id, siteID, url string, embedding []float32) {
	t.Helper()
	_, err := store.UpsertPage(context.Background(), core.Page{
		ID:          id,
		SiteID:      siteID,
		URL:         url,
		Markdown:    "content of " + url,
		Embedding:   embedding,
		CrawlStatus: core.CrawlStatusCompleted,
	})
	require.NoError(t, err)
}

func TestRelevantRanksByCosineSimilarity(t *testing.T) {
	t.Parallel()

	pages := memory.NewPageStore()
	contexts := memory.NewContextStore()
	seedPage(t, pages, "p-close", "site-1", "https://example.com/close", []float32{1, 0.1, 0})
	seedPage(t, pages, "p-far", "site-1", "https://example.com/far", []float32{0, 0, 1})
	seedPage(t, pages, "p-mid", "site-1", "https://example.com/mid", []float32{1, 1, 0})

	engine := NewEngine(pages, contexts)
	items, err := engine.Relevant(context.Background(), "site-1", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "p-close", items[0].ID)
	require.Equal(t, "p-mid", items[1].ID)
	require.Equal(t, "p-far", items[2].ID)
	require.Greater(t, items[0].Similarity, items[1].Similarity)
}

func TestRelevantSkipsOtherSitesAndUnembedded(t *testing.T) {
	t.Parallel()

	pages := memory.NewPageStore()
	contexts := memory.NewContextStore()
	seedPage(t, pages, "p-mine", "site-1", "https://example.com/a", []float32{1, 0})
	seedPage(t, pages, "p-theirs", "site-2", "https://other.com/a", []float32{1, 0})

	// Failed page with no vector never surfaces.
	_, err := pages.UpsertPage(context.Background(), core.Page{
		ID: "p-bare", SiteID: "site-1", URL: "https://example.com/bare",
		CrawlStatus: core.CrawlStatusFailed,
	})
	require.NoError(t, err)

	engine := NewEngine(pages, contexts)
	items, err := engine.Relevant(context.Background(), "site-1", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "p-mine", items[0].ID)
}

func TestRelevantMixesContextsAndTruncatesToK(t *testing.T) {
	t.Parallel()

	pages := memory.NewPageStore()
	contexts := memory.NewContextStore()
	seedPage(t, pages, "p-1", "site-1", "https://example.com/a", []float32{0.2, 0.8})
	require.NoError(t, contexts.CreateContext(context.Background(), core.Context{
		ID: "ctx-hit", SiteID: "site-1", Type: core.ContextTypeText,
		Title: "Refund policy", Content: "Refunds within 30 days.",
		Embedding: []float32{1, 0},
	}))
	require.NoError(t, contexts.CreateContext(context.Background(), core.Context{
		ID: "ctx-pending", SiteID: "site-1", Type: core.ContextTypeText,
		Title: "Not yet embedded",
	}))

	engine := NewEngine(pages, contexts)
	items, err := engine.Relevant(context.Background(), "site-1", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "ctx-hit", items[0].ID)
	require.Equal(t, "context", items[0].Kind)
}

func TestRelevantDefaultsK(t *testing.T) {
	t.Parallel()

	pages := memory.NewPageStore()
	contexts := memory.NewContextStore()
	for i, id := range []string{"p-1", "p-2", "p-3", "p-4"} {
		seedPage(t, pages, id, "site-1", "https://example.com/"+id, []float32{1, float32(i)})
	}

	engine := NewEngine(pages, contexts)
	items, err := engine.Relevant(context.Background(), "site-1", []float32{1, 0}, 0)
	require.NoError(t, err)
	require.Len(t, items, DefaultTopK)
}

func TestRelevantRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	engine := NewEngine(memory.NewPageStore(), memory.NewContextStore())
	_, err := engine.Relevant(context.Background(), "site-1", nil, 3)
	require.Error(t, err)
}

func TestPromptBlockFormatsItems(t *testing.T) {
	t.Parallel()

	require.Empty(t, PromptBlock(nil))
	block := PromptBlock([]core.RetrievedItem{
		{Kind: "page", Title: "https://example.com/a", Content: "Alpha."},
		{Kind: "context", Title: "FAQ", Content: "Beta."},
	})
	require.Contains(t, block, "[page] https://example.com/a\nAlpha.")
	require.Contains(t, block, "[context] FAQ\nBeta.")
}
