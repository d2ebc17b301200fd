// Package retrieval ranks embedded pages and contexts against a query vector.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sitebrain/sitebrain/internal/core"
)

// DefaultTopK is how many items Relevant returns when k is not positive.
const DefaultTopK = 3

// Engine scans a site's stored vectors and returns the closest matches.
// The corpus per site is small enough that a linear scan stays cheap.
type Engine struct {
	pages    core.PageStore
	contexts core.ContextStore
}

func NewEngine(pages core.PageStore, contexts core.ContextStore) *Engine {
	return &Engine{pages: pages, contexts: contexts}
}

// Relevant returns up to k items for the site ordered by descending cosine
// similarity. Items without a usable embedding are skipped. Ties keep the
// page-before-context, insertion-order placement of the candidates.
func (e *Engine) Relevant(ctx context.Context, siteID string, query []float32, k int) ([]core.RetrievedItem, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("retrieval: empty query vector")
	}
	if k <= 0 {
		k = DefaultTopK
	}

	pages, err := e.pages.ListPagesBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("retrieval: list pages: %w", err)
	}
	contexts, err := e.contexts.ListContextsBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("retrieval: list contexts: %w", err)
	}

	var items []core.RetrievedItem
	for _, page := range pages {
		if !page.Embedded() {
			continue
		}
		items = append(items, core.RetrievedItem{
			ID:         page.ID,
			SiteID:     page.SiteID,
			Kind:       "page",
			Title:      page.URL,
			Content:    page.Markdown,
			Similarity: cosine(query, page.Embedding),
		})
	}
	for _, c := range contexts {
		if len(c.Embedding) == 0 {
			continue
		}
		items = append(items, core.RetrievedItem{
			ID:         c.ID,
			SiteID:     c.SiteID,
			Kind:       "context",
			Title:      c.Title,
			Content:    c.Content,
			Similarity: cosine(query, c.Embedding),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Similarity > items[j].Similarity
	})
	if len(items) > k {
		items = items[:k]
	}
	return items, nil
}

// cosine returns 0 for mismatched lengths and zero vectors so broken
// embeddings rank last instead of erroring the whole query.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// PromptBlock renders retrieved items as a context block for the generator.
func PromptBlock(items []core.RetrievedItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s\n%s", item.Kind, item.Title, item.Content)
	}
	return b.String()
}
