package core

import (
	"context"
	"io"
	"time"
)

// SiteStore persists sites and their crawl status.
type SiteStore interface {
	CreateSite(ctx context.Context, site Site) error
	GetSite(ctx context.Context, id string) (Site, error)
	UpdateSiteStatus(ctx context.Context, id string, status CrawlStatus) error
	ListSitesByOwner(ctx context.Context, ownerID string) ([]Site, error)
}

// PageStore persists per-(site, URL) page records.
type PageStore interface {
	// UpsertPage looks up an existing page by (SiteID, URL) and returns it;
	// otherwise it inserts the provided record. Discovery stays idempotent
	// across repeated crawls of the same sitemap.
	UpsertPage(ctx context.Context, page Page) (Page, error)
	GetPage(ctx context.Context, id string) (Page, error)
	// UpdatePage merges the patch per PagePatch rules and bumps UpdatedAt.
	UpdatePage(ctx context.Context, id string, patch PagePatch) error
	ListPagesBySite(ctx context.Context, siteID string) ([]Page, error)
}

// ContextStore persists owner-supplied knowledge entries.
type ContextStore interface {
	CreateContext(ctx context.Context, c Context) error
	GetContext(ctx context.Context, id string) (Context, error)
	UpdateContext(ctx context.Context, id string, patch ContextPatch) error
	DeleteContext(ctx context.Context, id string) error
	ListContextsBySite(ctx context.Context, siteID string) ([]Context, error)
}

// ChatStore persists sessions and their append-only message history.
type ChatStore interface {
	CreateSession(ctx context.Context, session ChatSession) error
	GetSession(ctx context.Context, id string) (ChatSession, error)
	ListSessionsBySite(ctx context.Context, siteID string) ([]ChatSession, error)
	AppendMessage(ctx context.Context, msg ChatMessage) error
	// ListMessages returns messages ordered by CreatedAt; a non-zero after
	// filters to messages created strictly later (widget polling).
	ListMessages(ctx context.Context, sessionID string, after time.Time) ([]ChatMessage, error)
}

// RunStore is the durable crawl run log. Every orchestrator step writes a
// checkpoint here so a run can survive a process restart.
type RunStore interface {
	CreateRun(ctx context.Context, run CrawlRun) error
	GetRun(ctx context.Context, id string) (CrawlRun, error)
	// Checkpoint persists step progress for a running crawl.
	Checkpoint(ctx context.Context, id string, step RunStep, cursor int, urls []string) error
	// FinishRun records the terminal status and counters.
	FinishRun(ctx context.Context, id string, status RunStatus, succeeded, failed int, errText string) error
	// ListUnfinished returns runs still marked running, oldest first.
	ListUnfinished(ctx context.Context) ([]CrawlRun, error)
}

// BlobStore stores raw uploaded artifacts (file-derived contexts).
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
	DeleteObject(ctx context.Context, path string) error
}

// Fetcher retrieves raw HTML for a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// PromotionDetector decides whether a probe response warrants a headless
// re-fetch before normalization.
type PromotionDetector interface {
	ShouldPromote(resp FetchResponse) bool
}

// Converter normalizes raw HTML to clean Markdown.
type Converter interface {
	ToMarkdown(url string, html string) (string, error)
}

// SitemapResolver flattens a (possibly nested) sitemap into page URLs.
type SitemapResolver interface {
	Resolve(ctx context.Context, sitemapURL string) ([]string, error)
}

// Embedder computes a fixed-dimension vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces one chat completion for an ordered prompt.
type Generator interface {
	Generate(ctx context.Context, system string, history []PromptMessage) (string, error)
}

// Retriever returns the k most similar embedded items scoped to one site.
type Retriever interface {
	Relevant(ctx context.Context, siteID string, query []float32, k int) ([]RetrievedItem, error)
}

// Queue provides enqueue/dequeue semantics for crawl requests.
type Queue interface {
	Enqueue(ctx context.Context, req CrawlRequest) error
	Dequeue(ctx context.Context) (CrawlRequest, error)
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs.
type IDGenerator interface {
	NewID() (string, error)
}
