// Package core defines the entities and contracts shared across subsystems.
package core

import (
	"time"
)

// CrawlStatus represents the lifecycle state of a site crawl or a page pipeline.
type CrawlStatus string

// Crawl status values persisted for sites and pages.
const (
	CrawlStatusPending   CrawlStatus = "pending"
	CrawlStatusCrawling  CrawlStatus = "crawling"
	CrawlStatusCompleted CrawlStatus = "completed"
	CrawlStatusFailed    CrawlStatus = "failed"
)

// Site is a customer website registered for crawling and chat.
type Site struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	SourceURL   string      `json:"source_url"`
	OwnerID     string      `json:"owner_id"`
	CrawlStatus CrawlStatus `json:"crawl_status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Page is one crawled document belonging to a site. (SiteID, URL) is unique:
// re-discovering a URL updates the existing row, never duplicates it.
type Page struct {
	ID          string      `json:"id"`
	SiteID      string      `json:"site_id"`
	URL         string      `json:"url"`
	HTML        string      `json:"-"`
	Markdown    string      `json:"markdown,omitempty"`
	Embedding   []float32   `json:"-"`
	CrawlStatus CrawlStatus `json:"crawl_status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Embedded reports whether the page participates in retrieval.
func (p Page) Embedded() bool {
	return p.CrawlStatus == CrawlStatusCompleted && len(p.Embedding) > 0
}

// ContextType discriminates owner-supplied knowledge entries.
type ContextType string

// Context entry types.
const (
	ContextTypeText ContextType = "text"
	ContextTypeFile ContextType = "file"
	ContextTypeFAQ  ContextType = "faq"
)

// Context is owner-supplied text used alongside crawled pages as retrievable
// knowledge. FAQ content is a serialized question/answer block; file contexts
// keep a reference to the uploaded blob.
type Context struct {
	ID        string      `json:"id"`
	SiteID    string      `json:"site_id"`
	Type      ContextType `json:"type"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	Embedding []float32   `json:"-"`
	BlobPath  string      `json:"blob_path,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ChatSession is an anonymous widget conversation scoped to one site.
type ChatSession struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role identifies the author of a chat message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn in a session, append-only, ordered by CreatedAt.
type ChatMessage struct {
	ID            string    `json:"id"`
	ChatSessionID string    `json:"chat_session_id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

// PromptMessage is one entry of a generation prompt.
type PromptMessage struct {
	Role    Role
	Content string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// CrawlRequest is a queued unit of crawl work. An empty PageID requests a full
// site crawl; a set PageID requests a single-page reindex.
type CrawlRequest struct {
	SiteID  string `json:"site_id"`
	PageID  string `json:"page_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Attempt int    `json:"attempt"`
}

// RunStatus is the lifecycle state of one orchestrator run.
type RunStatus string

// Run status values persisted in the run log.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunStep names the checkpointed stages of a crawl run.
type RunStep string

// Orchestrator steps, in execution order.
const (
	RunStepResolve  RunStep = "resolve"
	RunStepDispatch RunStep = "dispatch"
	RunStepRollup   RunStep = "rollup"
)

// CrawlRun is one durable record of an orchestrator execution. The step and
// cursor are checkpointed after every unit of work so an interrupted run can
// be resumed from where it stopped instead of from scratch.
type CrawlRun struct {
	ID             string     `json:"id"`
	SiteID         string     `json:"site_id"`
	Status         RunStatus  `json:"status"`
	Step           RunStep    `json:"step"`
	Cursor         int        `json:"cursor"`
	URLs           []string   `json:"urls,omitempty"`
	PagesSucceeded int        `json:"pages_succeeded"`
	PagesFailed    int        `json:"pages_failed"`
	ErrorText      string     `json:"error_text,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// RetrievedItem is one ranked retrieval result.
type RetrievedItem struct {
	ID         string  `json:"id"`
	SiteID     string  `json:"site_id"`
	Kind       string  `json:"kind"` // "page" or "context"
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}
