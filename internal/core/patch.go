package core

// PagePatch carries the optional fields of a partial page update. Nil fields
// are left untouched; set fields replace stored values, except that an empty
// string or empty vector never clobbers previously stored content, so partial
// progress survives a later stage failing.
type PagePatch struct {
	CrawlStatus *CrawlStatus
	HTML        *string
	Markdown    *string
	Embedding   []float32
}

// Apply merges the patch into a page.
func (p PagePatch) Apply(page *Page) {
	if p.CrawlStatus != nil {
		page.CrawlStatus = *p.CrawlStatus
	}
	if p.HTML != nil && *p.HTML != "" {
		page.HTML = *p.HTML
	}
	if p.Markdown != nil && *p.Markdown != "" {
		page.Markdown = *p.Markdown
	}
	if len(p.Embedding) > 0 {
		page.Embedding = p.Embedding
	}
}

// ContextPatch carries the optional fields of a partial context update, with
// the same merge rules as PagePatch. ClearEmbedding invalidates the stored
// vector so a stale embedding is never served as current after an edit.
type ContextPatch struct {
	Title          *string
	Content        *string
	Embedding      []float32
	ClearEmbedding bool
	BlobPath       *string
}

// Apply merges the patch into a context entry.
func (p ContextPatch) Apply(c *Context) {
	if p.Title != nil && *p.Title != "" {
		c.Title = *p.Title
	}
	if p.Content != nil && *p.Content != "" {
		c.Content = *p.Content
	}
	if p.ClearEmbedding {
		c.Embedding = nil
	}
	if len(p.Embedding) > 0 {
		c.Embedding = p.Embedding
	}
	if p.BlobPath != nil && *p.BlobPath != "" {
		c.BlobPath = *p.BlobPath
	}
}

// StatusPtr is a convenience for building patches.
func StatusPtr(s CrawlStatus) *CrawlStatus {
	return &s
}

// StringPtr is a convenience for building patches.
func StringPtr(s string) *string {
	return &s
}
