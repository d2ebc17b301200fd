package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stores and services.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when a principal touches an entity it does
	// not own. Widget chat endpoints are exempt: visitors have no account.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSitemapUnreachable aborts a crawl before any page work is attempted.
	ErrSitemapUnreachable = errors.New("sitemap unreachable")

	// ErrSitemapParse aborts a crawl when the sitemap document is not valid XML.
	ErrSitemapParse = errors.New("sitemap parse failed")

	// ErrEmbeddingFailed is surfaced only after the embedding client has
	// exhausted its retry budget.
	ErrEmbeddingFailed = errors.New("embedding failed after retries")

	// ErrEmptyCompletion means the generation model returned no content; the
	// chat turn fails without persisting an empty assistant message.
	ErrEmptyCompletion = errors.New("empty completion")
)

// FetchError is a page-scoped fetch failure (network, timeout, non-2xx).
// It marks the page failed but never aborts the site-level crawl.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ConversionError is a page-scoped normalization failure (empty or
// unparseable conversion result).
type ConversionError struct {
	URL    string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %s", e.URL, e.Reason)
}

// PageScoped reports whether err is one of the failures that stay confined to
// a single page pipeline.
func PageScoped(err error) bool {
	var fe *FetchError
	var ce *ConversionError
	return errors.As(err, &fe) || errors.As(err, &ce) || errors.Is(err, ErrEmbeddingFailed)
}
