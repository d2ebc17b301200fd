// Package sitemap resolves sitemap documents into flat URL lists.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/core"
)

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Config controls resolver behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxDepth     int
	MaxBodyBytes int64
}

// Resolver fetches and parses (possibly nested) sitemap XML documents.
// Failures are site-fatal: the owning crawl aborts instead of retrying here.
type Resolver struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Resolver.
func New(cfg Config, logger *zap.Logger) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 * 1024 * 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Resolve flattens the sitemap at sitemapURL into page URLs. Nested sitemap
// indexes are followed up to the configured depth; duplicate locations are
// collapsed preserving first-seen order.
func (r *Resolver) Resolve(ctx context.Context, sitemapURL string) ([]string, error) {
	seen := make(map[string]struct{})
	urls, err := r.resolve(ctx, sitemapURL, r.cfg.MaxDepth, seen)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("sitemap resolved",
		zap.String("sitemap_url", sitemapURL),
		zap.Int("url_count", len(urls)),
	)
	return urls, nil
}

func (r *Resolver) resolve(ctx context.Context, loc string, depth int, seen map[string]struct{}) ([]string, error) {
	if depth < 0 {
		return nil, fmt.Errorf("%w: nested deeper than %d levels", core.ErrSitemapParse, r.cfg.MaxDepth)
	}

	body, err := r.fetch(ctx, loc)
	if err != nil {
		return nil, err
	}

	// The XMLName tags reject documents whose root element does not match,
	// so a clean unmarshal identifies the document kind even when it lists
	// zero entries. An empty urlset resolves to an empty site.
	var set urlSet
	if err := xml.Unmarshal(body, &set); err == nil {
		out := make([]string, 0, len(set.URLs))
		for _, u := range set.URLs {
			if u.Loc == "" {
				continue
			}
			if _, dup := seen[u.Loc]; dup {
				continue
			}
			seen[u.Loc] = struct{}{}
			out = append(out, u.Loc)
		}
		return out, nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil {
		var out []string
		for _, child := range index.Sitemaps {
			if child.Loc == "" {
				continue
			}
			urls, err := r.resolve(ctx, child.Loc, depth-1, seen)
			if err != nil {
				return nil, err
			}
			out = append(out, urls...)
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: %s is neither a urlset nor a sitemapindex", core.ErrSitemapParse, loc)
}

func (r *Resolver) fetch(ctx context.Context, loc string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSitemapUnreachable, err)
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSitemapUnreachable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.logger.Warn("close sitemap body failed", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", core.ErrSitemapUnreachable, loc, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", core.ErrSitemapUnreachable, err)
	}
	return body, nil
}
