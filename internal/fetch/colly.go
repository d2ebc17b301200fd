// Package fetch retrieves raw page HTML, escalating to a headless browser
// when a probe response looks client-rendered.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/sitebrain/sitebrain/internal/core"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Colly implements core.Fetcher using the Colly collector. Redirects follow
// the default http.Client policy.
type Colly struct {
	cfg  Config
	base *colly.Collector
}

// NewColly builds a probe fetcher.
func NewColly(cfg Config) *Colly {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true // customers crawl their own sites
	c.AllowURLRevisit = true
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(newHTTPTransport())
	return &Colly{cfg: cfg, base: c}
}

// Fetch executes a single HTTP GET.
func (f *Colly) Fetch(ctx context.Context, url string) (core.FetchResponse, error) {
	var (
		result   core.FetchResponse
		fetchErr error
	)
	start := time.Now()

	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = core.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = &core.FetchError{URL: url, StatusCode: status, Err: err}
	})

	if err := runCollector(ctx, collector, url); err != nil {
		return core.FetchResponse{}, &core.FetchError{URL: url, Err: err}
	}
	if fetchErr != nil {
		return core.FetchResponse{}, fetchErr
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return core.FetchResponse{}, &core.FetchError{URL: url, StatusCode: result.StatusCode}
	}
	return result, nil
}

func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
