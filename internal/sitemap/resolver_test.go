package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitebrain/sitebrain/internal/core"
)

func TestResolver_FlatURLSet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/</loc></url>
  <url><loc>https://example.com/about</loc></url>
  <url><loc>https://example.com/pricing</loc></url>
</urlset>`)
	}))
	defer srv.Close()

	r := New(Config{}, nil)
	urls, err := r.Resolve(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.com/",
		"https://example.com/about",
		"https://example.com/pricing",
	}, urls)
}

func TestResolver_EmptyURLSetResolvesToNoPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`)
	}))
	defer srv.Close()

	r := New(Config{}, nil)
	urls, err := r.Resolve(context.Background(), srv.URL)
	require.NoError(t, err, "an empty urlset is a valid sitemap, not a parse failure")
	require.Empty(t, urls)
}

func TestResolver_NestedIndex(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<sitemapindex>
  <sitemap><loc>%s/pages.xml</loc></sitemap>
  <sitemap><loc>%s/blog.xml</loc></sitemap>
</sitemapindex>`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/pages.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/a</loc></url></urlset>`)
	})
	mux.HandleFunc("/blog.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<urlset>
  <url><loc>https://example.com/b</loc></url>
  <url><loc>https://example.com/a</loc></url>
</urlset>`)
	})

	r := New(Config{}, nil)
	urls, err := r.Resolve(context.Background(), srv.URL+"/sitemap.xml")
	require.NoError(t, err)
	// duplicate /a collapsed, first-seen order preserved
	require.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, urls)
}

func TestResolver_UnreachableAndParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want: core.ErrSitemapUnreachable,
		},
		{
			name: "not a sitemap document",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `<html><body>hello</body></html>`)
			},
			want: core.ErrSitemapParse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			r := New(Config{}, nil)
			_, err := r.Resolve(context.Background(), srv.URL)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestResolver_ServerDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	r := New(Config{}, nil)
	_, err := r.Resolve(context.Background(), srv.URL)
	require.ErrorIs(t, err, core.ErrSitemapUnreachable)
}

func TestResolver_DepthLimit(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Index that points at itself forever.
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<sitemapindex><sitemap><loc>%s/</loc></sitemap></sitemapindex>`, srv.URL)
	})

	r := New(Config{MaxDepth: 2}, nil)
	_, err := r.Resolve(context.Background(), srv.URL+"/")
	require.ErrorIs(t, err, core.ErrSitemapParse)
}
