package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitebrain/sitebrain/internal/core"
)

func TestColly_FetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "sitebrain-test/1.0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, "<html><body>hello</body></html>")
	}))
	defer srv.Close()

	f := NewColly(Config{UserAgent: "sitebrain-test/1.0"})
	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "hello")
	require.False(t, resp.Rendered)
}

func TestColly_FetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>moved here</html>")
	})

	f := NewColly(Config{})
	resp, err := f.Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	require.Contains(t, string(resp.Body), "moved here")
}

func TestColly_FetchNon2xxIsFetchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewColly(Config{})
	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *core.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusInternalServerError, fe.StatusCode)
}

func TestColly_FetchConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	f := NewColly(Config{})
	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *core.FetchError
	require.ErrorAs(t, err, &fe)
}

func TestHeuristic_ShouldPromote(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)

	tests := []struct {
		name string
		resp core.FetchResponse
		want bool
	}{
		{
			name: "plain content page",
			resp: core.FetchResponse{StatusCode: 200, Body: []byte("<html><body><p>plenty of server rendered text</p></body></html>")},
			want: false,
		},
		{
			name: "empty body",
			resp: core.FetchResponse{StatusCode: 200, Body: nil},
			want: true,
		},
		{
			name: "spa shell",
			resp: core.FetchResponse{StatusCode: 200, Body: []byte(`<html><body><div id="root"></div></body></html>`)},
			want: true,
		},
		{
			name: "script heavy short body",
			resp: core.FetchResponse{StatusCode: 200, Body: []byte(`<html><script>var a=1;var b=2;var c=3;</script><p>x</p></html>`)},
			want: true,
		},
		{
			name: "non-200 never promotes",
			resp: core.FetchResponse{StatusCode: 404, Body: nil},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, h.ShouldPromote(tc.resp))
		})
	}
}
