package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_FetchReturnsBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>hi</html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(true)
	defer f.Close()

	res, err := f.Fetch(context.Background(), srv.URL, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, `"v1"`, res.ETag)
	require.Equal(t, "text/html", res.MimeType)
	require.Equal(t, "<html>hi</html>", string(res.Content))
}

func TestHTTPFetcher_NotModifiedReturnsNotModifiedFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("content"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(true)
	defer f.Close()

	opts := DefaultOptions()
	opts.IfNoneMatch = `"v1"`
	res, err := f.Fetch(context.Background(), srv.URL, opts)
	require.NoError(t, err)
	require.True(t, res.NotModified)
	require.Equal(t, 304, res.StatusCode)
}

func TestHTTPFetcher_NotFoundReturns404WithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(true)
	defer f.Close()

	res, err := f.Fetch(context.Background(), srv.URL, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 404, res.StatusCode)
}

func TestHTTPFetcher_ServerErrorIsTransientAndRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(true)
	defer f.Close()

	opts := DefaultOptions()
	opts.MaxRetries = 2
	_, err := f.Fetch(context.Background(), srv.URL, opts)
	require.Error(t, err)
	require.Equal(t, 3, attempts) // initial + 2 retries
}
