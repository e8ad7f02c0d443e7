package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/fetch"
)

func extractHrefs(links map[string][]string) LinkExtractor {
	return func(pageURL string, content []byte, mimeType string) []string {
		return links[pageURL]
	}
}

func TestCrawler_BFSVisitsLinkedPagesOnce(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "a")
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "b")
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	links := map[string][]string{
		srv.URL + "/a": {"/b", "/b"}, // duplicate link, should only visit once
	}

	f := fetch.NewHTTPFetcher(true)
	defer f.Close()
	c := New(f)

	var visited []string
	err := c.Crawl(context.Background(), srv.URL+"/a", Options{
		MaxPages:       10,
		MaxDepth:       5,
		Scope:          ScopeHostname,
		MaxConcurrency: 2,
	}, extractHrefs(links), func(p Page) error {
		visited = append(visited, p.URL)
		return nil
	}, func(PageError) {})

	require.NoError(t, err)
	require.Len(t, visited, 2)
}

func TestCrawler_MaxDepthStopsTraversal(t *testing.T) {
	mux := http.NewServeMux()
	for _, p := range []string{"/0", "/1", "/2"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	links := map[string][]string{
		srv.URL + "/0": {"/1"},
		srv.URL + "/1": {"/2"},
	}

	f := fetch.NewHTTPFetcher(true)
	defer f.Close()
	c := New(f)

	var visited []string
	err := c.Crawl(context.Background(), srv.URL+"/0", Options{
		MaxPages:       10,
		MaxDepth:       1,
		Scope:          ScopeHostname,
		MaxConcurrency: 1,
	}, extractHrefs(links), func(p Page) error {
		visited = append(visited, p.URL)
		return nil
	}, func(PageError) {})

	require.NoError(t, err)
	require.Len(t, visited, 2) // depth 0 and depth 1, not depth 2
}

func TestCrawler_MaxPagesCapsFetchCount(t *testing.T) {
	mux := http.NewServeMux()
	for _, p := range []string{"/0", "/1", "/2", "/3"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	links := map[string][]string{
		srv.URL + "/0": {"/1"},
		srv.URL + "/1": {"/2"},
		srv.URL + "/2": {"/3"},
	}

	f := fetch.NewHTTPFetcher(true)
	defer f.Close()
	c := New(f)

	var visited []string
	err := c.Crawl(context.Background(), srv.URL+"/0", Options{
		MaxPages:       2,
		MaxDepth:       10,
		Scope:          ScopeHostname,
		MaxConcurrency: 1,
	}, extractHrefs(links), func(p Page) error {
		visited = append(visited, p.URL)
		return nil
	}, func(PageError) {})

	require.NoError(t, err)
	require.LessOrEqual(t, len(visited), 2)
}

func TestCrawler_ExcludePatternWinsOverInclude(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	mux.HandleFunc("/docs/keep", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	mux.HandleFunc("/docs/skip", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	links := map[string][]string{
		srv.URL + "/start": {"/docs/keep", "/docs/skip"},
	}

	f := fetch.NewHTTPFetcher(true)
	defer f.Close()
	c := New(f)

	var visited []string
	err := c.Crawl(context.Background(), srv.URL+"/start", Options{
		MaxPages:        10,
		MaxDepth:        5,
		Scope:           ScopeHostname,
		MaxConcurrency:  1,
		IncludePatterns: []string{"/docs/.*"},
		ExcludePatterns: []string{"/docs/skip"},
	}, extractHrefs(links), func(p Page) error {
		visited = append(visited, p.URL)
		return nil
	}, func(PageError) {})

	require.NoError(t, err)
	require.Contains(t, visited, srv.URL+"/docs/keep")
	require.NotContains(t, visited, srv.URL+"/docs/skip")
}

func TestCrawler_IgnoreErrorsCollectsPageErrorsAndContinues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	links := map[string][]string{
		srv.URL + "/start": {"/missing", "/ok"},
	}

	f := fetch.NewHTTPFetcher(true)
	defer f.Close()
	c := New(f)

	var visited []string
	var pageErrs []PageError
	err := c.Crawl(context.Background(), srv.URL+"/start", Options{
		MaxPages:       10,
		MaxDepth:       5,
		Scope:          ScopeHostname,
		MaxConcurrency: 1,
		IgnoreErrors:   true,
	}, extractHrefs(links), func(p Page) error {
		visited = append(visited, p.URL)
		return nil
	}, func(pe PageError) {
		pageErrs = append(pageErrs, pe)
	})

	require.NoError(t, err)
	require.Contains(t, visited, srv.URL+"/ok")
	require.Len(t, pageErrs, 1)
	require.Equal(t, srv.URL+"/missing", pageErrs[0].URL)
}

func TestCrawler_ScopeSubpagesExcludesSiblingDirectories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/docs/v1/start", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	mux.HandleFunc("/docs/v1/child", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	mux.HandleFunc("/blog/post", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	links := map[string][]string{
		srv.URL + "/docs/v1/start": {"/docs/v1/child", "/blog/post"},
	}

	f := fetch.NewHTTPFetcher(true)
	defer f.Close()
	c := New(f)

	var visited []string
	err := c.Crawl(context.Background(), srv.URL+"/docs/v1/start", Options{
		MaxPages:       10,
		MaxDepth:       5,
		Scope:          ScopeSubpages,
		MaxConcurrency: 1,
	}, extractHrefs(links), func(p Page) error {
		visited = append(visited, p.URL)
		return nil
	}, func(PageError) {})

	require.NoError(t, err)
	require.Contains(t, visited, srv.URL+"/docs/v1/child")
	require.NotContains(t, visited, srv.URL+"/blog/post")
}

func TestCrawler_CancellationStopsTraversal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "x") })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	links := map[string][]string{
		srv.URL + "/start": {"/next"},
	}

	f := fetch.NewHTTPFetcher(true)
	defer f.Close()
	c := New(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Crawl(ctx, srv.URL+"/start", Options{
		MaxPages:       10,
		MaxDepth:       5,
		Scope:          ScopeHostname,
		MaxConcurrency: 1,
	}, extractHrefs(links), func(p Page) error {
		return nil
	}, func(PageError) {})

	require.Error(t, err)
}
