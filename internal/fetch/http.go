package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// HTTPFetcher retrieves resources over http(s), honoring conditional-request
// headers and redirect capture (§4.2). Its retry backoff shape is
// generalized from download-retry to fetch-retry, classified by
// transient vs. permanent (§7).
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. followRedirects controls whether
// the client auto-follows redirects (the final URL becomes the canonical
// page URL per §4.2) or stops at the first 3xx so the caller can classify it
// itself (used by the refresh engine, §4.5).
func NewHTTPFetcher(followRedirects bool) *HTTPFetcher {
	client := &http.Client{Timeout: 30 * time.Second}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &HTTPFetcher{client: client}
}

// CanFetch reports whether url has an http(s) scheme.
func (f *HTTPFetcher) CanFetch(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Fetch retrieves a single resource, retrying transient failures with
// exponential backoff up to opts.MaxRetries (§4.2, §7).
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	delay := time.Second
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := f.fetchOnce(ctx, rawURL, opts, timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if docerrors.GetKind(err) != docerrors.KindTransientFetch {
			return nil, err
		}
		if attempt >= maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > 16*time.Second {
			delay = 16 * time.Second
		}
	}
	return nil, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string, opts Options, timeout time.Duration) (*Result, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, docerrors.Wrap(docerrors.ErrCodeInvalidInput, err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if opts.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", opts.IfNoneMatch)
	}
	if opts.IfModifiedSince != "" {
		req.Header.Set("If-Modified-Since", opts.IfModifiedSince)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "docindex/1.0 (+documentation indexer)")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return nil, docerrors.PermanentFetch(fmt.Sprintf("fetch %s: %v", rawURL, err), err)
		}
		if fetchCtx.Err() != nil {
			return nil, docerrors.New(docerrors.ErrCodeNetworkTimeout, fmt.Sprintf("fetch %s: %v", rawURL, err), err)
		}
		return nil, docerrors.New(docerrors.ErrCodeNetworkTimeout, fmt.Sprintf("fetch %s: %v", rawURL, err), err)
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &Result{URL: finalURL, StatusCode: resp.StatusCode, NotModified: true}, nil
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc := resp.Header.Get("Location")
		return &Result{URL: loc, StatusCode: resp.StatusCode}, nil
	case resp.StatusCode == http.StatusNotFound:
		return &Result{URL: finalURL, StatusCode: resp.StatusCode}, nil
	case resp.StatusCode >= 500:
		return nil, docerrors.New(docerrors.ErrCodeNetworkTimeout,
			fmt.Sprintf("fetch %s: server error %d", rawURL, resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, docerrors.New(docerrors.ErrCodeFetchPermanent,
			fmt.Sprintf("fetch %s: status %d", rawURL, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeNetworkTimeout, fmt.Sprintf("read body %s: %v", rawURL, err), err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	return &Result{
		URL:          finalURL,
		Content:      body,
		MimeType:     mimeType,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		StatusCode:   resp.StatusCode,
	}, nil
}

// Close releases the underlying HTTP client's idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
