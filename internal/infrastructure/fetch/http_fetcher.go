// Package fetch retrieves documents over HTTP with the politeness
// headers and status handling the crawler depends on.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"AINewsCrawler/internal/ports"
)

const defaultUserAgent = "AINewsCrawler/1.0 (+https://github.com/AINewsCrawler)"

// maxBodyBytes caps how much of a response the fetcher will read.
const maxBodyBytes = 10 << 20

// StatusError reports a non-2xx response. RetryAfter carries the
// server-supplied backoff when a 429/503 included one.
type StatusError struct {
	URL        string
	Status     int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

// HTTPFetcher implements ports.Fetcher over net/http.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

var _ ports.Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher builds a fetcher with the given request timeout.
// Redirects are followed by the underlying client; the final status is
// what gets reported.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch retrieves rawURL and returns the body and final HTTP status.
// Non-2xx responses return a *StatusError; connection-level failures
// return status 0.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{URL: rawURL, Status: resp.StatusCode}
		if d, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
			statusErr.RetryAfter = d
		}
		return string(body), resp.StatusCode, statusErr
	}
	return string(body), resp.StatusCode, nil
}

// retryAfter parses a Retry-After value given in seconds. Absolute HTTP
// dates are not supported; callers fall back to their own penalty.
func retryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
