package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"AINewsCrawler/internal/ports"
)

// ReaderGateway retrieves pages through a reader proxy endpoint when the
// direct fetch was refused. The gateway expects the target URL appended
// to its base path.
type ReaderGateway struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

var _ ports.FallbackFetcher = (*ReaderGateway)(nil)

// NewReaderGateway builds the fallback fetcher. An empty endpoint
// disables it; callers should check with Enabled.
func NewReaderGateway(endpoint string, timeout time.Duration, userAgent string) *ReaderGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &ReaderGateway{
		client:    &http.Client{Timeout: timeout},
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		userAgent: userAgent,
	}
}

// Enabled reports whether a gateway endpoint is configured.
func (g *ReaderGateway) Enabled() bool {
	return g.endpoint != ""
}

// FetchFallback retrieves rawURL through the gateway.
func (g *ReaderGateway) FetchFallback(ctx context.Context, rawURL string) (string, error) {
	if !g.Enabled() {
		return "", fmt.Errorf("fallback gateway not configured")
	}

	proxied := g.endpoint + "/" + url.QueryEscape(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxied, nil)
	if err != nil {
		return "", fmt.Errorf("create fallback request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fallback fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fallback fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read fallback body: %w", err)
	}
	return string(body), nil
}
