package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsCache fetches and caches robots.txt groups per host. A missing
// or unreadable robots.txt allows everything, matching crawler
// convention.
type RobotsCache struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration

	mu      sync.Mutex
	entries map[string]robotsEntry
}

type robotsEntry struct {
	group     *robotstxt.Group
	fetchedAt time.Time
}

// NewRobotsCache builds a cache whose entries expire after ttl.
func NewRobotsCache(timeout, ttl time.Duration, userAgent string) *RobotsCache {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &RobotsCache{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		ttl:       ttl,
		entries:   make(map[string]robotsEntry),
	}
}

// IsAllowed reports whether the crawler may fetch rawURL under the
// host's robots.txt rules.
func (r *RobotsCache) IsAllowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	group := r.group(ctx, parsed)
	if group == nil {
		return true
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

// CrawlDelay returns the Crawl-delay directive for the host, or zero
// when robots.txt sets none.
func (r *RobotsCache) CrawlDelay(ctx context.Context, hostname string) time.Duration {
	parsed := &url.URL{Scheme: "https", Host: hostname}
	group := r.group(ctx, parsed)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (r *RobotsCache) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	host := u.Host
	if host == "" {
		return nil
	}

	r.mu.Lock()
	entry, ok := r.entries[host]
	r.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < r.ttl {
		return entry.group
	}

	group := r.fetchGroup(ctx, u.Scheme, host)

	r.mu.Lock()
	r.entries[host] = robotsEntry{group: group, fetchedAt: time.Now()}
	r.mu.Unlock()
	return group
}

func (r *RobotsCache) fetchGroup(ctx context.Context, scheme, host string) *robotstxt.Group {
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}

	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	return robots.FindGroup(r.userAgent)
}
