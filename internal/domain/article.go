package domain

import "time"

// URLStatus enumerates the lifecycle states of a discovered URL.
type URLStatus string

const (
	StatusPending  URLStatus = "pending"
	StatusCrawled  URLStatus = "crawled"
	StatusFailed   URLStatus = "failed"
	StatusRedirect URLStatus = "redirect"
	StatusExcluded URLStatus = "excluded"
)

// URLRecord tracks every URL the crawler has ever seen. Identity is the
// SHA-256 hash of the normalized URL; records are created at first
// discovery and mutated only through the ledger.
type URLRecord struct {
	ID            int64
	URL           string
	URLHash       string
	NormalizedURL string
	Hostname      string
	Status        URLStatus
	HTTPStatus    int
	ContentHash   string
	RetryCount    int
	NextRetryAt   time.Time
	PermanentFail bool
	FirstSeen     time.Time
	LastChecked   time.Time
}

// Retryable reports whether a failed record may be fetched again now.
func (u URLRecord) Retryable(now time.Time) bool {
	if u.Status != StatusFailed || u.PermanentFail {
		return false
	}
	return u.NextRetryAt.IsZero() || !now.Before(u.NextRetryAt)
}

// ArticleRecord is accepted, stored content. The pair (URLID, ContentHash)
// is unique; the same content hash reachable from another URL is a global
// duplicate and is never stored twice.
type ArticleRecord struct {
	ID            int64
	URLID         int64
	Title         string
	Author        string
	PublishedDate time.Time
	Content       string
	ContentHash   string
	Summary       string
	IsAIRelated   bool
	Relevance     float64
	Confidence    float64
	KeyPoints     []string
	Language      string
	WordCount     int
	FirstSeen     time.Time
	LastAnalyzed  time.Time
}

// HostState is per-hostname politeness state, persisted so a restart
// cannot violate crawl etiquette.
type HostState struct {
	Hostname      string
	LastRequestAt time.Time
	CrawlDelay    time.Duration
	RobotsDelay   time.Duration
	BlockedUntil  time.Time
}

// EffectiveDelay is the pacing the host actually gets.
func (h HostState) EffectiveDelay(fallback time.Duration) time.Duration {
	delay := h.CrawlDelay
	if delay <= 0 {
		delay = fallback
	}
	if h.RobotsDelay > delay {
		delay = h.RobotsDelay
	}
	return delay
}

// Extracted is the structured result of content extraction, consumed by
// the quality gate. The extraction algorithm itself lives behind
// ports.Extractor.
type Extracted struct {
	Title       string
	Author      string
	Date        time.Time
	Text        string
	Description string
	Language    string
	WordCount   int
}

// CrawlStats summarises one crawl run. A run always terminates with these
// counts, even under partial failure.
type CrawlStats struct {
	Discovered      int
	Crawled         int
	Excluded        int
	Failed          int
	Duplicates      int
	FallbackFetches int
	Errors          int
}
