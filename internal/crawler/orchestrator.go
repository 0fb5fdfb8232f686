package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"AINewsCrawler/internal/dedup"
	"AINewsCrawler/internal/domain"
	"AINewsCrawler/internal/infrastructure/fetch"
	"AINewsCrawler/internal/ports"
	"AINewsCrawler/internal/quality"
)

// Seed is one configured news section to walk.
type Seed struct {
	Name string
	URL  string
}

// RobotsPolicy answers robots.txt questions for the orchestrator. A nil
// policy allows everything.
type RobotsPolicy interface {
	IsAllowed(ctx context.Context, rawURL string) bool
	CrawlDelay(ctx context.Context, hostname string) time.Duration
}

// robotsDelaySetter is implemented by gates that persist robots pacing.
type robotsDelaySetter interface {
	SetRobotsDelay(hostname string, d time.Duration)
}

// Config bounds one crawl run.
type Config struct {
	MaxDepth           int
	MaxConcurrentHosts int
	BlockPenalty       time.Duration
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Ledger    ports.URLLedger
	Gate      ports.FetchGate
	Fetcher   ports.Fetcher
	Fallback  ports.FallbackFetcher
	Extractor ports.Extractor
	Quality   *quality.Gate
	Robots    RobotsPolicy
	Seen      *dedup.BloomFilter
	Logger    *slog.Logger
}

// Orchestrator drives BFS crawls over the configured seeds.
type Orchestrator struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// NewOrchestrator validates dependencies and applies config defaults.
func NewOrchestrator(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Ledger == nil || deps.Gate == nil || deps.Fetcher == nil ||
		deps.Extractor == nil || deps.Quality == nil {
		return nil, errors.New("crawler: missing required dependency")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Seen == nil {
		deps.Seen = dedup.NewBloomFilter(1<<20, 4)
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 10
	}
	if cfg.MaxConcurrentHosts <= 0 {
		cfg.MaxConcurrentHosts = 8
	}
	if cfg.BlockPenalty <= 0 {
		cfg.BlockPenalty = 5 * time.Minute
	}
	return &Orchestrator{deps: deps, cfg: cfg, now: time.Now}, nil
}

// Crawl walks every seed and returns aggregate stats. Each seed crawls
// in its own goroutine; the semaphore bounds how many hosts are worked
// at once. Crawl always returns stats, even when the context expires
// mid-run.
func (o *Orchestrator) Crawl(ctx context.Context, seeds []Seed) domain.CrawlStats {
	sem := make(chan struct{}, o.cfg.MaxConcurrentHosts)

	var (
		mu    sync.Mutex
		total domain.CrawlStats
		wg    sync.WaitGroup
	)

	for _, seed := range seeds {
		wg.Add(1)
		go func(seed Seed) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			stats := o.crawlSeed(ctx, seed)
			mu.Lock()
			addStats(&total, stats)
			mu.Unlock()
		}(seed)
	}
	wg.Wait()

	o.deps.Logger.Info("crawl finished",
		"discovered", total.Discovered,
		"crawled", total.Crawled,
		"excluded", total.Excluded,
		"failed", total.Failed,
		"duplicates", total.Duplicates,
		"fallback_fetches", total.FallbackFetches,
		"errors", total.Errors,
	)
	return total
}

type pageKind int

const (
	pageListing pageKind = iota
	pageArticle
)

type queueItem struct {
	url   string
	depth int
	kind  pageKind
}

func (o *Orchestrator) crawlSeed(ctx context.Context, seed Seed) domain.CrawlStats {
	var stats domain.CrawlStats
	log := o.deps.Logger.With("source", seed.Name)

	queue := []queueItem{{url: seed.URL, depth: 0, kind: pageListing}}
	visited := make(map[string]struct{})

	for len(queue) > 0 {
		if ctx.Err() != nil {
			log.Warn("crawl cut short", "reason", ctx.Err())
			return stats
		}

		item := queue[0]
		queue = queue[1:]

		normalized := dedup.NormalizeURL(item.url)
		if _, ok := visited[normalized]; ok {
			continue
		}
		visited[normalized] = struct{}{}

		links := o.visit(ctx, log, item, &stats)
		if item.depth >= o.cfg.MaxDepth {
			continue
		}
		for _, next := range links.Pagination {
			queue = append(queue, queueItem{url: next, depth: item.depth + 1, kind: pageListing})
		}
		for _, next := range links.Articles {
			queue = append(queue, queueItem{url: next, depth: item.depth + 1, kind: pageArticle})
		}
	}
	return stats
}

// visit processes one URL end to end and returns any links to follow.
func (o *Orchestrator) visit(ctx context.Context, log *slog.Logger, item queueItem, stats *domain.CrawlStats) ExtractedLinks {
	hostname := dedup.Hostname(item.url)
	if hostname == "" {
		return ExtractedLinks{}
	}
	if item.kind == pageListing {
		return o.visitListing(ctx, log, item.url, hostname, stats)
	}
	return o.visitArticle(ctx, log, item.url, hostname, stats)
}

// visitListing fetches a seed or pagination page. Listings are discovery
// surfaces: they are fetched on every run and never enter the ledger, so
// a scheduled deployment keeps finding articles published after the
// first pass.
func (o *Orchestrator) visitListing(ctx context.Context, log *slog.Logger, rawURL, hostname string, stats *domain.CrawlStats) ExtractedLinks {
	if o.deps.Robots != nil {
		if !o.deps.Robots.IsAllowed(ctx, rawURL) {
			log.Debug("robots disallow", "url", rawURL)
			return ExtractedLinks{}
		}
		o.applyRobotsDelay(ctx, hostname)
	}

	body, _, err := o.fetchPaced(ctx, hostname, rawURL)
	if err != nil {
		body = o.recoverListing(ctx, log, rawURL, hostname, err)
		if body == "" {
			stats.Errors++
			return ExtractedLinks{}
		}
		stats.FallbackFetches++
	}

	links, err := ExtractLinks(body, rawURL)
	if err != nil {
		log.Warn("link extraction failed", "url", rawURL, "error", err)
	}
	return links
}

// visitArticle runs an article candidate through the ledger, the gate,
// the quality checkpoint, and finally the commit.
func (o *Orchestrator) visitArticle(ctx context.Context, log *slog.Logger, rawURL, hostname string, stats *domain.CrawlStats) ExtractedLinks {
	urlHash := dedup.URLHash(rawURL)

	// Bloom hit plus a confirmed terminal record means skip without I/O.
	// Only article candidates get this treatment; listings never do.
	if o.deps.Seen.Contains(urlHash) {
		if rec, err := o.deps.Ledger.Lookup(ctx, urlHash); err == nil && !o.shouldFetch(rec) {
			if rec.Status == domain.StatusCrawled {
				stats.Duplicates++
			}
			return ExtractedLinks{}
		}
	}

	rec, created, err := o.deps.Ledger.Register(ctx, rawURL, hostname)
	if err != nil {
		log.Error("register url", "url", rawURL, "error", err)
		stats.Errors++
		return ExtractedLinks{}
	}
	o.deps.Seen.Add(urlHash)
	if created {
		stats.Discovered++
	} else if !o.shouldFetch(rec) {
		if rec.Status == domain.StatusCrawled {
			stats.Duplicates++
		}
		return ExtractedLinks{}
	}

	if o.deps.Robots != nil {
		if !o.deps.Robots.IsAllowed(ctx, rawURL) {
			log.Debug("robots disallow", "url", rawURL)
			o.markOutcome(ctx, log, rec.URLHash, domain.StatusExcluded, 0)
			stats.Excluded++
			return ExtractedLinks{}
		}
		o.applyRobotsDelay(ctx, hostname)
	}

	body, status, fetchErr := o.fetchPaced(ctx, hostname, rawURL)
	if fetchErr != nil {
		body = o.handleFetchFailure(ctx, log, rawURL, rec, hostname, status, fetchErr, stats)
		if body == "" {
			return ExtractedLinks{}
		}
		stats.FallbackFetches++
	}

	links, err := ExtractLinks(body, rawURL)
	if err != nil {
		log.Warn("link extraction failed", "url", rawURL, "error", err)
	}

	o.processContent(ctx, log, rawURL, rec, body, stats)
	return links
}

// fetchPaced waits for the host's slot, then fetches. The slot is
// claimed at issue time, not completion, so concurrent same-host work
// stays spaced even while this request is still in flight.
func (o *Orchestrator) fetchPaced(ctx context.Context, hostname, rawURL string) (string, int, error) {
	if err := o.deps.Gate.WaitUntilAllowed(ctx, hostname); err != nil {
		return "", 0, err
	}
	return o.deps.Fetcher.Fetch(ctx, rawURL)
}

func (o *Orchestrator) applyRobotsDelay(ctx context.Context, hostname string) {
	delay := o.deps.Robots.CrawlDelay(ctx, hostname)
	if delay <= 0 {
		return
	}
	if setter, ok := o.deps.Gate.(robotsDelaySetter); ok {
		setter.SetRobotsDelay(hostname, delay)
	}
}

// shouldFetch reports whether an existing record warrants another fetch.
func (o *Orchestrator) shouldFetch(rec domain.URLRecord) bool {
	switch rec.Status {
	case domain.StatusPending:
		return true
	case domain.StatusFailed:
		return rec.Retryable(o.now())
	default:
		return false
	}
}

// recoverListing classifies a failed listing fetch. There is no ledger
// record to mark; the fallback path is still tried so a refused listing
// can be read through the gateway.
func (o *Orchestrator) recoverListing(ctx context.Context, log *slog.Logger, rawURL, hostname string, fetchErr error) string {
	if ctx.Err() != nil {
		return ""
	}

	var statusErr *fetch.StatusError
	if errors.As(fetchErr, &statusErr) {
		switch {
		case statusErr.Status == http.StatusTooManyRequests || statusErr.Status == http.StatusServiceUnavailable:
			penalty := o.cfg.BlockPenalty
			if statusErr.RetryAfter > 0 {
				penalty = statusErr.RetryAfter
			}
			o.deps.Gate.Block(hostname, penalty)
			log.Warn("host rate limited", "url", rawURL, "status", statusErr.Status, "penalty", penalty)
			return ""

		case statusErr.Status == http.StatusForbidden || statusErr.Status == http.StatusNotFound:
			return o.tryFallback(ctx, log, rawURL)

		default:
			log.Warn("listing fetch failed", "url", rawURL, "status", statusErr.Status)
			return ""
		}
	}

	log.Warn("listing fetch failed", "url", rawURL, "error", fetchErr)
	return o.tryFallback(ctx, log, rawURL)
}

// handleFetchFailure classifies a failed article fetch. It returns a
// fallback body when the single alternate retrieval path succeeded,
// otherwise "".
func (o *Orchestrator) handleFetchFailure(ctx context.Context, log *slog.Logger, rawURL string, rec domain.URLRecord, hostname string, status int, fetchErr error, stats *domain.CrawlStats) string {
	if ctx.Err() != nil {
		return ""
	}

	var statusErr *fetch.StatusError
	if errors.As(fetchErr, &statusErr) {
		switch {
		case statusErr.Status == http.StatusTooManyRequests || statusErr.Status == http.StatusServiceUnavailable:
			penalty := o.cfg.BlockPenalty
			if statusErr.RetryAfter > 0 {
				penalty = statusErr.RetryAfter
			}
			o.deps.Gate.Block(hostname, penalty)
			log.Warn("host rate limited", "url", rawURL, "status", statusErr.Status, "penalty", penalty)
			o.markFailure(ctx, log, rec.URLHash, statusErr.Status, stats)
			return ""

		case statusErr.Status >= 300 && statusErr.Status < 400:
			o.markOutcome(ctx, log, rec.URLHash, domain.StatusRedirect, statusErr.Status)
			return ""

		case statusErr.Status == http.StatusForbidden || statusErr.Status == http.StatusNotFound:
			if body := o.tryFallback(ctx, log, rawURL); body != "" {
				return body
			}
			o.markFailure(ctx, log, rec.URLHash, statusErr.Status, stats)
			return ""

		default:
			o.markFailure(ctx, log, rec.URLHash, statusErr.Status, stats)
			return ""
		}
	}

	// Connection-level failure: no HTTP status at all.
	if body := o.tryFallback(ctx, log, rawURL); body != "" {
		return body
	}
	log.Warn("fetch failed", "url", rawURL, "error", fetchErr)
	o.markFailure(ctx, log, rec.URLHash, status, stats)
	return ""
}

// tryFallback attempts the alternate retrieval path once.
func (o *Orchestrator) tryFallback(ctx context.Context, log *slog.Logger, rawURL string) string {
	if o.deps.Fallback == nil {
		return ""
	}
	body, err := o.deps.Fallback.FetchFallback(ctx, rawURL)
	if err != nil {
		log.Debug("fallback fetch failed", "url", rawURL, "error", err)
		return ""
	}
	log.Info("fallback fetch succeeded", "url", rawURL)
	return body
}

// processContent extracts, validates, and commits one page's content.
func (o *Orchestrator) processContent(ctx context.Context, log *slog.Logger, rawURL string, rec domain.URLRecord, body string, stats *domain.CrawlStats) {
	extracted, err := o.deps.Extractor.Extract(body, rawURL)
	if err != nil {
		log.Debug("extraction failed", "url", rawURL, "error", err)
		o.markOutcome(ctx, log, rec.URLHash, domain.StatusExcluded, http.StatusOK)
		stats.Excluded++
		return
	}

	if err := o.deps.Quality.Check(extracted, rawURL); err != nil {
		var rejection *quality.RejectionError
		if errors.As(err, &rejection) {
			log.Debug("content rejected", "url", rawURL, "reason", rejection.Reason)
		}
		o.markOutcome(ctx, log, rec.URLHash, domain.StatusExcluded, http.StatusOK)
		stats.Excluded++
		return
	}

	article := domain.ArticleRecord{
		URLID:         rec.ID,
		Title:         extracted.Title,
		Author:        extracted.Author,
		PublishedDate: extracted.Date,
		Content:       extracted.Text,
		ContentHash:   dedup.ContentHash(extracted.Text),
		Language:      extracted.Language,
		WordCount:     extracted.WordCount,
	}

	stored, createdArticle, err := o.deps.Ledger.CommitArticle(ctx, rec, article)
	if err != nil {
		log.Error("commit article", "url", rawURL, "error", err)
		stats.Errors++
		return
	}
	if createdArticle {
		stats.Crawled++
		log.Info("article stored", "url", rawURL, "title", stored.Title, "words", stored.WordCount)
	} else {
		stats.Duplicates++
		log.Debug("duplicate content", "url", rawURL, "article_id", stored.ID)
	}
}

func (o *Orchestrator) markFailure(ctx context.Context, log *slog.Logger, urlHash string, status int, stats *domain.CrawlStats) {
	if _, err := o.deps.Ledger.MarkFailure(ctx, urlHash, status); err != nil {
		log.Error("mark failure", "url_hash", urlHash, "error", err)
		stats.Errors++
		return
	}
	stats.Failed++
}

func (o *Orchestrator) markOutcome(ctx context.Context, log *slog.Logger, urlHash string, status domain.URLStatus, httpStatus int) {
	if err := o.deps.Ledger.MarkOutcome(ctx, urlHash, status, httpStatus); err != nil {
		log.Error("mark outcome", "url_hash", urlHash, "error", err)
	}
}

func addStats(total *domain.CrawlStats, s domain.CrawlStats) {
	total.Discovered += s.Discovered
	total.Crawled += s.Crawled
	total.Excluded += s.Excluded
	total.Failed += s.Failed
	total.Duplicates += s.Duplicates
	total.FallbackFetches += s.FallbackFetches
	total.Errors += s.Errors
}
