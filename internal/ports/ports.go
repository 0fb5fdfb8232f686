package ports

import (
	"context"
	"time"

	"AINewsCrawler/internal/domain"
)

// URLLedger is the system of record for "has this URL/content been seen".
// Register and CommitArticle must be race-safe per hash: concurrent losers
// of the unique constraint get the winning record back, not an error.
type URLLedger interface {
	Lookup(ctx context.Context, urlHash string) (domain.URLRecord, error)
	Register(ctx context.Context, rawURL, hostname string) (domain.URLRecord, bool, error)
	IsContentDuplicate(ctx context.Context, contentHash string) (domain.ArticleRecord, error)
	CommitArticle(ctx context.Context, rec domain.URLRecord, article domain.ArticleRecord) (domain.ArticleRecord, bool, error)
	MarkOutcome(ctx context.Context, urlHash string, status domain.URLStatus, httpStatus int) error
	MarkFailure(ctx context.Context, urlHash string, httpStatus int) (domain.URLRecord, error)
	RecordAnalysis(ctx context.Context, articleID int64, consensus domain.ConsensusResult) error
	PendingAnalysis(ctx context.Context, limit int) ([]domain.ArticleRecord, error)
}

// HostStateStore persists per-host politeness state across restarts.
type HostStateStore interface {
	HostState(ctx context.Context, hostname string) (domain.HostState, error)
	SaveHostState(ctx context.Context, state domain.HostState) error
}

// FetchGate decides whether and when a request to a host may proceed.
// Callers must call WaitUntilAllowed before every fetch; a successful
// return claims the host's request slot, so the fetch should follow
// immediately.
type FetchGate interface {
	WaitUntilAllowed(ctx context.Context, hostname string) error
	CanProceedNow(hostname string) bool
	Block(hostname string, d time.Duration)
}

// Fetcher retrieves a document over the network.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (body string, httpStatus int, err error)
}

// FallbackFetcher is the single alternate retrieval path tried after
// 403/404/connection-level failures.
type FallbackFetcher interface {
	FetchFallback(ctx context.Context, rawURL string) (body string, err error)
}

// Extractor turns raw HTML into structured article fields, or fails.
// Acceptance rules (word counts, staleness) live in the quality gate,
// not here.
type Extractor interface {
	Extract(html, rawURL string) (domain.Extracted, error)
}

// CompletionClient is one AI provider's text-completion call. Failures
// surface as errors the consensus engine must isolate.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Model() string
}

// Notifier delivers the run digest downstream.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
