// Package storage implements the dedup ledger and host-state store on a
// transactional SQL database. Production runs on Postgres (lib/pq);
// tests run the same code on in-memory sqlite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"AINewsCrawler/internal/dedup"
	"AINewsCrawler/internal/domain"
	"AINewsCrawler/internal/ports"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const urlColumns = "url_id, url, url_hash, normalized_url, hostname, status, http_status, content_hash, retry_count, next_retry_at, permanent_fail, first_seen, last_checked"

const articleColumns = "article_id, url_id, title, author, published_date, content, content_hash, summary, is_ai_related, relevance, confidence, key_points, language, word_count, first_seen, last_analyzed"

// Ledger persists URLRecords, ArticleRecords, and HostState with the
// uniqueness guarantees the pipeline's dedup semantics rest on.
type Ledger struct {
	db          *sql.DB
	driver      string
	sb          sq.StatementBuilderType
	maxRetries  int
	backoffBase time.Duration
	now         func() time.Time
}

var (
	_ ports.URLLedger      = (*Ledger)(nil)
	_ ports.HostStateStore = (*Ledger)(nil)
)

// NewLedger wires a sql.DB. The driver name selects placeholder style
// and DDL dialect.
func NewLedger(db *sql.DB, driver string, maxRetries int, backoffBase time.Duration) *Ledger {
	placeholder := sq.PlaceholderFormat(sq.Dollar)
	if driver == DriverSQLite {
		placeholder = sq.Question
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoffBase <= 0 {
		backoffBase = time.Minute
	}
	return &Ledger{
		db:          db,
		driver:      driver,
		sb:          sq.StatementBuilder.PlaceholderFormat(placeholder),
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		now:         time.Now,
	}
}

// Lookup fetches the URLRecord with the given hash.
func (l *Ledger) Lookup(ctx context.Context, urlHash string) (domain.URLRecord, error) {
	query, args, err := l.sb.
		Select(strings.Split(urlColumns, ", ")...).
		From("urls").
		Where(sq.Eq{"url_hash": urlHash}).
		ToSql()
	if err != nil {
		return domain.URLRecord{}, fmt.Errorf("build lookup: %w", err)
	}

	rec, err := scanURLRecord(l.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.URLRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.URLRecord{}, fmt.Errorf("lookup url: %w", err)
	}
	return rec, nil
}

// Register creates a pending URLRecord for rawURL, or returns the
// existing one unchanged. Losing the unique-constraint race against a
// concurrent caller is resolved by re-fetching the winner.
func (l *Ledger) Register(ctx context.Context, rawURL, hostname string) (domain.URLRecord, bool, error) {
	normalized := dedup.NormalizeURL(rawURL)
	urlHash := dedup.URLHash(rawURL)

	if rec, err := l.Lookup(ctx, urlHash); err == nil {
		return rec, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.URLRecord{}, false, err
	}

	query, args, err := l.sb.
		Insert("urls").
		Columns("url", "url_hash", "normalized_url", "hostname", "status", "first_seen").
		Values(rawURL, urlHash, normalized, hostname, string(domain.StatusPending), l.now().UTC()).
		ToSql()
	if err != nil {
		return domain.URLRecord{}, false, fmt.Errorf("build register: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		if !isUniqueViolation(err) {
			return domain.URLRecord{}, false, fmt.Errorf("register url: %w", err)
		}
		// A concurrent caller registered first; hand back the winner.
		rec, lookupErr := l.Lookup(ctx, urlHash)
		if lookupErr != nil {
			return domain.URLRecord{}, false, fmt.Errorf("reload after lost race: %w", lookupErr)
		}
		return rec, false, nil
	}

	rec, err := l.Lookup(ctx, urlHash)
	if err != nil {
		return domain.URLRecord{}, false, fmt.Errorf("reload registered url: %w", err)
	}
	return rec, true, nil
}

// IsContentDuplicate returns the first stored article carrying the given
// content hash, regardless of which URL it arrived from.
func (l *Ledger) IsContentDuplicate(ctx context.Context, contentHash string) (domain.ArticleRecord, error) {
	return l.contentDuplicate(ctx, l.db, contentHash)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *Ledger) contentDuplicate(ctx context.Context, q queryer, contentHash string) (domain.ArticleRecord, error) {
	query, args, err := l.sb.
		Select(strings.Split(articleColumns, ", ")...).
		From("articles").
		Where(sq.Eq{"content_hash": contentHash}).
		OrderBy("article_id").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.ArticleRecord{}, fmt.Errorf("build duplicate check: %w", err)
	}

	article, err := scanArticleRecord(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ArticleRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ArticleRecord{}, fmt.Errorf("check content duplicate: %w", err)
	}
	return article, nil
}

// CommitArticle atomically stores accepted content. When the content hash
// already exists anywhere in the ledger, the URLRecord is marked crawled
// with its content_hash pointer updated and no new row is created; the
// returned bool reports whether a new ArticleRecord was inserted.
func (l *Ledger) CommitArticle(ctx context.Context, rec domain.URLRecord, article domain.ArticleRecord) (domain.ArticleRecord, bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ArticleRecord{}, false, fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, dupErr := l.contentDuplicate(ctx, tx, article.ContentHash)
	if dupErr == nil {
		if err := l.markCrawledOn(ctx, tx, rec.URLHash, article.ContentHash); err != nil {
			return domain.ArticleRecord{}, false, err
		}
		if err := tx.Commit(); err != nil {
			return domain.ArticleRecord{}, false, fmt.Errorf("commit duplicate: %w", err)
		}
		return existing, false, nil
	}
	if !errors.Is(dupErr, domain.ErrNotFound) {
		return domain.ArticleRecord{}, false, dupErr
	}

	insert, args, err := l.sb.
		Insert("articles").
		Columns("url_id", "title", "author", "published_date", "content", "content_hash",
			"summary", "language", "word_count", "first_seen").
		Values(rec.ID, article.Title, article.Author, nullTime(article.PublishedDate),
			article.Content, article.ContentHash, article.Summary,
			defaultLanguage(article.Language), article.WordCount, l.now().UTC()).
		ToSql()
	if err != nil {
		return domain.ArticleRecord{}, false, fmt.Errorf("build article insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		if !isUniqueViolation(err) {
			return domain.ArticleRecord{}, false, fmt.Errorf("insert article: %w", err)
		}
		// (url_id, content_hash) race: another worker committed the same
		// content between our check and insert. The transaction is dead
		// after the violation, so recover outside it.
		_ = tx.Rollback()
		winner, raceErr := l.contentDuplicate(ctx, l.db, article.ContentHash)
		if raceErr != nil {
			return domain.ArticleRecord{}, false, fmt.Errorf("resolve commit race: %w", raceErr)
		}
		if err := l.markCrawled(ctx, rec.URLHash, article.ContentHash); err != nil {
			return domain.ArticleRecord{}, false, err
		}
		return winner, false, nil
	}

	if err := l.markCrawledOn(ctx, tx, rec.URLHash, article.ContentHash); err != nil {
		return domain.ArticleRecord{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ArticleRecord{}, false, fmt.Errorf("commit article: %w", err)
	}

	stored, err := l.contentDuplicate(ctx, l.db, article.ContentHash)
	if err != nil {
		return domain.ArticleRecord{}, false, fmt.Errorf("reload committed article: %w", err)
	}
	return stored, true, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (l *Ledger) markCrawledOn(ctx context.Context, db execer, urlHash, contentHash string) error {
	update, args, err := l.sb.
		Update("urls").
		Set("status", string(domain.StatusCrawled)).
		Set("content_hash", contentHash).
		Set("http_status", 200).
		Set("last_checked", l.now().UTC()).
		Where(sq.Eq{"url_hash": urlHash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark crawled: %w", err)
	}
	if _, err := db.ExecContext(ctx, update, args...); err != nil {
		return fmt.Errorf("mark crawled: %w", err)
	}
	return nil
}

func (l *Ledger) markCrawled(ctx context.Context, urlHash, contentHash string) error {
	return l.markCrawledOn(ctx, l.db, urlHash, contentHash)
}

// isUniqueViolation recognizes unique-constraint errors from both
// supported drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// MarkOutcome records a terminal-per-attempt outcome (failed without
// retry budget tracking, excluded, redirect).
func (l *Ledger) MarkOutcome(ctx context.Context, urlHash string, status domain.URLStatus, httpStatus int) error {
	update, args, err := l.sb.
		Update("urls").
		Set("status", string(status)).
		Set("http_status", httpStatus).
		Set("last_checked", l.now().UTC()).
		Where(sq.Eq{"url_hash": urlHash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark outcome: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, update, args...); err != nil {
		return fmt.Errorf("mark outcome: %w", err)
	}
	return nil
}

// MarkFailure advances the retry ladder: increments retry_count, applies
// exponential backoff to next_retry_at, and sets permanent_fail once the
// retry budget is exhausted.
func (l *Ledger) MarkFailure(ctx context.Context, urlHash string, httpStatus int) (domain.URLRecord, error) {
	rec, err := l.Lookup(ctx, urlHash)
	if err != nil {
		return domain.URLRecord{}, err
	}

	retryCount := rec.RetryCount + 1
	permanent := retryCount >= l.maxRetries
	nextRetry := l.now().UTC().Add(l.backoffBase << (retryCount - 1))

	update, args, err := l.sb.
		Update("urls").
		Set("status", string(domain.StatusFailed)).
		Set("http_status", httpStatus).
		Set("retry_count", retryCount).
		Set("next_retry_at", nextRetry).
		Set("permanent_fail", permanent).
		Set("last_checked", l.now().UTC()).
		Where(sq.Eq{"url_hash": urlHash}).
		ToSql()
	if err != nil {
		return domain.URLRecord{}, fmt.Errorf("build mark failure: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, update, args...); err != nil {
		return domain.URLRecord{}, fmt.Errorf("mark failure: %w", err)
	}

	return l.Lookup(ctx, urlHash)
}

// RecordAnalysis persists the consensus verdict onto the article row.
func (l *Ledger) RecordAnalysis(ctx context.Context, articleID int64, consensus domain.ConsensusResult) error {
	update, args, err := l.sb.
		Update("articles").
		Set("summary", consensus.Summary).
		Set("is_ai_related", consensus.IsAIRelated).
		Set("relevance", consensus.Relevance).
		Set("confidence", consensus.Confidence).
		Set("key_points", strings.Join(consensus.KeyPoints, "\n")).
		Set("last_analyzed", l.now().UTC()).
		Where(sq.Eq{"article_id": articleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record analysis: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, update, args...); err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}
	return nil
}

// PendingAnalysis lists stored articles that have never been analyzed.
func (l *Ledger) PendingAnalysis(ctx context.Context, limit int) ([]domain.ArticleRecord, error) {
	builder := l.sb.
		Select(strings.Split(articleColumns, ", ")...).
		From("articles").
		Where(sq.Eq{"last_analyzed": nil}).
		OrderBy("article_id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending analysis: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending analysis: %w", err)
	}
	defer rows.Close()

	var articles []domain.ArticleRecord
	for rows.Next() {
		article, err := scanArticleRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending articles: %w", err)
	}
	return articles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanURLRecord(row rowScanner) (domain.URLRecord, error) {
	var (
		rec         domain.URLRecord
		status      string
		nextRetry   sql.NullTime
		lastChecked sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.URL, &rec.URLHash, &rec.NormalizedURL, &rec.Hostname,
		&status, &rec.HTTPStatus, &rec.ContentHash, &rec.RetryCount,
		&nextRetry, &rec.PermanentFail, &rec.FirstSeen, &lastChecked)
	if err != nil {
		return domain.URLRecord{}, err
	}
	rec.Status = domain.URLStatus(status)
	rec.ContentHash = strings.TrimSpace(rec.ContentHash)
	if nextRetry.Valid {
		rec.NextRetryAt = nextRetry.Time
	}
	if lastChecked.Valid {
		rec.LastChecked = lastChecked.Time
	}
	return rec, nil
}

func scanArticleRecord(row rowScanner) (domain.ArticleRecord, error) {
	var (
		article      domain.ArticleRecord
		published    sql.NullTime
		lastAnalyzed sql.NullTime
		keyPoints    string
	)
	err := row.Scan(&article.ID, &article.URLID, &article.Title, &article.Author,
		&published, &article.Content, &article.ContentHash, &article.Summary,
		&article.IsAIRelated, &article.Relevance, &article.Confidence,
		&keyPoints, &article.Language, &article.WordCount,
		&article.FirstSeen, &lastAnalyzed)
	if err != nil {
		return domain.ArticleRecord{}, err
	}
	article.ContentHash = strings.TrimSpace(article.ContentHash)
	article.Language = strings.TrimSpace(article.Language)
	if published.Valid {
		article.PublishedDate = published.Time
	}
	if lastAnalyzed.Valid {
		article.LastAnalyzed = lastAnalyzed.Time
	}
	if keyPoints != "" {
		article.KeyPoints = strings.Split(keyPoints, "\n")
	}
	return article, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func defaultLanguage(lang string) string {
	if lang == "" {
		return "en"
	}
	return lang
}
