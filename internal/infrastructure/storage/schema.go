package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema DDL per driver. The unique constraints on url_hash and
// (url_id, content_hash) are what make Register and CommitArticle safe
// under concurrency: losing a constraint race is control flow, not an
// error.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS urls (
        url_id BIGSERIAL PRIMARY KEY,
        url TEXT NOT NULL,
        url_hash CHAR(64) NOT NULL UNIQUE,
        normalized_url TEXT NOT NULL,
        hostname VARCHAR(255) NOT NULL,
        status VARCHAR(20) NOT NULL DEFAULT 'pending',
        http_status SMALLINT NOT NULL DEFAULT 0,
        content_hash CHAR(64) NOT NULL DEFAULT '',
        retry_count SMALLINT NOT NULL DEFAULT 0,
        next_retry_at TIMESTAMPTZ,
        permanent_fail BOOLEAN NOT NULL DEFAULT FALSE,
        first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        last_checked TIMESTAMPTZ
    )`,
	`CREATE INDEX IF NOT EXISTS idx_urls_hostname ON urls (hostname)`,
	`CREATE INDEX IF NOT EXISTS idx_urls_status ON urls (status)`,
	`CREATE TABLE IF NOT EXISTS articles (
        article_id BIGSERIAL PRIMARY KEY,
        url_id BIGINT NOT NULL REFERENCES urls (url_id),
        title TEXT NOT NULL DEFAULT '',
        author VARCHAR(255) NOT NULL DEFAULT '',
        published_date TIMESTAMPTZ,
        content TEXT NOT NULL DEFAULT '',
        content_hash CHAR(64) NOT NULL,
        summary TEXT NOT NULL DEFAULT '',
        is_ai_related BOOLEAN NOT NULL DEFAULT FALSE,
        relevance DOUBLE PRECISION NOT NULL DEFAULT 0,
        confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
        key_points TEXT NOT NULL DEFAULT '',
        language CHAR(2) NOT NULL DEFAULT 'en',
        word_count INTEGER NOT NULL DEFAULT 0,
        first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        last_analyzed TIMESTAMPTZ,
        CONSTRAINT unique_url_content UNIQUE (url_id, content_hash)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_articles_content_hash ON articles (content_hash)`,
	`CREATE TABLE IF NOT EXISTS host_crawl_state (
        hostname VARCHAR(255) PRIMARY KEY,
        last_request_at TIMESTAMPTZ,
        crawl_delay_ms BIGINT NOT NULL DEFAULT 0,
        robots_delay_ms BIGINT NOT NULL DEFAULT 0,
        blocked_until TIMESTAMPTZ
    )`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS urls (
        url_id INTEGER PRIMARY KEY AUTOINCREMENT,
        url TEXT NOT NULL,
        url_hash TEXT NOT NULL UNIQUE,
        normalized_url TEXT NOT NULL,
        hostname TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending',
        http_status INTEGER NOT NULL DEFAULT 0,
        content_hash TEXT NOT NULL DEFAULT '',
        retry_count INTEGER NOT NULL DEFAULT 0,
        next_retry_at DATETIME,
        permanent_fail BOOLEAN NOT NULL DEFAULT 0,
        first_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        last_checked DATETIME
    )`,
	`CREATE INDEX IF NOT EXISTS idx_urls_hostname ON urls (hostname)`,
	`CREATE INDEX IF NOT EXISTS idx_urls_status ON urls (status)`,
	`CREATE TABLE IF NOT EXISTS articles (
        article_id INTEGER PRIMARY KEY AUTOINCREMENT,
        url_id INTEGER NOT NULL REFERENCES urls (url_id),
        title TEXT NOT NULL DEFAULT '',
        author TEXT NOT NULL DEFAULT '',
        published_date DATETIME,
        content TEXT NOT NULL DEFAULT '',
        content_hash TEXT NOT NULL,
        summary TEXT NOT NULL DEFAULT '',
        is_ai_related BOOLEAN NOT NULL DEFAULT 0,
        relevance REAL NOT NULL DEFAULT 0,
        confidence REAL NOT NULL DEFAULT 0,
        key_points TEXT NOT NULL DEFAULT '',
        language TEXT NOT NULL DEFAULT 'en',
        word_count INTEGER NOT NULL DEFAULT 0,
        first_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        last_analyzed DATETIME,
        CONSTRAINT unique_url_content UNIQUE (url_id, content_hash)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_articles_content_hash ON articles (content_hash)`,
	`CREATE TABLE IF NOT EXISTS host_crawl_state (
        hostname TEXT PRIMARY KEY,
        last_request_at DATETIME,
        crawl_delay_ms INTEGER NOT NULL DEFAULT 0,
        robots_delay_ms INTEGER NOT NULL DEFAULT 0,
        blocked_until DATETIME
    )`,
}

// EnsureSchema creates the ledger tables for the configured driver.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	statements := postgresSchema
	if l.driver == DriverSQLite {
		statements = sqliteSchema
	}
	for _, stmt := range statements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Open connects to the configured database and verifies the connection.
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}
