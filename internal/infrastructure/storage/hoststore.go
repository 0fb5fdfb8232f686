package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"AINewsCrawler/internal/domain"
)

// HostState loads the persisted politeness state for a hostname.
func (l *Ledger) HostState(ctx context.Context, hostname string) (domain.HostState, error) {
	query, args, err := l.sb.
		Select("hostname", "last_request_at", "crawl_delay_ms", "robots_delay_ms", "blocked_until").
		From("host_crawl_state").
		Where(sq.Eq{"hostname": hostname}).
		ToSql()
	if err != nil {
		return domain.HostState{}, fmt.Errorf("build host state lookup: %w", err)
	}

	var (
		state        domain.HostState
		lastRequest  sql.NullTime
		blockedUntil sql.NullTime
		crawlMs      int64
		robotsMs     int64
	)
	err = l.db.QueryRowContext(ctx, query, args...).
		Scan(&state.Hostname, &lastRequest, &crawlMs, &robotsMs, &blockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HostState{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.HostState{}, fmt.Errorf("lookup host state: %w", err)
	}

	state.CrawlDelay = time.Duration(crawlMs) * time.Millisecond
	state.RobotsDelay = time.Duration(robotsMs) * time.Millisecond
	if lastRequest.Valid {
		state.LastRequestAt = lastRequest.Time
	}
	if blockedUntil.Valid {
		state.BlockedUntil = blockedUntil.Time
	}
	return state, nil
}

// SaveHostState upserts the politeness state so pacing survives restarts.
func (l *Ledger) SaveHostState(ctx context.Context, state domain.HostState) error {
	insert, args, err := l.sb.
		Insert("host_crawl_state").
		Columns("hostname", "last_request_at", "crawl_delay_ms", "robots_delay_ms", "blocked_until").
		Values(state.Hostname, nullTime(state.LastRequestAt),
			state.CrawlDelay.Milliseconds(), state.RobotsDelay.Milliseconds(),
			nullTime(state.BlockedUntil)).
		Suffix(`ON CONFLICT (hostname) DO UPDATE SET
            last_request_at = excluded.last_request_at,
            crawl_delay_ms = excluded.crawl_delay_ms,
            robots_delay_ms = excluded.robots_delay_ms,
            blocked_until = excluded.blocked_until`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build host state upsert: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, insert, args...); err != nil {
		return fmt.Errorf("save host state: %w", err)
	}
	return nil
}
