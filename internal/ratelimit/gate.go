package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"AINewsCrawler/internal/domain"
	"AINewsCrawler/internal/ports"
)

// HostGate enforces per-host politeness: a request may proceed when
// now - last_request >= effective_delay and the host is not blocked.
// This is a single-slot sliding window, not a token bucket; it trades
// burst capacity for a predictable one-request cadence per host.
//
// State is write-through to the HostStateStore so politeness survives a
// process restart. Callers must call WaitUntilAllowed before every
// fetch; a successful return claims the host's slot, so two goroutines
// racing on the same host are still spaced by the effective delay.
type HostGate struct {
	store        ports.HostStateStore
	defaultDelay time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	hosts map[string]domain.HostState

	now func() time.Time
}

var _ ports.FetchGate = (*HostGate)(nil)

// NewHostGate wires the persisted store and the configured default delay.
func NewHostGate(store ports.HostStateStore, defaultDelay time.Duration, logger *slog.Logger) *HostGate {
	if defaultDelay <= 0 {
		defaultDelay = time.Second
	}
	return &HostGate{
		store:        store,
		defaultDelay: defaultDelay,
		logger:       logger,
		hosts:        make(map[string]domain.HostState),
		now:          time.Now,
	}
}

// WaitUntilAllowed blocks until it is safe to issue a request to hostname,
// or until the context is cancelled. On success the slot is already
// claimed; the caller should fetch immediately. Waiting here is the only
// blocking point of the crawl phase besides network I/O.
func (g *HostGate) WaitUntilAllowed(ctx context.Context, hostname string) error {
	for {
		wait, state := g.tryClaim(hostname)
		if wait <= 0 {
			g.persist(state)
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// CanProceedNow reports whether WaitUntilAllowed would return without
// blocking. It does not claim the slot.
func (g *HostGate) CanProceedNow(hostname string) bool {
	return g.timeUntilAllowed(hostname) <= 0
}

// tryClaim stamps the host's last-request time if its slot is free.
// Checking and stamping happen under one lock so concurrent callers
// cannot both see a free slot.
func (g *HostGate) tryClaim(hostname string) (time.Duration, domain.HostState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.loadLocked(hostname)
	if wait := g.waitForLocked(state); wait > 0 {
		return wait, state
	}

	state.LastRequestAt = g.now()
	g.hosts[hostname] = state
	return 0, state
}

// Block imposes a hard pause on hostname, overriding the normal delay.
// Used after 429/503-class responses.
func (g *HostGate) Block(hostname string, d time.Duration) {
	g.mu.Lock()
	state := g.loadLocked(hostname)
	state.BlockedUntil = g.now().Add(d)
	g.hosts[hostname] = state
	g.mu.Unlock()

	if g.logger != nil {
		g.logger.Warn("host blocked", "host", hostname, "until", g.now().Add(d))
	}
	g.persist(state)
}

// SetRobotsDelay records a robots.txt-derived crawl delay for hostname.
// The effective delay is the max of this and the configured default.
func (g *HostGate) SetRobotsDelay(hostname string, d time.Duration) {
	g.mu.Lock()
	state := g.loadLocked(hostname)
	state.RobotsDelay = d
	g.hosts[hostname] = state
	g.mu.Unlock()

	g.persist(state)
}

func (g *HostGate) timeUntilAllowed(hostname string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waitForLocked(g.loadLocked(hostname))
}

// waitForLocked computes how long the host must still wait. Callers
// hold g.mu.
func (g *HostGate) waitForLocked(state domain.HostState) time.Duration {
	now := g.now()

	var wait time.Duration
	if !state.BlockedUntil.IsZero() && now.Before(state.BlockedUntil) {
		wait = state.BlockedUntil.Sub(now)
	}

	if !state.LastRequestAt.IsZero() {
		delay := state.EffectiveDelay(g.defaultDelay)
		if next := state.LastRequestAt.Add(delay).Sub(now); next > wait {
			wait = next
		}
	}

	return wait
}

// loadLocked returns the cached host state, loading it from the store on
// first touch. Callers hold g.mu.
func (g *HostGate) loadLocked(hostname string) domain.HostState {
	if state, ok := g.hosts[hostname]; ok {
		return state
	}

	state := domain.HostState{Hostname: hostname, CrawlDelay: g.defaultDelay}
	if g.store != nil {
		if stored, err := g.store.HostState(context.Background(), hostname); err == nil {
			state = stored
			if state.CrawlDelay <= 0 {
				state.CrawlDelay = g.defaultDelay
			}
		}
	}

	g.hosts[hostname] = state
	return state
}

func (g *HostGate) persist(state domain.HostState) {
	if g.store == nil {
		return
	}
	if err := g.store.SaveHostState(context.Background(), state); err != nil && g.logger != nil {
		g.logger.Warn("persist host state", "host", state.Hostname, "error", err)
	}
}
