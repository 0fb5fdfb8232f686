package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket allows controlled bursts while maintaining an average rate.
// It is not used for per-host politeness (the HostGate is); it is the
// building block for global request-budget shaping.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	capacity   float64
	tokens     float64
	lastUpdate time.Time

	now func() time.Time
}

// NewTokenBucket starts full at capacity, refilling proportionally to
// elapsed time.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		lastUpdate: time.Now(),
		now:        time.Now,
	}
}

// Consume attempts to take n tokens, returning false without waiting when
// not enough are available.
func (b *TokenBucket) Consume(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// WaitForTokens blocks until n tokens could be consumed or the context is
// cancelled.
func (b *TokenBucket) WaitForTokens(ctx context.Context, n int) error {
	for {
		if b.Consume(n) {
			return nil
		}

		b.mu.Lock()
		missing := float64(n) - b.tokens
		b.mu.Unlock()

		wait := time.Duration(missing / b.rate * float64(time.Second))
		if wait > 100*time.Millisecond {
			wait = 100 * time.Millisecond
		}
		if wait <= 0 {
			wait = time.Millisecond
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

func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastUpdate = now
}
