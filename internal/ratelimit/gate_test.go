package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"AINewsCrawler/internal/domain"
)

// memoryHostStore is an in-memory HostStateStore for gate tests.
type memoryHostStore struct {
	mu     sync.Mutex
	states map[string]domain.HostState
}

func newMemoryHostStore() *memoryHostStore {
	return &memoryHostStore{states: make(map[string]domain.HostState)}
}

func (m *memoryHostStore) HostState(_ context.Context, hostname string) (domain.HostState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[hostname]
	if !ok {
		return domain.HostState{}, domain.ErrNotFound
	}
	return state, nil
}

func (m *memoryHostStore) SaveHostState(_ context.Context, state domain.HostState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Hostname] = state
	return nil
}

func TestGateSpacesRequestsToSameHost(t *testing.T) {
	t.Parallel()

	delay := 60 * time.Millisecond
	gate := NewHostGate(newMemoryHostStore(), delay, nil)
	ctx := context.Background()

	var stamps []time.Time
	for i := 0; i < 3; i++ {
		if err := gate.WaitUntilAllowed(ctx, "example.com"); err != nil {
			t.Fatalf("wait: %v", err)
		}
		stamps = append(stamps, time.Now())
	}

	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < delay-5*time.Millisecond {
			t.Fatalf("requests %d and %d only %v apart, want >= %v", i-1, i, gap, delay)
		}
	}
}

func TestGateHostsAreIndependent(t *testing.T) {
	t.Parallel()

	gate := NewHostGate(newMemoryHostStore(), time.Minute, nil)

	if err := gate.WaitUntilAllowed(context.Background(), "a.example.com"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if gate.CanProceedNow("a.example.com") {
		t.Fatalf("expected a.example.com to be throttled")
	}
	if !gate.CanProceedNow("b.example.com") {
		t.Fatalf("b.example.com must not be throttled by a.example.com")
	}
}

func TestGateBlockOverridesDelay(t *testing.T) {
	t.Parallel()

	gate := NewHostGate(newMemoryHostStore(), time.Millisecond, nil)

	gate.Block("example.com", time.Minute)
	if gate.CanProceedNow("example.com") {
		t.Fatalf("blocked host must not proceed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := gate.WaitUntilAllowed(ctx, "example.com"); err == nil {
		t.Fatalf("expected context deadline while host blocked")
	}
}

func TestGateRobotsDelayExtendsDefault(t *testing.T) {
	t.Parallel()

	gate := NewHostGate(newMemoryHostStore(), 10*time.Millisecond, nil)
	gate.SetRobotsDelay("slow.example.com", 80*time.Millisecond)

	if err := gate.WaitUntilAllowed(context.Background(), "slow.example.com"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	start := time.Now()
	if err := gate.WaitUntilAllowed(context.Background(), "slow.example.com"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if waited := time.Since(start); waited < 60*time.Millisecond {
		t.Fatalf("robots delay not honoured, waited only %v", waited)
	}
}

func TestGateStateSurvivesRestart(t *testing.T) {
	t.Parallel()

	store := newMemoryHostStore()

	first := NewHostGate(store, time.Minute, nil)
	if err := first.WaitUntilAllowed(context.Background(), "example.com"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// A fresh gate over the same store simulates a process restart.
	second := NewHostGate(store, time.Minute, nil)
	if second.CanProceedNow("example.com") {
		t.Fatalf("restart must not forget the last request time")
	}
}

func TestGateClaimIsAtomicUnderContention(t *testing.T) {
	t.Parallel()

	delay := 40 * time.Millisecond
	gate := NewHostGate(newMemoryHostStore(), delay, nil)

	var (
		mu     sync.Mutex
		stamps []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gate.WaitUntilAllowed(context.Background(), "example.com"); err != nil {
				t.Errorf("wait: %v", err)
				return
			}
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < delay-5*time.Millisecond {
			t.Fatalf("claims %d and %d only %v apart, want >= %v", i-1, i, gap, delay)
		}
	}
}

func TestTokenBucketBurstAndRefill(t *testing.T) {
	t.Parallel()

	bucket := NewTokenBucket(100, 3)

	for i := 0; i < 3; i++ {
		if !bucket.Consume(1) {
			t.Fatalf("expected burst token %d", i)
		}
	}
	if bucket.Consume(1) {
		t.Fatalf("bucket should be empty")
	}

	if err := bucket.WaitForTokens(context.Background(), 1); err != nil {
		t.Fatalf("wait for refill: %v", err)
	}
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	t.Parallel()

	bucket := NewTokenBucket(0.001, 1)
	if !bucket.Consume(1) {
		t.Fatalf("initial token missing")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bucket.WaitForTokens(ctx, 1); err == nil {
		t.Fatalf("expected context error on starved bucket")
	}
}
