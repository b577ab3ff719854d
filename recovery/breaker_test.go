package recovery_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-reconciler/recovery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newBreaker(clock *fakeClock, options ...recovery.BreakerOption) *recovery.CircuitBreaker {
	options = append([]recovery.BreakerOption{
		recovery.WithBreakerNowTime(clock.Now),
		recovery.WithBreakerLogger(zerolog.Nop()),
	}, options...)
	return recovery.NewCircuitBreaker(options...)
}

func TestCircuitBreaker_ThreeFailuresInTenSeconds(t *testing.T) {
	clock := newFakeClock()
	cb := newBreaker(clock)
	kind := recovery.Kind("error.boundary")

	for i := 0; i < 3; i++ {
		require.True(t, cb.ShouldAttempt(kind), "attempt %d", i+1)
		cb.RecordAttempt(kind)
		clock.Advance(5 * time.Second)
	}

	require.False(t, cb.ShouldAttempt(kind))
}

func TestCircuitBreaker_OncePerCooldownWindow(t *testing.T) {
	clock := newFakeClock()
	cb := newBreaker(clock)
	kind := recovery.Kind("profile.fetch")

	require.True(t, cb.TryAttempt(kind))
	require.False(t, cb.ShouldAttempt(kind))

	clock.Advance(4999 * time.Millisecond)
	require.False(t, cb.TryAttempt(kind))

	clock.Advance(time.Millisecond)
	require.True(t, cb.TryAttempt(kind))

	a, ok := cb.Snapshot(kind)
	require.True(t, ok)
	require.Equal(t, 2, a.Count)
	require.Equal(t, clock.Now(), a.WindowStartedAt)
}

func TestCircuitBreaker_SuppressedUntilReset(t *testing.T) {
	clock := newFakeClock()
	cb := newBreaker(clock)
	kind := recovery.KindSessionLookup.For("sess-1")

	for i := 0; i < recovery.DefaultMaxAttempts; i++ {
		require.True(t, cb.TryAttempt(kind))
		clock.Advance(time.Minute)
	}

	clock.Advance(24 * time.Hour)
	require.False(t, cb.ShouldAttempt(kind))

	cb.Reset(kind)
	require.True(t, cb.ShouldAttempt(kind))
}

func TestCircuitBreaker_KindsAreIsolated(t *testing.T) {
	clock := newFakeClock()
	cb := newBreaker(clock)

	a := recovery.KindSessionLookup.For("sess-a")
	b := recovery.KindSessionLookup.For("sess-b")

	require.True(t, cb.TryAttempt(a))
	require.False(t, cb.ShouldAttempt(a))
	require.True(t, cb.ShouldAttempt(b))
}

func TestCircuitBreaker_PolicyOverrideAppliesToScopedKinds(t *testing.T) {
	clock := newFakeClock()
	cb := newBreaker(clock, recovery.WithPolicy(recovery.KindOnboardingRefresh, recovery.Policy{Cooldown: time.Second, MaxAttempts: 1}))

	kind := recovery.KindOnboardingRefresh.For("sess-1")
	require.True(t, cb.TryAttempt(kind))
	clock.Advance(time.Hour)
	require.False(t, cb.ShouldAttempt(kind))

	other := recovery.KindSessionLookup.For("sess-1")
	require.True(t, cb.TryAttempt(other))
	clock.Advance(time.Second)
	require.False(t, cb.ShouldAttempt(other), "default 5s cooldown still applies")
}

func TestCircuitBreaker_ResetSubjectAndSweep(t *testing.T) {
	clock := newFakeClock()
	cb := newBreaker(clock)

	cb.RecordAttempt(recovery.KindSessionLookup.For("sess-1"))
	cb.RecordAttempt(recovery.KindOnboardingRefresh.For("sess-1"))
	cb.RecordAttempt(recovery.KindSessionLookup.For("sess-2"))

	require.Equal(t, 2, cb.ResetSubject("sess-1"))
	require.True(t, cb.ShouldAttempt(recovery.KindSessionLookup.For("sess-1")))
	require.False(t, cb.ShouldAttempt(recovery.KindSessionLookup.For("sess-2")))

	clock.Advance(2 * time.Hour)
	require.Equal(t, 1, cb.Sweep(time.Hour))
	_, ok := cb.Snapshot(recovery.KindSessionLookup.For("sess-2"))
	require.False(t, ok)
}

func TestCircuitBreaker_SweepKeepsExhaustedRecords(t *testing.T) {
	clock := newFakeClock()
	cb := newBreaker(clock, recovery.WithExhaustedRetention(24*time.Hour))
	exhausted := recovery.KindSessionLookup.For("sess-1")
	idle := recovery.KindSessionLookup.For("sess-2")

	for i := 0; i < recovery.DefaultMaxAttempts; i++ {
		require.True(t, cb.TryAttempt(exhausted))
		clock.Advance(recovery.DefaultCooldown)
	}
	require.True(t, cb.TryAttempt(idle))
	require.False(t, cb.ShouldAttempt(exhausted))

	clock.Advance(11 * time.Minute)
	require.Equal(t, 1, cb.Sweep(10*time.Minute))
	require.False(t, cb.ShouldAttempt(exhausted), "an idle sweep is not a manual retry")
	_, ok := cb.Snapshot(idle)
	require.False(t, ok)

	t.Run("dropped after the retention", func(t *testing.T) {
		clock.Advance(24 * time.Hour)
		require.Equal(t, 1, cb.Sweep(10*time.Minute))
		require.True(t, cb.ShouldAttempt(exhausted))
	})
}

func TestCircuitBreaker_TryAttemptIsAtomic(t *testing.T) {
	clock := newFakeClock()
	cb := newBreaker(clock)
	kind := recovery.Kind("duplicate.fetch")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.TryAttempt(kind) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, allowed)
}
