// Package recovery holds the guards that keep automatic recovery from running away:
// a per-kind attempt counter with a cooldown window (CircuitBreaker) and a bounded,
// cancellable exponential backoff (Backoff).
package recovery

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Kind names a class of automatic recovery action, e.g. "session.lookup:<sessionID>".
type Kind string

const (
	// KindSessionLookup guards the automatic re-validation of a session after a transient backend failure.
	KindSessionLookup Kind = "session.lookup"
	// KindOnboardingRefresh guards the session refresh issued after a verified onboarding transition.
	KindOnboardingRefresh Kind = "onboarding.refresh"
)

// For scopes a kind to a single subject (usually a session id) so one browser's
// failures never suppress recovery for another.
func (k Kind) For(subject string) Kind {
	if subject == "" {
		return k
	}
	return Kind(string(k) + ":" + subject)
}

const (
	DefaultCooldown           = 5 * time.Second
	DefaultMaxAttempts        = 3
	DefaultExhaustedRetention = 24 * time.Hour
)

// Policy bounds automatic recovery for a kind: at most one attempt per Cooldown and
// at most MaxAttempts attempts until an explicit reset.
type Policy struct {
	Cooldown    time.Duration
	MaxAttempts int
}

// DefaultPolicy is a 5s cooldown with a lifetime budget of 3 attempts.
func DefaultPolicy() Policy {
	return Policy{Cooldown: DefaultCooldown, MaxAttempts: DefaultMaxAttempts}
}

// Attempt is the in-memory bookkeeping for one kind. It is never persisted.
type Attempt struct {
	Kind            Kind
	Count           int
	WindowStartedAt time.Time
}

// CircuitBreaker is a local, ephemeral attempt counter.
type CircuitBreaker struct {
	mu       sync.Mutex
	attempts map[Kind]*Attempt
	policy   Policy
	policies map[Kind]Policy
	retain   time.Duration
	nowTime  func() time.Time
	logger   zerolog.Logger
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithDefaultPolicy replaces the policy applied to kinds without an override.
func WithDefaultPolicy(p Policy) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.policy = p
	}
}

// WithPolicy overrides the policy for a base kind and every kind scoped from it.
func WithPolicy(kind Kind, p Policy) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.policies[kind] = p
	}
}

// WithExhaustedRetention sets how long Sweep keeps a record whose budget is used up.
// Until then only a reset lifts the suppression.
func WithExhaustedRetention(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.retain = d
		}
	}
}

// WithBreakerNowTime sets the clock (primarily for testing)
func WithBreakerNowTime(nowFunc func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.nowTime = nowFunc
	}
}

// WithBreakerLogger sets the logger.
func WithBreakerLogger(logger zerolog.Logger) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// NewCircuitBreaker creates a breaker with the default policy unless overridden.
func NewCircuitBreaker(options ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		attempts: make(map[Kind]*Attempt),
		policy:   DefaultPolicy(),
		policies: make(map[Kind]Policy),
		retain:   DefaultExhaustedRetention,
		nowTime:  time.Now,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(cb)
	}
	return cb
}

// ShouldAttempt reports whether an automatic recovery of this kind may run now.
func (cb *CircuitBreaker) ShouldAttempt(kind Kind) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.allowed(kind, cb.nowTime())
}

// RecordAttempt counts an attempt and opens a new cooldown window.
func (cb *CircuitBreaker) RecordAttempt(kind Kind) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.record(kind, cb.nowTime())
}

// TryAttempt checks and records in one step, so two concurrent callers cannot both
// pass ShouldAttempt inside the same window.
func (cb *CircuitBreaker) TryAttempt(kind Kind) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.nowTime()
	if !cb.allowed(kind, now) {
		return false
	}
	cb.record(kind, now)
	return true
}

// Snapshot returns a copy of the bookkeeping for kind.
func (cb *CircuitBreaker) Snapshot(kind Kind) (Attempt, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	a, ok := cb.attempts[kind]
	if !ok {
		return Attempt{Kind: kind}, false
	}
	return *a, true
}

// Reset clears the bookkeeping for kind (manual retry).
func (cb *CircuitBreaker) Reset(kind Kind) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.attempts, kind)
}

// ResetSubject clears every kind scoped to subject, e.g. all kinds of one session on sign-out.
func (cb *CircuitBreaker) ResetSubject(subject string) int {
	if subject == "" {
		return 0
	}
	suffix := ":" + subject

	cb.mu.Lock()
	defer cb.mu.Unlock()

	removed := 0
	for kind := range cb.attempts {
		if strings.HasSuffix(string(kind), suffix) {
			delete(cb.attempts, kind)
			removed++
		}
	}
	return removed
}

// ResetAll clears every kind.
func (cb *CircuitBreaker) ResetAll() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.attempts = make(map[Kind]*Attempt)
}

// Sweep drops records whose last window started more than idle ago. Exhausted records
// are kept for the exhausted retention instead, so an idle suppressed session stays
// suppressed until a manual retry, sign-out or the session itself is long gone.
func (cb *CircuitBreaker) Sweep(idle time.Duration) int {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.nowTime()
	removed := 0
	for kind, a := range cb.attempts {
		horizon := idle
		if a.Count >= cb.policyFor(kind).MaxAttempts {
			horizon = max(idle, cb.retain)
		}
		if now.Sub(a.WindowStartedAt) > horizon {
			delete(cb.attempts, kind)
			removed++
		}
	}
	return removed
}

func (cb *CircuitBreaker) allowed(kind Kind, now time.Time) bool {
	a, ok := cb.attempts[kind]
	if !ok {
		return true
	}
	p := cb.policyFor(kind)
	if a.Count >= p.MaxAttempts {
		return false
	}
	return now.Sub(a.WindowStartedAt) >= p.Cooldown
}

func (cb *CircuitBreaker) record(kind Kind, now time.Time) {
	a, ok := cb.attempts[kind]
	if !ok {
		a = &Attempt{Kind: kind}
		cb.attempts[kind] = a
	}
	a.Count++
	a.WindowStartedAt = now

	if p := cb.policyFor(kind); a.Count >= p.MaxAttempts {
		cb.logger.Warn().Str("kind", string(kind)).Int("attempts", a.Count).Msg("recovery budget exhausted, suppressing further automatic attempts")
	}
}

func (cb *CircuitBreaker) policyFor(kind Kind) Policy {
	if p, ok := cb.policies[kind]; ok {
		return p
	}
	base, _, found := strings.Cut(string(kind), ":")
	if found {
		if p, ok := cb.policies[Kind(base)]; ok {
			return p
		}
	}
	return cb.policy
}
