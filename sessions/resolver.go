// Package sessions turns the opaque session cookie into a validated session snapshot.
// Validation results are cached briefly so that route changes do not each cost a
// backend round trip; failures are never cached.
package sessions

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/identity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL       = 30 * time.Second
	MaxCacheTTL           = 60 * time.Second
	defaultRequestTimeout = 3 * time.Second
)

type cacheEntry struct {
	data      *SessionData
	expiresAt time.Time
}

// Resolver validates session ids against the backend.
type Resolver struct {
	backend        Backend
	ttl            time.Duration
	requestTimeout time.Duration
	nowTime        func() time.Time
	logger         zerolog.Logger

	group singleflight.Group

	mu         sync.Mutex
	cache      map[string]cacheEntry
	generation uint64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL sets how long a successful validation is reused. Values outside
// (0, MaxCacheTTL] are clamped.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.ttl = clampTTL(ttl)
	}
}

// WithRequestTimeout bounds each backend call.
func WithRequestTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.requestTimeout = d
		}
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.nowTime = nowFunc
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over backend.
func NewResolver(backend Backend, options ...ResolverOption) (*Resolver, error) {
	if backend == nil {
		return nil, errors.New("[NewResolver] backend is required")
	}
	r := &Resolver{
		backend:        backend,
		ttl:            DefaultCacheTTL,
		requestTimeout: defaultRequestTimeout,
		nowTime:        time.Now,
		logger:         log.Logger,
		cache:          make(map[string]cacheEntry),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// TTL returns the effective cache TTL.
func (r *Resolver) TTL() time.Duration {
	return r.ttl
}

// Validate returns the session for sessionID, or nil when it cannot be validated for
// any reason. It fails closed.
func (r *Resolver) Validate(ctx context.Context, sessionID string) *SessionData {
	data, err := r.Lookup(ctx, sessionID)
	if err != nil {
		r.logger.Debug().Err(err).Msg("session validation failed")
		return nil
	}
	return data
}

// Lookup is Validate that keeps the error, so callers can tell an unauthenticated
// browser (ErrSessionNotFound, ErrSessionExpired, ErrEmptySessionID) from a transient
// backend failure (ErrBackendFailure).
func (r *Resolver) Lookup(ctx context.Context, sessionID string) (*SessionData, error) {
	if sessionID == "" {
		return nil, apperrors.ErrEmptySessionID
	}

	now := r.nowTime()
	r.mu.Lock()
	entry, ok := r.cache[sessionID]
	if ok && now.Before(entry.expiresAt) {
		r.mu.Unlock()
		return clone(entry.data), nil
	}
	if ok {
		delete(r.cache, sessionID)
	}
	r.mu.Unlock()

	v, err, shared := r.group.Do(sessionID, func() (any, error) {
		return r.fetch(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug().Msg("session lookup shared an in-flight backend call")
	}
	return clone(v.(*SessionData)), nil
}

// Create establishes a backend session for verified claims and caches it.
func (r *Resolver) Create(ctx context.Context, claims identity.Claims) (*SessionData, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	data, err := r.backend.Create(callCtx, claims)
	if err != nil {
		return nil, errors.Wrap(transient(err), "[Resolver Create]")
	}
	if data == nil || data.ID == "" {
		return nil, errors.Wrap(apperrors.ErrBackendFailure, "[Resolver Create] backend returned no session id")
	}
	r.store(data, r.currentGeneration())
	return clone(data), nil
}

// Refresh re-reads the session from the backend and replaces the cached copy.
func (r *Resolver) Refresh(ctx context.Context, sessionID string) (*SessionData, error) {
	if sessionID == "" {
		return nil, apperrors.ErrEmptySessionID
	}
	r.Invalidate(sessionID)

	gen := r.currentGeneration()
	callCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	data, err := r.backend.Refresh(callCtx, sessionID)
	if err != nil {
		return nil, errors.Wrap(transient(err), "[Resolver Refresh]")
	}
	if err := r.checkExpiry(data); err != nil {
		return nil, err
	}
	r.store(data, gen)
	return clone(data), nil
}

// Destroy ends the session at the backend. The cached entry is evicted even when the
// backend call fails.
func (r *Resolver) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperrors.ErrEmptySessionID
	}
	r.Invalidate(sessionID)

	callCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	err := r.backend.Delete(callCtx, sessionID)
	if err != nil && !apperrors.Is(err, apperrors.ErrSessionNotFound) {
		return errors.Wrap(transient(err), "[Resolver Destroy]")
	}
	return nil
}

// Invalidate drops the cached entry for sessionID without contacting the backend.
func (r *Resolver) Invalidate(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, sessionID)
	r.generation++
	r.group.Forget(sessionID)
}

// Reset drops every cached entry.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sessionID := range r.cache {
		r.group.Forget(sessionID)
	}
	r.cache = make(map[string]cacheEntry)
	r.generation++
}

// Len is the number of cached entries, including any that have expired but not yet
// been evicted.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

func (r *Resolver) fetch(ctx context.Context, sessionID string) (*SessionData, error) {
	gen := r.currentGeneration()

	// The call is shared with other waiters, so one caller going away must not cancel it.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.requestTimeout)
	defer cancel()

	data, err := r.backend.Get(callCtx, sessionID)
	switch {
	case err == nil && data == nil:
		return nil, apperrors.Wrapf(apperrors.ErrSessionNotFound, "[Resolver Lookup] empty response")
	case err == nil:
	case apperrors.Is(err, apperrors.ErrSessionNotFound), apperrors.Is(err, apperrors.ErrNotFound):
		return nil, errors.Wrap(apperrors.ErrSessionNotFound, err.Error())
	default:
		r.logger.Warn().Err(err).Msg("session backend lookup failed")
		return nil, errors.Wrap(transient(err), "[Resolver Lookup]")
	}

	if data.ID != "" && data.ID != sessionID {
		return nil, apperrors.Wrapf(apperrors.ErrSessionNotFound, "[Resolver Lookup] backend returned a different session")
	}
	data.ID = sessionID
	if err := r.checkExpiry(data); err != nil {
		return nil, err
	}
	r.store(data, gen)
	return data, nil
}

func (r *Resolver) checkExpiry(data *SessionData) error {
	if data == nil {
		return apperrors.ErrSessionNotFound
	}
	if data.Expired(r.nowTime()) {
		return apperrors.Wrapf(apperrors.ErrSessionExpired, "[Resolver] expired at %s", data.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// store caches data unless the cache was invalidated after gen was taken.
func (r *Resolver) store(data *SessionData, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return
	}

	expiresAt := r.nowTime().Add(r.ttl)
	if !data.ExpiresAt.IsZero() && data.ExpiresAt.Before(expiresAt) {
		expiresAt = data.ExpiresAt
	}
	r.cache[data.ID] = cacheEntry{data: clone(data), expiresAt: expiresAt}
}

func (r *Resolver) currentGeneration() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

func clampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return DefaultCacheTTL
	case ttl > MaxCacheTTL:
		return MaxCacheTTL
	default:
		return ttl
	}
}

func clone(data *SessionData) *SessionData {
	if data == nil {
		return nil
	}
	cp := *data
	if data.Profile != nil {
		profile := *data.Profile
		cp.Profile = &profile
	}
	if data.Onboarding != nil {
		state := *data.Onboarding
		cp.Onboarding = &state
	}
	return &cp
}

func transient(err error) error {
	if apperrors.Is(err, apperrors.ErrBackendFailure) || apperrors.Is(err, apperrors.ErrSessionNotFound) {
		return err
	}
	return errors.Wrap(apperrors.ErrBackendFailure, err.Error())
}
