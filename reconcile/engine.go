// Package reconcile runs the per-request pipeline: validate the session, resolve the
// tenant, read the verified onboarding state and compute the route. Automatic recovery
// from backend failures is gated by a circuit breaker so it cannot loop.
package reconcile

import (
	"context"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
	"github.com/jrsteele09/go-session-reconciler/recovery"
	"github.com/jrsteele09/go-session-reconciler/routing"
	"github.com/jrsteele09/go-session-reconciler/sessions"
	"github.com/jrsteele09/go-session-reconciler/tenants"
	"github.com/jrsteele09/go-session-reconciler/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionSource validates and refreshes sessions (sessions.Resolver).
type SessionSource interface {
	Lookup(ctx context.Context, sessionID string) (*sessions.SessionData, error)
	Refresh(ctx context.Context, sessionID string) (*sessions.SessionData, error)
	Invalidate(sessionID string)
}

// OnboardingSource reads verified onboarding state (onboarding.StateMachine).
type OnboardingSource interface {
	Observe(userID string, st onboarding.State) onboarding.State
	Current(ctx context.Context, userID string) (onboarding.State, error)
}

// Request carries what the browser presented.
type Request struct {
	SessionID      string
	CookieTenantID string
}

// Outcome is the reconciled view of a request.
type Outcome struct {
	SessionID    string            `json:"-"`
	User         *users.User       `json:"user,omitempty"`
	Tenant       *tenants.Tenant   `json:"tenant,omitempty"`
	TenantSource tenants.Source    `json:"tenant_source,omitempty"`
	Onboarding   *onboarding.State `json:"onboarding,omitempty"`
	Decision     routing.Decision  `json:"decision"`
}

// Authenticated reports whether the request carried a valid session.
func (o Outcome) Authenticated() bool {
	return o.User != nil
}

// Engine wires the resolvers together.
type Engine struct {
	sessions   SessionSource
	onboarding OnboardingSource
	tenants    *tenants.Resolver
	router     *routing.Reconciler
	breaker    *recovery.CircuitBreaker
	logger     zerolog.Logger
}

type EngineOption func(*Engine)

func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithTenantResolver(r *tenants.Resolver) EngineOption {
	return func(e *Engine) {
		e.tenants = r
	}
}

func WithRouter(r *routing.Reconciler) EngineOption {
	return func(e *Engine) {
		e.router = r
	}
}

// NewEngine creates an engine. Tenant resolution and routing default to instances that
// share the engine's logger.
func NewEngine(sessionSource SessionSource, onboardingSource OnboardingSource, breaker *recovery.CircuitBreaker, options ...EngineOption) (*Engine, error) {
	if sessionSource == nil || onboardingSource == nil || breaker == nil {
		return nil, errors.New("[NewEngine] sessions, onboarding and breaker are required")
	}
	e := &Engine{
		sessions:   sessionSource,
		onboarding: onboardingSource,
		breaker:    breaker,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.tenants == nil {
		e.tenants = tenants.NewResolver(tenants.WithLogger(e.logger))
	}
	if e.router == nil {
		e.router = routing.NewReconciler(routing.WithLogger(e.logger))
	}
	return e, nil
}

// Reconcile computes where the request must go. An invalid session is not an error: it
// yields the sign-in decision. Errors are transient backend failures, or
// ErrRecoverySuppressed once automatic recovery for this session has been used up.
func (e *Engine) Reconcile(ctx context.Context, req Request, persist tenants.Persister) (Outcome, error) {
	signIn := Outcome{SessionID: req.SessionID, Decision: e.router.Route(nil, nil, nil)}
	if req.SessionID == "" {
		return signIn, nil
	}

	data, err := e.lookup(ctx, req.SessionID)
	if err != nil {
		if apperrors.Classify(err) == apperrors.ClassUnauthenticated {
			return signIn, nil
		}
		return signIn, err
	}
	return e.assemble(ctx, req, data, persist)
}

// Refresh re-reads the session from the backend before reconciling, e.g. after a
// verified onboarding transition. A successful refresh costs nothing; only the fresh
// lookup that follows a failed one is breaker-gated, and once that is suppressed the
// error wraps ErrRecoverySuppressed.
func (e *Engine) Refresh(ctx context.Context, req Request, persist tenants.Persister) (Outcome, error) {
	if req.SessionID == "" {
		return e.Reconcile(ctx, req, persist)
	}

	data, err := e.sessions.Refresh(ctx, req.SessionID)
	if err == nil {
		return e.assemble(ctx, req, data, persist)
	}

	kind := recovery.KindOnboardingRefresh.For(req.SessionID)
	if !e.breaker.TryAttempt(kind) {
		e.logger.Warn().Err(err).Str("kind", string(kind)).Msg("session refresh failed, retry suppressed")
		return Outcome{SessionID: req.SessionID, Decision: e.router.Route(nil, nil, nil)}, errors.Wrap(apperrors.ErrRecoverySuppressed, err.Error())
	}
	e.logger.Warn().Err(err).Str("kind", string(kind)).Msg("session refresh failed, reconciling from a fresh lookup")
	e.sessions.Invalidate(req.SessionID)
	return e.Reconcile(ctx, req, persist)
}

// ManualRetry clears every recovery record and cached entry for the session so the
// next request starts from scratch. It is the user-initiated reset that lifts
// suppression.
func (e *Engine) ManualRetry(sessionID string) {
	cleared := e.breaker.ResetSubject(sessionID)
	e.sessions.Invalidate(sessionID)
	e.logger.Info().Int("cleared", cleared).Msg("manual recovery retry")
}

// lookup validates the session, allowing one breaker-gated retry after a transient failure.
func (e *Engine) lookup(ctx context.Context, sessionID string) (*sessions.SessionData, error) {
	data, err := e.sessions.Lookup(ctx, sessionID)
	if err == nil || apperrors.Classify(err) != apperrors.ClassTransient {
		return data, err
	}

	kind := recovery.KindSessionLookup.For(sessionID)
	if !e.breaker.TryAttempt(kind) {
		e.logger.Warn().Err(err).Str("kind", string(kind)).Msg("automatic session recovery suppressed")
		return nil, errors.Wrap(apperrors.ErrRecoverySuppressed, err.Error())
	}

	e.logger.Info().Err(err).Str("kind", string(kind)).Msg("retrying session lookup after transient failure")
	e.sessions.Invalidate(sessionID)
	return e.sessions.Lookup(ctx, sessionID)
}

func (e *Engine) assemble(ctx context.Context, req Request, data *sessions.SessionData, persist tenants.Persister) (Outcome, error) {
	user := data.User()
	if user.ID == "" {
		e.logger.Warn().Msg("session carries no user id")
		return Outcome{SessionID: req.SessionID, Decision: e.router.Route(nil, nil, nil)}, nil
	}

	backendTenant := data.TenantID
	if backendTenant == "" {
		backendTenant = user.TenantID
	}
	resolution := e.tenants.Resolve(tenants.Inputs{
		UserID:          user.ID,
		ClaimTenantID:   data.Claims.TenantID,
		BackendTenantID: backendTenant,
		CookieTenantID:  req.CookieTenantID,
	}, persist)
	user.TenantID = resolution.TenantID
	tenant := resolution.Tenant(user.ID)

	if data.Onboarding != nil {
		e.onboarding.Observe(user.ID, *data.Onboarding)
	}
	state, err := e.onboarding.Current(ctx, user.ID)
	if err != nil {
		return Outcome{SessionID: req.SessionID, User: &user, Tenant: tenant, TenantSource: resolution.Source}, err
	}

	return Outcome{
		SessionID:    req.SessionID,
		User:         &user,
		Tenant:       tenant,
		TenantSource: resolution.Source,
		Onboarding:   &state,
		Decision:     e.router.Route(&user, tenant, &state),
	}, nil
}
