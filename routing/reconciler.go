package routing

import (
	"github.com/jrsteele09/go-session-reconciler/onboarding"
	"github.com/jrsteele09/go-session-reconciler/tenants"
	"github.com/jrsteele09/go-session-reconciler/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reason records which rule produced a Decision.
type Reason string

const (
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonOnboarding      Reason = "onboarding"
	ReasonTenantDashboard Reason = "tenant_dashboard"
	ReasonAnomaly         Reason = "anomaly"
)

// Decision is the canonical destination for a request.
type Decision struct {
	Route  string `json:"route"`
	Reason Reason `json:"reason"`
}

// ComputeRoute is the single routing rule set. The first matching rule wins:
//
//  1. no user (no valid session): sign-in
//  2. onboarding required: the page for the current step
//  3. onboarding COMPLETE and a tenant: the tenant dashboard
//  4. anything else: the generic dashboard, which indicates inconsistent inputs
//
// Onboarding is required when the backend says so, when the user has not completed
// it, when there is no tenant, or when the wizard is not at COMPLETE. A tenant on its
// own never counts as completion.
//
// ComputeRoute depends only on its arguments.
func ComputeRoute(user *users.User, tenant *tenants.Tenant, state *onboarding.State) Decision {
	if user == nil || user.ID == "" {
		return Decision{Route: RouteSignIn, Reason: ReasonUnauthenticated}
	}

	step := onboarding.StepNotStarted
	if state != nil {
		step = state.CurrentStep
	}
	if user.RequiresOnboarding() || tenant == nil || tenant.ID == "" || !step.Terminal() {
		return Decision{Route: OnboardingRoute(step), Reason: ReasonOnboarding}
	}

	if tenants.IsValidID(tenant.ID) {
		return Decision{Route: TenantDashboardRoute(tenant.ID), Reason: ReasonTenantDashboard}
	}
	return Decision{Route: RouteDashboard, Reason: ReasonAnomaly}
}

// Reconciler wraps ComputeRoute with logging.
type Reconciler struct {
	logger zerolog.Logger
}

type ReconcilerOption func(*Reconciler)

func WithLogger(logger zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func NewReconciler(options ...ReconcilerOption) *Reconciler {
	r := &Reconciler{logger: log.Logger}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Route computes the decision and logs it when it falls through to the anomaly rule.
func (r *Reconciler) Route(user *users.User, tenant *tenants.Tenant, state *onboarding.State) Decision {
	d := ComputeRoute(user, tenant, state)
	if d.Reason == ReasonAnomaly {
		evt := r.logger.Warn().Str("route", d.Route)
		if user != nil {
			evt = evt.Str("user_id", user.ID)
		}
		if tenant != nil {
			evt = evt.Str("tenant_id", tenant.ID)
		}
		if state != nil {
			evt = evt.Str("step", string(state.CurrentStep))
		}
		evt.Msg("route reconciliation fell through to the generic dashboard")
	}
	return d
}

// Redirect reports where a request for path must be sent. A request already at the
// decided route is never redirected.
func (r *Reconciler) Redirect(path string, d Decision) (string, bool) {
	if SamePath(path, d.Route) {
		return "", false
	}
	return d.Route, true
}
