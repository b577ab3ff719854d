package server

import "github.com/jrsteele09/go-session-reconciler/routing"

// Route path constants
// Page routes that the reconciler can decide on come from the routing package
const (
	RouteIndex = "/{$}"

	// Auth Routes
	RouteSignIn   = routing.RouteSignIn
	RouteCallback = "/auth/callback"
	RouteSignOut  = "/auth/sign-out"

	// Reconciled pages
	RouteOnboarding      = routing.RouteOnboarding
	RouteOnboardingStep  = routing.RouteOnboarding + "/{step}"
	RouteDashboard       = routing.RouteDashboard
	RouteTenantDashboard = routing.RouteTenantDashboard

	// API Routes
	RouteAPISession              = "/api/session"
	RouteAPIOnboardingTransition = "/api/onboarding/transition"
	RouteAPIOnboardingAmend      = "/api/onboarding/amend"
	RouteAPIRecoveryRetry        = "/api/recovery/retry"

	RouteHealth = "/healthz"
)
