// Package routing decides the one place a browser should be, given who the user is,
// which tenant they belong to and how far through onboarding they are.
package routing

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-session-reconciler/onboarding"
)

// Route path constants
const (
	RouteSignIn          = "/auth/sign-in"
	RouteOnboarding      = "/onboarding"
	RouteDashboard       = "/dashboard"
	RouteTenantDashboard = "/t/{tenantID}/dashboard"
)

// OnboardingRoute is the wizard page for step. NOT_STARTED and unknown steps land on
// the wizard entry page.
func OnboardingRoute(step onboarding.Step) string {
	if step == onboarding.StepNotStarted || !step.Valid() {
		return RouteOnboarding
	}
	return RouteOnboarding + "/" + step.Slug()
}

// TenantDashboardRoute is the dashboard scoped to tenantID.
func TenantDashboardRoute(tenantID string) string {
	return strings.Replace(RouteTenantDashboard, "{tenantID}", url.PathEscape(tenantID), 1)
}

// SamePath compares request paths ignoring a trailing slash.
func SamePath(a, b string) bool {
	return trimSlash(a) == trimSlash(b)
}

func trimSlash(p string) string {
	if len(p) > 1 {
		return strings.TrimSuffix(p, "/")
	}
	return p
}
