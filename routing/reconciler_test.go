package routing_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-session-reconciler/onboarding"
	"github.com/jrsteele09/go-session-reconciler/routing"
	"github.com/jrsteele09/go-session-reconciler/tenants"
	"github.com/jrsteele09/go-session-reconciler/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const tenantID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

var fixedTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func completedUser() *users.User {
	return &users.User{ID: "u-123", TenantID: tenantID, OnboardingCompleted: true}
}

func stateAt(step onboarding.Step) *onboarding.State {
	st := onboarding.NewState(step, fixedTime)
	return &st
}

func TestComputeRoute(t *testing.T) {
	tenant := &tenants.Tenant{ID: tenantID, OwnerUserID: "u-123"}

	tests := []struct {
		name   string
		user   *users.User
		tenant *tenants.Tenant
		state  *onboarding.State
		want   routing.Decision
	}{
		{
			name: "no session",
			want: routing.Decision{Route: routing.RouteSignIn, Reason: routing.ReasonUnauthenticated},
		},
		{
			name:   "no session ignores everything else",
			tenant: tenant,
			state:  stateAt(onboarding.StepComplete),
			want:   routing.Decision{Route: routing.RouteSignIn, Reason: routing.ReasonUnauthenticated},
		},
		{
			name:  "new user",
			user:  &users.User{ID: "u-123", NeedsOnboarding: true},
			state: stateAt(onboarding.StepNotStarted),
			want:  routing.Decision{Route: "/onboarding", Reason: routing.ReasonOnboarding},
		},
		{
			name:   "mid wizard",
			user:   &users.User{ID: "u-123", NeedsOnboarding: true},
			tenant: tenant,
			state:  stateAt(onboarding.StepPayment),
			want:   routing.Decision{Route: "/onboarding/payment", Reason: routing.ReasonOnboarding},
		},
		{
			name: "unknown onboarding state",
			user: &users.User{ID: "u-123", NeedsOnboarding: true},
			want: routing.Decision{Route: "/onboarding", Reason: routing.ReasonOnboarding},
		},
		{
			name:   "tenant present but not completed",
			user:   &users.User{ID: "u-123", TenantID: tenantID},
			tenant: tenant,
			state:  stateAt(onboarding.StepComplete),
			want:   routing.Decision{Route: "/onboarding/complete", Reason: routing.ReasonOnboarding},
		},
		{
			name:   "completed flag but wizard behind",
			user:   completedUser(),
			tenant: tenant,
			state:  stateAt(onboarding.StepSetup),
			want:   routing.Decision{Route: "/onboarding/setup", Reason: routing.ReasonOnboarding},
		},
		{
			name:  "completed without a tenant",
			user:  completedUser(),
			state: stateAt(onboarding.StepComplete),
			want:  routing.Decision{Route: "/onboarding/complete", Reason: routing.ReasonOnboarding},
		},
		{
			name:   "completed with tenant",
			user:   completedUser(),
			tenant: tenant,
			state:  stateAt(onboarding.StepComplete),
			want:   routing.Decision{Route: "/t/" + tenantID + "/dashboard", Reason: routing.ReasonTenantDashboard},
		},
		{
			name:   "malformed tenant id",
			user:   completedUser(),
			tenant: &tenants.Tenant{ID: "acme"},
			state:  stateAt(onboarding.StepComplete),
			want:   routing.Decision{Route: routing.RouteDashboard, Reason: routing.ReasonAnomaly},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, routing.ComputeRoute(tc.user, tc.tenant, tc.state))
		})
	}
}

func TestComputeRoute_Pure(t *testing.T) {
	user := completedUser()
	tenant := &tenants.Tenant{ID: tenantID}
	inputs := []*onboarding.State{
		stateAt(onboarding.StepComplete),
		stateAt(onboarding.StepBusinessInfo),
		nil,
		stateAt(onboarding.StepComplete),
	}

	first := make([]routing.Decision, len(inputs))
	for i, st := range inputs {
		first[i] = routing.ComputeRoute(user, tenant, st)
	}
	// Same inputs in reverse order give the same answers.
	for i := len(inputs) - 1; i >= 0; i-- {
		require.Equal(t, first[i], routing.ComputeRoute(user, tenant, inputs[i]))
	}
	require.Equal(t, first[0], first[3])
}

func TestOnboardingRoute(t *testing.T) {
	require.Equal(t, "/onboarding", routing.OnboardingRoute(onboarding.StepNotStarted))
	require.Equal(t, "/onboarding/business-info", routing.OnboardingRoute(onboarding.StepBusinessInfo))
	require.Equal(t, "/onboarding/complete", routing.OnboardingRoute(onboarding.StepComplete))
	require.Equal(t, "/onboarding", routing.OnboardingRoute("BOGUS"))
}

func TestReconciler_Redirect(t *testing.T) {
	r := routing.NewReconciler(routing.WithLogger(zerolog.Nop()))
	d := r.Route(completedUser(), &tenants.Tenant{ID: tenantID}, stateAt(onboarding.StepComplete))

	t.Run("already there", func(t *testing.T) {
		_, redirect := r.Redirect(d.Route, d)
		require.False(t, redirect)
		_, redirect = r.Redirect(d.Route+"/", d)
		require.False(t, redirect)
	})

	t.Run("elsewhere", func(t *testing.T) {
		target, redirect := r.Redirect("/onboarding/payment", d)
		require.True(t, redirect)
		require.Equal(t, d.Route, target)
	})

	t.Run("the decided page is stable", func(t *testing.T) {
		// Following a redirect and recomputing must land on the same page.
		target, _ := r.Redirect("/", d)
		again := r.Route(completedUser(), &tenants.Tenant{ID: tenantID}, stateAt(onboarding.StepComplete))
		_, redirect := r.Redirect(target, again)
		require.False(t, redirect)
	})

	t.Run("anomaly", func(t *testing.T) {
		d := r.Route(completedUser(), &tenants.Tenant{ID: "acme"}, stateAt(onboarding.StepComplete))
		require.Equal(t, routing.ReasonAnomaly, d.Reason)
	})
}
