package users_test

import (
	"testing"

	"github.com/jrsteele09/go-session-reconciler/identity"
	"github.com/jrsteele09/go-session-reconciler/users"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	claims := identity.Claims{Subject: "u-123", Email: "claim@example.com", TenantID: "claim-tenant"}

	t.Run("no profile yet", func(t *testing.T) {
		u := users.Merge(claims, nil)
		require.Equal(t, "u-123", u.ID)
		require.Equal(t, "claim@example.com", u.Email)
		require.Empty(t, u.TenantID, "claims never set the tenant directly")
		require.True(t, u.RequiresOnboarding())
	})

	t.Run("backend profile wins", func(t *testing.T) {
		u := users.Merge(claims, &users.Profile{
			UserID:              "u-123",
			Email:               "backend@example.com",
			TenantID:            "backend-tenant",
			OnboardingCompleted: true,
		})
		require.Equal(t, "backend@example.com", u.Email)
		require.Equal(t, "backend-tenant", u.TenantID)
		require.False(t, u.RequiresOnboarding())
	})

	t.Run("tenant without completion flag still requires onboarding", func(t *testing.T) {
		u := users.Merge(claims, &users.Profile{UserID: "u-123", TenantID: "backend-tenant"})
		require.True(t, u.RequiresOnboarding())
	})

	t.Run("needs onboarding overrides completion", func(t *testing.T) {
		u := users.Merge(claims, &users.Profile{UserID: "u-123", OnboardingCompleted: true, NeedsOnboarding: true})
		require.True(t, u.RequiresOnboarding())
	})
}
