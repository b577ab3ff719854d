package users

import (
	"github.com/jrsteele09/go-session-reconciler/identity"
)

// Profile is the backend's record of a user, delivered with the session snapshot.
type Profile struct {
	UserID              string `json:"user_id"`              // Stable, provider-issued user id
	Email               string `json:"email,omitempty"`      // Email held by the backend
	TenantID            string `json:"tenant_id,omitempty"`  // Backend-declared tenant, if any
	OnboardingCompleted bool   `json:"onboarding_completed"` // Authoritative completion flag
	NeedsOnboarding     bool   `json:"needs_onboarding"`     // Backend asks for (re)onboarding
}

// User is the merged view of identity-provider claims and the backend profile.
type User struct {
	ID                  string `json:"id"`                  // Stable, provider-issued user id
	Email               string `json:"email,omitempty"`     // User's email address
	TenantID            string `json:"tenant_id,omitempty"` // Canonical tenant, filled in by tenant resolution
	OnboardingCompleted bool   `json:"onboarding_completed"`
	NeedsOnboarding     bool   `json:"needs_onboarding"`
}

// Merge combines claims and profile. The backend profile wins wherever both carry a
// value; tenant resolution has its own precedence rules and is left to the tenants package,
// so TenantID here is only the backend-declared value.
func Merge(claims identity.Claims, profile *Profile) User {
	user := User{
		ID:    claims.Subject,
		Email: claims.Email,
	}
	if profile == nil {
		user.NeedsOnboarding = true
		return user
	}

	if profile.UserID != "" {
		user.ID = profile.UserID
	}
	if profile.Email != "" {
		user.Email = profile.Email
	}
	user.TenantID = profile.TenantID
	user.OnboardingCompleted = profile.OnboardingCompleted
	user.NeedsOnboarding = profile.NeedsOnboarding || !profile.OnboardingCompleted
	return user
}

// RequiresOnboarding reports whether the user still has to go through the wizard.
// Completion is decided by the backend flag; a tenant alone never implies it.
func (u *User) RequiresOnboarding() bool {
	if u == nil {
		return true
	}
	return u.NeedsOnboarding || !u.OnboardingCompleted
}
