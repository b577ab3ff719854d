package sessions

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-reconciler/identity"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
	"github.com/jrsteele09/go-session-reconciler/users"
)

// Session is the backend's record of a signed-in browser.
type Session struct {
	ID        string    `json:"id"`         // Opaque session identifier, also the cookie value
	UserID    string    `json:"user_id"`    // Owner of the session
	CreatedAt time.Time `json:"created_at"` // When the session was established
	ExpiresAt time.Time `json:"expires_at"` // Hard expiry set by the backend
}

// Expired reports whether the session has passed its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionData is the single-round-trip snapshot returned for a session: the session
// itself plus everything the reconciler needs to decide where the browser goes.
type SessionData struct {
	Session

	// Claims are the identity-provider claims captured when the session was created.
	Claims identity.Claims `json:"claims"`

	// Profile is nil when the backend has no profile for the user yet.
	Profile *users.Profile `json:"profile,omitempty"`

	// TenantID is the tenant the backend currently associates with the session.
	TenantID string `json:"tenant_id,omitempty"`

	// Onboarding is the backend's view of the user's wizard progress, possibly stale.
	Onboarding *onboarding.State `json:"onboarding,omitempty"`
}

// User merges the claims and profile. Its ID is the key for everything held per user,
// falling back to the session owner when neither source names one.
func (d *SessionData) User() users.User {
	user := users.Merge(d.Claims, d.Profile)
	if user.ID == "" {
		user.ID = d.UserID
	}
	return user
}

// Backend is the session API of the business backend.
type Backend interface {
	// Get returns the session snapshot, or an error wrapping ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*SessionData, error)

	// Create establishes a session for verified claims after sign-in.
	Create(ctx context.Context, claims identity.Claims) (*SessionData, error)

	// Refresh re-reads the session after server-side changes (e.g. onboarding progress).
	Refresh(ctx context.Context, sessionID string) (*SessionData, error)

	// Delete ends the session.
	Delete(ctx context.Context, sessionID string) error
}
