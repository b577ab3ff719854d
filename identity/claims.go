// Package identity consumes identity-provider output. It verifies signed ID tokens and
// reduces them to the handful of claims the reconciler needs; it does not implement the
// provider protocol itself.
package identity

import (
	"context"
	"time"
)

// DefaultTenantClaim is the claim name carrying the provider's view of the user's tenant.
const DefaultTenantClaim = "tenant_id"

// Claims is the verified, read-only identity-provider input.
type Claims struct {
	Subject       string    `json:"sub"`                 // Stable, provider-issued user id
	Email         string    `json:"email,omitempty"`     // User's email address
	EmailVerified bool      `json:"email_verified"`      // Provider asserts the email is verified
	TenantID      string    `json:"tenant_id,omitempty"` // Optional tenant claim, may be stale
	Issuer        string    `json:"iss,omitempty"`       // Token issuer
	Nonce         string    `json:"nonce,omitempty"`     // Nonce echoed from the sign-in request
	IssuedAt      time.Time `json:"iat,omitempty"`       // When the token was issued
}

// HasTenant reports whether the provider supplied a tenant claim.
func (c Claims) HasTenant() bool {
	return c.TenantID != ""
}

// Verifier checks a raw ID token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (*Claims, error)
}

func stringClaim(raw map[string]any, name string) string {
	if name == "" {
		return ""
	}
	v, _ := raw[name].(string)
	return v
}

func boolClaim(raw map[string]any, name string) bool {
	switch v := raw[name].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
