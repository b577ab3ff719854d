// Package authflowrepo remembers sign-in flows between the redirect to the identity
// provider and the callback.
package authflowrepo

import "time"

// SignInFlow is the server-side half of a sign-in: the PKCE verifier (empty when the
// provider is not redirected to) and the nonce the ID token must echo.
type SignInFlow struct {
	CodeVerifier string
	Nonce        string
	CreatedAt    time.Time
}

// Repo stores flows keyed by the OAuth state parameter.
type Repo interface {
	Save(state string, flow SignInFlow) error
	// Take removes the flow and returns it if it was created at or after notBefore.
	// A state is accepted at most once, expired or not.
	Take(state string, notBefore time.Time) (SignInFlow, error)
	// Purge drops flows created before cutoff and returns how many were removed.
	Purge(cutoff time.Time) int
	Len() int
}
