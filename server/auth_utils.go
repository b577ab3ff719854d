package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-reconciler/identity"
	"github.com/jrsteele09/go-session-reconciler/internal/config"
	"github.com/jrsteele09/go-session-reconciler/reconcile"
	"github.com/jrsteele09/go-session-reconciler/tenants"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// NewOidcConfig discovers the identity provider, or builds the HS256 verifier in HMAC mode.
func NewOidcConfig(ctx context.Context, cfg config.IdentityConfig) (OidcConfig, error) {
	if cfg.GetIdentityProvider() == config.ProviderHMAC {
		verifier, err := identity.NewHMACVerifier(cfg.GetHMACSecret(), cfg.GetIssuerURL(), cfg.GetClientID(), cfg.GetTenantClaim())
		if err != nil {
			return OidcConfig{}, err
		}
		return OidcConfig{Verifier: verifier}, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.GetIssuerURL())
	if err != nil {
		return OidcConfig{}, errors.Wrap(err, "[NewOidcConfig] failed to create OIDC provider")
	}
	scopes := cfg.GetScopes()
	if !slices.Contains(scopes, oidc.ScopeOpenID) {
		scopes = append([]string{oidc.ScopeOpenID}, scopes...)
	}
	return OidcConfig{
		OAuth2Config: &oauth2.Config{
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.GetRedirectURL(),
			Scopes:       scopes,
		},
		Verifier: identity.NewOIDCVerifier(provider, cfg.GetClientID(), cfg.GetTenantClaim()),
	}, nil
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// reconcileRequest runs the pipeline for the cookies the browser presented.
func (s *Server) reconcileRequest(w http.ResponseWriter, r *http.Request) (reconcile.Outcome, error) {
	return s.engine.Reconcile(r.Context(), s.requestFor(r), s.tenantPersister(w, r))
}

func (s *Server) requestFor(r *http.Request) reconcile.Request {
	sessionID, _ := s.cookies.SessionID(r)
	tenantID, _ := s.cookies.TenantID(r)
	return reconcile.Request{SessionID: sessionID, CookieTenantID: tenantID}
}

// tenantPersister writes the resolved tenant back to the tenant cookie.
func (s *Server) tenantPersister(w http.ResponseWriter, r *http.Request) tenants.Persister {
	return tenants.PersisterFunc(func(tenantID string) error {
		s.cookies.SetTenantID(w, r, tenantID)
		return nil
	})
}

// clearStaleSession drops cookies that no longer name a valid session.
func (s *Server) clearStaleSession(w http.ResponseWriter, r *http.Request, outcome reconcile.Outcome) {
	if outcome.SessionID != "" && !outcome.Authenticated() {
		s.cookies.ClearSession(w, r)
	}
}
