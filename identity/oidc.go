package identity

import (
	"context"
	"crypto"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/pkg/errors"
)

// OIDCVerifier verifies ID tokens issued by an OpenID Connect provider.
type OIDCVerifier struct {
	verifier    *oidc.IDTokenVerifier
	tenantClaim string
}

var _ Verifier = (*OIDCVerifier)(nil)

// NewOIDCVerifier builds a verifier from an already discovered provider.
func NewOIDCVerifier(provider *oidc.Provider, clientID, tenantClaim string) *OIDCVerifier {
	return &OIDCVerifier{
		verifier:    provider.Verifier(&oidc.Config{ClientID: clientID}),
		tenantClaim: orDefaultClaim(tenantClaim),
	}
}

// NewStaticOIDCVerifier verifies tokens against fixed public keys instead of a
// discovered JWKS endpoint.
func NewStaticOIDCVerifier(issuer, clientID, tenantClaim string, keys ...crypto.PublicKey) *OIDCVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &OIDCVerifier{
		verifier:    oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
		tenantClaim: orDefaultClaim(tenantClaim),
	}
}

// Verify checks signature, issuer, audience and expiry, then extracts claims.
func (v *OIDCVerifier) Verify(ctx context.Context, rawIDToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidIDToken, err.Error())
	}

	raw := map[string]any{}
	if err := idToken.Claims(&raw); err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidIDToken, "[OIDCVerifier Verify] claims: "+err.Error())
	}

	claims := &Claims{
		Subject:       idToken.Subject,
		Email:         stringClaim(raw, "email"),
		EmailVerified: boolClaim(raw, "email_verified"),
		TenantID:      stringClaim(raw, v.tenantClaim),
		Issuer:        idToken.Issuer,
		Nonce:         idToken.Nonce,
		IssuedAt:      idToken.IssuedAt,
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidIDToken, "[OIDCVerifier Verify] missing subject")
	}
	return claims, nil
}

func orDefaultClaim(name string) string {
	if name == "" {
		return DefaultTenantClaim
	}
	return name
}
