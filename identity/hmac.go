package identity

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/pkg/errors"
)

// HMACVerifier verifies HS256 tokens signed with a shared secret. It is meant for
// development identity providers and integration environments without OIDC discovery.
type HMACVerifier struct {
	secret      []byte
	issuer      string
	audience    string
	tenantClaim string
	nowTime     func() time.Time
}

var _ Verifier = (*HMACVerifier)(nil)

// HMACOption configures an HMACVerifier.
type HMACOption func(*HMACVerifier)

// WithHMACNowTime sets the clock used for exp/iat validation (primarily for testing)
func WithHMACNowTime(nowFunc func() time.Time) HMACOption {
	return func(v *HMACVerifier) {
		v.nowTime = nowFunc
	}
}

// NewHMACVerifier creates a verifier. issuer and audience are enforced when non-empty.
func NewHMACVerifier(secret []byte, issuer, audience, tenantClaim string, options ...HMACOption) (*HMACVerifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("[NewHMACVerifier] secret must be at least 32 bytes")
	}
	v := &HMACVerifier{
		secret:      secret,
		issuer:      issuer,
		audience:    audience,
		tenantClaim: orDefaultClaim(tenantClaim),
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v, nil
}

// Verify parses and validates the token.
func (v *HMACVerifier) Verify(_ context.Context, rawIDToken string) (*Claims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.nowTime),
	}
	if v.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(v.audience))
	}

	mapClaims := jwt.MapClaims{}
	token, err := jwt.NewParser(parserOptions...).ParseWithClaims(rawIDToken, mapClaims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.Wrap(apperrors.ErrInvalidIDToken, "[HMACVerifier Verify] "+errorText(err))
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidIDToken, "[HMACVerifier Verify] missing subject")
	}
	issuer, _ := mapClaims.GetIssuer()

	claims := &Claims{
		Subject:       subject,
		Email:         stringClaim(mapClaims, "email"),
		EmailVerified: boolClaim(mapClaims, "email_verified"),
		TenantID:      stringClaim(mapClaims, v.tenantClaim),
		Issuer:        issuer,
		Nonce:         stringClaim(mapClaims, "nonce"),
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	return claims, nil
}

func errorText(err error) string {
	if err == nil {
		return "token invalid"
	}
	return err.Error()
}
