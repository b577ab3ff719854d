package config

import "time"

type IdentityConfig interface {
	// GetIdentityProvider is "oidc" (discovery + authorization code) or "hmac"
	// (HS256 tokens posted to the callback, for local development).
	GetIdentityProvider() string
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetRedirectURL() string
	GetScopes() []string
	GetTenantClaim() string
	GetHMACSecret() []byte
	GetSignInFlowTTL() time.Duration
}

const (
	ProviderOIDC = "oidc"
	ProviderHMAC = "hmac"
)

type Identity struct {
	Provider      string        `yaml:"provider" validate:"oneof=oidc hmac"`
	IssuerURL     string        `yaml:"issuerURL" validate:"required_if=Provider oidc,omitempty,url"`
	ClientID      string        `yaml:"clientID" validate:"required"`
	ClientSecret  string        `yaml:"clientSecret"`
	RedirectPath  string        `yaml:"redirectPath" validate:"required,startswith=/"`
	Scopes        []string      `yaml:"scopes"`
	TenantClaim   string        `yaml:"tenantClaim"`
	HMACSecret    string        `yaml:"hmacSecret" validate:"required_if=Provider hmac,omitempty,min=32"`
	SignInFlowTTL time.Duration `yaml:"signInFlowTTL" validate:"gt=0"`

	baseURL string
}

var _ IdentityConfig = Identity{}

func (i Identity) GetIdentityProvider() string {
	return i.Provider
}

func (i Identity) GetIssuerURL() string {
	return i.IssuerURL
}

func (i Identity) GetClientID() string {
	return i.ClientID
}

func (i Identity) GetClientSecret() string {
	return i.ClientSecret
}

// GetRedirectURL is the absolute callback URL registered with the provider.
func (i Identity) GetRedirectURL() string {
	return i.baseURL + i.RedirectPath
}

func (i Identity) GetScopes() []string {
	return i.Scopes
}

func (i Identity) GetTenantClaim() string {
	return i.TenantClaim
}

func (i Identity) GetHMACSecret() []byte {
	return []byte(i.HMACSecret)
}

func (i Identity) GetSignInFlowTTL() time.Duration {
	return i.SignInFlowTTL
}
