package config

import "time"

type SessionConfig interface {
	GetCookieKey() []byte
	GetSessionCookieName() string
	GetTenantCookieName() string
	GetCookieMaxAge() time.Duration
	// GetSecureCookies reports whether the Secure attribute is forced, and to what.
	// When forced is false it is derived from the request scheme.
	GetSecureCookies() (secure bool, forced bool)
	GetSessionCacheTTL() time.Duration
	GetSessionRequestTimeout() time.Duration
}

const (
	secureAuto   = "auto"
	secureAlways = "always"
	secureNever  = "never"
)

type Session struct {
	CookieKey         string        `yaml:"cookieKey" validate:"min=16,max=64"`
	SessionCookieName string        `yaml:"sessionCookieName" validate:"required"`
	TenantCookieName  string        `yaml:"tenantCookieName" validate:"required,nefield=SessionCookieName"`
	CookieMaxAge      time.Duration `yaml:"cookieMaxAge" validate:"gt=0"`
	SecureCookies     string        `yaml:"secureCookies" validate:"oneof=auto always never"`
	CacheTTL          time.Duration `yaml:"cacheTTL" validate:"gt=0"`
	RequestTimeout    time.Duration `yaml:"requestTimeout" validate:"gt=0"`
}

var _ SessionConfig = Session{}

func (s Session) GetCookieKey() []byte {
	return []byte(s.CookieKey)
}

func (s Session) GetSessionCookieName() string {
	return s.SessionCookieName
}

func (s Session) GetTenantCookieName() string {
	return s.TenantCookieName
}

func (s Session) GetCookieMaxAge() time.Duration {
	return s.CookieMaxAge
}

func (s Session) GetSecureCookies() (bool, bool) {
	switch s.SecureCookies {
	case secureAlways:
		return true, true
	case secureNever:
		return false, true
	default:
		return false, false
	}
}

// GetSessionCacheTTL is the configured value; the resolver clamps it to 60s.
func (s Session) GetSessionCacheTTL() time.Duration {
	return s.CacheTTL
}

func (s Session) GetSessionRequestTimeout() time.Duration {
	return s.RequestTimeout
}
