package sessions

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

const (
	DefaultSessionCookieName = "sid"
	DefaultTenantCookieName  = "tid"
	DefaultCookieMaxAge      = 24 * time.Hour
)

// CookieStore reads and writes the session and tenant cookies. Every value carries a
// keyed BLAKE2b tag bound to the cookie name; a value whose tag does not verify is
// treated as absent.
type CookieStore struct {
	key         []byte
	sessionName string
	tenantName  string
	maxAge      time.Duration
	secure      *bool
	logger      zerolog.Logger
}

// CookieOption configures a CookieStore.
type CookieOption func(*CookieStore)

// WithCookieNames overrides the session and tenant cookie names.
func WithCookieNames(session, tenant string) CookieOption {
	return func(cs *CookieStore) {
		if session != "" {
			cs.sessionName = session
		}
		if tenant != "" {
			cs.tenantName = tenant
		}
	}
}

// WithCookieMaxAge sets the cookie lifetime.
func WithCookieMaxAge(d time.Duration) CookieOption {
	return func(cs *CookieStore) {
		if d > 0 {
			cs.maxAge = d
		}
	}
}

// WithSecureCookies forces the Secure attribute on or off instead of deriving it from
// the request scheme.
func WithSecureCookies(secure bool) CookieOption {
	return func(cs *CookieStore) {
		cs.secure = &secure
	}
}

// WithCookieLogger sets the logger.
func WithCookieLogger(logger zerolog.Logger) CookieOption {
	return func(cs *CookieStore) {
		cs.logger = logger
	}
}

// NewCookieStore creates a store that signs values with key (16 to 64 bytes).
func NewCookieStore(key []byte, options ...CookieOption) (*CookieStore, error) {
	if len(key) < 16 || len(key) > blake2b.Size {
		return nil, errors.Errorf("[NewCookieStore] key must be between 16 and %d bytes, got %d", blake2b.Size, len(key))
	}
	cs := &CookieStore{
		key:         append([]byte(nil), key...),
		sessionName: DefaultSessionCookieName,
		tenantName:  DefaultTenantCookieName,
		maxAge:      DefaultCookieMaxAge,
		logger:      log.Logger,
	}
	for _, opt := range options {
		opt(cs)
	}
	return cs, nil
}

// SessionID returns the session id carried by the request, if any.
func (cs *CookieStore) SessionID(r *http.Request) (string, bool) {
	return cs.read(r, cs.sessionName)
}

// SetSessionID writes the session cookie.
func (cs *CookieStore) SetSessionID(w http.ResponseWriter, r *http.Request, sessionID string) {
	cs.write(w, r, cs.sessionName, sessionID)
}

// ClearSession expires both cookies.
func (cs *CookieStore) ClearSession(w http.ResponseWriter, r *http.Request) {
	cs.clear(w, r, cs.sessionName)
	cs.clear(w, r, cs.tenantName)
}

// TenantID returns the last resolved tenant id stored in the browser, if any.
func (cs *CookieStore) TenantID(r *http.Request) (string, bool) {
	return cs.read(r, cs.tenantName)
}

// SetTenantID writes the tenant cookie.
func (cs *CookieStore) SetTenantID(w http.ResponseWriter, r *http.Request, tenantID string) {
	cs.write(w, r, cs.tenantName, tenantID)
}

func (cs *CookieStore) read(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	value, err := cs.Verify(name, c.Value)
	if err != nil {
		cs.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("discarding cookie")
		return "", false
	}
	return value, true
}

func (cs *CookieStore) write(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    cs.sign(name, value),
		Path:     "/",
		HttpOnly: true,
		Secure:   cs.isSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(cs.maxAge / time.Second),
	})
}

func (cs *CookieStore) clear(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   cs.isSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func (cs *CookieStore) isSecure(r *http.Request) bool {
	if cs.secure != nil {
		return *cs.secure
	}
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// sign encodes value as base64url(value) "." base64url(tag).
func (cs *CookieStore) sign(name, value string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(value))
	return encoded + "." + base64.RawURLEncoding.EncodeToString(cs.tag(name, encoded))
}

// Verify checks the tag on a signed cookie value and returns the value it carries.
// Failures wrap ErrInvalidCookie.
func (cs *CookieStore) Verify(name, signed string) (string, error) {
	encoded, tag, found := strings.Cut(signed, ".")
	if !found {
		return "", apperrors.Wrapf(apperrors.ErrInvalidCookie, "[CookieStore Verify] %s is not signed", name)
	}
	got, err := base64.RawURLEncoding.DecodeString(tag)
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrInvalidCookie, "[CookieStore Verify] %s tag", name)
	}
	if subtle.ConstantTimeCompare(got, cs.tag(name, encoded)) != 1 {
		return "", apperrors.Wrapf(apperrors.ErrInvalidCookie, "[CookieStore Verify] %s signature mismatch", name)
	}
	value, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrInvalidCookie, "[CookieStore Verify] %s value", name)
	}
	return string(value), nil
}

func (cs *CookieStore) tag(name, encoded string) []byte {
	// blake2b.New256 only fails for keys longer than 64 bytes, which NewCookieStore rejects.
	h, _ := blake2b.New256(cs.key)
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(encoded))
	return h.Sum(nil)
}
