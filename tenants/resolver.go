package tenants

import (
	"strings"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Inputs are every source the resolver may consult. Empty fields are treated as absent.
type Inputs struct {
	UserID          string // Stable, provider-issued user id (required)
	ClaimTenantID   string // Tenant claim from the identity provider
	BackendTenantID string // Tenant declared on the backend profile
	CookieTenantID  string // Tenant id persisted in the tenant cookie
}

// Persister stores the winning tenant id so later resolutions stop at the cookie.
type Persister interface {
	PersistTenant(tenantID string) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(tenantID string) error

// PersistTenant implements Persister.
func (f PersisterFunc) PersistTenant(tenantID string) error {
	return f(tenantID)
}

// Resolver picks the canonical tenant id for a user.
type Resolver struct {
	logger zerolog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a tenant resolver.
func NewResolver(options ...ResolverOption) *Resolver {
	r := &Resolver{logger: log.Logger}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Resolve applies the precedence claim, backend, cookie, derived. When claim and
// backend disagree the backend wins and the mismatch is logged: claims are allowed to
// be stale. The winner is passed to persist unless the cookie already holds it.
func (r *Resolver) Resolve(in Inputs, persist Persister) Resolution {
	res := r.pick(in)

	if persist != nil && res.TenantID != normalize(in.CookieTenantID) {
		if err := persist.PersistTenant(res.TenantID); err != nil {
			r.logger.Warn().Err(err).Str("user_id", in.UserID).Str("tenant_id", res.TenantID).Msg("failed to persist resolved tenant")
		}
	}
	return res
}

func (r *Resolver) pick(in Inputs) Resolution {
	claim := r.candidate(in, SourceClaim, in.ClaimTenantID)
	backend := r.candidate(in, SourceBackend, in.BackendTenantID)

	switch {
	case claim != "" && backend != "" && claim != backend:
		conflict := apperrors.Wrapf(apperrors.ErrTenantMismatch, "[Resolver Resolve] claim %s, backend %s", claim, backend)
		r.logger.Warn().Err(conflict).Str("user_id", in.UserID).Msg("using the backend tenant")
		return Resolution{TenantID: backend, Source: SourceBackend, Conflict: conflict}
	case claim != "":
		return Resolution{TenantID: claim, Source: SourceClaim}
	case backend != "":
		return Resolution{TenantID: backend, Source: SourceBackend}
	}

	if cookie := r.candidate(in, SourceCookie, in.CookieTenantID); cookie != "" {
		return Resolution{TenantID: cookie, Source: SourceCookie}
	}

	return Resolution{TenantID: DeriveID(in.UserID), Source: SourceDerived}
}

func (r *Resolver) candidate(in Inputs, source Source, value string) string {
	if normalize(value) == "" {
		return ""
	}
	id, err := ParseID(value)
	if err != nil {
		r.logger.Warn().Err(err).Str("user_id", in.UserID).Str("source", string(source)).Msg("ignoring malformed tenant id")
		return ""
	}
	return id
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
