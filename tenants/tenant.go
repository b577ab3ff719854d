package tenants

import (
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
)

// Namespace seeds tenant id derivation. It must never change: every derived tenant id
// in existence depends on it.
var Namespace = uuid.MustParse("6f1c2d9e-3a57-5b8e-9c4d-71e0a2b8f3c5")

// Tenant is the business a user belongs to. Once assigned, its id is immutable.
type Tenant struct {
	ID          string `json:"id"`            // Canonical tenant id (UUID)
	OwnerUserID string `json:"owner_user_id"` // Stable id of the owning user
}

// Source names where a resolved tenant id came from.
type Source string

const (
	SourceClaim   Source = "claim"   // Identity-provider tenant claim
	SourceBackend Source = "backend" // Backend-declared tenant on the profile
	SourceCookie  Source = "cookie"  // Previously persisted cookie value
	SourceDerived Source = "derived" // Deterministic derivation from the user id
)

// Resolution is the outcome of tenant resolution.
type Resolution struct {
	TenantID string `json:"tenant_id"`
	Source   Source `json:"source"`

	// Conflict wraps ErrTenantMismatch when the claim and the backend disagreed.
	Conflict error `json:"-"`
}

// Tenant returns the resolution as a Tenant owned by userID.
func (r Resolution) Tenant(userID string) *Tenant {
	if r.TenantID == "" {
		return nil
	}
	return &Tenant{ID: r.TenantID, OwnerUserID: userID}
}

// DeriveID maps a stable user id to a tenant id with a one-way function (UUIDv5 over
// Namespace). The same user id always yields the same tenant id, offline or not.
func DeriveID(userID string) string {
	return uuid.NewSHA1(Namespace, []byte(userID)).String()
}

// ParseID normalizes id and checks that it is a well-formed tenant id.
func ParseID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", apperrors.Wrapf(apperrors.ErrInvalidTenantID, "[ParseID] empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.Wrapf(apperrors.ErrInvalidTenantID, "[ParseID] %q: %s", id, err.Error())
	}
	return id, nil
}

// IsValidID reports whether id is a well-formed tenant id.
func IsValidID(id string) bool {
	_, err := ParseID(id)
	return err == nil
}
