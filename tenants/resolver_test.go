package tenants_test

import (
	"errors"
	"testing"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/tenants"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	claimTenant   = "11111111-1111-4111-8111-111111111111"
	backendTenant = "22222222-2222-4222-8222-222222222222"
	cookieTenant  = "33333333-3333-4333-8333-333333333333"
)

type recordingPersister struct {
	persisted []string
	err       error
}

func (p *recordingPersister) PersistTenant(tenantID string) error {
	p.persisted = append(p.persisted, tenantID)
	return p.err
}

func newResolver() *tenants.Resolver {
	return tenants.NewResolver(tenants.WithLogger(zerolog.Nop()))
}

func TestResolver_Precedence(t *testing.T) {
	tests := []struct {
		name   string
		in     tenants.Inputs
		want   string
		source tenants.Source
	}{
		{
			name:   "claim only",
			in:     tenants.Inputs{UserID: "u-1", ClaimTenantID: claimTenant, CookieTenantID: cookieTenant},
			want:   claimTenant,
			source: tenants.SourceClaim,
		},
		{
			name:   "claim and backend agree",
			in:     tenants.Inputs{UserID: "u-1", ClaimTenantID: backendTenant, BackendTenantID: backendTenant},
			want:   backendTenant,
			source: tenants.SourceClaim,
		},
		{
			name:   "claim and backend disagree, backend wins",
			in:     tenants.Inputs{UserID: "u-1", ClaimTenantID: claimTenant, BackendTenantID: backendTenant},
			want:   backendTenant,
			source: tenants.SourceBackend,
		},
		{
			name:   "backend beats cookie",
			in:     tenants.Inputs{UserID: "u-1", BackendTenantID: backendTenant, CookieTenantID: cookieTenant},
			want:   backendTenant,
			source: tenants.SourceBackend,
		},
		{
			name:   "cookie when nothing else",
			in:     tenants.Inputs{UserID: "u-1", CookieTenantID: cookieTenant},
			want:   cookieTenant,
			source: tenants.SourceCookie,
		},
		{
			name:   "derived as last resort",
			in:     tenants.Inputs{UserID: "u-1"},
			want:   tenants.DeriveID("u-1"),
			source: tenants.SourceDerived,
		},
		{
			name:   "malformed claim is skipped",
			in:     tenants.Inputs{UserID: "u-1", ClaimTenantID: "acme-corp", CookieTenantID: cookieTenant},
			want:   cookieTenant,
			source: tenants.SourceCookie,
		},
		{
			name:   "malformed cookie falls through to derivation",
			in:     tenants.Inputs{UserID: "u-1", CookieTenantID: "not-a-uuid"},
			want:   tenants.DeriveID("u-1"),
			source: tenants.SourceDerived,
		},
	}

	r := newResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.in, nil)
			require.Equal(t, tt.want, res.TenantID)
			require.Equal(t, tt.source, res.Source)
		})
	}
}

func TestResolver_ReportsClaimBackendConflict(t *testing.T) {
	r := newResolver()

	res := r.Resolve(tenants.Inputs{UserID: "u-1", ClaimTenantID: claimTenant, BackendTenantID: backendTenant}, nil)
	require.Equal(t, backendTenant, res.TenantID)
	require.ErrorIs(t, res.Conflict, apperrors.ErrTenantMismatch)
	require.Equal(t, apperrors.ClassInconsistent, apperrors.Classify(res.Conflict))

	res = r.Resolve(tenants.Inputs{UserID: "u-1", ClaimTenantID: backendTenant, BackendTenantID: backendTenant}, nil)
	require.NoError(t, res.Conflict)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{name: "canonical", id: claimTenant, want: claimTenant},
		{name: "upper case with padding", id: "  11111111-1111-4111-8111-11111111111A ", want: "11111111-1111-4111-8111-11111111111a"},
		{name: "empty", id: " ", wantErr: true},
		{name: "slug", id: "acme-corp", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tenants.ParseID(tc.id)
			if tc.wantErr {
				require.ErrorIs(t, err, apperrors.ErrInvalidTenantID)
				require.False(t, tenants.IsValidID(tc.id))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolver_DerivedIsStable(t *testing.T) {
	r := newResolver()
	in := tenants.Inputs{UserID: "u-123"}

	first := r.Resolve(in, nil)
	require.Equal(t, tenants.SourceDerived, first.Source)
	require.True(t, tenants.IsValidID(first.TenantID))

	for i := 0; i < 10; i++ {
		require.Equal(t, first.TenantID, newResolver().Resolve(in, nil).TenantID)
	}
	require.NotEqual(t, first.TenantID, tenants.DeriveID("u-124"))
}

func TestResolver_DeterministicAsSourcesAreRemoved(t *testing.T) {
	r := newResolver()
	full := tenants.Inputs{UserID: "u-9", ClaimTenantID: claimTenant, BackendTenantID: backendTenant, CookieTenantID: cookieTenant}

	variants := []tenants.Inputs{
		full,
		{UserID: "u-9", BackendTenantID: backendTenant, CookieTenantID: cookieTenant},
		{UserID: "u-9", CookieTenantID: cookieTenant},
		{UserID: "u-9"},
	}
	for _, in := range variants {
		first := r.Resolve(in, nil)
		second := r.Resolve(in, nil)
		require.Equal(t, first, second)
	}
}

func TestResolver_PersistsWinner(t *testing.T) {
	r := newResolver()

	t.Run("persists when cookie differs", func(t *testing.T) {
		p := &recordingPersister{}
		res := r.Resolve(tenants.Inputs{UserID: "u-1", BackendTenantID: backendTenant, CookieTenantID: cookieTenant}, p)
		require.Equal(t, []string{backendTenant}, p.persisted)
		require.Equal(t, backendTenant, res.TenantID)
	})

	t.Run("skips when cookie already holds winner", func(t *testing.T) {
		p := &recordingPersister{}
		r.Resolve(tenants.Inputs{UserID: "u-1", CookieTenantID: cookieTenant}, p)
		require.Empty(t, p.persisted)
	})

	t.Run("derived id is persisted so the next call stops at the cookie", func(t *testing.T) {
		p := &recordingPersister{}
		first := r.Resolve(tenants.Inputs{UserID: "u-1"}, p)
		require.Equal(t, []string{first.TenantID}, p.persisted)

		second := r.Resolve(tenants.Inputs{UserID: "u-1", CookieTenantID: p.persisted[0]}, p)
		require.Equal(t, tenants.SourceCookie, second.Source)
		require.Equal(t, first.TenantID, second.TenantID)
		require.Len(t, p.persisted, 1)
	})

	t.Run("persist failure does not change the result", func(t *testing.T) {
		p := &recordingPersister{err: errors.New("headers already written")}
		res := r.Resolve(tenants.Inputs{UserID: "u-1", ClaimTenantID: claimTenant}, p)
		require.Equal(t, claimTenant, res.TenantID)
	})
}

func TestResolution_Tenant(t *testing.T) {
	res := tenants.Resolution{TenantID: backendTenant, Source: tenants.SourceBackend}
	require.Equal(t, &tenants.Tenant{ID: backendTenant, OwnerUserID: "u-1"}, res.Tenant("u-1"))
	require.Nil(t, tenants.Resolution{}.Tenant("u-1"))
}
