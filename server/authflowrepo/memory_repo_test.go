package authflowrepo_test

import (
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/server/authflowrepo"
	"github.com/stretchr/testify/require"
)

var started = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMemoryRepo_TakeIsSingleUse(t *testing.T) {
	repo := authflowrepo.NewMemoryRepo()
	require.NoError(t, repo.Save("state-1", authflowrepo.SignInFlow{Nonce: "n-1", CodeVerifier: "v-1", CreatedAt: started}))

	flow, err := repo.Take("state-1", started.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, "n-1", flow.Nonce)
	require.Equal(t, "v-1", flow.CodeVerifier)

	_, err = repo.Take("state-1", started.Add(-time.Minute))
	require.ErrorIs(t, err, apperrors.ErrInvalidSignInFlow)
	require.Zero(t, repo.Len())
}

func TestMemoryRepo_ExpiredFlowIsConsumed(t *testing.T) {
	repo := authflowrepo.NewMemoryRepo()
	require.NoError(t, repo.Save("state-1", authflowrepo.SignInFlow{Nonce: "n-1", CreatedAt: started}))

	_, err := repo.Take("state-1", started.Add(time.Second))
	require.ErrorIs(t, err, apperrors.ErrInvalidSignInFlow)
	require.Zero(t, repo.Len(), "an expired state cannot be retried")
}

func TestMemoryRepo_Save(t *testing.T) {
	tests := []struct {
		name  string
		state string
		flow  authflowrepo.SignInFlow
	}{
		{name: "empty state", state: "", flow: authflowrepo.SignInFlow{Nonce: "n"}},
		{name: "missing nonce", state: "s", flow: authflowrepo.SignInFlow{}},
		{name: "state reused", state: "dup", flow: authflowrepo.SignInFlow{Nonce: "n"}},
	}

	repo := authflowrepo.NewMemoryRepo()
	require.NoError(t, repo.Save("dup", authflowrepo.SignInFlow{Nonce: "first"}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, repo.Save(tt.state, tt.flow))
		})
	}
	require.Equal(t, 1, repo.Len())
}

func TestMemoryRepo_Purge(t *testing.T) {
	repo := authflowrepo.NewMemoryRepo()
	require.NoError(t, repo.Save("old", authflowrepo.SignInFlow{Nonce: "a", CreatedAt: started.Add(-time.Hour)}))
	require.NoError(t, repo.Save("fresh", authflowrepo.SignInFlow{Nonce: "b", CreatedAt: started}))

	require.Equal(t, 1, repo.Purge(started.Add(-10*time.Minute)))
	require.Equal(t, 1, repo.Len())

	_, err := repo.Take("fresh", started.Add(-10*time.Minute))
	require.NoError(t, err)
}
