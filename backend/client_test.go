package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-reconciler/backend"
	"github.com/jrsteele09/go-session-reconciler/identity"
	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
	"github.com/jrsteele09/go-session-reconciler/sessions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/clientcredentials"
)

func newClient(t *testing.T, handler http.Handler, options ...backend.ClientOption) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	options = append([]backend.ClientOption{backend.WithLogger(zerolog.Nop())}, options...)
	c, err := backend.NewClient(srv.URL, options...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := backend.NewClient("ftp://backend.internal")
	require.Error(t, err)
	_, err = backend.NewClient("://nope")
	require.Error(t, err)
}

func TestSessionAPI_Get(t *testing.T) {
	expires := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "sess-1":
			writeJSON(w, http.StatusOK, map[string]any{
				"id":         "sess-1",
				"user_id":    "u-1",
				"expires_at": expires,
				"claims":     map[string]any{"sub": "u-1", "email": "a@example.com"},
				"profile":    map[string]any{"user_id": "u-1", "onboarding_completed": true},
				"tenant_id":  "7c9e6679-7425-40de-944b-e07fc1f90ae7",
				"onboarding": map[string]any{"status": "completed", "current_step": "COMPLETE"},
			})
		case "broken":
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream down"})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such session"})
		}
	})
	api := newClient(t, mux).Sessions()

	t.Run("found", func(t *testing.T) {
		data, err := api.Get(context.Background(), "sess-1")
		require.NoError(t, err)
		require.Equal(t, "u-1", data.UserID)
		require.True(t, data.ExpiresAt.Equal(expires))
		require.Equal(t, "a@example.com", data.Claims.Email)
		require.True(t, data.Profile.OnboardingCompleted)
		require.Equal(t, onboarding.StepComplete, data.Onboarding.CurrentStep)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := api.Get(context.Background(), "nope")
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		require.Equal(t, apperrors.ClassUnauthenticated, apperrors.Classify(err))
	})

	t.Run("server error", func(t *testing.T) {
		_, err := api.Get(context.Background(), "broken")
		require.ErrorIs(t, err, apperrors.ErrBackendFailure)
		require.Contains(t, err.Error(), "upstream down")
	})
}

func TestSessionAPI_CreateRefreshDelete(t *testing.T) {
	var deleted atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var claims identity.Claims
		require.NoError(t, json.NewDecoder(r.Body).Decode(&claims))
		require.Equal(t, "u-1", r.Header.Get(backend.HeaderUserID))
		writeJSON(w, http.StatusCreated, sessions.SessionData{
			Session: sessions.Session{ID: "new-sess", UserID: claims.Subject},
			Claims:  claims,
		})
	})
	mux.HandleFunc("POST /sessions/{id}/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessions.SessionData{Session: sessions.Session{ID: r.PathValue("id"), UserID: "u-1"}})
	})
	mux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if deleted.Swap(true) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	api := newClient(t, mux).Sessions()

	data, err := api.Create(context.Background(), identity.Claims{Subject: "u-1", Email: "a@example.com"})
	require.NoError(t, err)
	require.Equal(t, "new-sess", data.ID)
	require.Equal(t, "a@example.com", data.Claims.Email)

	data, err = api.Refresh(context.Background(), "new-sess")
	require.NoError(t, err)
	require.Equal(t, "new-sess", data.ID)

	require.NoError(t, api.Delete(context.Background(), "new-sess"))
	require.ErrorIs(t, api.Delete(context.Background(), "new-sess"), apperrors.ErrSessionNotFound)
}

func TestOnboardingAPI(t *testing.T) {
	var submitted, amended []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /onboarding/{step}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.PathValue("step") == "payment" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "subscription not chosen"})
			return
		}
		submitted = append(submitted, r.Header.Get(backend.HeaderUserID)+":"+r.PathValue("step")+":"+string(body))
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /onboarding/{step}/amend", func(w http.ResponseWriter, r *http.Request) {
		amended = append(amended, r.PathValue("step"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /onboarding/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(backend.HeaderUserID) == "stranger" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, onboarding.NewState(onboarding.StepSubscription, time.Time{}))
	})
	api := newClient(t, mux).Onboarding()
	ctx := context.Background()

	require.NoError(t, api.SubmitStep(ctx, "u-1", onboarding.StepBusinessInfo, nil))
	require.NoError(t, api.SubmitStep(ctx, "u-1", onboarding.StepSubscription, json.RawMessage(`{"name":"Acme"}`)))
	require.Equal(t, []string{"u-1:business-info:", `u-1:subscription:{"name":"Acme"}`}, submitted)

	err := api.SubmitStep(ctx, "u-1", onboarding.StepPayment, nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	require.ErrorIs(t, api.SubmitStep(ctx, "u-1", "LEGAL", nil), apperrors.ErrUnknownStep)

	require.NoError(t, api.AmendStep(ctx, "u-1", onboarding.StepBusinessInfo, json.RawMessage(`{}`)))
	require.Equal(t, []string{"business-info"}, amended)

	st, err := api.Status(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, onboarding.StepSubscription, st.CurrentStep)
	require.NoError(t, st.Validate())

	st, err = api.Status(ctx, "stranger")
	require.NoError(t, err)
	require.Equal(t, onboarding.StepNotStarted, st.CurrentStep)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /onboarding/status", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	api := newClient(t, mux, backend.WithTimeout(50*time.Millisecond)).Onboarding()
	defer close(release)

	_, err := api.Status(context.Background(), "u-1")
	require.ErrorIs(t, err, apperrors.ErrBackendFailure)
	require.Equal(t, apperrors.ClassTransient, apperrors.Classify(err))
}

func TestClient_ClientCredentials(t *testing.T) {
	var tokenRequests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "svc-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /onboarding/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer svc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, onboarding.Initial())
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := backend.NewClient(srv.URL,
		backend.WithLogger(zerolog.Nop()),
		backend.WithClientCredentials(&clientcredentials.Config{
			ClientID:     "reconciler",
			ClientSecret: "secret",
			TokenURL:     srv.URL + "/oauth/token",
		}),
	)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		st, err := c.Onboarding().Status(context.Background(), "u-1")
		require.NoError(t, err)
		require.Equal(t, onboarding.StepNotStarted, st.CurrentStep)
	}
	require.Equal(t, int32(1), tokenRequests.Load(), "the token is cached")
}
