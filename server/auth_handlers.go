package server

import (
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-reconciler/server/authflowrepo"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// signInChallenge is returned instead of a provider redirect in HMAC mode. The caller
// mints a token carrying Nonce and posts it with State to Callback.
type signInChallenge struct {
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	Callback string `json:"callback"`
}

// SignInHandler starts a sign-in. A browser that already has a valid session is sent
// to its reconciled route instead.
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := s.reconcileRequest(w, r)
		if err == nil && outcome.Authenticated() {
			http.Redirect(w, r, outcome.Decision.Route, http.StatusSeeOther)
			return
		}
		if err == nil {
			s.clearStaleSession(w, r, outcome)
		}

		state := generateRandomString(32)
		flow := authflowrepo.SignInFlow{
			Nonce:     generateRandomString(32),
			CreatedAt: s.nowTime(),
		}
		if s.oidc.OAuth2Config != nil {
			flow.CodeVerifier = oauth2.GenerateVerifier()
		}
		if err := s.authState.Save(state, flow); err != nil {
			log.Err(err).Msg("failed to store sign-in state")
			writeJSONError(w, "internal_error", "could not start sign-in", http.StatusInternalServerError)
			return
		}

		if s.oidc.OAuth2Config == nil {
			writeJSON(w, http.StatusOK, signInChallenge{
				State:    state,
				Nonce:    flow.Nonce,
				Callback: getScheme(r) + "://" + r.Host + RouteCallback,
			})
			return
		}

		authURL := s.oidc.OAuth2Config.AuthCodeURL(state,
			oidc.Nonce(flow.Nonce),
			oauth2.S256ChallengeOption(flow.CodeVerifier),
		)
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// SignOutHandler destroys the session, forgets everything held for it and clears the
// cookies. Backend failures do not keep the user signed in.
func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionID, ok := s.cookies.SessionID(r); ok {
			if data, err := s.sessions.Lookup(r.Context(), sessionID); err == nil {
				s.onboarding.Forget(data.User().ID)
			}
			if err := s.sessions.Destroy(r.Context(), sessionID); err != nil {
				log.Warn().Err(err).Msg("backend session delete failed, cookies cleared anyway")
			}
			s.breaker.ResetSubject(sessionID)
		}
		s.cookies.ClearSession(w, r)
		http.Redirect(w, r, RouteSignIn, http.StatusSeeOther)
	}
}
