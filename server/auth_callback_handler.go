package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-reconciler/identity"
	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/reconcile"
	"github.com/jrsteele09/go-session-reconciler/server/authflowrepo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// CallbackHandler completes sign-in: it checks the state, obtains and verifies the ID
// token, creates the backend session and sends the browser to its reconciled route.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue works for both query params and POST form data
		state := r.FormValue("state")
		if errorParam := r.FormValue("error"); errorParam != "" {
			writeJSONError(w, errorParam, r.FormValue("error_description"), http.StatusBadRequest)
			return
		}

		flow, err := s.authState.Take(state, s.nowTime().Add(-s.config.GetSignInFlowTTL()))
		if err != nil {
			log.Debug().Err(err).Msg("sign-in callback with an unusable state")
			writeJSONError(w, "invalid_request", "the sign-in expired or was already used, start again", http.StatusBadRequest)
			return
		}

		claims, err := s.verifyCallback(r, flow)
		if err != nil {
			log.Warn().Err(err).Msg("sign-in callback rejected")
			writeJSONError(w, "access_denied", "the identity token could not be verified", http.StatusUnauthorized)
			return
		}

		data, err := s.sessions.Create(r.Context(), *claims)
		if err != nil {
			s.renderPageError(w, r, err)
			return
		}

		if previous, ok := s.cookies.SessionID(r); ok && previous != data.ID {
			if err := s.sessions.Destroy(r.Context(), previous); err != nil {
				log.Warn().Err(err).Msg("failed to destroy the replaced session")
			}
			s.breaker.ResetSubject(previous)
		}
		s.cookies.SetSessionID(w, r, data.ID)

		// The tenant cookie may belong to whoever used this browser before.
		outcome, err := s.engine.Reconcile(r.Context(), reconcile.Request{SessionID: data.ID}, s.tenantPersister(w, r))
		if err != nil {
			s.renderPageError(w, r, err)
			return
		}
		log.Info().Str("user_id", claims.Subject).Str("route", outcome.Decision.Route).Msg("signed in")
		http.Redirect(w, r, outcome.Decision.Route, http.StatusSeeOther)
	}
}

// verifyCallback returns the verified claims of the callback's ID token. With an
// authorization code the token comes from the exchange; otherwise it is posted directly.
func (s *Server) verifyCallback(r *http.Request, flow authflowrepo.SignInFlow) (*identity.Claims, error) {
	rawIDToken := r.FormValue("id_token")
	if code := r.FormValue("code"); code != "" && s.oidc.OAuth2Config != nil {
		token, err := s.oidc.OAuth2Config.Exchange(r.Context(), code, oauth2.VerifierOption(flow.CodeVerifier))
		if err != nil {
			return nil, errors.Wrap(apperrors.ErrInvalidIDToken, "[Server verifyCallback] token exchange failed: "+err.Error())
		}
		idToken, ok := token.Extra("id_token").(string)
		if !ok {
			return nil, errors.Wrap(apperrors.ErrInvalidIDToken, "[Server verifyCallback] no ID token in response")
		}
		rawIDToken = idToken
	}
	if rawIDToken == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidIDToken, "[Server verifyCallback] missing code or id_token")
	}

	claims, err := s.oidc.Verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		return nil, err
	}
	// Validate nonce to prevent replay attacks
	if claims.Nonce != flow.Nonce {
		return nil, errors.Wrap(apperrors.ErrInvalidIDToken, "[Server verifyCallback] nonce mismatch")
	}
	return claims, nil
}
