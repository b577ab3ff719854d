package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
	"github.com/jrsteele09/go-session-reconciler/reconcile"
	"github.com/rs/zerolog/log"
)

const maxRequestBodySize = 64 << 10

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

type transitionRequest struct {
	From    string          `json:"from" validate:"required"`
	To      string          `json:"to" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

type amendRequest struct {
	Step    string          `json:"step" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type transitionResponse struct {
	State   onboarding.State   `json:"state"`
	Outcome *reconcile.Outcome `json:"outcome,omitempty"`
}

// SessionAPIHandler returns the reconciled outcome for the caller's session.
func (s *Server) SessionAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, _ := OutcomeFromContext(r.Context())
		writeJSON(w, http.StatusOK, outcome)
	}
}

// TransitionAPIHandler advances the caller one onboarding step. The response carries
// the verified state and, after a session refresh, the new route.
func (s *Server) TransitionAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, _ := OutcomeFromContext(r.Context())

		var req transitionRequest
		if err := decodeRequest(w, r, &req); err != nil {
			s.writeAPIError(w, r, err, nil)
			return
		}
		from, err := onboarding.ParseStep(req.From)
		if err != nil {
			s.writeAPIError(w, r, err, outcome.Onboarding)
			return
		}
		to, err := onboarding.ParseStep(req.To)
		if err != nil {
			s.writeAPIError(w, r, err, outcome.Onboarding)
			return
		}

		state, err := s.onboarding.Transition(r.Context(), outcome.User.ID, from, to, req.Payload)
		if err != nil {
			verified := &state
			if state.IsZero() {
				verified = outcome.Onboarding
			}
			s.writeAPIError(w, r, err, verified)
			return
		}

		resp := transitionResponse{State: state}
		refreshed, err := s.engine.Refresh(r.Context(), s.requestFor(r), s.tenantPersister(w, r))
		if err != nil {
			// The step is verified; only the follow-up route is unknown.
			log.Warn().Err(err).Msg("reconcile after onboarding transition failed")
		} else {
			resp.Outcome = &refreshed
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// AmendAPIHandler edits a step the caller has already completed.
func (s *Server) AmendAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, _ := OutcomeFromContext(r.Context())

		var req amendRequest
		if err := decodeRequest(w, r, &req); err != nil {
			s.writeAPIError(w, r, err, nil)
			return
		}
		step, err := onboarding.ParseStep(req.Step)
		if err != nil {
			s.writeAPIError(w, r, err, outcome.Onboarding)
			return
		}
		if err := s.onboarding.Amend(r.Context(), outcome.User.ID, step, req.Payload); err != nil {
			s.writeAPIError(w, r, err, outcome.Onboarding)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RetryAPIHandler is the manual retry affordance: it lifts recovery suppression and
// drops cached state for the caller's session, then reconciles from scratch. Form
// posts from the error page are redirected to the new route.
func (s *Server) RetryAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := s.requestFor(r)
		if req.SessionID != "" {
			s.engine.ManualRetry(req.SessionID)
		}

		outcome, err := s.engine.Reconcile(r.Context(), req, s.tenantPersister(w, r))
		if isFormPost(r) {
			if err != nil {
				s.renderPageError(w, r, err)
				return
			}
			s.clearStaleSession(w, r, outcome)
			http.Redirect(w, r, outcome.Decision.Route, http.StatusSeeOther)
			return
		}
		if err != nil {
			s.writeAPIError(w, r, err, nil)
			return
		}
		if !outcome.Authenticated() {
			s.clearStaleSession(w, r, outcome)
			writeJSON(w, http.StatusUnauthorized, apiError{Error: "unauthenticated", Redirect: outcome.Decision.Route})
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

// PreflightHandler answers OPTIONS requests that carry no Origin.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return apperrors.Wrapf(apperrors.ErrInvalidPayload, "malformed request body: %s", err.Error())
	}
	if err := requestValidator.Struct(v); err != nil {
		return apperrors.Wrapf(apperrors.ErrInvalidPayload, "%s", err.Error())
	}
	return nil
}

func isFormPost(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}
