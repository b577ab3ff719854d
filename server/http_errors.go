package server

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
	"github.com/rs/zerolog/log"
)

// apiError is the JSON error body of every API route.
type apiError struct {
	Error       string            `json:"error"`
	Description string            `json:"error_description,omitempty"`
	Retry       string            `json:"retry,omitempty"`    // POST here to lift suppression and try again
	Redirect    string            `json:"redirect,omitempty"` // Where the browser should go instead
	State       *onboarding.State `json:"state,omitempty"`    // Last verified onboarding state
}

// errorResponse maps an error class onto a status code and body. Transient and
// runaway failures carry the manual retry affordance; nothing retries on its own.
func errorResponse(err error) (int, apiError) {
	switch apperrors.Classify(err) {
	case apperrors.ClassUnauthenticated:
		return http.StatusUnauthorized, apiError{Error: "unauthenticated", Redirect: RouteSignIn}
	case apperrors.ClassTransient:
		return http.StatusServiceUnavailable, apiError{
			Error:       "backend_unavailable",
			Description: "the backend is temporarily unavailable",
			Retry:       RouteAPIRecoveryRetry,
		}
	case apperrors.ClassRunaway:
		return http.StatusServiceUnavailable, apiError{
			Error:       "recovery_suppressed",
			Description: "automatic recovery has been paused, retry manually",
			Retry:       RouteAPIRecoveryRetry,
		}
	case apperrors.ClassInconsistent:
		return http.StatusConflict, apiError{Error: "conflict", Description: describe(err)}
	case apperrors.ClassInvalid:
		return http.StatusBadRequest, apiError{Error: "invalid_request", Description: describe(err)}
	default:
		return http.StatusInternalServerError, apiError{Error: "internal_error", Description: "internal server error"}
	}
}

// describe strips the "[Type Method]" call-site prefixes from wrapped messages.
func describe(err error) string {
	parts := strings.Split(err.Error(), ": ")
	kept := parts[:0]
	for _, p := range parts {
		if strings.HasPrefix(p, "[") {
			if i := strings.Index(p, "] "); i >= 0 {
				p = p[i+2:]
			} else if strings.HasSuffix(p, "]") {
				continue
			}
		}
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ": ")
}

func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, err error, state *onboarding.State) {
	status, body := errorResponse(err)
	body.State = state
	if status >= http.StatusInternalServerError {
		log.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}

// writeJSONError writes a bare error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, apiError{Error: errorCode, Description: description})
}
