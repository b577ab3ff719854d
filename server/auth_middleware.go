package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-session-reconciler/reconcile"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyOutcome stores the reconciled view of the request
	ContextKeyOutcome ContextKey = "outcome"
)

func withOutcome(r *http.Request, outcome reconcile.Outcome) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ContextKeyOutcome, outcome))
}

// OutcomeFromContext returns the outcome stored by the reconciling middleware.
func OutcomeFromContext(ctx context.Context) (reconcile.Outcome, bool) {
	outcome, ok := ctx.Value(ContextKeyOutcome).(reconcile.Outcome)
	return outcome, ok
}

// RequireReconciledPage is middleware for page routes. It reconciles the request and
// redirects unless the request is already at the decided route, so a rendered page
// is always the one place the user should be.
func (s *Server) RequireReconciledPage() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			outcome, err := s.reconcileRequest(w, r)
			if err != nil {
				s.renderPageError(w, r, err)
				return
			}
			s.clearStaleSession(w, r, outcome)

			if target, redirect := s.router.Redirect(r.URL.Path, outcome.Decision); redirect {
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			next(w, withOutcome(r, outcome))
		}
	}
}

// RequireSession is middleware for API routes that need a signed-in user. It answers
// 401 with the sign-in route instead of redirecting.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			outcome, err := s.reconcileRequest(w, r)
			if err != nil {
				s.writeAPIError(w, r, err, nil)
				return
			}
			if !outcome.Authenticated() {
				s.clearStaleSession(w, r, outcome)
				writeJSON(w, http.StatusUnauthorized, apiError{Error: "unauthenticated", Redirect: outcome.Decision.Route})
				return
			}
			next(w, withOutcome(r, outcome))
		}
	}
}
