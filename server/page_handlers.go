package server

import (
	"html/template"
	"net/http"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/routing"
	"github.com/rs/zerolog/log"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}} - {{.AppName}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{- if .Message}}
<p>{{.Message}}</p>
{{- end}}
{{- if .Retry}}
<form method="post" action="{{.Retry}}"><button type="submit">Try again</button></form>
{{- end}}
{{- if .Email}}
<p>Signed in as {{.Email}}{{if .TenantID}} ({{.TenantID}}){{end}}</p>
<form method="post" action="` + RouteSignOut + `"><button type="submit">Sign out</button></form>
{{- end}}
</body>
</html>
`))

type pageData struct {
	AppName  string
	Title    string
	Message  string
	Retry    string
	Email    string
	TenantID string
}

// PageHandler renders the page the request was reconciled to.
func (s *Server) PageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, ok := OutcomeFromContext(r.Context())
		if !ok || outcome.User == nil {
			http.Redirect(w, r, RouteSignIn, http.StatusSeeOther)
			return
		}

		data := pageData{AppName: s.config.GetAppName(), Email: outcome.User.Email, TenantID: outcome.User.TenantID}
		switch outcome.Decision.Reason {
		case routing.ReasonOnboarding:
			data.Title = "Set up your business"
			if outcome.Onboarding != nil {
				data.Message = "Current step: " + string(outcome.Onboarding.CurrentStep)
			}
		default:
			data.Title = "Dashboard"
		}
		s.renderPage(w, http.StatusOK, data)
	}
}

// renderPageError answers a page request that could not be reconciled. Only an
// unauthenticated result redirects; backend trouble shows the manual retry.
func (s *Server) renderPageError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if apperrors.Classify(err) == apperrors.ClassUnauthenticated {
		s.cookies.ClearSession(w, r)
		http.Redirect(w, r, RouteSignIn, http.StatusSeeOther)
		return
	}
	log.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("page could not be reconciled")

	data := pageData{AppName: s.config.GetAppName(), Title: "Something went wrong", Message: body.Description, Retry: body.Retry}
	if status == http.StatusServiceUnavailable {
		data.Title = "We could not reach the service"
	}
	s.renderPage(w, status, data)
}

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Err(err).Msg("failed to render page")
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
