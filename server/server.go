package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-reconciler/identity"
	"github.com/jrsteele09/go-session-reconciler/internal/config"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
	"github.com/jrsteele09/go-session-reconciler/reconcile"
	"github.com/jrsteele09/go-session-reconciler/recovery"
	"github.com/jrsteele09/go-session-reconciler/routing"
	"github.com/jrsteele09/go-session-reconciler/server/authflowrepo"
	"github.com/jrsteele09/go-session-reconciler/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// OidcConfig is the sign-in side of the identity provider. OAuth2Config is nil when
// tokens are posted straight to the callback (HMAC development mode).
type OidcConfig struct {
	OAuth2Config *oauth2.Config
	Verifier     identity.Verifier
}

// Deps are the components the HTTP surface drives.
type Deps struct {
	Cookies    *sessions.CookieStore
	Sessions   *sessions.Resolver
	Onboarding *onboarding.StateMachine
	Breaker    *recovery.CircuitBreaker
	Engine     *reconcile.Engine
	Router     *routing.Reconciler
	Oidc       OidcConfig
	AuthState  authflowrepo.Repo
}

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	cookies    *sessions.CookieStore
	sessions   *sessions.Resolver
	onboarding *onboarding.StateMachine
	breaker    *recovery.CircuitBreaker
	engine     *reconcile.Engine
	router     *routing.Reconciler
	oidc       OidcConfig
	authState  authflowrepo.Repo
	nowTime    func() time.Time
}

func New(config config.Config, deps Deps) (*Server, error) {
	if deps.Cookies == nil || deps.Sessions == nil || deps.Onboarding == nil || deps.Breaker == nil || deps.Engine == nil {
		return nil, errors.New("[Server New] cookies, sessions, onboarding, breaker and engine are required")
	}
	if deps.Oidc.Verifier == nil {
		return nil, errors.New("[Server New] an ID token verifier is required")
	}

	s := &Server{
		mux:        http.NewServeMux(),
		config:     config,
		cookies:    deps.Cookies,
		sessions:   deps.Sessions,
		onboarding: deps.Onboarding,
		breaker:    deps.Breaker,
		engine:     deps.Engine,
		router:     deps.Router,
		oidc:       deps.Oidc,
		authState:  deps.AuthState,
		nowTime:    time.Now,
	}
	s.env = config.GetEnv()
	if s.router == nil {
		s.router = routing.NewReconciler()
	}
	if s.authState == nil {
		s.authState = authflowrepo.NewMemoryRepo()
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// RunJanitor drops idle recovery records and abandoned sign-in flows until ctx is
// done. A swept recovery record behaves as if the browser had reloaded the page.
func (s *Server) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.config.GetSweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	swept := s.breaker.Sweep(s.config.GetSweepIdle())
	purged := s.authState.Purge(s.nowTime().Add(-s.config.GetSignInFlowTTL()))
	if swept > 0 || purged > 0 {
		log.Debug().Int("recovery_records", swept).Int("sign_in_flows", purged).Msg("janitor sweep")
	}
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Info().Msgf("[%s%s%s] %s", color, paddedMethod, ResetColor, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
