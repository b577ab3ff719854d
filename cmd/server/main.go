package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-reconciler/backend"
	"github.com/jrsteele09/go-session-reconciler/internal/config"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
	fakeonboarding "github.com/jrsteele09/go-session-reconciler/onboarding/repofakes"
	"github.com/jrsteele09/go-session-reconciler/reconcile"
	"github.com/jrsteele09/go-session-reconciler/recovery"
	"github.com/jrsteele09/go-session-reconciler/server"
	"github.com/jrsteele09/go-session-reconciler/sessions"
	fakesessions "github.com/jrsteele09/go-session-reconciler/sessions/repofakes"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/clientcredentials"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler, err := newServer(ctx, c)
	if err != nil {
		return err
	}
	go handler.RunJanitor(ctx)

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := listenAndServe(httpServer); err != nil {
			log.Error().Err(err).Msg("listener stopped")
		}
	}()
	waitForStopSignal()
	returnError = shutdown(httpServer, c.GetShutdownTimeout())
	return returnError
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// newServer wires the reconciler against either the HTTP backend or the in-memory fakes.
func newServer(ctx context.Context, c config.Config) (*server.Server, error) {
	sessionBackend, onboardingBackend, err := newBackends(c)
	if err != nil {
		return nil, err
	}

	resolver, err := sessions.NewResolver(sessionBackend,
		sessions.WithCacheTTL(c.GetSessionCacheTTL()),
		sessions.WithRequestTimeout(c.GetSessionRequestTimeout()),
	)
	if err != nil {
		return nil, err
	}

	machine, err := onboarding.NewStateMachine(onboardingBackend,
		onboarding.WithBackoff(recovery.Backoff{
			Base:     c.GetVerifyBaseDelay(),
			Max:      c.GetVerifyMaxDelay(),
			Attempts: c.GetVerifyAttempts(),
		}),
		onboarding.WithRequestTimeout(c.GetOnboardingRequestTimeout()),
	)
	if err != nil {
		return nil, err
	}

	breaker := recovery.NewCircuitBreaker(
		recovery.WithDefaultPolicy(recovery.Policy{
			Cooldown:    c.GetRecoveryCooldown(),
			MaxAttempts: c.GetRecoveryMaxAttempts(),
		}),
		// A suppressed session cannot outlive its cookie.
		recovery.WithExhaustedRetention(c.GetCookieMaxAge()),
	)

	engine, err := reconcile.NewEngine(resolver, machine, breaker)
	if err != nil {
		return nil, err
	}

	cookieOptions := []sessions.CookieOption{
		sessions.WithCookieNames(c.GetSessionCookieName(), c.GetTenantCookieName()),
		sessions.WithCookieMaxAge(c.GetCookieMaxAge()),
	}
	if secure, forced := c.GetSecureCookies(); forced {
		cookieOptions = append(cookieOptions, sessions.WithSecureCookies(secure))
	}
	cookies, err := sessions.NewCookieStore(c.GetCookieKey(), cookieOptions...)
	if err != nil {
		return nil, err
	}

	oidcConfig, err := server.NewOidcConfig(ctx, c)
	if err != nil {
		return nil, err
	}

	return server.New(c, server.Deps{
		Cookies:    cookies,
		Sessions:   resolver,
		Onboarding: machine,
		Breaker:    breaker,
		Engine:     engine,
		Oidc:       oidcConfig,
	})
}

func newBackends(c config.Config) (sessions.Backend, onboarding.Backend, error) {
	if c.GetBackendMode() == config.BackendMemory {
		log.Warn().Int("read_lag", c.GetMemoryReadLag()).Msg("using the in-memory backend, state is lost on restart")
		onboardingAPI := fakeonboarding.NewFakeBackend()
		onboardingAPI.SetReadLag(c.GetMemoryReadLag())
		sessionAPI := fakesessions.NewFakeBackend()
		sessionAPI.SetOnboardingSource(onboardingAPI.Status)
		return sessionAPI, onboardingAPI, nil
	}

	options := []backend.ClientOption{backend.WithTimeout(c.GetBackendTimeout())}
	if tokenURL := c.GetBackendTokenURL(); tokenURL != "" {
		options = append(options, backend.WithClientCredentials(&clientcredentials.Config{
			ClientID:     c.GetBackendClientID(),
			ClientSecret: c.GetBackendClientSecret(),
			TokenURL:     tokenURL,
			Scopes:       c.GetBackendScopes(),
		}))
	}
	client, err := backend.NewClient(c.GetBackendURL(), options...)
	if err != nil {
		return nil, nil, err
	}
	return client.Sessions(), client.Onboarding(), nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
