package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// SIGN IN / OUT
	s.RegisterRouteHandler("GET "+RouteSignIn, ChainMiddleware(s.SignInHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.HTMLMiddleWare()...)) // For form_post response mode
	s.RegisterRouteHandler("POST "+RouteSignOut, ChainMiddleware(s.SignOutHandler(), s.HTMLMiddleWare()...))

	// Reconciled pages: each one either renders or redirects to the single decided route
	s.RegisterRouteHandler("GET "+RouteIndex, ChainMiddleware(s.PageHandler(), s.HTMLMiddleWare(s.RequireReconciledPage())...))
	s.RegisterRouteHandler("GET "+RouteOnboarding, ChainMiddleware(s.PageHandler(), s.HTMLMiddleWare(s.RequireReconciledPage())...))
	s.RegisterRouteHandler("GET "+RouteOnboardingStep, ChainMiddleware(s.PageHandler(), s.HTMLMiddleWare(s.RequireReconciledPage())...))
	s.RegisterRouteHandler("GET "+RouteDashboard, ChainMiddleware(s.PageHandler(), s.HTMLMiddleWare(s.RequireReconciledPage())...))
	s.RegisterRouteHandler("GET "+RouteTenantDashboard, ChainMiddleware(s.PageHandler(), s.HTMLMiddleWare(s.RequireReconciledPage())...))

	// API routes
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.SessionAPIHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteAPIOnboardingTransition, ChainMiddleware(s.TransitionAPIHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteAPIOnboardingAmend, ChainMiddleware(s.AmendAPIHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteAPIRecoveryRetry, ChainMiddleware(s.RetryAPIHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
}
