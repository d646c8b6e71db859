// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"strings"
	"time"

	auditlogfeature "github.com/dalemusser/stratabook/internal/app/features/auditlog"
	authoauthfeature "github.com/dalemusser/stratabook/internal/app/features/authoauth"
	dnifeature "github.com/dalemusser/stratabook/internal/app/features/dni"
	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	healthfeature "github.com/dalemusser/stratabook/internal/app/features/health"
	invitationsfeature "github.com/dalemusser/stratabook/internal/app/features/invitations"
	loginfeature "github.com/dalemusser/stratabook/internal/app/features/login"
	logoutfeature "github.com/dalemusser/stratabook/internal/app/features/logout"
	onboardingfeature "github.com/dalemusser/stratabook/internal/app/features/onboarding"
	profilefeature "github.com/dalemusser/stratabook/internal/app/features/profile"
	sessionfeature "github.com/dalemusser/stratabook/internal/app/features/session"
	usernamefeature "github.com/dalemusser/stratabook/internal/app/features/username"
	accountstore "github.com/dalemusser/stratabook/internal/app/store/accounts"
	"github.com/dalemusser/stratabook/internal/app/store/audit"
	emailverifystore "github.com/dalemusser/stratabook/internal/app/store/emailverify"
	oauthstatestore "github.com/dalemusser/stratabook/internal/app/store/oauthstate"
	profilestore "github.com/dalemusser/stratabook/internal/app/store/profiles"
	ratelimitstore "github.com/dalemusser/stratabook/internal/app/store/ratelimit"
	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/auditlog"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/identity"
	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/app/system/txn"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// csrfExemptPrefixes are reachable without a CSRF token: the availability
// checks are read-only lookups and provider callbacks are protected by the
// OAuth state parameter.
var csrfExemptPrefixes = []string{
	"/api/dni",
	"/api/username",
	"/auth/callback/",
}

func csrfExempt(path string) bool {
	for _, p := range csrfExemptPrefixes {
		base := strings.TrimSuffix(p, "/")
		if path == base || strings.HasPrefix(path, base+"/") {
			return true
		}
	}
	return false
}

// oauthProviders builds the configured OAuth providers. Google client JSON
// takes precedence over the id/secret pair.
func oauthProviders(appCfg AppConfig) ([]*authoauthfeature.Provider, error) {
	var providers []*authoauthfeature.Provider
	switch {
	case appCfg.GoogleAPICredentials != "":
		p, err := authoauthfeature.GoogleProviderFromJSON([]byte(appCfg.GoogleAPICredentials), appCfg.BaseURL)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	case appCfg.GoogleClientID != "" && appCfg.GoogleClientSecret != "":
		providers = append(providers, authoauthfeature.GoogleProvider(appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL))
	}
	if appCfg.FacebookClientID != "" && appCfg.FacebookClientSecret != "" {
		providers = append(providers, authoauthfeature.FacebookProvider(appCfg.FacebookClientID, appCfg.FacebookClientSecret, appCfg.BaseURL))
	}
	return providers, nil
}

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// Route layout:
//   - /auth/*          login landing, magic links, OAuth, sign-out
//   - /api/auth/*      session payload, CSRF token, impersonation
//   - /api/dni         DNI availability
//   - /api/username    username availability
//   - /api/user/*      current-user profile
//   - /api/invitations admin invitations
//   - /api/audit       admin audit log
//   - /health, /ready  probes
//   - /                landing redirect and onboarding wizard
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// Token refresh re-reads the user so role and profile changes show up
	// without signing in again.
	sessionMgr.SetRefresher(userstore.NewFetcher(db, logger))

	errLog := errorsfeature.NewErrorLogger(logger)

	auditStore := audit.New(db)
	auditLogger := auditlog.New(auditStore, logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Admin: appCfg.AuditLogAdmin,
	})

	users := userstore.New(db)
	accounts := accountstore.New(db)
	profiles := profilestore.New(db, logger)
	reconciler := identity.NewReconciler(users, accounts, appCfg.SelfHosted, logger)

	checker := licenseChecker
	if checker == nil {
		checker = newLicenseChecker(appCfg, deps, logger)
	}

	providers, err := oauthProviders(appCfg)
	if err != nil {
		logger.Error("oauth provider config invalid", zap.Error(err))
		return nil, err
	}

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Session middleware: loads SessionUser into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("stratabook_csrf"),
		csrf.FieldName("csrf_token"),
		csrf.RequestHeader("X-CSRF-Token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			jsonutil.Forbidden(w, "csrf_invalid", "CSRF token invalid or missing")
		})),
	}
	// In dev mode, trust localhost origins for CSRF validation.
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins([]string{
			"localhost:8080",
			"localhost:3000",
			"127.0.0.1:8080",
			"127.0.0.1:3000",
		}))
	}
	if appCfg.SessionDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(appCfg.SessionDomain))
	}
	csrfProtect := csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...)

	r.Use(func(next http.Handler) http.Handler {
		protected := csrfProtect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if csrfExempt(req.URL.Path) {
				next.ServeHTTP(w, req)
				return
			}
			protected.ServeHTTP(w, req)
		})
	})

	r.NotFound(errorsfeature.NotFound)
	r.MethodNotAllowed(errorsfeature.MethodNotAllowed)

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes
	// ─────────────────────────────────────────────────────────────────────────────

	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	oauthHandler := authoauthfeature.NewHandler(
		oauthstatestore.New(db),
		reconciler,
		sessionMgr,
		auditLogger,
		errLog,
		appCfg.BaseURL,
		logger,
		providers...,
	)
	for _, id := range oauthHandler.Enabled() {
		logger.Info("OAuth provider enabled", zap.String("provider", id))
	}

	loginHandler := loginfeature.NewHandler(
		emailverifystore.New(db, appCfg.MagicLinkExpiry),
		reconciler,
		deps.Mailer,
		sessionMgr,
		auditLogger,
		errLog,
		oauthHandler.Enabled(),
		appCfg.BaseURL,
		appCfg.AppName,
		logger,
	)
	if appCfg.RateLimitEnabled {
		loginHandler.SetLimiter(ratelimitstore.New(db, appCfg.RateLimitMagicLinks, appCfg.RateLimitWindow, appCfg.RateLimitLockout))
	}
	logoutHandler := logoutfeature.NewHandler(sessionMgr, auditLogger, logger)

	r.Route("/auth", func(ar chi.Router) {
		loginHandler.MountRoutes(ar)
		oauthHandler.MountRoutes(ar)
		logoutHandler.MountRoutes(ar)
	})

	sessionHandler := sessionfeature.NewHandler(users, checker, sessionMgr, auditLogger, errLog, appCfg.ImpersonationEnabled, logger)
	r.Mount("/api/auth", sessionfeature.Routes(sessionHandler, sessionMgr))

	r.Mount("/api/dni", dnifeature.Routes(dnifeature.NewHandler(profiles, errLog)))

	premium := usernamefeature.LengthPolicy{MaxLength: appCfg.PremiumUsernameMaxLength}
	r.Mount("/api/username", usernamefeature.Routes(usernamefeature.NewHandler(users, premium, errLog)))

	profileHandler := profilefeature.NewHandler(
		users,
		profiles,
		accounts,
		txn.Runner(db, logger),
		sessionMgr,
		auditLogger,
		errLog,
		logger,
	)
	r.Mount("/api/user", profilefeature.Routes(profileHandler, sessionMgr))

	invitationsHandler := invitationsfeature.NewHandler(users, deps.Mailer, auditLogger, errLog, appCfg.BaseURL, appCfg.AppName, logger)
	r.Mount("/api/invitations", invitationsfeature.Routes(invitationsHandler, sessionMgr))

	auditHandler := auditlogfeature.NewHandler(auditStore, users, errLog, logger)
	r.Mount("/api/audit", auditlogfeature.Routes(auditHandler, sessionMgr))

	onboardingHandler := onboardingfeature.NewHandler(users, profiles, sessionMgr, auditLogger, errLog, logger)
	r.Mount("/", onboardingfeature.Routes(onboardingHandler))

	return r, nil
}
