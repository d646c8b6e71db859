// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/stratabook/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATABOOK"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: STRATABOOK_MONGO_URI, STRATABOOK_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratabook", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "redis_url", Default: "", Desc: "Redis URL for the license cache (blank disables caching)"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session secret (must be strong in production)"},
	{Name: "session_name", Default: "stratabook-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session max age (e.g., 24h, 720h)"},

	{Name: "csrf_key", Default: "dev-only-csrf-key-please-change-0123456789", Desc: "CSRF token signing key (32+ chars in production)"},

	{Name: "base_url", Default: "http://localhost:8080", Desc: "Public base URL for email links and OAuth callbacks"},
	{Name: "self_hosted", Default: false, Desc: "Let OAuth sign-ins claim verified email accounts"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "localhost", Desc: "SMTP server host"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@example.com", Desc: "From email address"},
	{Name: "mail_from_name", Default: "StrataBook", Desc: "From display name"},
	{Name: "app_name", Default: "StrataBook", Desc: "Product name used in emails"},

	{Name: "magic_link_expiry", Default: "10h", Desc: "Sign-in link expiry (e.g., 10m, 10h)"},

	// Rate limiting
	{Name: "rate_limit_enabled", Default: true, Desc: "Throttle sign-in emails per address"},
	{Name: "rate_limit_magic_link_attempts", Default: 5, Desc: "Sign-in emails allowed per window"},
	{Name: "rate_limit_window", Default: "15m", Desc: "Window for counting sign-in emails"},
	{Name: "rate_limit_lockout", Default: "15m", Desc: "How long an address is blocked after the limit"},

	// OAuth providers
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},
	{Name: "google_api_credentials", Default: "", Desc: "Google OAuth client JSON (overrides id/secret)"},
	{Name: "facebook_client_id", Default: "", Desc: "Facebook OAuth2 app ID"},
	{Name: "facebook_client_secret", Default: "", Desc: "Facebook OAuth2 app secret"},

	// Premium usernames
	{Name: "license_key", Default: "", Desc: "License key enabling premium usernames"},
	{Name: "license_url", Default: "", Desc: "License server endpoint"},
	{Name: "license_cache_ttl", Default: "1h", Desc: "How long a license verdict is cached"},
	{Name: "premium_username_max_length", Default: 4, Desc: "Usernames this short or shorter are premium"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Account event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	{Name: "impersonation_enabled", Default: true, Desc: "Allow admins to impersonate users"},

	// Timeouts
	{Name: "timeout_short", Default: "5s", Desc: "Timeout for single-document reads and writes"},
	{Name: "timeout_medium", Default: "10s", Desc: "Timeout for multi-step operations"},
	{Name: "timeout_external", Default: "15s", Desc: "Timeout for OAuth, license server and SMTP calls"},

	// Admin seeding configuration
	{Name: "seed_admin_email", Default: "", Desc: "Email of admin user to create on startup"},
	{Name: "seed_admin_name", Default: "Admin", Desc: "Name of admin user to create on startup"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STRATABOOK_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		RedisURL:         appValues.String("redis_url"),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 720*time.Hour),

		CSRFKey:    appValues.String("csrf_key"),
		BaseURL:    appValues.String("base_url"),
		SelfHosted: appValues.Bool("self_hosted"),

		// Email/SMTP
		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),
		AppName:      appValues.String("app_name"),

		MagicLinkExpiry: appValues.Duration("magic_link_expiry", 10*time.Hour),

		// Rate limiting
		RateLimitEnabled:    appValues.Bool("rate_limit_enabled"),
		RateLimitMagicLinks: appValues.Int("rate_limit_magic_link_attempts"),
		RateLimitWindow:     appValues.Duration("rate_limit_window", 15*time.Minute),
		RateLimitLockout:    appValues.Duration("rate_limit_lockout", 15*time.Minute),

		// OAuth
		GoogleClientID:       appValues.String("google_client_id"),
		GoogleClientSecret:   appValues.String("google_client_secret"),
		GoogleAPICredentials: appValues.String("google_api_credentials"),
		FacebookClientID:     appValues.String("facebook_client_id"),
		FacebookClientSecret: appValues.String("facebook_client_secret"),

		// Premium usernames
		LicenseKey:               appValues.String("license_key"),
		LicenseURL:               appValues.String("license_url"),
		LicenseCacheTTL:          appValues.Duration("license_cache_ttl", time.Hour),
		PremiumUsernameMaxLength: appValues.Int("premium_username_max_length"),

		// Audit logging
		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		ImpersonationEnabled: appValues.Bool("impersonation_enabled"),

		TimeoutShort:    appValues.Duration("timeout_short", timeouts.DefaultShort),
		TimeoutMedium:   appValues.Duration("timeout_medium", timeouts.DefaultMedium),
		TimeoutExternal: appValues.Duration("timeout_external", timeouts.DefaultExternal),

		// Admin seeding
		SeedAdminEmail: appValues.String("seed_admin_email"),
		SeedAdminName:  appValues.String("seed_admin_name"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.RedisURL != "" {
		if _, err := redis.ParseURL(appCfg.RedisURL); err != nil {
			logger.Error("invalid Redis URL", zap.Error(err))
			return fmt.Errorf("invalid Redis URL: %w", err)
		}
	}

	if (appCfg.GoogleClientID == "") != (appCfg.GoogleClientSecret == "") {
		return fmt.Errorf("google_client_id and google_client_secret must be set together")
	}
	if (appCfg.FacebookClientID == "") != (appCfg.FacebookClientSecret == "") {
		return fmt.Errorf("facebook_client_id and facebook_client_secret must be set together")
	}
	if appCfg.SelfHosted && !hasOAuth(appCfg) {
		logger.Warn("self_hosted is set but no OAuth provider is configured")
	}
	if appCfg.LicenseKey != "" && appCfg.LicenseURL == "" {
		return fmt.Errorf("license_url is required when license_key is set")
	}
	if appCfg.MagicLinkExpiry <= 0 {
		return fmt.Errorf("magic_link_expiry must be positive")
	}
	if appCfg.RateLimitEnabled && (appCfg.RateLimitMagicLinks < 1 || appCfg.RateLimitWindow <= 0) {
		return fmt.Errorf("rate_limit_magic_link_attempts and rate_limit_window must be positive when rate limiting is enabled")
	}

	return nil
}

func hasOAuth(appCfg AppConfig) bool {
	return appCfg.GoogleClientID != "" || appCfg.GoogleAPICredentials != "" || appCfg.FacebookClientID != ""
}
