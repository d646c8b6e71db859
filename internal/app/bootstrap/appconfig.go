// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//   - Database connection timeouts
//
// AppConfig carries everything specific to stratabook: storage, the
// session secret, sign-in providers, mail, and the premium username
// license.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Redis backs the license verdict cache. Blank disables caching.
	RedisURL string

	// Session management configuration
	SessionKey    string        // Secret the cookie and token keys are derived from
	SessionName   string        // Cookie name for sessions (default: stratabook-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Maximum session lifetime (default: 720h)

	// CSRF protection configuration
	CSRFKey string // Secret key for CSRF token signing (32 bytes, must be strong in production)

	// Base URL for email links and OAuth callbacks
	BaseURL string // e.g., "https://example.com" or "http://localhost:3000"

	// SelfHosted lets a verified email account be claimed by an OAuth
	// identity asserting the same address.
	SelfHosted bool

	// Email/SMTP configuration
	MailSMTPHost string // SMTP server host (e.g., localhost for Mailpit)
	MailSMTPPort int    // SMTP server port (e.g., 1025 for Mailpit, 587 for SES)
	MailSMTPUser string // SMTP username
	MailSMTPPass string // SMTP password
	MailFrom     string // From email address (e.g., noreply@example.com)
	MailFromName string // From display name

	AppName string // Product name used in emails

	MagicLinkExpiry time.Duration // How long sign-in links stay valid (default: 10h)

	// Magic-link request throttling, per email
	RateLimitEnabled    bool
	RateLimitMagicLinks int           // requests allowed per window
	RateLimitWindow     time.Duration // counting window
	RateLimitLockout    time.Duration // lockout once the limit is hit

	// OAuth providers. GoogleAPICredentials, when set, is the JSON client
	// file and overrides the Google id/secret pair.
	GoogleClientID       string
	GoogleClientSecret   string
	GoogleAPICredentials string
	FacebookClientID     string
	FacebookClientSecret string

	// Premium usernames
	LicenseKey               string
	LicenseURL               string
	LicenseCacheTTL          time.Duration
	PremiumUsernameMaxLength int // Names this short or shorter are premium

	// Audit logging configuration
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	AuditLogAuth  string // Authentication events (sign-in, magic links, logout)
	AuditLogAdmin string // Account changes (invitations, email changes, deletion)

	ImpersonationEnabled bool // Allow admins to impersonate users

	// Operation timeouts; zero keeps the built-in default
	TimeoutShort    time.Duration
	TimeoutMedium   time.Duration
	TimeoutExternal time.Duration

	// Admin seeding configuration
	SeedAdminEmail string // Email of the admin user to create on startup (if set)
	SeedAdminName  string // Name of the admin user to create on startup
}
