package auth

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Username: the public slug used in booking links

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/app/system/normalize"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Session error classification for logging and monitoring.
type sessionErrorType int

const (
	sessionErrUnknown   sessionErrorType = iota
	sessionErrExpired                    // timestamp expired - normal
	sessionErrTampered                   // MAC invalid - potential attack
	sessionErrCorrupted                  // decode/decrypt failed - corruption or key rotation
	sessionErrBackend                    // store/backend failure
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	tokenKey = "token"

	// LoginPath is where unauthenticated browsers are sent.
	LoginPath = "/auth/login"
)

// LoginErrorURL returns the login page URL showing the given error code.
func LoginErrorURL(code string) string {
	return LoginPath + "?error=" + url.QueryEscape(code)
}

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager - injectable session management                              |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager encapsulates the cookie store, the token signing key and
// configuration. The cookie holds one signed token (see Claims); the cookie
// itself is authenticated and encrypted with keys derived from the same
// session secret.
type SessionManager struct {
	store     *sessions.CookieStore
	logger    *zap.Logger
	name      string
	maxAge    time.Duration
	tokenKey  []byte
	refresher TokenRefresher
	now       func() time.Time
}

// NewSessionManager creates a new SessionManager with the provided configuration.
//
// Parameters:
//   - sessionKey: secret the cookie and token keys are derived from (≥32 chars in production)
//   - name: session cookie name (defaults to "stratabook-session" if empty)
//   - domain: cookie domain (empty means current host)
//   - maxAge: session lifetime (cookie and token expiry)
//   - secure: if true, cookies are Secure and weak keys are rejected
//   - logger: zap logger for session error logging
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, &SessionConfigError{Message: "session key is empty; provide ≥32 random chars"}
	}

	isWeak := len(sessionKey) < 32 || isDefaultKey(sessionKey)
	if secure {
		if isWeak {
			return nil, &SessionConfigError{
				Message: "session key is too weak for production; provide ≥32 random chars (not the default dev key)",
			}
		}
	} else if isWeak {
		logger.Warn("session key is weak; 32+ random chars required in production",
			zap.Int("length", len(sessionKey)),
			zap.Bool("is_default", isDefaultKey(sessionKey)))
	}

	if name == "" {
		name = "stratabook-session"
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}

	keys, err := deriveKeys(sessionKey)
	if err != nil {
		return nil, &SessionConfigError{Message: "derive session keys: " + err.Error()}
	}

	store := sessions.NewCookieStore(keys.hash, keys.block)
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(int(maxAge.Seconds()))

	logger.Info("session manager initialized",
		zap.Bool("secure", secure),
		zap.String("name", name),
		zap.String("domain", domain),
		zap.Duration("max_age", maxAge))

	return &SessionManager{
		store:    store,
		logger:   logger,
		name:     name,
		maxAge:   maxAge,
		tokenKey: keys.token,
		now:      time.Now,
	}, nil
}

// SessionConfigError is returned when session configuration is invalid.
type SessionConfigError struct {
	Message string
}

func (e *SessionConfigError) Error() string {
	return e.Message
}

// SessionName returns the configured session cookie name.
func (sm *SessionManager) SessionName() string {
	return sm.name
}

// SetRefresher sets the TokenRefresher used by LoadSessionUser. It must be
// called after database initialization.
func (sm *SessionManager) SetRefresher(tr TokenRefresher) {
	sm.refresher = tr
}

/*─────────────────────────────────────────────────────────────────────────────*
| TokenRefresher interface                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

// TokenRefresher re-resolves the identity behind a session token by the
// email it was issued for. It returns (nil, nil) when the user no longer
// exists; errors are treated as transient and keep the token as is.
type TokenRefresher interface {
	RefreshUser(ctx context.Context, email string) (*SessionUser, error)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionUser represents the authenticated user in the request context.
type SessionUser struct {
	ID                string
	Name              string
	Username          string
	Email             string
	Role              string
	ImpersonatedByUID string // set while an admin acts as this user
	Expires           time.Time
}

// UserID returns the user's ID as an ObjectID.
// If the ID is invalid, returns a zero ObjectID.
func (u *SessionUser) UserID() primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return primitive.NilObjectID
	}
	return oid
}

// IsAdmin reports whether the user has the ADMIN role.
func (u *SessionUser) IsAdmin() bool {
	return normalize.Role(u.Role) == "ADMIN"
}

// sameIdentity reports whether the refreshable fields match.
func (u *SessionUser) sameIdentity(o *SessionUser) bool {
	return u.ID == o.ID && u.Name == o.Name && u.Username == o.Username &&
		u.Email == o.Email && u.Role == o.Role
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag from the request context.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// LoadSessionUser returns middleware that injects the user into context if
// the request carries a valid session token. With a TokenRefresher set, the
// token's identity fields are refreshed from the database on every request
// and the cookie is re-issued when they changed.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.logSessionError(r, err)
		}

		raw, _ := sess.Values[tokenKey].(string)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := parseToken(sm.tokenKey, raw)
		if err != nil {
			sm.logger.Info("session token rejected, clearing session",
				zap.Error(err),
				zap.String("path", r.URL.Path))
			sm.clear(w, r, sess)
			next.ServeHTTP(w, r)
			return
		}

		u := claims.sessionUser()
		if sm.refresher != nil {
			fresh, err := sm.refresher.RefreshUser(r.Context(), claims.Email)
			switch {
			case err != nil:
				sm.logger.Warn("session refresh failed, using token claims",
					zap.Error(err),
					zap.String("user_id", claims.UserID))
			case fresh == nil:
				sm.logger.Info("session invalidated: user not found",
					zap.String("user_id", claims.UserID),
					zap.String("path", r.URL.Path))
				sm.clear(w, r, sess)
				next.ServeHTTP(w, r)
				return
			case !fresh.sameIdentity(u):
				fresh.ImpersonatedByUID = u.ImpersonatedByUID
				fresh.Expires = u.Expires
				u = fresh
				issued := sm.now()
				if claims.IssuedAt != nil {
					issued = claims.IssuedAt.Time
				}
				if err := sm.save(w, r, sess, u, issued); err != nil {
					sm.logger.Warn("failed to re-issue refreshed session", zap.Error(err))
				}
			}
		}

		next.ServeHTTP(w, withUser(r, u))
	})
}

// RequireSignedIn returns middleware that ensures there is a user in context.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		unauthenticated(w, r)
	})
}

// RequireRole returns middleware that ensures there is a user with the required role.
func (sm *SessionManager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[normalize.Role(role)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				unauthenticated(w, r)
				return
			}
			if _, has := set[normalize.Role(u.Role)]; !has {
				jsonutil.Forbidden(w, "forbidden", "You do not have access to this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// unauthenticated sends browsers to the login page with a callbackUrl and
// answers API callers with 401.
func unauthenticated(w http.ResponseWriter, r *http.Request) {
	if wantsHTML(r) {
		ret := url.QueryEscape(currentURI(r))
		http.Redirect(w, r, LoginPath+"?callbackUrl="+ret, http.StatusSeeOther)
		return
	}
	jsonutil.Unauthorized(w)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// WithTestUser injects a SessionUser into the request context for testing.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func currentURI(r *http.Request) string {
	u := *r.URL
	return u.RequestURI()
}

// isDefaultKey checks if the session key appears to be a default/placeholder value.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	patterns := []string{
		"dev-only",
		"change-me",
		"placeholder",
		"default",
		"example",
		"insecure",
		"test-key",
		"secret123",
		"password",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func (sm *SessionManager) logSessionError(r *http.Request, err error) {
	errType, errCategory := classifySessionError(err)
	switch errType {
	case sessionErrExpired:
		sm.logger.Debug("session expired, starting fresh session",
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path))
	case sessionErrTampered:
		sm.logger.Warn("session MAC validation failed (possible tampering)",
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()))
	case sessionErrCorrupted:
		sm.logger.Info("session decode failed, starting fresh session",
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path))
	default:
		sm.logger.Error("session store error, starting fresh session",
			zap.Error(err),
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path))
	}
}

// classifySessionError categorizes a session/cookie error for appropriate logging.
func classifySessionError(err error) (sessionErrorType, string) {
	if err == nil {
		return sessionErrUnknown, "none"
	}

	errStr := strings.ToLower(err.Error())

	if scErr, ok := err.(securecookie.Error); ok {
		if !scErr.IsDecode() {
			return sessionErrBackend, "backend"
		}

		switch {
		case strings.Contains(errStr, "expired timestamp"):
			return sessionErrExpired, "expired"
		case strings.Contains(errStr, "mac") || strings.Contains(errStr, "hash"):
			return sessionErrTampered, "mac_invalid"
		case strings.Contains(errStr, "decrypt"):
			return sessionErrCorrupted, "decrypt_failed"
		case strings.Contains(errStr, "base64") || strings.Contains(errStr, "decode"):
			return sessionErrCorrupted, "decode_failed"
		default:
			return sessionErrCorrupted, "decode_other"
		}
	}

	return sessionErrBackend, "unknown"
}

/*─────────────────────────────────────────────────────────────────────────────*
| Session Management                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// CreateSession signs a fresh token for u and stores it in the session
// cookie. u.Expires is set to the token expiry.
func (sm *SessionManager) CreateSession(w http.ResponseWriter, r *http.Request, u *SessionUser) error {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		sess, _ = sm.store.New(r, sm.name)
	}
	now := sm.now()
	u.Expires = now.Add(sm.maxAge)
	return sm.save(w, r, sess, u, now)
}

func (sm *SessionManager) save(w http.ResponseWriter, r *http.Request, sess *sessions.Session, u *SessionUser, issuedAt time.Time) error {
	expires := u.Expires
	if expires.IsZero() {
		expires = sm.now().Add(sm.maxAge)
	}
	tok, err := signToken(sm.tokenKey, claimsFor(u, issuedAt, expires))
	if err != nil {
		return err
	}
	sess.Values[tokenKey] = tok
	return sess.Save(r, w)
}

func (sm *SessionManager) clear(w http.ResponseWriter, r *http.Request, sess *sessions.Session) {
	delete(sess.Values, tokenKey)
	sess.Options.MaxAge = -1
	_ = sess.Save(r, w)
}

// DestroySession terminates the user's session.
func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		sess, _ = sm.store.New(r, sm.name)
	}
	sm.clear(w, r, sess)
}
