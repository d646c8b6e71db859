// internal/app/features/login/login.go
package login

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	"github.com/dalemusser/stratabook/internal/app/store/emailverify"
	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/auditlog"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/identity"
	"github.com/dalemusser/stratabook/internal/app/system/inputval"
	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/app/system/mailer"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Error codes understood by the login landing.
const (
	CodeIncorrectPassword     = "incorrect-password"
	CodeUserNotFound          = "user-not-found"
	CodeIncorrectProvider     = "IncorrectProvider"
	CodeThirdPartyProvider    = "third-party-identity-provider-enabled"
	CodeInternalServerError   = "internal-server-error"
	CodeAccessDenied          = "AccessDenied"
	CodeSomethingWentWrong    = "something_went_wrong"
	codeOAuthCallback         = "OAuthCallback"
	codeOAuthAccountNotLinked = "OAuthAccountNotLinked"
)

// errorMessages maps a login error code to the translation keys the client
// shows for it.
var errorMessages = map[string][]string{
	CodeIncorrectPassword:   {"incorrect_password", "please_try_again"},
	CodeUserNotFound:        {"no_account_exists"},
	CodeInternalServerError: {"something_went_wrong", "please_try_again_and_contact_us"},
	CodeThirdPartyProvider:  {"account_created_with_identity_provider"},
	CodeIncorrectProvider:   {"email_already_registered_with_different_provider"},

	identity.ErrCodeUnverifiedEmail:  {"unverified_email_instructions"},
	identity.ErrCodeNewEmailConflict: {"new_email_already_registered"},
	identity.ErrCodeUseIdentityLogin: {"use_identity_login_instructions"},
}

// MessageFor returns the translation keys for a login error code. OAuth
// linking failures read as IncorrectProvider; unknown codes read as
// something_went_wrong.
func MessageFor(code string) []string {
	if code == codeOAuthCallback || code == codeOAuthAccountNotLinked {
		code = CodeIncorrectProvider
	}
	if keys, ok := errorMessages[code]; ok {
		return keys
	}
	return []string{CodeSomethingWentWrong}
}

// MagicLinks issues and redeems one-time sign-in links.
type MagicLinks interface {
	Create(ctx context.Context, email, callbackURL string) (string, error)
	VerifyToken(ctx context.Context, token string) (*emailverify.Link, error)
	Expiry() time.Duration
}

// EmailSignIn decides and resolves magic-link sign-ins.
type EmailSignIn interface {
	SignIn(ctx context.Context, p identity.Profile, a identity.Account) identity.Decision
	ResolveEmailUser(ctx context.Context, email string) (*models.User, error)
}

// SendLimiter throttles magic-link requests per email.
type SendLimiter interface {
	CheckAllowed(ctx context.Context, key string) (bool, *time.Time)
	Record(ctx context.Context, key string) (bool, *time.Time)
	Clear(ctx context.Context, key string) error
}

// Handler serves the login landing and the email sign-in flow.
type Handler struct {
	links       MagicLinks
	reconciler  EmailSignIn
	mail        mailer.Sender
	sessionMgr  *auth.SessionManager
	auditLogger *auditlog.Logger
	errLog      *errorsfeature.ErrorLogger
	limiter     SendLimiter
	providers   []string
	baseURL     string
	appName     string
	logger      *zap.Logger
}

// NewHandler creates a login Handler. oauthProviders lists the enabled
// OAuth provider ids; email sign-in is always offered. mail may be nil, in
// which case links are logged instead of sent.
func NewHandler(
	links MagicLinks,
	reconciler EmailSignIn,
	mail mailer.Sender,
	sessionMgr *auth.SessionManager,
	auditLogger *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	oauthProviders []string,
	baseURL, appName string,
	logger *zap.Logger,
) *Handler {
	providers := append([]string{identity.ProviderEmail}, oauthProviders...)
	sort.Strings(providers)
	return &Handler{
		links:       links,
		reconciler:  reconciler,
		mail:        mail,
		sessionMgr:  sessionMgr,
		auditLogger: auditLogger,
		errLog:      errLog,
		providers:   providers,
		baseURL:     strings.TrimRight(baseURL, "/"),
		appName:     appName,
		logger:      logger,
	}
}

// SetLimiter enables per-email throttling of magic-link requests.
func (h *Handler) SetLimiter(l SendLimiter) {
	h.limiter = l
}

// MountRoutes adds the login routes to an /auth router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Get("/error", h.forwardError)
	r.Post("/signin/email", h.sendMagicLink)
	r.Get("/callback/email", h.verifyMagicLink)
}

// LoginView describes the login landing to the client.
type LoginView struct {
	Providers   []string `json:"providers"`
	CallbackURL string   `json:"callbackUrl"`
	Error       string   `json:"error,omitempty"`
	MessageKeys []string `json:"messageKeys,omitempty"`
}

// showLogin returns the login landing descriptor. Signed-in users are sent
// home.
func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.CurrentUser(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	vm := LoginView{
		Providers:   h.providers,
		CallbackURL: h.callbackURL(r.URL.Query().Get("callbackUrl")),
	}
	if code := r.URL.Query().Get("error"); code != "" {
		vm.Error = code
		vm.MessageKeys = MessageFor(code)
	}
	jsonutil.OK(w, vm)
}

// callbackURL turns the requested post-login target into an absolute URL on
// the base URL.
func (h *Handler) callbackURL(raw string) string {
	raw = strings.TrimPrefix(raw, `"`)
	return identity.SafeRedirect(h.baseURL, urlutil.SafeReturn(raw, "", "/"))
}

// forwardError sends provider and reconciliation errors to the login landing.
func (h *Handler) forwardError(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("error")
	if code == "" {
		code = CodeSomethingWentWrong
	}
	http.Redirect(w, r, auth.LoginErrorURL(code), http.StatusSeeOther)
}

type magicLinkRequest struct {
	Email       string `json:"email" validate:"required,bareemail,max=254" label:"Email"`
	CallbackURL string `json:"callbackUrl"`
}

// sendMagicLink emails a one-time sign-in link. The response does not reveal
// whether an account exists for the address.
func (h *Handler) sendMagicLink(w http.ResponseWriter, r *http.Request) {
	var in magicLinkRequest
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "invalid_json", "Request body must be JSON with an email.")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	if h.limiter != nil {
		if allowed, until := h.limiter.CheckAllowed(r.Context(), in.Email); !allowed {
			h.tooManyRequests(w, until)
			return
		}
		h.limiter.Record(r.Context(), in.Email)
	}

	target := h.callbackURL(in.CallbackURL)
	token, err := h.links.Create(r.Context(), in.Email, target)
	if err != nil {
		h.errLog.Log(r, "failed to create magic link", err)
		jsonutil.InternalError(w, "Could not send the sign-in email.")
		return
	}

	link := h.baseURL + "/auth/callback/email?token=" + url.QueryEscape(token)
	if err := h.sendLinkEmail(in.Email, link); err != nil {
		h.errLog.Log(r, "failed to send magic link", err)
		jsonutil.InternalError(w, "Could not send the sign-in email.")
		return
	}

	h.auditLogger.MagicLinkSent(r.Context(), r, in.Email)
	jsonutil.OK(w, map[string]bool{"sent": true})
}

func (h *Handler) tooManyRequests(w http.ResponseWriter, until *time.Time) {
	if until != nil {
		secs := int(time.Until(*until).Seconds()) + 1
		if secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	jsonutil.Error(w, http.StatusTooManyRequests, "too_many_requests",
		"Too many sign-in emails requested. Please wait and try again.")
}

func (h *Handler) sendLinkEmail(to, link string) error {
	if h.mail == nil {
		h.logger.Warn("mailer not configured, magic link not sent",
			zap.String("email", to),
			zap.String("url", link))
		return nil
	}
	text, html := mailer.MagicLinkEmail(mailer.MagicLinkEmailData{
		AppName:   h.appName,
		SignInURL: link,
		ExpiresIn: formatExpiry(h.links.Expiry()),
	})
	return h.mail.Send(mailer.Email{
		To:       to,
		Subject:  mailer.MagicLinkSubject,
		TextBody: text,
		HTMLBody: html,
	})
}

// verifyMagicLink consumes the token and signs the user in.
func (h *Handler) verifyMagicLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	link, err := h.links.VerifyToken(ctx, r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, emailverify.ErrInvalidToken) {
			h.auditLogger.MagicLinkFailed(ctx, r, "invalid or expired token")
			http.Redirect(w, r, auth.LoginErrorURL(CodeAccessDenied), http.StatusSeeOther)
			return
		}
		h.errLog.Log(r, "failed to verify magic link", err)
		http.Redirect(w, r, auth.LoginErrorURL(CodeInternalServerError), http.StatusSeeOther)
		return
	}

	d := h.reconciler.SignIn(ctx, identity.Profile{Email: link.Email}, identity.Account{
		Provider:          identity.ProviderEmail,
		ProviderAccountID: link.Email,
		Type:              identity.AccountTypeEmail,
	})
	if d.Outcome != identity.Allow {
		h.auditLogger.SignIn(ctx, r, nil, identity.ProviderEmail, link.Email, d.Outcome.String(), d.Reason)
		http.Redirect(w, r, auth.LoginErrorURL(CodeAccessDenied), http.StatusSeeOther)
		return
	}

	u, err := h.reconciler.ResolveEmailUser(ctx, link.Email)
	if err != nil {
		h.errLog.Log(r, "failed to resolve magic link user", err)
		http.Redirect(w, r, auth.LoginErrorURL(CodeInternalServerError), http.StatusSeeOther)
		return
	}

	if err := h.sessionMgr.CreateSession(w, r, userstore.SessionUserFor(u)); err != nil {
		h.errLog.Log(r, "failed to create session", err)
		http.Redirect(w, r, auth.LoginErrorURL(CodeInternalServerError), http.StatusSeeOther)
		return
	}

	if h.limiter != nil {
		if err := h.limiter.Clear(ctx, link.Email); err != nil {
			h.logger.Warn("failed to clear magic link limit", zap.Error(err))
		}
	}

	h.logger.Info("user signed in via magic link", zap.String("user_id", u.ID.Hex()))
	h.auditLogger.MagicLinkUsed(ctx, r, u.ID, u.Email)
	http.Redirect(w, r, identity.SafeRedirect(h.baseURL, link.CallbackURL), http.StatusSeeOther)
}

// formatExpiry renders a link lifetime for the email body.
func formatExpiry(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hora", "horas")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minuto", "minutos")
	default:
		return plural(int(d/time.Second), "segundo", "segundos")
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}
