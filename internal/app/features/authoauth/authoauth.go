// internal/app/features/authoauth/authoauth.go
package authoauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	"github.com/dalemusser/stratabook/internal/app/store/oauthstate"
	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/auditlog"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/identity"
	"github.com/dalemusser/stratabook/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Login error codes used by this flow.
const (
	codeAccessDenied = "AccessDenied"
	codeInternal     = "internal-server-error"
)

// StateStore issues and redeems single-use OAuth state tokens.
type StateStore interface {
	Create(ctx context.Context, provider, callbackURL string) (string, error)
	Verify(ctx context.Context, provider, state string) (*oauthstate.State, error)
}

// SignInDecider decides whether an asserted identity may sign in.
type SignInDecider interface {
	SignIn(ctx context.Context, p identity.Profile, a identity.Account) identity.Decision
}

// Handler runs the OAuth sign-in flow for the configured providers.
type Handler struct {
	states      StateStore
	reconciler  SignInDecider
	sessionMgr  *auth.SessionManager
	auditLogger *auditlog.Logger
	errLog      *errorsfeature.ErrorLogger
	providers   map[string]*Provider
	baseURL     string
	logger      *zap.Logger
}

// NewHandler creates an OAuth Handler. Nil providers are skipped, so
// callers can pass an unconfigured provider as nil.
func NewHandler(
	states StateStore,
	reconciler SignInDecider,
	sessionMgr *auth.SessionManager,
	auditLogger *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	baseURL string,
	logger *zap.Logger,
	providers ...*Provider,
) *Handler {
	h := &Handler{
		states:      states,
		reconciler:  reconciler,
		sessionMgr:  sessionMgr,
		auditLogger: auditLogger,
		errLog:      errLog,
		providers:   map[string]*Provider{},
		baseURL:     baseURL,
		logger:      logger,
	}
	for _, p := range providers {
		if p != nil {
			h.providers[p.ID] = p
		}
	}
	return h
}

// Enabled returns the ids of the configured providers, sorted.
func (h *Handler) Enabled() []string {
	ids := make([]string, 0, len(h.providers))
	for id := range h.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MountRoutes adds the provider routes to an /auth router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/signin/{provider}", h.start)
	r.Get("/callback/{provider}", h.callback)
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, auth.LoginErrorURL(code), http.StatusSeeOther)
}

// start redirects the browser to the provider's consent page.
func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	p, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		h.deny(w, r, codeAccessDenied)
		return
	}

	target := identity.SafeRedirect(h.baseURL, r.URL.Query().Get("callbackUrl"))
	state, err := h.states.Create(r.Context(), p.ID, target)
	if err != nil {
		h.errLog.Log(r, "failed to store oauth state", err)
		h.deny(w, r, codeInternal)
		return
	}
	http.Redirect(w, r, p.OAuth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// callback completes the flow: verify state, exchange the code, fetch the
// profile, reconcile, and sign the user in.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		h.deny(w, r, codeAccessDenied)
		return
	}
	q := r.URL.Query()

	st, err := h.states.Verify(ctx, p.ID, q.Get("state"))
	if err != nil {
		if !errors.Is(err, oauthstate.ErrInvalidState) {
			h.errLog.Log(r, "failed to verify oauth state", err)
		}
		h.logger.Warn("invalid oauth state", zap.String("provider", p.ID))
		h.deny(w, r, codeAccessDenied)
		return
	}

	if e := q.Get("error"); e != "" {
		h.logger.Info("oauth provider returned error",
			zap.String("provider", p.ID),
			zap.String("error", e))
		h.deny(w, r, codeAccessDenied)
		return
	}

	exCtx, cancel := context.WithTimeout(ctx, timeouts.External())
	tok, err := p.OAuth.Exchange(exCtx, q.Get("code"))
	cancel()
	if err != nil {
		h.errLog.LogWithFields(r, "oauth code exchange failed", err, zap.String("provider", p.ID))
		h.deny(w, r, codeInternal)
		return
	}

	profile, accountID, err := h.fetchProfile(ctx, p, tok)
	if err != nil {
		h.errLog.LogWithFields(r, "oauth profile fetch failed", err, zap.String("provider", p.ID))
		h.deny(w, r, codeInternal)
		return
	}

	signInCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), h.logger, "oauth sign-in")
	d := h.reconciler.SignIn(signInCtx, profile, identity.Account{
		Provider:          p.ID,
		ProviderAccountID: accountID,
		Type:              identity.AccountTypeOAuth,
	})
	cancel()

	var uid *primitive.ObjectID
	if d.User != nil {
		uid = &d.User.ID
	}
	h.auditLogger.SignIn(ctx, r, uid, p.ID, profile.Email, d.Outcome.String(), d.Reason)

	switch {
	case d.Outcome == identity.Redirect:
		http.Redirect(w, r, d.RedirectTo, http.StatusSeeOther)
	case d.Outcome == identity.Allow && d.User != nil:
		if err := h.sessionMgr.CreateSession(w, r, userstore.SessionUserFor(d.User)); err != nil {
			h.errLog.Log(r, "failed to create session", err)
			h.deny(w, r, codeInternal)
			return
		}
		http.Redirect(w, r, identity.SafeRedirect(h.baseURL, st.CallbackURL), http.StatusSeeOther)
	default:
		h.deny(w, r, codeAccessDenied)
	}
}

func (h *Handler) fetchProfile(ctx context.Context, p *Provider, tok *oauth2.Token) (identity.Profile, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.External())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return identity.Profile{}, "", err
	}
	resp, err := p.OAuth.Client(ctx, tok).Do(req)
	if err != nil {
		return identity.Profile{}, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity.Profile{}, "", fmt.Errorf("profile endpoint returned %d", resp.StatusCode)
	}
	return p.decode(io.LimitReader(resp.Body, 1<<20))
}
