// internal/app/features/session/session.go
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/auditlog"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// LicenseChecker reports whether the deployment holds a valid license.
type LicenseChecker interface {
	Valid(ctx context.Context) bool
}

// Users is the user lookup impersonation needs.
type Users interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// Handler serves the session, CSRF and impersonation endpoints.
type Handler struct {
	users                Users
	license              LicenseChecker
	sessionMgr           *auth.SessionManager
	auditLogger          *auditlog.Logger
	errLog               *errorsfeature.ErrorLogger
	impersonationEnabled bool
	logger               *zap.Logger
}

// NewHandler creates a session Handler. license may be nil, in which case
// sessions report no valid license.
func NewHandler(
	users Users,
	license LicenseChecker,
	sessionMgr *auth.SessionManager,
	auditLogger *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	impersonationEnabled bool,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:                users,
		license:              license,
		sessionMgr:           sessionMgr,
		auditLogger:          auditLogger,
		errLog:               errLog,
		impersonationEnabled: impersonationEnabled,
		logger:               logger,
	}
}

// Routes returns the /api/auth router.
func Routes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Get("/session", h.getSession)
	r.Get("/csrf", h.getCSRF)
	r.Group(func(r chi.Router) {
		r.Use(sm.RequireSignedIn)
		r.Post("/impersonate", h.startImpersonation)
		r.Delete("/impersonate", h.stopImpersonation)
	})
	return r
}

// UserView is the user part of the session payload.
type UserView struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	Role              string `json:"role"`
	ImpersonatedByUID string `json:"impersonatedByUID,omitempty"`
}

// View is the session payload.
type View struct {
	User            UserView `json:"user"`
	HasValidLicense bool     `json:"hasValidLicense"`
	Expires         string   `json:"expires"`
}

func (h *Handler) view(ctx context.Context, u *auth.SessionUser) View {
	v := View{
		User: UserView{
			ID:                u.ID,
			Name:              u.Name,
			Username:          u.Username,
			Email:             u.Email,
			Role:              u.Role,
			ImpersonatedByUID: u.ImpersonatedByUID,
		},
		HasValidLicense: h.license != nil && h.license.Valid(ctx),
	}
	if !u.Expires.IsZero() {
		v.Expires = u.Expires.UTC().Format(time.RFC3339)
	}
	return v
}

// getSession returns the signed-in user, or an empty object without a session.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		jsonutil.OK(w, struct{}{})
		return
	}
	jsonutil.OK(w, h.view(r.Context(), u))
}

func (h *Handler) getCSRF(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, map[string]string{"csrfToken": csrf.Token(r)})
}

type impersonateRequest struct {
	Username string `json:"username"`
}

// startImpersonation lets an admin act as another user. The admin's id is
// carried in the new session so the original identity can be restored.
func (h *Handler) startImpersonation(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	if !h.impersonationEnabled {
		jsonutil.Forbidden(w, "impersonation_disabled", "Impersonation is disabled.")
		return
	}
	if !actor.IsAdmin() || actor.ImpersonatedByUID != "" {
		jsonutil.Forbidden(w, "forbidden", "You do not have access to this resource")
		return
	}

	var in impersonateRequest
	if err := jsonutil.Decode(r, &in); err != nil || strings.TrimSpace(in.Username) == "" {
		jsonutil.BadRequest(w, "invalid_input", "A username is required.")
		return
	}

	target, err := h.users.GetByUsername(r.Context(), strings.TrimSpace(in.Username))
	if errors.Is(err, userstore.ErrNotFound) {
		jsonutil.NotFound(w, "user_not_found", "No user with that username.")
		return
	}
	if err != nil {
		h.errLog.Log(r, "impersonation lookup failed", err)
		jsonutil.InternalError(w, "Could not start impersonation.")
		return
	}
	if target.ID.Hex() == actor.ID {
		jsonutil.BadRequest(w, "self_impersonation", "You cannot impersonate yourself.")
		return
	}
	if target.DisableImpersonation {
		jsonutil.Forbidden(w, "impersonation_refused", "This user does not allow impersonation.")
		return
	}

	su := userstore.SessionUserFor(target)
	su.ImpersonatedByUID = actor.ID
	if err := h.sessionMgr.CreateSession(w, r, su); err != nil {
		h.errLog.Log(r, "failed to create impersonation session", err)
		jsonutil.InternalError(w, "Could not start impersonation.")
		return
	}

	h.logger.Info("impersonation started",
		zap.String("actor_id", actor.ID),
		zap.String("target_id", su.ID))
	h.auditLogger.ImpersonationStarted(r.Context(), r, actor.ID, su.ID)
	jsonutil.OK(w, h.view(r.Context(), su))
}

// stopImpersonation restores the admin's own session.
func (h *Handler) stopImpersonation(w http.ResponseWriter, r *http.Request) {
	current, _ := auth.CurrentUser(r)
	if current.ImpersonatedByUID == "" {
		jsonutil.BadRequest(w, "not_impersonating", "There is no impersonation to stop.")
		return
	}
	adminID, err := primitive.ObjectIDFromHex(current.ImpersonatedByUID)
	if err != nil {
		h.sessionMgr.DestroySession(w, r)
		jsonutil.Unauthorized(w)
		return
	}

	admin, err := h.users.GetByID(r.Context(), adminID)
	switch {
	case errors.Is(err, userstore.ErrNotFound):
		h.sessionMgr.DestroySession(w, r)
		jsonutil.Unauthorized(w)
		return
	case err != nil:
		h.errLog.Log(r, "impersonation restore lookup failed", err)
		jsonutil.InternalError(w, "Could not stop impersonation.")
		return
	}

	su := userstore.SessionUserFor(admin)
	if err := h.sessionMgr.CreateSession(w, r, su); err != nil {
		h.errLog.Log(r, "failed to restore admin session", err)
		jsonutil.InternalError(w, "Could not stop impersonation.")
		return
	}

	h.auditLogger.ImpersonationStopped(r.Context(), r, su.ID, current.ID)
	jsonutil.OK(w, h.view(r.Context(), su))
}
