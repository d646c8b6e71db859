// internal/app/features/logout/logout.go
package logout

import (
	"net/http"

	"github.com/dalemusser/stratabook/internal/app/system/auditlog"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler provides the sign-out handler.
type Handler struct {
	sessionMgr  *auth.SessionManager
	auditLogger *auditlog.Logger
	logger      *zap.Logger
}

// NewHandler creates a new logout Handler.
func NewHandler(sessionMgr *auth.SessionManager, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		sessionMgr:  sessionMgr,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// MountRoutes adds POST /signout to an /auth router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/signout", h.handleLogout)
}

// handleLogout clears the session cookie and sends the browser to the login
// page. Signing out without a session is not an error.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := auth.CurrentUser(r); ok {
		h.auditLogger.Logout(r.Context(), r, user.ID)
		h.logger.Info("user signed out", zap.String("user_id", user.ID))
	}

	h.sessionMgr.DestroySession(w, r)
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}
