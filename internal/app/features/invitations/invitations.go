// internal/app/features/invitations/invitations.go
package invitations

import (
	"context"
	"errors"
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/auditlog"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/inputval"
	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/app/system/mailer"
	"github.com/dalemusser/stratabook/internal/app/system/normalize"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Users is the user storage invitations live in. An invitation is a
// placeholder user that the first sign-in with its email claims.
type Users interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	CreateInvited(ctx context.Context, email, name, role string) (models.User, error)
	ListInvited(ctx context.Context) ([]models.User, error)
	GetInvited(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	DeleteInvited(ctx context.Context, id primitive.ObjectID) error
}

// Handler provides invitation handlers.
type Handler struct {
	users       Users
	mail        mailer.Sender
	auditLogger *auditlog.Logger
	errLog      *errorsfeature.ErrorLogger
	baseURL     string
	appName     string
	logger      *zap.Logger
}

// NewHandler creates a new invitations Handler. A nil mail sender logs the
// invitation instead of sending it.
func NewHandler(
	users Users,
	mail mailer.Sender,
	auditLogger *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	baseURL string,
	appName string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:       users,
		mail:        mail,
		auditLogger: auditLogger,
		errLog:      errLog,
		baseURL:     baseURL,
		appName:     appName,
		logger:      logger,
	}
}

// Routes returns the /api/invitations router. Only doctors may invite.
func Routes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(models.RoleAdmin))

	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/{id}/resend", h.resend)
	r.Delete("/{id}", h.revoke)

	return r
}

type createRequest struct {
	Email string `json:"email" validate:"required,bareemail,max=254" label:"Email"`
	Name  string `json:"name" validate:"max=100" label:"Name"`
	Role  string `json:"role" validate:"required,role" label:"Role"`
}

// Invitation is a pending invitation as returned by the API.
type Invitation struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toInvitation(u models.User) Invitation {
	return Invitation{
		ID:        u.ID.Hex(),
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// list returns pending invitations.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListInvited(r.Context())
	if err != nil {
		h.errLog.Log(r, "failed to list invitations", err)
		jsonutil.InternalError(w, "Could not load invitations.")
		return
	}
	out := make([]Invitation, 0, len(users))
	for _, u := range users {
		out = append(out, toInvitation(u))
	}
	jsonutil.OK(w, map[string]any{"invitations": out})
}

// create stores a placeholder user and emails the invitation.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.CurrentUser(r)

	var in createRequest
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "invalid_json", "Request body must be JSON with an email and role.")
		return
	}
	in.Email = normalize.Email(in.Email)
	in.Name = normalize.Name(in.Name)
	in.Role = normalize.Role(in.Role)
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	_, err := h.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		jsonutil.Conflict(w, "email_taken", "A user with this email already exists")
		return
	case !errors.Is(err, userstore.ErrNotFound):
		h.errLog.Log(r, "failed to check existing email", err)
		jsonutil.InternalError(w, "Could not create the invitation.")
		return
	}

	u, err := h.users.CreateInvited(ctx, in.Email, in.Name, in.Role)
	if userstore.IsDuplicate(err) {
		jsonutil.Conflict(w, "email_taken", "A user with this email already exists")
		return
	}
	if err != nil {
		h.errLog.Log(r, "failed to create invitation", err)
		jsonutil.InternalError(w, "Could not create the invitation.")
		return
	}

	h.send(r, actor.Name, u)
	h.auditLogger.UserInvited(ctx, r, actor.ID, u.ID, u.Role)
	h.logger.Info("user invited",
		zap.String("actor_id", actor.ID),
		zap.String("user_id", u.ID.Hex()),
		zap.String("role", u.Role))

	jsonutil.Created(w, toInvitation(u))
}

// resend emails a pending invitation again.
func (h *Handler) resend(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	u, ok := h.loadInvited(w, r)
	if !ok {
		return
	}
	h.send(r, actor.Name, *u)
	jsonutil.OK(w, toInvitation(*u))
}

// revoke deletes a pending invitation. Claimed accounts are not affected.
func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadInvited(w, r)
	if !ok {
		return
	}
	err := h.users.DeleteInvited(r.Context(), u.ID)
	if errors.Is(err, userstore.ErrNotFound) {
		jsonutil.NotFound(w, "invitation_not_found", "Invitation not found or already accepted.")
		return
	}
	if err != nil {
		h.errLog.Log(r, "failed to revoke invitation", err)
		jsonutil.InternalError(w, "Could not revoke the invitation.")
		return
	}
	jsonutil.NoContent(w)
}

func (h *Handler) loadInvited(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.NotFound(w, "invitation_not_found", "Invitation not found or already accepted.")
		return nil, false
	}
	u, err := h.users.GetInvited(r.Context(), id)
	if errors.Is(err, userstore.ErrNotFound) {
		jsonutil.NotFound(w, "invitation_not_found", "Invitation not found or already accepted.")
		return nil, false
	}
	if err != nil {
		h.errLog.Log(r, "failed to load invitation", err)
		jsonutil.InternalError(w, "Could not load the invitation.")
		return nil, false
	}
	return u, true
}

// send delivers the invitation email. Delivery failures are logged; the
// placeholder stays and the invitation can be resent.
func (h *Handler) send(r *http.Request, inviter string, u models.User) {
	loginURL := h.baseURL + auth.LoginPath
	if h.mail == nil {
		h.logger.Warn("mailer not configured, invitation not sent",
			zap.String("email", u.Email),
			zap.String("url", loginURL))
		return
	}
	text, html := mailer.InvitationEmail(mailer.InvitationEmailData{
		AppName:     h.appName,
		InviterName: inviter,
		Role:        roleLabel(u.Role),
		LoginURL:    loginURL,
	})
	err := h.mail.Send(mailer.Email{
		To:       u.Email,
		Subject:  mailer.InvitationSubject(h.appName),
		TextBody: text,
		HTMLBody: html,
	})
	if err != nil {
		h.errLog.Log(r, "failed to send invitation email", err)
	}
}

func roleLabel(role string) string {
	if role == models.RoleAdmin {
		return "doctor"
	}
	return "paciente"
}
