// internal/app/features/onboarding/onboarding.go
package onboarding

import (
	"context"
	"errors"
	"net/http"

	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	profilestore "github.com/dalemusser/stratabook/internal/app/store/profiles"
	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/auditlog"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/app/system/onboarding"
	"github.com/dalemusser/stratabook/internal/app/system/profileval"
	"github.com/dalemusser/stratabook/internal/app/system/slug"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const userNotFound = "User from session not found"

// Users is the user storage the wizard needs.
type Users interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UsernameExists(ctx context.Context, username string, excludeID primitive.ObjectID) (bool, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, p userstore.ProfileUpdate) (*models.User, error)
	CompleteOnboarding(ctx context.Context, id primitive.ObjectID) error
}

// Profiles is the patient/doctor profile storage.
type Profiles interface {
	GetDNI(ctx context.Context, userID primitive.ObjectID, kind string) (string, error)
	SaveDNI(ctx context.Context, userID primitive.ObjectID, kind, dni string) error
}

// Handler serves the getting-started wizard and the root landing redirect.
type Handler struct {
	users       Users
	profiles    Profiles
	sessionMgr  *auth.SessionManager
	auditLogger *auditlog.Logger
	errLog      *errorsfeature.ErrorLogger
	logger      *zap.Logger
	newDNI      func() string
}

func NewHandler(
	users Users,
	profiles Profiles,
	sessionMgr *auth.SessionManager,
	auditLogger *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:       users,
		profiles:    profiles,
		sessionMgr:  sessionMgr,
		auditLogger: auditLogger,
		errLog:      errLog,
		logger:      logger,
		newDNI:      uuid.NewString,
	}
}

// Routes returns the router mounted at the site root. POST
// /getting-started/{step} accepts user-settings and complete.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.landing)
	r.Get("/getting-started", h.show)
	r.Get("/getting-started/{step}", h.show)
	r.Post("/getting-started/{step}", h.submit)
	return r
}

// View is the state of the wizard for the signed-in user.
type View struct {
	Steps      []string          `json:"steps"`
	Current    string            `json:"current"`
	Index      int               `json:"index"`
	Header     onboarding.Header `json:"header"`
	User       *models.User      `json:"user"`
	DefaultDNI string            `json:"defaultDNI"`
}

// StepResult tells the client where the wizard goes next.
type StepResult struct {
	Next     string `json:"next,omitempty"`
	Index    int    `json:"index"`
	Redirect string `json:"redirect"`
}

func (h *Handler) landing(w http.ResponseWriter, r *http.Request) {
	su, ok := auth.CurrentUser(r)
	if !ok {
		http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
		return
	}
	u, err := h.users.GetByID(r.Context(), su.UserID())
	if err != nil {
		if !errors.Is(err, userstore.ErrNotFound) {
			h.errLog.Log(r, "failed to load user for landing", err)
		}
		http.Redirect(w, r, onboarding.Landing(false), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, onboarding.Landing(u.CompletedOnboarding), http.StatusSeeOther)
}

// loadUser resolves the session user. It writes the response and returns
// false when the request cannot continue.
func (h *Handler) loadUser(w http.ResponseWriter, r *http.Request, redirect bool) (*models.User, bool) {
	su, ok := auth.CurrentUser(r)
	if !ok {
		if redirect {
			http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
		} else {
			jsonutil.Unauthorized(w)
		}
		return nil, false
	}
	u, err := h.users.GetByID(r.Context(), su.UserID())
	if errors.Is(err, userstore.ErrNotFound) {
		h.logger.Error("user from session not found", zap.String("user_id", su.ID))
		jsonutil.InternalError(w, userNotFound)
		return nil, false
	}
	if err != nil {
		h.errLog.Log(r, "failed to load onboarding user", err)
		jsonutil.InternalError(w, "Could not load your account.")
		return nil, false
	}
	return u, true
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r, true)
	if !ok {
		return
	}
	if u.CompletedOnboarding {
		http.Redirect(w, r, onboarding.Landing(true), http.StatusSeeOther)
		return
	}

	step, idx := onboarding.Resolve(u.Role, chi.URLParam(r, "step"))

	dni, err := h.profiles.GetDNI(r.Context(), u.ID, models.ProfileKindForRole(u.Role))
	if err != nil {
		h.errLog.Log(r, "failed to load onboarding dni", err)
		jsonutil.InternalError(w, "Could not load your account.")
		return
	}
	// Non-Peruvian accounts hold a generated placeholder that must not be
	// offered back as a DNI.
	if profileval.ValidateDNI(dni) != "" {
		dni = ""
	}

	jsonutil.OK(w, View{
		Steps:      onboarding.Steps(u.Role),
		Current:    step,
		Index:      idx,
		Header:     onboarding.HeaderFor(u.Role, step),
		User:       u,
		DefaultDNI: dni,
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "step") {
	case onboarding.StepUserSettings:
		h.saveUserSettings(w, r)
	case "complete":
		h.complete(w, r)
	default:
		jsonutil.NotFound(w, "unknown_step", "This onboarding step has nothing to submit.")
	}
}

// saveUserSettings stores the first wizard step and answers with the step
// that follows it.
func (h *Handler) saveUserSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.loadUser(w, r, false)
	if !ok {
		return
	}

	var in profileval.OnboardingInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "invalid_json", "Request body must be a JSON object.")
		return
	}
	isAdmin := u.Role == models.RoleAdmin
	if err := in.Validate(isAdmin); err != nil {
		var verrs profileval.Errors
		if errors.As(err, &verrs) {
			jsonutil.ValidationError(w, verrs)
			return
		}
		h.errLog.Log(r, "onboarding validation failed", err)
		jsonutil.InternalError(w, "Could not save your details.")
		return
	}

	update := userstore.ProfileUpdate{}
	name := in.FullName()
	update.Name = &name
	update.FirstName = &in.FirstName
	update.LastName = &in.LastName
	update.Country = &in.Country
	if in.PhoneNumber != "" {
		update.PhoneNumber = &in.PhoneNumber
	}
	if in.TimeZone != "" {
		update.TimeZone = &in.TimeZone
	}

	if isAdmin {
		username := slug.Make(in.Username)
		if username == "" {
			jsonutil.ValidationError(w, map[string]string{"username": "not_empty"})
			return
		}
		if code := profileval.Var(username, "min_length=4"); code != "" {
			jsonutil.ValidationError(w, map[string]string{"username": code})
			return
		}
		taken, err := h.users.UsernameExists(ctx, username, u.ID)
		if err != nil {
			h.errLog.Log(r, "username check failed", err)
			jsonutil.InternalError(w, "Could not save your details.")
			return
		}
		if taken {
			jsonutil.Conflict(w, "username_taken", "A user exists with that username")
			return
		}
		update.Username = &username
	}

	dni := in.DNI
	if !in.RequiresDNI() {
		dni = h.newDNI()
	}
	err := h.profiles.SaveDNI(ctx, u.ID, models.ProfileKindForRole(u.Role), dni)
	if errors.Is(err, profilestore.ErrDNITaken) {
		jsonutil.Conflict(w, "dni_already_registered", "The DNI is already registered.")
		return
	}
	if err != nil {
		h.errLog.Log(r, "failed to save onboarding dni", err)
		jsonutil.InternalError(w, "Could not save your details.")
		return
	}

	updated, err := h.users.UpdateProfile(ctx, u.ID, update)
	switch {
	case errors.Is(err, userstore.ErrDuplicateUsername):
		jsonutil.Conflict(w, "username_taken", "A user exists with that username")
		return
	case errors.Is(err, userstore.ErrNotFound):
		h.logger.Error("user from session not found", zap.String("user_id", u.ID.Hex()))
		jsonutil.InternalError(w, userNotFound)
		return
	case err != nil:
		h.errLog.Log(r, "failed to save onboarding profile", err)
		jsonutil.InternalError(w, "Could not save your details.")
		return
	}

	h.auditLogger.ProfileUpdated(ctx, r, u.ID.Hex(), "onboarding:"+onboarding.StepUserSettings)

	su, _ := auth.CurrentUser(r)
	fresh := userstore.SessionUserFor(updated)
	fresh.ImpersonatedByUID = su.ImpersonatedByUID
	if err := h.sessionMgr.CreateSession(w, r, fresh); err != nil {
		h.errLog.Log(r, "failed to re-issue session after onboarding", err)
	}

	next := onboarding.GoToIndex(u.Role, 1)
	jsonutil.OK(w, StepResult{Next: next, Index: 1, Redirect: onboarding.Path(next)})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r, false)
	if !ok {
		return
	}
	if err := h.users.CompleteOnboarding(r.Context(), u.ID); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			jsonutil.InternalError(w, userNotFound)
			return
		}
		h.errLog.Log(r, "failed to complete onboarding", err)
		jsonutil.InternalError(w, "Could not finish onboarding.")
		return
	}
	h.logger.Info("onboarding completed", zap.String("user_id", u.ID.Hex()), zap.String("role", u.Role))
	jsonutil.OK(w, StepResult{Index: len(onboarding.Steps(u.Role)), Redirect: onboarding.Landing(true)})
}
