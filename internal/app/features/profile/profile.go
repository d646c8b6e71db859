// internal/app/features/profile/profile.go
package profile

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	profilestore "github.com/dalemusser/stratabook/internal/app/store/profiles"
	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/auditlog"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/app/system/profileval"
	"github.com/dalemusser/stratabook/internal/app/system/slug"
	"github.com/dalemusser/stratabook/internal/app/system/txn"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Users is the user storage the profile endpoints need.
type Users interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UsernameExists(ctx context.Context, username string, excludeID primitive.ObjectID) (bool, error)
	EmailTakenByOther(ctx context.Context, email string, excludeID primitive.ObjectID) (bool, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, p userstore.ProfileUpdate) (*models.User, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// Profiles is the patient/doctor profile storage.
type Profiles interface {
	GetDNI(ctx context.Context, userID primitive.ObjectID, kind string) (string, error)
	SaveDNI(ctx context.Context, userID primitive.ObjectID, kind, dni string) error
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) error
}

// Accounts is the provider account storage.
type Accounts interface {
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Account, error)
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

// TxRunner runs fn atomically; see txn.Runner.
type TxRunner func(ctx context.Context, fn txn.Func) error

// Handler provides the current-user profile endpoints.
type Handler struct {
	users       Users
	profiles    Profiles
	accounts    Accounts
	runTx       TxRunner
	sessionMgr  *auth.SessionManager
	auditLogger *auditlog.Logger
	errLog      *errorsfeature.ErrorLogger
	logger      *zap.Logger
}

// NewHandler creates a new profile Handler.
func NewHandler(
	users Users,
	profiles Profiles,
	accounts Accounts,
	runTx TxRunner,
	sessionMgr *auth.SessionManager,
	auditLogger *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:       users,
		profiles:    profiles,
		accounts:    accounts,
		runTx:       runTx,
		sessionMgr:  sessionMgr,
		auditLogger: auditLogger,
		errLog:      errLog,
		logger:      logger,
	}
}

// Routes returns the /api/user router.
func Routes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/me", h.getMe)
	r.Patch("/me", h.updateMe)
	r.Delete("/me", h.deleteMe)
	return r
}

// MeView is the current user as returned by the API, with the DNI from the
// profile that matches the user's role and the provider accounts linked to it.
type MeView struct {
	*models.User
	DNI                   string          `json:"DNI"`
	IdentityProviderLabel string          `json:"identityProviderLabel"`
	Accounts              []LinkedAccount `json:"accounts"`
}

// LinkedAccount is a provider account as shown to its owner.
type LinkedAccount struct {
	Provider      string    `json:"provider"`
	ProviderLabel string    `json:"providerLabel"`
	LinkedAt      time.Time `json:"linkedAt"`
}

func (h *Handler) loadMe(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	su, _ := auth.CurrentUser(r)
	u, err := h.users.GetByID(r.Context(), su.UserID())
	if errors.Is(err, userstore.ErrNotFound) {
		h.logger.Warn("user from session not found", zap.String("user_id", su.ID))
		jsonutil.NotFound(w, "user_not_found", "User from session not found")
		return nil, false
	}
	if err != nil {
		h.errLog.Log(r, "failed to load current user", err)
		jsonutil.InternalError(w, "Could not load your profile.")
		return nil, false
	}
	return u, true
}

func (h *Handler) view(ctx context.Context, u *models.User) (MeView, error) {
	dni, err := h.profiles.GetDNI(ctx, u.ID, models.ProfileKindForRole(u.Role))
	if err != nil {
		return MeView{}, err
	}
	accts, err := h.accounts.ListByUser(ctx, u.ID)
	if err != nil {
		return MeView{}, err
	}
	linked := make([]LinkedAccount, 0, len(accts))
	for _, a := range accts {
		linked = append(linked, LinkedAccount{
			Provider:      a.Provider,
			ProviderLabel: models.IdentityProviderLabel(a.Provider),
			LinkedAt:      a.CreatedAt,
		})
	}
	return MeView{
		User:                  u,
		DNI:                   dni,
		IdentityProviderLabel: models.IdentityProviderLabel(u.IdentityProvider),
		Accounts:              linked,
	}, nil
}

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadMe(w, r)
	if !ok {
		return
	}
	v, err := h.view(r.Context(), u)
	if err != nil {
		h.errLog.Log(r, "failed to load profile view", err)
		jsonutil.InternalError(w, "Could not load your profile.")
		return
	}
	jsonutil.OK(w, v)
}

// updateMe applies a partial profile update. Field failures come back as
// codes; uniqueness conflicts as 409.
func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in profileval.ProfileInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "invalid_json", "Request body must be a JSON profile object.")
		return
	}
	if err := in.Validate(); err != nil {
		var verrs profileval.Errors
		if errors.As(err, &verrs) {
			jsonutil.ValidationError(w, verrs)
			return
		}
		h.errLog.Log(r, "profile validation failed", err)
		jsonutil.InternalError(w, "Could not update your profile.")
		return
	}

	me, ok := h.loadMe(w, r)
	if !ok {
		return
	}

	if in.Username != nil {
		name := slug.Make(*in.Username)
		if name == "" {
			jsonutil.ValidationError(w, map[string]string{"username": "not_empty"})
			return
		}
		if code := profileval.Var(name, "min_length=4"); code != "" {
			jsonutil.ValidationError(w, map[string]string{"username": code})
			return
		}
		in.Username = &name
		taken, err := h.users.UsernameExists(ctx, name, me.ID)
		if err != nil {
			h.errLog.Log(r, "username check failed", err)
			jsonutil.InternalError(w, "Could not update your profile.")
			return
		}
		if taken {
			jsonutil.Conflict(w, "username_taken", "A user exists with that username")
			return
		}
	}

	emailChanged := in.Email != nil && *in.Email != me.Email
	if !emailChanged {
		in.Email = nil
	}
	if emailChanged {
		taken, err := h.users.EmailTakenByOther(ctx, *in.Email, me.ID)
		if err != nil {
			h.errLog.Log(r, "email check failed", err)
			jsonutil.InternalError(w, "Could not update your profile.")
			return
		}
		if taken {
			jsonutil.Conflict(w, "email_taken", "Another account uses that email.")
			return
		}
	}

	if in.Bio != nil {
		bio := htmlsanitize.Bio(*in.Bio)
		in.Bio = &bio
	}

	if in.DNI != nil {
		err := h.profiles.SaveDNI(ctx, me.ID, models.ProfileKindForRole(me.Role), *in.DNI)
		if errors.Is(err, profilestore.ErrDNITaken) {
			jsonutil.Conflict(w, "dni_already_registered", "The DNI is already registered.")
			return
		}
		if err != nil {
			h.errLog.Log(r, "failed to save dni", err)
			jsonutil.InternalError(w, "Could not update your profile.")
			return
		}
	}

	updated, err := h.users.UpdateProfile(ctx, me.ID, toUpdate(in))
	switch {
	case errors.Is(err, userstore.ErrDuplicateUsername):
		jsonutil.Conflict(w, "username_taken", "A user exists with that username")
		return
	case errors.Is(err, userstore.ErrDuplicateEmail):
		jsonutil.Conflict(w, "email_taken", "Another account uses that email.")
		return
	case errors.Is(err, userstore.ErrNotFound):
		jsonutil.NotFound(w, "user_not_found", "User from session not found")
		return
	case err != nil:
		h.errLog.Log(r, "failed to update profile", err)
		jsonutil.InternalError(w, "Could not update your profile.")
		return
	}

	if emailChanged {
		h.auditLogger.EmailChanged(ctx, r, me.ID, me.Email, updated.Email)
	}
	h.auditLogger.ProfileUpdated(ctx, r, me.ID.Hex(), strings.Join(changedFields(in), ","))

	// The session token is looked up by email, so identity changes must be
	// written back to the cookie.
	if emailChanged || in.Username != nil || in.Name != nil {
		su, _ := auth.CurrentUser(r)
		fresh := userstore.SessionUserFor(updated)
		fresh.ImpersonatedByUID = su.ImpersonatedByUID
		if err := h.sessionMgr.CreateSession(w, r, fresh); err != nil {
			h.errLog.Log(r, "failed to re-issue session after profile update", err)
		}
	}

	v, err := h.view(ctx, updated)
	if err != nil {
		h.errLog.Log(r, "failed to load profile view", err)
		jsonutil.InternalError(w, "Could not load your profile.")
		return
	}
	jsonutil.OK(w, v)
}

func toUpdate(in profileval.ProfileInput) userstore.ProfileUpdate {
	return userstore.ProfileUpdate{
		Username:             in.Username,
		Name:                 in.Name,
		FirstName:            in.FirstName,
		LastName:             in.LastName,
		Email:                in.Email,
		PhoneNumber:          in.PhoneNumber,
		Bio:                  in.Bio,
		Avatar:               in.Avatar,
		TimeZone:             in.TimeZone,
		WeekStart:            in.WeekStart,
		TimeFormat:           in.TimeFormat,
		Locale:               in.Locale,
		Theme:                in.Theme,
		BrandColor:           in.BrandColor,
		DarkBrandColor:       in.DarkBrandColor,
		HideBranding:         in.HideBranding,
		AllowDynamicBooking:  in.AllowDynamicBooking,
		DisableImpersonation: in.DisableImpersonation,
		CompletedOnboarding:  in.CompletedOnboarding,
	}
}

// changedFields lists the JSON names of the fields present in the update.
func changedFields(in profileval.ProfileInput) []string {
	set := map[string]bool{
		"username":             in.Username != nil,
		"name":                 in.Name != nil,
		"firstName":            in.FirstName != nil,
		"lastName":             in.LastName != nil,
		"email":                in.Email != nil,
		"phoneNumber":          in.PhoneNumber != nil,
		"DNI":                  in.DNI != nil,
		"bio":                  in.Bio != nil,
		"avatar":               in.Avatar != nil,
		"timeZone":             in.TimeZone != nil,
		"weekStart":            in.WeekStart != nil,
		"timeFormat":           in.TimeFormat != nil,
		"locale":               in.Locale != nil,
		"theme":                in.Theme != nil,
		"brandColor":           in.BrandColor != nil,
		"darkBrandColor":       in.DarkBrandColor != nil,
		"hideBranding":         in.HideBranding != nil,
		"allowDynamicBooking":  in.AllowDynamicBooking != nil,
		"disableImpersonation": in.DisableImpersonation != nil,
		"completedOnboarding":  in.CompletedOnboarding != nil,
	}
	var out []string
	for f, ok := range set {
		if ok {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// deleteMe removes the account with its profiles, DNI claims and provider
// accounts in one transaction, then ends the session.
func (h *Handler) deleteMe(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	id := su.UserID()

	err := h.runTx(r.Context(), func(ctx context.Context) error {
		if err := h.profiles.DeleteByUser(ctx, id); err != nil {
			return err
		}
		if _, err := h.accounts.DeleteByUser(ctx, id); err != nil {
			return err
		}
		return h.users.Delete(ctx, id)
	})
	if err != nil {
		h.errLog.Log(r, "failed to delete account", err)
		jsonutil.InternalError(w, "Could not delete your account.")
		return
	}

	h.logger.Info("account deleted", zap.String("user_id", su.ID))
	h.auditLogger.AccountDeleted(r.Context(), r, su.ID, su.Role)
	h.sessionMgr.DestroySession(w, r)
	jsonutil.NoContent(w)
}
