// internal/app/features/username/username.go
package username

import (
	"context"
	"net/http"
	"unicode/utf8"

	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/app/system/slug"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TakenMessage is returned with unavailable usernames.
const TakenMessage = "A user exists with that username"

// Checker reports whether a user other than excludeID owns a username.
type Checker interface {
	UsernameExists(ctx context.Context, username string, excludeID primitive.ObjectID) (bool, error)
}

// PremiumPolicy decides whether a username is reserved for a paid tier.
type PremiumPolicy interface {
	Premium(username string) bool
}

// LengthPolicy treats usernames of at most MaxLength characters as premium.
// A MaxLength of zero or less makes every username premium.
type LengthPolicy struct {
	MaxLength int
}

// Premium implements PremiumPolicy.
func (p LengthPolicy) Premium(username string) bool {
	if p.MaxLength <= 0 {
		return true
	}
	return utf8.RuneCountInString(username) <= p.MaxLength
}

// Handler serves the username availability check.
type Handler struct {
	checker Checker
	premium PremiumPolicy
	errLog  *errorsfeature.ErrorLogger
}

// NewHandler creates a username Handler.
func NewHandler(checker Checker, premium PremiumPolicy, errLog *errorsfeature.ErrorLogger) *Handler {
	return &Handler{checker: checker, premium: premium, errLog: errLog}
}

// Routes returns the /api/username router.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.check)
	return r
}

// Request is the availability query; Seq is echoed back.
type Request struct {
	Username string `json:"username"`
	Seq      *int64 `json:"seq,omitempty"`
}

// Response reports availability of the slugified username.
type Response struct {
	Available bool   `json:"available"`
	Premium   bool   `json:"premium"`
	Username  string `json:"username"`
	Message   string `json:"message,omitempty"`
	Seq       *int64 `json:"seq,omitempty"`
}

// check slugifies the candidate and looks it up. A signed-in caller's own
// username counts as available.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var in Request
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "invalid_json", "Request body must be JSON with a username.")
		return
	}

	name := slug.Make(in.Username)
	if name == "" {
		jsonutil.ValidationError(w, map[string]string{"username": "not_empty"})
		return
	}

	exclude := primitive.NilObjectID
	if u, ok := auth.CurrentUser(r); ok {
		exclude = u.UserID()
	}

	taken, err := h.checker.UsernameExists(r.Context(), name, exclude)
	if err != nil {
		h.errLog.Log(r, "username availability check failed", err)
		jsonutil.InternalError(w, "Could not check the username.")
		return
	}

	resp := Response{
		Available: !taken,
		Premium:   h.premium.Premium(name),
		Username:  name,
		Seq:       in.Seq,
	}
	if taken {
		resp.Message = TakenMessage
	}
	jsonutil.OK(w, resp)
}
