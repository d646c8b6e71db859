// internal/app/features/dni/dni.go
package dni

import (
	"context"
	"net/http"

	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/app/system/normalize"
	"github.com/dalemusser/stratabook/internal/app/system/profileval"
	"github.com/go-chi/chi/v5"
)

// Checker reports whether a DNI is free in both profile collections.
type Checker interface {
	DNIAvailable(ctx context.Context, dni string) (bool, error)
}

// Handler serves the DNI availability check.
type Handler struct {
	checker Checker
	errLog  *errorsfeature.ErrorLogger
}

// NewHandler creates a DNI Handler.
func NewHandler(checker Checker, errLog *errorsfeature.ErrorLogger) *Handler {
	return &Handler{checker: checker, errLog: errLog}
}

// Routes returns the /api/dni router.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.check)
	return r
}

// Request is the availability query. Seq is echoed back so a debounced
// client can discard responses to superseded queries.
type Request struct {
	DNI string `json:"DNI"`
	Seq *int64 `json:"seq,omitempty"`
}

// Response reports availability.
type Response struct {
	Available bool   `json:"available"`
	Seq       *int64 `json:"seq,omitempty"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var in Request
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "invalid_json", "Request body must be JSON with a DNI.")
		return
	}

	dni := normalize.DNI(in.DNI)
	if code := profileval.ValidateDNI(dni); code != "" {
		jsonutil.ValidationError(w, map[string]string{"DNI": code})
		return
	}

	ok, err := h.checker.DNIAvailable(r.Context(), dni)
	if err != nil {
		h.errLog.Log(r, "dni availability check failed", err)
		jsonutil.InternalError(w, "Could not check the DNI.")
		return
	}
	jsonutil.OK(w, Response{Available: ok, Seq: in.Seq})
}
