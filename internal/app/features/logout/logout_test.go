package logout

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := zap.NewNop()

	sessionMgr, err := auth.NewSessionManager(
		"test-session-key-for-testing-1234567890",
		"test-session",
		"",
		24*time.Hour,
		false,
		logger,
	)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	// auditLogger can be nil - it's nil-safe
	h := NewHandler(sessionMgr, nil, logger)
	r := chi.NewRouter()
	r.Route("/auth", h.MountRoutes)
	return r
}

func TestLogout_RedirectsToLogin(t *testing.T) {
	r := newTestRouter(t)

	req := testutil.NewAuthenticatedRequest(http.MethodPost, "/auth/signout", testutil.AdminUser())
	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, req)

	rec.AssertRedirect(t, "/auth/login")
}

func TestLogout_ExpiresCookie(t *testing.T) {
	r := newTestRouter(t)

	req := testutil.NewAuthenticatedRequest(http.MethodPost, "/auth/signout", testutil.PatientUser())
	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, req)

	cookie := rec.Header().Get("Set-Cookie")
	if !strings.HasPrefix(cookie, "test-session=") || !strings.Contains(cookie, "Max-Age=0") {
		t.Errorf("Set-Cookie = %q, want an expired test-session cookie", cookie)
	}
}

func TestLogout_WithoutSession(t *testing.T) {
	r := newTestRouter(t)

	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewRequest(http.MethodPost, "/auth/signout"))

	rec.AssertRedirect(t, "/auth/login")
}

func TestLogout_GETNotAllowed(t *testing.T) {
	r := newTestRouter(t)

	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/auth/signout"))

	rec.AssertStatus(t, http.StatusMethodNotAllowed)
}
