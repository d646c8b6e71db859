package invitations

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/app/system/mailer"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/dalemusser/stratabook/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type captureSender struct {
	sent []mailer.Email
	err  error
}

func (c *captureSender) Send(e mailer.Email) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, e)
	return nil
}

type fixture struct {
	handler http.Handler
	users   *userstore.Store
	mail    *captureSender
	doctor  testutil.TestUser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
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

	f := &fixture{
		users:  userstore.New(db),
		mail:   &captureSender{},
		doctor: testutil.AdminUser(),
	}
	h := NewHandler(f.users, f.mail, nil, errorsfeature.NewErrorLogger(logger), "https://app.test", "Osteocenter", logger)
	f.handler = Routes(h, sessionMgr)
	return f
}

func (f *fixture) do(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) invite(t *testing.T, body any) Invitation {
	t.Helper()
	rec := f.do(testutil.NewAuthenticatedJSONRequest(http.MethodPost, "/", body, f.doctor))
	rec.AssertStatus(t, http.StatusCreated)
	var inv Invitation
	rec.DecodeJSON(t, &inv)
	return inv
}

func TestRoutes_RequireDoctor(t *testing.T) {
	f := newFixture(t)

	rec := f.do(testutil.NewJSONRequest(http.MethodPost, "/", map[string]string{"email": "a@example.com"}))
	rec.AssertStatus(t, http.StatusUnauthorized)

	rec = f.do(testutil.NewAuthenticatedJSONRequest(http.MethodPost, "/", map[string]string{"email": "a@example.com"}, testutil.PatientUser()))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	inv := f.invite(t, map[string]string{"email": " New.Patient@Example.com ", "name": "Rosa Quispe"})
	if inv.Email != "new.patient@example.com" || inv.Role != models.RoleUser || inv.Name != "Rosa Quispe" {
		t.Errorf("invitation = %+v", inv)
	}

	u, err := f.users.GetByEmail(ctx, "new.patient@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if !u.IsInvitedPlaceholder() {
		t.Errorf("stored user is not a placeholder: %+v", u)
	}

	if len(f.mail.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(f.mail.sent))
	}
	sent := f.mail.sent[0]
	if sent.To != "new.patient@example.com" || sent.Subject != "Te invitaron a Osteocenter" {
		t.Errorf("email = %+v", sent)
	}
	if !strings.Contains(sent.TextBody, "como paciente") || !strings.Contains(sent.TextBody, "https://app.test/auth/login") {
		t.Errorf("text body = %q", sent.TextBody)
	}
}

func TestCreate_DoctorRole(t *testing.T) {
	f := newFixture(t)
	inv := f.invite(t, map[string]string{"email": "colleague@example.com", "role": "admin"})
	if inv.Role != models.RoleAdmin {
		t.Errorf("role = %q, want ADMIN", inv.Role)
	}
	if !strings.Contains(f.mail.sent[0].TextBody, "como doctor") {
		t.Errorf("text body = %q", f.mail.sent[0].TextBody)
	}
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"missing email", map[string]string{"role": "USER"}, http.StatusBadRequest, "validation failed"},
		{"bad email", map[string]string{"email": "not-an-email"}, http.StatusBadRequest, "validation failed"},
		{"unknown role", map[string]string{"email": "x@example.com", "role": "ROOT"}, http.StatusBadRequest, "validation failed"},
		{"unknown field", `{"email":"x@example.com","plan":"PRO"}`, http.StatusBadRequest, "invalid_json"},
		{"existing user", map[string]string{"email": "taken@example.com"}, http.StatusConflict, "email_taken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()
			username := "taken"
			if _, err := f.users.Create(ctx, models.User{Email: "taken@example.com", Name: "Taken", Username: &username, Role: models.RoleUser}); err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			rec := f.do(testutil.NewAuthenticatedJSONRequest(http.MethodPost, "/", tt.body, f.doctor))
			rec.AssertStatus(t, tt.wantStatus)
			var body jsonutil.ErrorBody
			rec.DecodeJSON(t, &body)
			if body.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", body.Error, tt.wantCode)
			}
			if len(f.mail.sent) != 0 {
				t.Errorf("sent %d emails for a rejected invitation", len(f.mail.sent))
			}
		})
	}
}

func TestCreate_MailFailureKeepsInvitation(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("smtp down")
	f.invite(t, map[string]string{"email": "later@example.com"})

	ctx, cancel := testutil.TestContext()
	defer cancel()
	if _, err := f.users.GetByEmail(ctx, "later@example.com"); err != nil {
		t.Errorf("invitation not stored: %v", err)
	}
}

func TestListResendRevoke(t *testing.T) {
	f := newFixture(t)
	first := f.invite(t, map[string]string{"email": "one@example.com"})
	f.invite(t, map[string]string{"email": "two@example.com"})

	rec := f.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/", f.doctor))
	rec.AssertStatus(t, http.StatusOK)
	var list struct {
		Invitations []Invitation `json:"invitations"`
	}
	rec.DecodeJSON(t, &list)
	if len(list.Invitations) != 2 {
		t.Fatalf("listed %d invitations, want 2", len(list.Invitations))
	}

	rec = f.do(testutil.NewAuthenticatedRequest(http.MethodPost, "/"+first.ID+"/resend", f.doctor))
	rec.AssertStatus(t, http.StatusOK)
	if len(f.mail.sent) != 3 || f.mail.sent[2].To != "one@example.com" {
		t.Errorf("resend did not email one@example.com: %+v", f.mail.sent)
	}

	rec = f.do(testutil.NewAuthenticatedRequest(http.MethodDelete, "/"+first.ID, f.doctor))
	rec.AssertStatus(t, http.StatusNoContent)

	rec = f.do(testutil.NewAuthenticatedRequest(http.MethodDelete, "/"+first.ID, f.doctor))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestRevoke_ClaimedAccountUntouched(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	inv := f.invite(t, map[string]string{"email": "claimed@example.com"})
	id, _ := primitive.ObjectIDFromHex(inv.ID)
	if err := f.users.ClaimInvited(ctx, id, userstore.Claim{Username: "claimed", Name: "Claimed", Provider: models.IdentityProviderMagic, VerifiedAt: time.Now()}); err != nil {
		t.Fatalf("ClaimInvited() error = %v", err)
	}

	rec := f.do(testutil.NewAuthenticatedRequest(http.MethodDelete, "/"+inv.ID, f.doctor))
	rec.AssertStatus(t, http.StatusNotFound)
	if _, err := f.users.GetByID(ctx, id); err != nil {
		t.Errorf("claimed account removed: %v", err)
	}
}

func TestBadID(t *testing.T) {
	f := newFixture(t)
	rec := f.do(testutil.NewAuthenticatedRequest(http.MethodPost, "/not-an-id/resend", f.doctor))
	rec.AssertStatus(t, http.StatusNotFound)
}
