package seeding

import (
	"testing"

	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/dalemusser/stratabook/internal/testutil"
	"go.uber.org/zap"
)

func TestEnsureAdmin_Creates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAdmin(ctx, users, " Root@Example.com ", "", zap.NewNop()); err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}
	u, err := users.GetByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if u.Role != models.RoleAdmin {
		t.Errorf("Role = %q, want ADMIN", u.Role)
	}
	if u.Name != "Admin" {
		t.Errorf("Name = %q, want default", u.Name)
	}

	// Second run is a no-op.
	if err := EnsureAdmin(ctx, users, "root@example.com", "Other", zap.NewNop()); err != nil {
		t.Fatalf("second EnsureAdmin() error = %v", err)
	}
}

func TestEnsureAdmin_Promotes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, err := users.Create(ctx, models.User{Email: "doc@example.com", Name: "Doc", Role: models.RoleUser, IdentityProvider: models.IdentityProviderMagic})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := EnsureAdmin(ctx, users, "doc@example.com", "Admin", zap.NewNop()); err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}
	got, err := users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Role != models.RoleAdmin {
		t.Errorf("Role = %q, want ADMIN", got.Role)
	}
	if got.Name != "Doc" {
		t.Errorf("Name = %q, promotion must not rename", got.Name)
	}
}

func TestEnsureAdmin_BlankEmail(t *testing.T) {
	if err := EnsureAdmin(t.Context(), nil, "  ", "x", zap.NewNop()); err != nil {
		t.Errorf("EnsureAdmin(blank) error = %v", err)
	}
}
