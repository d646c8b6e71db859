package userstore

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/dalemusser/stratabook/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{
		Email:              "  Ana@Example.COM ",
		Name:               "Ana   Pérez",
		Role:               "admin",
		IdentityProvider:   models.IdentityProviderGoogle,
		IdentityProviderID: strPtr("g-1"),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if created.ID.IsZero() {
		t.Error("Create() did not assign ID")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}
	if created.Email != "ana@example.com" {
		t.Errorf("Email = %q, want normalized", created.Email)
	}
	if created.Name != "Ana Pérez" {
		t.Errorf("Name = %q, want collapsed whitespace", created.Name)
	}
	if created.NameCI == "" {
		t.Error("Create() did not set NameCI")
	}
	if created.Role != models.RoleAdmin {
		t.Errorf("Role = %q, want %q", created.Role, models.RoleAdmin)
	}
	if created.TimeZone != models.DefaultTimeZone || created.TimeFormat != models.DefaultTimeFormat {
		t.Error("Create() did not apply booking defaults")
	}
}

func TestStore_Create_InvalidRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Create(ctx, models.User{Email: "a@example.com", Name: "Someone", Role: "owner"})
	if err == nil {
		t.Error("Create() with invalid role should return error")
	}
}

func TestStore_Create_Duplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Create(ctx, models.User{
		Email:              "first@example.com",
		Name:               "First User",
		Username:           strPtr("first-user"),
		IdentityProvider:   models.IdentityProviderGoogle,
		IdentityProviderID: strPtr("g-1"),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name string
		user models.User
		want error
	}{
		{
			name: "same email",
			user: models.User{Email: "FIRST@example.com", Name: "Other"},
			want: ErrDuplicateEmail,
		},
		{
			name: "same username",
			user: models.User{Email: "second@example.com", Name: "Other", Username: strPtr("first-user")},
			want: ErrDuplicateUsername,
		},
		{
			name: "same identity",
			user: models.User{
				Email:              "third@example.com",
				Name:               "Other",
				IdentityProvider:   models.IdentityProviderGoogle,
				IdentityProviderID: strPtr("g-1"),
			},
			want: ErrDuplicateIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(ctx, tt.user)
			if !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
			if !IsDuplicate(err) {
				t.Errorf("IsDuplicate(%v) = false", err)
			}
		})
	}
}

func TestStore_Lookups(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{
		Email:              "lookup@example.com",
		Name:               "Lookup User",
		Username:           strPtr("lookup-user"),
		IdentityProvider:   models.IdentityProviderFacebook,
		IdentityProviderID: strPtr("fb-9"),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if u, err := store.GetByID(ctx, created.ID); err != nil || u.Email != "lookup@example.com" {
		t.Errorf("GetByID() = %v, %v", u, err)
	}
	if u, err := store.GetByEmail(ctx, " LOOKUP@example.com"); err != nil || u.ID != created.ID {
		t.Errorf("GetByEmail() = %v, %v", u, err)
	}
	if u, err := store.GetByProvider(ctx, models.IdentityProviderFacebook, "fb-9"); err != nil || u.ID != created.ID {
		t.Errorf("GetByProvider() = %v, %v", u, err)
	}
	if u, err := store.GetByUsername(ctx, "lookup-user"); err != nil || u.ID != created.ID {
		t.Errorf("GetByUsername() = %v, %v", u, err)
	}

	if _, err := store.GetByID(ctx, primitive.NewObjectID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetByProvider(ctx, models.IdentityProviderGoogle, "fb-9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByProvider(other provider) error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetByEmail(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByEmail(\"\") error = %v, want ErrNotFound", err)
	}
}

func TestStore_UsernameExists(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{Email: "u@example.com", Name: "User One", Username: strPtr("taken")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if ok, err := store.UsernameExists(ctx, "taken", primitive.NilObjectID); err != nil || !ok {
		t.Errorf("UsernameExists(taken) = %v, %v; want true", ok, err)
	}
	if ok, err := store.UsernameExists(ctx, "taken", created.ID); err != nil || ok {
		t.Errorf("UsernameExists(taken, self) = %v, %v; want false", ok, err)
	}
	if ok, err := store.UsernameExists(ctx, "free", primitive.NilObjectID); err != nil || ok {
		t.Errorf("UsernameExists(free) = %v, %v; want false", ok, err)
	}
}

func TestStore_ClaimInvited(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	invited, err := store.CreateInvited(ctx, "guest@example.com", "", models.RoleUser)
	if err != nil {
		t.Fatalf("CreateInvited() error = %v", err)
	}
	if !invited.IsInvitedPlaceholder() {
		t.Fatal("CreateInvited() did not create a placeholder")
	}

	now := time.Now()
	claim := Claim{
		Username:   "guest-abcdef",
		Name:       "Guest User",
		Provider:   models.IdentityProviderGoogle,
		ProviderID: "g-42",
		VerifiedAt: now,
	}
	if err := store.ClaimInvited(ctx, invited.ID, claim); err != nil {
		t.Fatalf("ClaimInvited() error = %v", err)
	}

	got, err := store.GetByID(ctx, invited.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.UsernameOrEmpty() != "guest-abcdef" || got.EmailVerified == nil || got.IdentityProvider != models.IdentityProviderGoogle {
		t.Errorf("claimed user = %+v", got)
	}
	if got.IsInvitedPlaceholder() {
		t.Error("claimed user is still a placeholder")
	}

	claim.Username = "guest-zzzzzz"
	if err := store.ClaimInvited(ctx, invited.ID, claim); !errors.Is(err, ErrNotFound) {
		t.Errorf("second ClaimInvited() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Invitations(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	first, err := store.CreateInvited(ctx, "first@example.com", "First", models.RoleUser)
	if err != nil {
		t.Fatalf("CreateInvited() error = %v", err)
	}
	second, err := store.CreateInvited(ctx, "second@example.com", "", models.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateInvited() error = %v", err)
	}
	if _, err := store.Create(ctx, models.User{Email: "real@example.com", Name: "Real", Username: strPtr("real"), Role: models.RoleUser}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	pending, err := store.ListInvited(ctx)
	if err != nil {
		t.Fatalf("ListInvited() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("ListInvited() = %d users, want 2", len(pending))
	}

	if _, err := store.GetInvited(ctx, first.ID); err != nil {
		t.Errorf("GetInvited() error = %v", err)
	}

	if err := store.ClaimInvited(ctx, second.ID, Claim{Username: "second", Name: "Second", Provider: models.IdentityProviderMagic, VerifiedAt: time.Now()}); err != nil {
		t.Fatalf("ClaimInvited() error = %v", err)
	}
	if err := store.DeleteInvited(ctx, second.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteInvited(claimed) error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetInvited(ctx, second.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetInvited(claimed) error = %v, want ErrNotFound", err)
	}

	if err := store.DeleteInvited(ctx, first.ID); err != nil {
		t.Fatalf("DeleteInvited() error = %v", err)
	}
	if _, err := store.GetByID(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoked invitation still present: %v", err)
	}
}

func TestStore_UpdateProfile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{Email: "p@example.com", Name: "Profile User", Theme: strPtr("dark")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	format := 24
	hide := true
	updated, err := store.UpdateProfile(ctx, created.ID, ProfileUpdate{
		Name:         strPtr("  New   Name "),
		TimeFormat:   &format,
		Theme:        strPtr(""),
		HideBranding: &hide,
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.Name != "New Name" {
		t.Errorf("Name = %q, want %q", updated.Name, "New Name")
	}
	if updated.TimeFormat != 24 {
		t.Errorf("TimeFormat = %d, want 24", updated.TimeFormat)
	}
	if updated.Theme != nil {
		t.Errorf("Theme = %q, want cleared", *updated.Theme)
	}
	if !updated.HideBranding {
		t.Error("HideBranding not set")
	}
	if updated.Email != "p@example.com" {
		t.Error("UpdateProfile() touched a nil field")
	}

	if _, err := store.UpdateProfile(ctx, primitive.NewObjectID(), ProfileUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateProfile(missing) error = %v, want ErrNotFound", err)
	}
}

func TestProfileUpdate_EmailClearsVerification(t *testing.T) {
	upd := ProfileUpdate{Email: strPtr(" New@Example.com ")}.toUpdate()

	set, _ := upd["$set"].(bson.M)
	if set["email"] != "new@example.com" {
		t.Errorf("$set.email = %v", set["email"])
	}
	unset, _ := upd["$unset"].(bson.M)
	if _, ok := unset["email_verified"]; !ok {
		t.Errorf("update %v does not unset email_verified", upd)
	}

	upd = ProfileUpdate{Name: strPtr("Ana Torres")}.toUpdate()
	if _, ok := upd["$unset"]; ok {
		t.Errorf("update without email unsets fields: %v", upd)
	}
}

func TestStore_UpdateProfile_EmailChange(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	created, err := store.Create(ctx, models.User{
		Email: "old@example.com", Name: "Magic User",
		IdentityProvider: models.IdentityProviderMagic, EmailVerified: &now,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := store.UpdateProfile(ctx, created.ID, ProfileUpdate{Email: strPtr("new@example.com")})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.Email != "new@example.com" {
		t.Errorf("Email = %q", updated.Email)
	}
	if updated.EmailVerified != nil {
		t.Error("EmailVerified kept after the email changed")
	}
}

func TestStore_EmailAndOnboarding(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, err := store.Create(ctx, models.User{Email: "a@example.com", Name: "User A"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Create(ctx, models.User{Email: "b@example.com", Name: "User B"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if taken, _ := store.EmailTakenByOther(ctx, "b@example.com", a.ID); !taken {
		t.Error("EmailTakenByOther(b) = false, want true")
	}
	if err := store.UpdateEmail(ctx, a.ID, "b@example.com"); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("UpdateEmail(dup) error = %v, want ErrDuplicateEmail", err)
	}
	if err := store.UpdateEmail(ctx, a.ID, "A2@example.com"); err != nil {
		t.Fatalf("UpdateEmail() error = %v", err)
	}
	if err := store.MarkEmailVerified(ctx, a.ID, time.Now()); err != nil {
		t.Fatalf("MarkEmailVerified() error = %v", err)
	}
	if err := store.CompleteOnboarding(ctx, a.ID); err != nil {
		t.Fatalf("CompleteOnboarding() error = %v", err)
	}

	got, _ := store.GetByID(ctx, a.ID)
	if got.Email != "a2@example.com" || got.EmailVerified == nil || !got.CompletedOnboarding {
		t.Errorf("user = %+v", got)
	}

	if err := store.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(again) error = %v, want ErrNotFound", err)
	}
}

func TestFetcher_RefreshUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{
		Email:    "doc@example.com",
		Name:     "Doctor Who",
		Username: strPtr("doctor-who"),
		Role:     models.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	f := NewFetcher(db, zap.NewNop())
	su, err := f.RefreshUser(ctx, "DOC@example.com")
	if err != nil {
		t.Fatalf("RefreshUser() error = %v", err)
	}
	if su == nil || su.ID != created.ID.Hex() || su.Username != "doctor-who" || su.Role != models.RoleAdmin {
		t.Errorf("RefreshUser() = %+v", su)
	}

	su, err = f.RefreshUser(ctx, "nobody@example.com")
	if err != nil || su != nil {
		t.Errorf("RefreshUser(missing) = %+v, %v; want nil, nil", su, err)
	}
}

func TestStore_SetRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, err := store.Create(ctx, models.User{Email: "r@example.com", Name: "R", Role: models.RoleUser, IdentityProvider: models.IdentityProviderMagic})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.SetRole(ctx, u.ID, "admin"); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	got, err := store.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Role != models.RoleAdmin {
		t.Errorf("Role = %q, want %q", got.Role, models.RoleAdmin)
	}
	if err := store.SetRole(ctx, u.ID, "root"); err == nil {
		t.Error("SetRole(root) should fail")
	}
	if err := store.SetRole(ctx, primitive.NewObjectID(), models.RoleUser); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetRole(missing) error = %v, want ErrNotFound", err)
	}
}
