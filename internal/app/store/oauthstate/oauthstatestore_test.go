package oauthstate

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/stratabook/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestStore_CreateAndVerify(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	state, err := store.Create(ctx, "google", "/getting-started")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Verify(ctx, "google", state)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.CallbackURL != "/getting-started" {
		t.Errorf("CallbackURL = %q", got.CallbackURL)
	}

	if _, err := store.Verify(ctx, "google", state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Verify(reused) error = %v, want ErrInvalidState", err)
	}
}

func TestStore_Verify_WrongProvider(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	state, err := store.Create(ctx, "google", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Verify(ctx, "facebook", state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Verify(wrong provider) error = %v, want ErrInvalidState", err)
	}
	if _, err := store.Verify(ctx, "google", ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Verify(empty) error = %v, want ErrInvalidState", err)
	}
}

func TestStore_ExpiredState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	state, err := store.Create(ctx, "google", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err = db.Collection("oauth_states").UpdateOne(ctx,
		bson.M{"state": state},
		bson.M{"$set": bson.M{"expires_at": time.Now().Add(-time.Minute)}})
	if err != nil {
		t.Fatalf("UpdateOne() error = %v", err)
	}

	if _, err := store.Verify(ctx, "google", state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Verify(expired) error = %v, want ErrInvalidState", err)
	}
	n, err := store.DeleteExpired(ctx)
	if err != nil || n != 1 {
		t.Errorf("DeleteExpired() = %d, %v; want 1", n, err)
	}
}
