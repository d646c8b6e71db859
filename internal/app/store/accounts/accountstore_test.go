package accountstore

import (
	"testing"

	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/dalemusser/stratabook/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_LinkIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	acct := models.Account{UserID: userID, Type: "oauth", Provider: "google", ProviderAccountID: "g-1"}

	for i := 0; i < 2; i++ {
		if err := store.Link(ctx, acct); err != nil {
			t.Fatalf("Link() #%d error = %v", i, err)
		}
	}

	list, err := store.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListByUser() len = %d, want 1", len(list))
	}
	if list[0].Provider != "google" || list[0].ProviderAccountID != "g-1" || list[0].Type != "oauth" {
		t.Errorf("account = %+v", list[0])
	}

	if list, _ := store.ListByUser(ctx, primitive.NewObjectID()); len(list) != 0 {
		t.Errorf("ListByUser(unknown) len = %d, want 0", len(list))
	}
}

func TestStore_DeleteByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	other := primitive.NewObjectID()
	_ = store.Link(ctx, models.Account{UserID: userID, Type: "oauth", Provider: "google", ProviderAccountID: "g-1"})
	_ = store.Link(ctx, models.Account{UserID: userID, Type: "oauth", Provider: "facebook", ProviderAccountID: "f-1"})
	_ = store.Link(ctx, models.Account{UserID: other, Type: "oauth", Provider: "google", ProviderAccountID: "g-2"})

	n, err := store.DeleteByUser(ctx, userID)
	if err != nil {
		t.Fatalf("DeleteByUser() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteByUser() deleted %d, want 2", n)
	}
	if list, _ := store.ListByUser(ctx, other); len(list) != 1 {
		t.Error("DeleteByUser() removed another user's account")
	}
}
