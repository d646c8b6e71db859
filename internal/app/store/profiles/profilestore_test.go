package profilestore

import (
	"errors"
	"sync"
	"testing"

	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/dalemusser/stratabook/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestStore_DNIAvailable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ok, err := store.DNIAvailable(ctx, "12345678")
	if err != nil || !ok {
		t.Fatalf("DNIAvailable(empty db) = %v, %v; want true", ok, err)
	}

	if err := store.SaveDNI(ctx, primitive.NewObjectID(), models.ProfileKindPatient, "12345678"); err != nil {
		t.Fatalf("SaveDNI(patient) error = %v", err)
	}
	if err := store.SaveDNI(ctx, primitive.NewObjectID(), models.ProfileKindDoctor, "87654321"); err != nil {
		t.Fatalf("SaveDNI(doctor) error = %v", err)
	}

	tests := []struct {
		dni  string
		want bool
	}{
		{"12345678", false},
		{" 87654321 ", false},
		{"11111111", true},
	}
	for _, tt := range tests {
		ok, err := store.DNIAvailable(ctx, tt.dni)
		if err != nil {
			t.Fatalf("DNIAvailable(%q) error = %v", tt.dni, err)
		}
		if ok != tt.want {
			t.Errorf("DNIAvailable(%q) = %v, want %v", tt.dni, ok, tt.want)
		}
	}
}

func TestStore_SaveDNI_CrossCollectionUniqueness(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	patient := primitive.NewObjectID()
	doctor := primitive.NewObjectID()

	if err := store.SaveDNI(ctx, patient, models.ProfileKindPatient, "12345678"); err != nil {
		t.Fatalf("SaveDNI() error = %v", err)
	}
	err := store.SaveDNI(ctx, doctor, models.ProfileKindDoctor, "12345678")
	if !errors.Is(err, ErrDNITaken) {
		t.Fatalf("SaveDNI(doctor, same dni) error = %v, want ErrDNITaken", err)
	}

	// Saving the same DNI again for its owner is allowed.
	if err := store.SaveDNI(ctx, patient, models.ProfileKindPatient, "12345678"); err != nil {
		t.Errorf("SaveDNI(owner again) error = %v", err)
	}
}

func TestStore_SaveDNI_ReplacesPreviousClaim(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := primitive.NewObjectID()
	if err := store.SaveDNI(ctx, user, models.ProfileKindPatient, "12345678"); err != nil {
		t.Fatalf("SaveDNI() error = %v", err)
	}
	if err := store.SaveDNI(ctx, user, models.ProfileKindPatient, "22222222"); err != nil {
		t.Fatalf("SaveDNI(new dni) error = %v", err)
	}

	got, err := store.GetDNI(ctx, user, models.ProfileKindPatient)
	if err != nil || got != "22222222" {
		t.Errorf("GetDNI() = %q, %v; want 22222222", got, err)
	}
	if ok, _ := store.DNIAvailable(ctx, "12345678"); !ok {
		t.Error("old DNI still unavailable after replacement")
	}
	if err := store.SaveDNI(ctx, primitive.NewObjectID(), models.ProfileKindDoctor, "12345678"); err != nil {
		t.Errorf("old DNI claim was not released: %v", err)
	}
}

func TestStore_SaveDNI_Concurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := models.ProfileKindPatient
			if i%2 == 1 {
				kind = models.ProfileKindDoctor
			}
			errs[i] = store.SaveDNI(ctx, primitive.NewObjectID(), kind, "33333333")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("%d concurrent SaveDNI calls succeeded, want exactly 1 (errors: %v)", ok, errs)
	}
}

func TestStore_DeleteByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := primitive.NewObjectID()
	if err := store.SaveDNI(ctx, user, models.ProfileKindDoctor, "44444444"); err != nil {
		t.Fatalf("SaveDNI() error = %v", err)
	}
	if err := store.DeleteByUser(ctx, user); err != nil {
		t.Fatalf("DeleteByUser() error = %v", err)
	}
	if got, _ := store.GetDNI(ctx, user, models.ProfileKindDoctor); got != "" {
		t.Errorf("GetDNI() after delete = %q, want empty", got)
	}
	if ok, _ := store.DNIAvailable(ctx, "44444444"); !ok {
		t.Error("DNI still unavailable after DeleteByUser")
	}
}
