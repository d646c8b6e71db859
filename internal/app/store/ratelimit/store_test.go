package ratelimit

import (
	"testing"
	"time"

	"github.com/dalemusser/stratabook/internal/testutil"
)

func newStore(t *testing.T, max int) *Store {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return New(db, max, 15*time.Minute, 30*time.Minute)
}

func TestStore_CheckAllowed_NoRecord(t *testing.T) {
	store := newStore(t, 3)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	allowed, lockedUntil := store.CheckAllowed(ctx, "new@example.com")
	if !allowed {
		t.Error("CheckAllowed() should allow a key with no record")
	}
	if lockedUntil != nil {
		t.Error("lockedUntil should be nil")
	}
}

func TestStore_Record_LocksAtLimit(t *testing.T) {
	store := newStore(t, 3)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 2; i++ {
		if locked, _ := store.Record(ctx, "a@example.com"); locked {
			t.Fatalf("Record() #%d locked too early", i+1)
		}
	}
	if allowed, _ := store.CheckAllowed(ctx, "a@example.com"); !allowed {
		t.Fatal("CheckAllowed() should allow below the limit")
	}

	locked, until := store.Record(ctx, "a@example.com")
	if !locked || until == nil {
		t.Fatal("Record() should lock at the limit")
	}
	allowed, lockedUntil := store.CheckAllowed(ctx, "a@example.com")
	if allowed {
		t.Error("CheckAllowed() should deny a locked key")
	}
	if lockedUntil == nil || !lockedUntil.After(time.Now()) {
		t.Errorf("lockedUntil = %v, want a future time", lockedUntil)
	}
}

func TestStore_CaseInsensitive(t *testing.T) {
	store := newStore(t, 1)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store.Record(ctx, "Mixed@Example.com ")
	if allowed, _ := store.CheckAllowed(ctx, "mixed@example.com"); allowed {
		t.Error("keys should be compared case-insensitively")
	}
}

func TestStore_Clear(t *testing.T) {
	store := newStore(t, 1)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store.Record(ctx, "c@example.com")
	if err := store.Clear(ctx, "c@example.com"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if allowed, _ := store.CheckAllowed(ctx, "c@example.com"); !allowed {
		t.Error("CheckAllowed() should allow after Clear()")
	}
	a, err := store.Get(ctx, "c@example.com")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if a != nil {
		t.Error("Get() should return nil after Clear()")
	}
}

func TestStore_WindowExpiry_ResetsCounter(t *testing.T) {
	store := newStore(t, 2)
	store.lockout = 0
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Now()
	store.now = func() time.Time { return base }
	store.Record(ctx, "w@example.com")
	store.Record(ctx, "w@example.com")
	if allowed, _ := store.CheckAllowed(ctx, "w@example.com"); allowed {
		t.Fatal("CheckAllowed() should deny inside the window")
	}

	store.now = func() time.Time { return base.Add(16 * time.Minute) }
	if allowed, _ := store.CheckAllowed(ctx, "w@example.com"); !allowed {
		t.Fatal("CheckAllowed() should allow after the window")
	}
	store.Record(ctx, "w@example.com")
	a, err := store.Get(ctx, "w@example.com")
	if err != nil || a == nil {
		t.Fatalf("Get() = %v, %v", a, err)
	}
	if a.Count != 1 {
		t.Errorf("Count = %d, want 1", a.Count)
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := normalizeKey("  USER@Example.COM "); got != "user@example.com" {
		t.Errorf("normalizeKey() = %q", got)
	}
}
