package emailverify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratabook/internal/testutil"
)

const testExpiry = 10 * time.Hour

func TestStore_CreateAndVerify(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, testExpiry)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	token, err := store.Create(ctx, " Ana@Example.com ", "/event-types")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if token == "" {
		t.Fatal("Create() returned empty token")
	}

	link, err := store.VerifyToken(ctx, token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if link.Email != "ana@example.com" {
		t.Errorf("Email = %q, want normalized", link.Email)
	}
	if link.CallbackURL != "/event-types" {
		t.Errorf("CallbackURL = %q", link.CallbackURL)
	}
	if link.TokenHash == token {
		t.Error("raw token stored instead of its hash")
	}

	if _, err := store.VerifyToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("second VerifyToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestStore_VerifyToken_Invalid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, testExpiry)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for _, tok := range []string{"", "not-a-token"} {
		if _, err := store.VerifyToken(ctx, tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyToken(%q) error = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestStore_Expired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, -time.Minute)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	token, err := store.Create(ctx, "old@example.com", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.VerifyToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyToken(expired) error = %v, want ErrInvalidToken", err)
	}

	n, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
}

func TestStore_VerifyToken_SingleUseUnderConcurrency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, testExpiry)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	token, err := store.Create(ctx, "race@example.com", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.VerifyToken(ctx, token); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("token consumed %d times, want 1", wins)
	}
}

func TestHashToken(t *testing.T) {
	if HashToken("a") == HashToken("b") {
		t.Error("HashToken() collides for different inputs")
	}
	if HashToken("a") != HashToken("a") {
		t.Error("HashToken() is not deterministic")
	}
	if len(HashToken("a")) != 64 {
		t.Errorf("HashToken() length = %d, want 64", len(HashToken("a")))
	}
}
