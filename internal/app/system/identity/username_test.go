package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type takenAll struct{}

func (takenAll) UsernameExists(context.Context, string, primitive.ObjectID) (bool, error) {
	return true, nil
}

type failing struct{}

func (failing) UsernameExists(context.Context, string, primitive.ObjectID) (bool, error) {
	return false, errors.New("db down")
}

func TestGenerateUsername(t *testing.T) {
	dir := newMemDirectory()
	got, err := GenerateUsername(context.Background(), dir, "José Ñúñez")
	if err != nil {
		t.Fatalf("GenerateUsername() error = %v", err)
	}
	if !strings.HasPrefix(got, "jose-nunez-") || !usernameRe.MatchString(got) {
		t.Errorf("GenerateUsername() = %q", got)
	}
}

func TestGenerateUsername_Exhausted(t *testing.T) {
	if _, err := GenerateUsername(context.Background(), takenAll{}, "Ana"); !errors.Is(err, ErrUsernameExhausted) {
		t.Errorf("error = %v, want ErrUsernameExhausted", err)
	}
	if _, err := GenerateUsername(context.Background(), failing{}, "Ana"); err == nil {
		t.Error("storage error not returned")
	}
}

func TestUsernameBase(t *testing.T) {
	if got := UsernameBase("!!!"); got != "user" {
		t.Errorf("UsernameBase(!!!) = %q, want user", got)
	}
	if got := UsernameBase("Dr. House"); got != "dr.-house" {
		t.Errorf("UsernameBase(Dr. House) = %q", got)
	}
}

func TestSafeRedirect(t *testing.T) {
	const base = "https://app.example.com"
	tests := []struct {
		target string
		want   string
	}{
		{"/event-types", base + "/event-types"},
		{"/getting-started?x=1", base + "/getting-started?x=1"},
		{"https://app.example.com/bookings", "https://app.example.com/bookings"},
		{"https://evil.example.com/", base},
		{"http://app.example.com/bookings", base},
		{"//evil.example.com", base},
		{"/\\evil.example.com", base},
		{"javascript:alert(1)", base},
		{"", base},
		{"relative/path", base},
	}
	for _, tt := range tests {
		if got := SafeRedirect(base, tt.target); got != tt.want {
			t.Errorf("SafeRedirect(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}
