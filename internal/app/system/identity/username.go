package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/dalemusser/stratabook/internal/app/system/slug"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	usernameSuffixLen   = 6
	usernameMaxAttempts = 8
	suffixAlphabet      = "abcdefghijklmnopqrstuvwxyz"
)

// ErrUsernameExhausted is returned when no free username was found.
var ErrUsernameExhausted = errors.New("could not generate a unique username")

// UsernameChecker reports whether a username is owned by a user other than excludeID.
type UsernameChecker interface {
	UsernameExists(ctx context.Context, username string, excludeID primitive.ObjectID) (bool, error)
}

// UsernameBase returns the slug a generated username starts with.
func UsernameBase(name string) string {
	base := slug.Make(name)
	if base == "" {
		base = "user"
	}
	return base
}

// GenerateUsername returns slug(name) followed by a dash and six random
// lowercase letters, retrying while the candidate is taken.
func GenerateUsername(ctx context.Context, users UsernameChecker, name string) (string, error) {
	base := UsernameBase(name)
	for i := 0; i < usernameMaxAttempts; i++ {
		suffix, err := randomSuffix(usernameSuffixLen)
		if err != nil {
			return "", err
		}
		candidate := base + "-" + suffix
		taken, err := users.UsernameExists(ctx, candidate, primitive.NilObjectID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrUsernameExhausted
}

func randomSuffix(n int) (string, error) {
	max := big.NewInt(int64(len(suffixAlphabet)))
	b := make([]byte, n)
	for i := range b {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = suffixAlphabet[k.Int64()]
	}
	return string(b), nil
}
