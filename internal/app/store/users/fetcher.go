// internal/app/store/users/fetcher.go
package userstore

import (
	"context"
	"errors"

	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/normalize"
	"github.com/dalemusser/stratabook/internal/app/system/timeouts"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Fetcher implements auth.TokenRefresher. Sessions carry the email they were
// issued for; each request re-resolves the user by that email so renamed,
// re-roled or deleted users are reflected without signing in again.
type Fetcher struct {
	users  *mongo.Collection
	logger *zap.Logger
}

// NewFetcher creates a TokenRefresher that queries the given database.
func NewFetcher(db *mongo.Database, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		users:  db.Collection("users"),
		logger: logger,
	}
}

// RefreshUser loads the current identity for email.
// It returns (nil, nil) when the user no longer exists.
func (f *Fetcher) RefreshUser(ctx context.Context, email string) (*auth.SessionUser, error) {
	email = normalize.Email(email)
	if email == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	var u models.User
	proj := options.FindOne().SetProjection(bson.M{
		"_id":      1,
		"name":     1,
		"username": 1,
		"email":    1,
		"role":     1,
	})
	if err := f.users.FindOne(ctx, bson.M{"email": email}, proj).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		f.logger.Warn("session refresh lookup failed", zap.Error(err))
		return nil, err
	}

	return SessionUserFor(&u), nil
}

// SessionUserFor builds the session identity of a stored user.
func SessionUserFor(u *models.User) *auth.SessionUser {
	return &auth.SessionUser{
		ID:       u.ID.Hex(),
		Name:     u.Name,
		Username: u.UsernameOrEmpty(),
		Email:    u.Email,
		Role:     normalize.Role(u.Role),
	}
}
