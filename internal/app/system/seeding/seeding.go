// internal/app/system/seeding/seeding.go
package seeding

import (
	"context"
	"errors"

	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/normalize"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Users is the storage the admin seed needs.
type Users interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
	SetRole(ctx context.Context, id primitive.ObjectID, role string) error
}

// EnsureAdmin makes sure an ADMIN exists for email. An existing user is
// promoted; otherwise a magic-link user is created who signs in through the
// emailed link. A blank email is a no-op.
func EnsureAdmin(ctx context.Context, users Users, email, name string, logger *zap.Logger) error {
	email = normalize.Email(email)
	if email == "" {
		return nil
	}
	if name == "" {
		name = "Admin"
	}

	existing, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			logger.Debug("admin user already configured", zap.String("email", email))
			return nil
		}
		if err := users.SetRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return err
		}
		logger.Info("promoted existing user to admin",
			zap.String("email", email),
			zap.String("user_id", existing.ID.Hex()),
			zap.String("previous_role", existing.Role))
		return nil
	case !errors.Is(err, userstore.ErrNotFound):
		return err
	}

	created, err := users.Create(ctx, models.User{
		Email:            email,
		Name:             name,
		Role:             models.RoleAdmin,
		IdentityProvider: models.IdentityProviderMagic,
	})
	if err != nil {
		return err
	}
	logger.Info("created admin user",
		zap.String("email", email),
		zap.String("user_id", created.ID.Hex()))
	return nil
}
