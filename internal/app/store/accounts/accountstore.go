// internal/app/store/accounts/accountstore.go
package accountstore

import (
	"context"
	"time"

	"github.com/dalemusser/stratabook/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to the accounts collection. Each document links a
// user to one (provider, provider_account_id) pair.
type Store struct {
	c *mongo.Collection
}

// New creates a new account store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("accounts")}
}

// Link ensures the provider account is linked to userID. Linking the same
// pair twice is a no-op.
func (s *Store) Link(ctx context.Context, a models.Account) error {
	filter := bson.M{
		"provider":            a.Provider,
		"provider_account_id": a.ProviderAccountID,
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":        primitive.NewObjectID(),
			"user_id":    a.UserID,
			"type":       a.Type,
			"created_at": time.Now().UTC(),
		},
	}
	_, err := s.c.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// ListByUser returns the accounts linked to a user.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Account, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Account
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByUser removes every account linked to a user.
func (s *Store) DeleteByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
