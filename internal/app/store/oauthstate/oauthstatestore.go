// internal/app/store/oauthstate/oauthstatestore.go
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// TTL is how long a sign-in attempt may take between redirecting to the
// provider and returning to the callback.
const TTL = 10 * time.Minute

// ErrInvalidState is returned for unknown, reused, expired or mismatched states.
var ErrInvalidState = errors.New("invalid oauth state")

// State represents an OAuth state token record.
type State struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	State       string             `bson:"state"`
	Provider    string             `bson:"provider"`
	CallbackURL string             `bson:"callback_url,omitempty"`
	ExpiresAt   time.Time          `bson:"expires_at"`
	CreatedAt   time.Time          `bson:"created_at"`
}

// Store provides access to the oauth_states collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new OAuth state store.
func New(db *mongo.Database) *Store {
	return &Store{
		c: db.Collection("oauth_states"),
	}
}

// Create stores a fresh state for provider and returns the random token to
// send as the OAuth state parameter.
func (s *Store) Create(ctx context.Context, provider, callbackURL string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	now := time.Now()
	doc := State{
		ID:          primitive.NewObjectID(),
		State:       token,
		Provider:    provider,
		CallbackURL: callbackURL,
		ExpiresAt:   now.Add(TTL),
		CreatedAt:   now,
	}
	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return token, nil
}

// Verify consumes a state issued for provider (single use) and returns it.
func (s *Store) Verify(ctx context.Context, provider, state string) (*State, error) {
	if state == "" {
		return nil, ErrInvalidState
	}
	filter := bson.M{
		"state":      state,
		"provider":   provider,
		"expires_at": bson.M{"$gt": time.Now()},
	}

	var st State
	if err := s.c.FindOneAndDelete(ctx, filter).Decode(&st); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidState
		}
		return nil, err
	}
	return &st, nil
}

// DeleteExpired removes expired states and returns how many.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": time.Now()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
