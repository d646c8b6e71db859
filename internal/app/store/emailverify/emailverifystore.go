// internal/app/store/emailverify/emailverifystore.go
package emailverify

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/dalemusser/stratabook/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrInvalidToken is returned for unknown, used or expired magic link tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Link is a one-time sign-in link sent by email. Only the SHA-256 of the
// token is stored; the raw token exists in the email alone.
type Link struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Email       string             `bson:"email"`
	TokenHash   string             `bson:"token_hash"`
	CallbackURL string             `bson:"callback_url,omitempty"`
	ExpiresAt   time.Time          `bson:"expires_at"`
	CreatedAt   time.Time          `bson:"created_at"`
}

// Store provides access to the magic_links collection.
type Store struct {
	c      *mongo.Collection
	expiry time.Duration
}

// New creates a new magic link store. Links expire after expiry.
func New(db *mongo.Database, expiry time.Duration) *Store {
	return &Store{
		c:      db.Collection("magic_links"),
		expiry: expiry,
	}
}

// Expiry returns how long new links stay valid.
func (s *Store) Expiry() time.Duration {
	return s.expiry
}

// Create stores a new link for email and returns the raw token to embed in
// the emailed URL.
func (s *Store) Create(ctx context.Context, email, callbackURL string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	l := Link{
		ID:          primitive.NewObjectID(),
		Email:       normalize.Email(email),
		TokenHash:   HashToken(token),
		CallbackURL: callbackURL,
		ExpiresAt:   now.Add(s.expiry),
		CreatedAt:   now,
	}
	if _, err := s.c.InsertOne(ctx, l); err != nil {
		return "", err
	}
	return token, nil
}

// VerifyToken consumes a token and returns its link. A token can be
// consumed once; concurrent verifications see at most one success.
func (s *Store) VerifyToken(ctx context.Context, token string) (*Link, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	var l Link
	filter := bson.M{
		"token_hash": HashToken(token),
		"expires_at": bson.M{"$gt": time.Now()},
	}
	if err := s.c.FindOneAndDelete(ctx, filter).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &l, nil
}

// DeleteExpired removes links past their expiry and returns how many.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": time.Now()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// HashToken returns the stored form of a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateToken generates a random URL-safe token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
