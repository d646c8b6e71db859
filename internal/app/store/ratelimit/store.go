// internal/app/store/ratelimit/store.go
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Attempt counts requests for one key inside the current window.
type Attempt struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Key         string             `bson:"key"`          // normalized key, e.g. an email
	Count       int                `bson:"count"`        // requests in the current window
	WindowStart time.Time          `bson:"window_start"` // when the current window started
	LockedUntil *time.Time         `bson:"locked_until"` // lockout expiry, nil when not locked
	LastAttempt time.Time          `bson:"last_attempt"` // drives TTL cleanup
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

// Store limits how often an action may be repeated for the same key.
// Storage errors fail open.
type Store struct {
	c           *mongo.Collection
	maxAttempts int
	window      time.Duration
	lockout     time.Duration
	now         func() time.Time
}

// New creates a Store allowing maxAttempts per window, then locking the key
// for lockout.
func New(db *mongo.Database, maxAttempts int, window, lockout time.Duration) *Store {
	return &Store{
		c:           db.Collection("rate_limits"),
		maxAttempts: maxAttempts,
		window:      window,
		lockout:     lockout,
		now:         time.Now,
	}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (s *Store) get(ctx context.Context, key string) (*Attempt, error) {
	var a Attempt
	err := s.c.FindOne(ctx, bson.M{"key": key}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CheckAllowed reports whether key may act now. When it may not,
// lockedUntil says when it can try again (nil if unknown).
func (s *Store) CheckAllowed(ctx context.Context, key string) (allowed bool, lockedUntil *time.Time) {
	a, err := s.get(ctx, normalizeKey(key))
	if err != nil || a == nil {
		return true, nil
	}
	now := s.now()
	if a.LockedUntil != nil && now.Before(*a.LockedUntil) {
		return false, a.LockedUntil
	}
	if now.After(a.WindowStart.Add(s.window)) {
		return true, nil
	}
	if a.Count >= s.maxAttempts {
		return false, nil
	}
	return true, nil
}

// Record counts one request for key and locks the key once the limit is
// reached.
func (s *Store) Record(ctx context.Context, key string) (lockedOut bool, lockedUntil *time.Time) {
	key = normalizeKey(key)
	now := s.now()

	a, err := s.get(ctx, key)
	if err != nil {
		return false, nil
	}
	if a == nil {
		a = &Attempt{ID: primitive.NewObjectID(), Key: key, WindowStart: now, CreatedAt: now}
	}
	if now.After(a.WindowStart.Add(s.window)) {
		a.Count = 0
		a.WindowStart = now
		a.LockedUntil = nil
	}
	a.Count++
	a.LastAttempt = now
	a.UpdatedAt = now
	if a.Count >= s.maxAttempts {
		until := now.Add(s.lockout)
		a.LockedUntil = &until
		lockedOut, lockedUntil = true, &until
	}

	_, _ = s.c.UpdateOne(ctx,
		bson.M{"_id": a.ID},
		bson.M{
			"$set": bson.M{
				"key":          a.Key,
				"count":        a.Count,
				"window_start": a.WindowStart,
				"locked_until": a.LockedUntil,
				"last_attempt": a.LastAttempt,
				"updated_at":   a.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": a.CreatedAt},
		},
		upsert,
	)
	return lockedOut, lockedUntil
}

// Clear forgets key, e.g. after the link it asked for was used.
func (s *Store) Clear(ctx context.Context, key string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"key": normalizeKey(key)})
	return err
}

// Get returns the record for key, or nil when there is none.
func (s *Store) Get(ctx context.Context, key string) (*Attempt, error) {
	return s.get(ctx, normalizeKey(key))
}

var upsert = options.Update().SetUpsert(true)
