// internal/app/store/profiles/profilestore.go
package profilestore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratabook/internal/app/system/normalize"
	"github.com/dalemusser/stratabook/internal/app/system/txn"
	"github.com/dalemusser/stratabook/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrDNITaken is returned when the DNI is registered to another user.
var ErrDNITaken = errors.New("dni already registered")

// Store provides access to patient_profiles, doctor_profiles and the
// dni_claims collection that keeps a DNI unique across both.
type Store struct {
	db       *mongo.Database
	patients *mongo.Collection
	doctors  *mongo.Collection
	claims   *mongo.Collection
	log      *zap.Logger
}

// New creates a new profile store.
func New(db *mongo.Database, log *zap.Logger) *Store {
	return &Store{
		db:       db,
		patients: db.Collection("patient_profiles"),
		doctors:  db.Collection("doctor_profiles"),
		claims:   db.Collection("dni_claims"),
		log:      log,
	}
}

func (s *Store) collection(kind string) *mongo.Collection {
	if kind == models.ProfileKindDoctor {
		return s.doctors
	}
	return s.patients
}

func otherKind(kind string) string {
	if kind == models.ProfileKindDoctor {
		return models.ProfileKindPatient
	}
	return models.ProfileKindDoctor
}

// DNIAvailable reports whether no patient or doctor profile holds dni.
// Both collections are queried concurrently.
func (s *Store) DNIAvailable(ctx context.Context, dni string) (bool, error) {
	dni = normalize.DNI(dni)
	var inPatients, inDoctors bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inPatients, err = exists(gctx, s.patients, bson.M{"dni": dni})
		return err
	})
	g.Go(func() error {
		var err error
		inDoctors, err = exists(gctx, s.doctors, bson.M{"dni": dni})
		return err
	})
	if err := g.Wait(); err != nil {
		return false, err
	}
	return !inPatients && !inDoctors, nil
}

func exists(ctx context.Context, c *mongo.Collection, filter bson.M) (bool, error) {
	err := c.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetDNI returns the DNI stored on the user's profile of the given kind,
// or "" when the user has no such profile.
func (s *Store) GetDNI(ctx context.Context, userID primitive.ObjectID, kind string) (string, error) {
	var p models.PatientProfile
	err := s.collection(kind).FindOne(ctx, bson.M{"user_id": userID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return p.DNI, nil
}

// SaveDNI records dni on the user's profile of the given kind, creating the
// profile when missing. The claim, the profile write and the release of any
// previous claim run in one transaction, so a DNI already claimed by another
// user fails with ErrDNITaken no matter how the requests interleave.
func (s *Store) SaveDNI(ctx context.Context, userID primitive.ObjectID, kind, dni string) error {
	dni = normalize.DNI(dni)
	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		return s.saveDNI(ctx, userID, kind, dni)
	})
}

func (s *Store) saveDNI(ctx context.Context, userID primitive.ObjectID, kind, dni string) error {
	now := time.Now().UTC()

	var claim models.DNIClaim
	err := s.claims.FindOne(ctx, bson.M{"_id": dni}).Decode(&claim)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		claim = models.DNIClaim{DNI: dni, UserID: userID, Kind: kind, CreatedAt: now}
		if _, err := s.claims.InsertOne(ctx, claim); err != nil {
			if wafflemongo.IsDup(err) {
				return ErrDNITaken
			}
			return err
		}
	case err != nil:
		return err
	case claim.UserID != userID:
		return ErrDNITaken
	case claim.Kind != kind:
		if _, err := s.claims.UpdateOne(ctx, bson.M{"_id": dni}, bson.M{"$set": bson.M{"kind": kind}}); err != nil {
			return err
		}
	}

	_, err = s.collection(kind).UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set":         bson.M{"dni": dni, "updated_at": now},
			"$setOnInsert": bson.M{"_id": primitive.NewObjectID(), "created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDNITaken
		}
		return err
	}

	if _, err := s.claims.DeleteMany(ctx, bson.M{"user_id": userID, "_id": bson.M{"$ne": dni}}); err != nil {
		return err
	}
	_, err = s.collection(otherKind(kind)).DeleteOne(ctx, bson.M{"user_id": userID})
	return err
}

// DeleteByUser removes the user's profiles and DNI claims. Run it inside
// txn.Run together with the user deletion.
func (s *Store) DeleteByUser(ctx context.Context, userID primitive.ObjectID) error {
	if _, err := s.patients.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return err
	}
	if _, err := s.doctors.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return err
	}
	_, err := s.claims.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}
