// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Username: the public slug used in booking links, unique when present

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/stratabook/internal/app/system/normalize"
	"github.com/dalemusser/stratabook/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Unique index names. Duplicate-key errors are classified by these.
const (
	IndexEmail    = "uniq_users_email"
	IndexUsername = "uniq_users_username"
	IndexIdentity = "uniq_users_identity"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when another user already owns the email.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrDuplicateUsername is returned when another user already owns the username.
	ErrDuplicateUsername = errors.New("a user with this username already exists")
	// ErrDuplicateIdentity is returned when the provider identity is already linked.
	ErrDuplicateIdentity = errors.New("a user with this identity already exists")
	errBadRole           = errors.New("invalid role")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByIDs returns the users with the given IDs, in no particular order.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByEmail looks up a user by normalized email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalize.Email(email)
	if email == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"email": email})
}

// GetByProvider looks up a user by external identity (GOOGLE, FACEBOOK, ...).
func (s *Store) GetByProvider(ctx context.Context, provider, providerID string) (*models.User, error) {
	if provider == "" || providerID == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{
		"identity_provider":    provider,
		"identity_provider_id": providerID,
	})
}

// GetByUsername looks up a user by username.
func (s *Store) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"username": username})
}

// UsernameExists reports whether a user other than excludeID owns username.
// Pass primitive.NilObjectID to check against every user.
func (s *Store) UsernameExists(ctx context.Context, username string, excludeID primitive.ObjectID) (bool, error) {
	filter := bson.M{"username": username}
	if !excludeID.IsZero() {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	n, err := s.c.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EmailTakenByOther reports whether a user other than excludeID owns email.
func (s *Store) EmailTakenByOther(ctx context.Context, email string, excludeID primitive.ObjectID) (bool, error) {
	filter := bson.M{"email": normalize.Email(email)}
	if !excludeID.IsZero() {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	n, err := s.c.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create inserts a new user after normalizing fields and applying defaults.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.Email = normalize.Email(u.Email)
	u.Name = normalize.Name(u.Name)
	u.NameCI = text.Fold(u.Name)
	u.Role = normalize.Role(u.Role)
	u.ApplyDefaults()

	if !models.IsValidRole(u.Role) {
		return models.User{}, errBadRole
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		return models.User{}, classifyDup(err)
	}
	return u, nil
}

// CreateInvited inserts an invitation placeholder: no password, no verified
// email and no username. The first sign-in with a matching email claims it.
func (s *Store) CreateInvited(ctx context.Context, email, name, role string) (models.User, error) {
	return s.Create(ctx, models.User{
		Email:            email,
		Name:             name,
		Role:             role,
		IdentityProvider: models.IdentityProviderMagic,
	})
}

// UpdateEmail replaces the user's email.
func (s *Store) UpdateEmail(ctx context.Context, id primitive.ObjectID, email string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"email":      normalize.Email(email),
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return classifyDup(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEmailVerified stamps email_verified when it is not set yet.
func (s *Store) MarkEmailVerified(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "email_verified": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"email_verified": at.UTC(), "updated_at": time.Now().UTC()}},
	)
	return err
}

// Claim holds the identity fields written when a sign-in claims an
// invitation placeholder.
type Claim struct {
	Username   string
	Name       string
	Provider   string
	ProviderID string
	VerifiedAt time.Time
}

// ClaimInvited converts an invitation placeholder into a real account.
// The filter re-checks the placeholder shape so two concurrent sign-ins
// cannot both claim it; the loser gets ErrNotFound.
func (s *Store) ClaimInvited(ctx context.Context, id primitive.ObjectID, c Claim) error {
	set := bson.M{
		"username":          c.Username,
		"name":              normalize.Name(c.Name),
		"name_ci":           text.Fold(normalize.Name(c.Name)),
		"identity_provider": c.Provider,
		"email_verified":    c.VerifiedAt.UTC(),
		"updated_at":        time.Now().UTC(),
	}
	if c.ProviderID != "" {
		set["identity_provider_id"] = c.ProviderID
	}
	res, err := s.c.UpdateOne(ctx, placeholder(bson.M{"_id": id}), bson.M{"$set": set})
	if err != nil {
		return classifyDup(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// placeholder narrows filter to users that are still unclaimed invitations.
func placeholder(filter bson.M) bson.M {
	filter["password_hash"] = bson.M{"$exists": false}
	filter["email_verified"] = bson.M{"$exists": false}
	filter["username"] = bson.M{"$exists": false}
	return filter
}

// ListInvited returns the pending invitation placeholders, newest first.
func (s *Store) ListInvited(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, placeholder(bson.M{}), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetInvited loads a pending invitation placeholder.
func (s *Store) GetInvited(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, placeholder(bson.M{"_id": id}))
}

// DeleteInvited revokes a pending invitation. Claimed accounts are never
// touched; ErrNotFound is returned for them.
func (s *Store) DeleteInvited(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, placeholder(bson.M{"_id": id}))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ProfileUpdate is a partial update of the user's own profile.
// Nil fields are left unchanged. A Theme pointing to "" clears the theme.
// Setting Email clears email_verified until the new address is proven.
type ProfileUpdate struct {
	Username             *string
	Name                 *string
	FirstName            *string
	LastName             *string
	Email                *string
	PhoneNumber          *string
	Country              *string
	Bio                  *string
	Avatar               *string
	TimeZone             *string
	WeekStart            *string
	TimeFormat           *int
	Locale               *string
	Theme                *string
	BrandColor           *string
	DarkBrandColor       *string
	HideBranding         *bool
	AllowDynamicBooking  *bool
	DisableImpersonation *bool
	CompletedOnboarding  *bool
}

func (p ProfileUpdate) toUpdate() bson.M {
	set := bson.M{}
	unset := bson.M{}

	str := func(key string, v *string) {
		if v != nil {
			set[key] = *v
		}
	}
	boolean := func(key string, v *bool) {
		if v != nil {
			set[key] = *v
		}
	}

	str("username", p.Username)
	if p.Name != nil {
		name := normalize.Name(*p.Name)
		set["name"] = name
		set["name_ci"] = text.Fold(name)
	}
	str("first_name", p.FirstName)
	str("last_name", p.LastName)
	if p.Email != nil {
		set["email"] = normalize.Email(*p.Email)
		unset["email_verified"] = ""
	}
	str("phone_number", p.PhoneNumber)
	if p.Country != nil {
		set["country"] = normalize.Country(*p.Country)
	}
	str("bio", p.Bio)
	str("avatar", p.Avatar)
	str("time_zone", p.TimeZone)
	str("week_start", p.WeekStart)
	if p.TimeFormat != nil {
		set["time_format"] = *p.TimeFormat
	}
	str("locale", p.Locale)
	if p.Theme != nil {
		if *p.Theme == "" {
			unset["theme"] = ""
		} else {
			set["theme"] = *p.Theme
		}
	}
	str("brand_color", p.BrandColor)
	str("dark_brand_color", p.DarkBrandColor)
	boolean("hide_branding", p.HideBranding)
	boolean("allow_dynamic_booking", p.AllowDynamicBooking)
	boolean("disable_impersonation", p.DisableImpersonation)
	boolean("completed_onboarding", p.CompletedOnboarding)

	set["updated_at"] = time.Now().UTC()
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

// UpdateProfile applies a partial profile update and returns the stored user.
func (s *Store) UpdateProfile(ctx context.Context, id primitive.ObjectID, p ProfileUpdate) (*models.User, error) {
	var u models.User
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, p.toUpdate(),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, classifyDup(err)
	}
	return &u, nil
}

// CompleteOnboarding marks the onboarding wizard as finished.
func (s *Store) CompleteOnboarding(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"completed_onboarding": true,
		"updated_at":           time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRole changes the user's role.
func (s *Store) SetRole(ctx context.Context, id primitive.ObjectID, role string) error {
	role = normalize.Role(role)
	if !models.IsValidRole(role) {
		return errBadRole
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"role":       role,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user by ID.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// classifyDup maps a duplicate-key error to the sentinel for the unique
// index that fired. Other errors pass through unchanged.
func classifyDup(err error) error {
	if err == nil || !wafflemongo.IsDup(err) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, IndexUsername):
		return ErrDuplicateUsername
	case strings.Contains(msg, IndexIdentity):
		return ErrDuplicateIdentity
	default:
		return ErrDuplicateEmail
	}
}

// IsDuplicate reports whether err is any of the uniqueness sentinels.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrDuplicateUsername) ||
		errors.Is(err, ErrDuplicateIdentity)
}
