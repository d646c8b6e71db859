// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/stratabook/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Collections lists every collection the app owns, in creation order.
var Collections = []string{
	"users",
	"accounts",
	"patient_profiles",
	"doctor_profiles",
	"dni_claims",
	"magic_links",
	"oauth_states",
	"audit_logs",
	"rate_limits",
}

// EnsureAll creates the app's collections (if missing) and attaches
// JSON-Schema validators where a schema is defined. Servers that reject
// collMod validators (some DocumentDB versions) are logged and skipped.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	schemas := map[string]bson.M{
		"users":            usersSchema(),
		"accounts":         accountsSchema(),
		"patient_profiles": profileSchema(),
		"doctor_profiles":  profileSchema(),
		"dni_claims":       dniClaimsSchema(),
	}

	var problems []string
	for _, coll := range Collections {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			continue
		}
		schema, ok := schemas[coll]
		if !ok {
			continue
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				continue
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func anyOf(values []string) bson.A {
	out := make(bson.A, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func providerValues() []string {
	out := make([]string, len(models.AllIdentityProviders))
	for i, p := range models.AllIdentityProviders {
		out[i] = p.Value
	}
	return out
}

// usersSchema allows invitation placeholders, which carry no name,
// username or verification time yet.
func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"email", "role", "identity_provider"},
			"properties": bson.M{
				"email":             bson.M{"bsonType": "string", "pattern": "^[^@\\s]+@[^@\\s]+$"},
				"name":              bson.M{"bsonType": "string"},
				"username":          bson.M{"bsonType": "string", "minLength": 1},
				"role":              bson.M{"enum": anyOf(models.AllRoles)},
				"identity_provider": bson.M{"enum": anyOf(providerValues())},
				"email_verified":    bson.M{"bsonType": "date"},
			},
		},
	}
}

func accountsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "type", "provider", "provider_account_id"},
			"properties": bson.M{
				"user_id":             bson.M{"bsonType": "objectId"},
				"type":                bson.M{"bsonType": "string", "minLength": 1},
				"provider":            bson.M{"bsonType": "string", "minLength": 1},
				"provider_account_id": bson.M{"bsonType": "string", "minLength": 1},
			},
		},
	}
}

func profileSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "dni"},
			"properties": bson.M{
				"user_id": bson.M{"bsonType": "objectId"},
				"dni":     bson.M{"bsonType": "string", "minLength": 1},
			},
		},
	}
}

func dniClaimsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "user_id", "kind"},
			"properties": bson.M{
				"_id":     bson.M{"bsonType": "string", "minLength": 1},
				"user_id": bson.M{"bsonType": "objectId"},
				"kind":    bson.M{"enum": bson.A{models.ProfileKindPatient, models.ProfileKindDoctor}},
			},
		},
	}
}
