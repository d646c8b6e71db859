// internal/domain/models/account.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Account links a user to an external provider identity.
type Account struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID `bson:"user_id" json:"userId"`
	Type              string             `bson:"type" json:"type"`         // oauth
	Provider          string             `bson:"provider" json:"provider"` // google, facebook
	ProviderAccountID string             `bson:"provider_account_id" json:"providerAccountId"`
	CreatedAt         time.Time          `bson:"created_at" json:"createdAt"`
}
