// internal/domain/models/profile.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Profile kinds. A USER owns a patient profile and an ADMIN a doctor profile.
const (
	ProfileKindPatient = "patient"
	ProfileKindDoctor  = "doctor"
)

// ProfileKindForRole returns the profile kind that belongs to role.
func ProfileKindForRole(role string) string {
	if role == RoleAdmin {
		return ProfileKindDoctor
	}
	return ProfileKindPatient
}

// PatientProfile extends a patient user with identity document data.
type PatientProfile struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	DNI       string             `bson:"dni" json:"DNI"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`
}

// DoctorProfile extends a doctor user with identity document data.
type DoctorProfile struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	DNI       string             `bson:"dni" json:"DNI"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`
}

// DNIClaim reserves a DNI for one user across both profile collections.
type DNIClaim struct {
	DNI       string             `bson:"_id"`
	UserID    primitive.ObjectID `bson:"user_id"`
	Kind      string             `bson:"kind"`
	CreatedAt time.Time          `bson:"created_at"`
}
