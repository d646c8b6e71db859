// internal/domain/models/user.go
package models

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Username: the public, slug-shaped handle used in booking links

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a patient (role USER) or a doctor (role ADMIN).
//
// Identity fields:
//   - Email: lowercase, unique when present
//   - IdentityProvider + IdentityProviderID: the external identity this user
//     signed up with; the pair is unique
//   - EmailVerified: nil until the user proved ownership of Email
//
// A user with no PasswordHash, no EmailVerified and no Username is an
// invitation placeholder that the first matching sign-in claims.
type User struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email  string             `bson:"email" json:"email"`
	Name   string             `bson:"name" json:"name"`
	NameCI string             `bson:"name_ci" json:"-"` // folded for search

	FirstName string  `bson:"first_name,omitempty" json:"firstName,omitempty"`
	LastName  string  `bson:"last_name,omitempty" json:"lastName,omitempty"`
	Username  *string `bson:"username,omitempty" json:"username"`

	Role string `bson:"role" json:"role"` // USER or ADMIN

	// Authentication fields
	IdentityProvider   string     `bson:"identity_provider" json:"identityProvider"`
	IdentityProviderID *string    `bson:"identity_provider_id,omitempty" json:"-"`
	EmailVerified      *time.Time `bson:"email_verified,omitempty" json:"emailVerified"`
	PasswordHash       *string    `bson:"password_hash,omitempty" json:"-"`

	CompletedOnboarding bool `bson:"completed_onboarding" json:"completedOnboarding"`

	// Contact
	PhoneNumber string `bson:"phone_number,omitempty" json:"phoneNumber,omitempty"`
	Country     string `bson:"country,omitempty" json:"country,omitempty"` // ISO 3166 alpha-2, lowercase

	// Public profile and booking page preferences
	Bio                  string  `bson:"bio,omitempty" json:"bio"`
	Avatar               string  `bson:"avatar,omitempty" json:"avatar,omitempty"`
	TimeZone             string  `bson:"time_zone" json:"timeZone"`
	WeekStart            string  `bson:"week_start" json:"weekStart"`
	TimeFormat           int     `bson:"time_format" json:"timeFormat"` // 12 or 24
	Locale               string  `bson:"locale,omitempty" json:"locale,omitempty"`
	Theme                *string `bson:"theme,omitempty" json:"theme"` // nil follows the system theme
	BrandColor           string  `bson:"brand_color" json:"brandColor"`
	DarkBrandColor       string  `bson:"dark_brand_color" json:"darkBrandColor"`
	HideBranding         bool    `bson:"hide_branding" json:"hideBranding"`
	AllowDynamicBooking  bool    `bson:"allow_dynamic_booking" json:"allowDynamicBooking"`
	DisableImpersonation bool    `bson:"disable_impersonation" json:"disableImpersonation"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Roles
const (
	RoleUser  = "USER"  // patient
	RoleAdmin = "ADMIN" // doctor
)

// AllRoles lists every valid role value.
var AllRoles = []string{RoleUser, RoleAdmin}

// IsValidRole reports whether role is a known role.
func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Booking page defaults applied to newly created users.
const (
	DefaultTimeZone       = "America/Lima"
	DefaultWeekStart      = "Sunday"
	DefaultTimeFormat     = 12
	DefaultBrandColor     = "#292929"
	DefaultDarkBrandColor = "#fafafa"
)

// ApplyDefaults fills empty booking preferences with their defaults.
func (u *User) ApplyDefaults() {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.TimeZone == "" {
		u.TimeZone = DefaultTimeZone
	}
	if u.WeekStart == "" {
		u.WeekStart = DefaultWeekStart
	}
	if u.TimeFormat == 0 {
		u.TimeFormat = DefaultTimeFormat
	}
	if u.BrandColor == "" {
		u.BrandColor = DefaultBrandColor
	}
	if u.DarkBrandColor == "" {
		u.DarkBrandColor = DefaultDarkBrandColor
	}
}

// IsInvitedPlaceholder reports whether the user was created by an invitation
// and never signed in.
func (u *User) IsInvitedPlaceholder() bool {
	return u.PasswordHash == nil && u.EmailVerified == nil && (u.Username == nil || *u.Username == "")
}

// UsernameOrEmpty returns the username, or "" when unset.
func (u *User) UsernameOrEmpty() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

// IsAdmin reports whether the user is a doctor.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
