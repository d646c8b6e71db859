package identity

import (
	"github.com/dalemusser/stratabook/internal/app/system/normalize"
	"github.com/dalemusser/stratabook/internal/domain/models"
)

// Provider ids as they appear in routes and Account records.
const (
	ProviderEmail    = "email"
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// AccountTypeOAuth is the Account type for external OAuth providers.
const AccountTypeOAuth = "oauth"

// AccountTypeEmail is the Account type for magic-link sign-ins.
const AccountTypeEmail = "email"

var providerTags = map[string]string{
	ProviderGoogle:   models.IdentityProviderGoogle,
	ProviderFacebook: models.IdentityProviderFacebook,
}

// ProviderFor maps an OAuth provider id to the stored identity provider tag.
// Unknown providers report ok=false and must be refused.
func ProviderFor(provider string) (tag string, ok bool) {
	tag, ok = providerTags[normalize.Provider(provider)]
	return tag, ok
}
