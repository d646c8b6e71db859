// internal/domain/models/identityproviders.go
package models

import "strings"

// Identity providers a user can be registered with.
const (
	IdentityProviderLocal    = "LOCAL"
	IdentityProviderGoogle   = "GOOGLE"
	IdentityProviderFacebook = "FACEBOOK"
	IdentityProviderMagic    = "MAGIC"
)

// IdentityProviderInfo pairs a stored provider value with its display label.
type IdentityProviderInfo struct {
	Value string
	Label string
}

// AllIdentityProviders contains every supported identity provider.
var AllIdentityProviders = []IdentityProviderInfo{
	{Value: IdentityProviderLocal, Label: "Local"},
	{Value: IdentityProviderGoogle, Label: "Google"},
	{Value: IdentityProviderFacebook, Label: "Facebook"},
	{Value: IdentityProviderMagic, Label: "Magic"},
}

// IdentityProviderLabel returns the display label for a provider value,
// or the value itself when unknown. Matching ignores case, so the lower-case
// provider ids stored on accounts resolve too.
func IdentityProviderLabel(value string) string {
	for _, p := range AllIdentityProviders {
		if strings.EqualFold(p.Value, value) {
			return p.Label
		}
	}
	return value
}

// IsEmailProven reports whether users of this provider proved their email
// through the application itself rather than through a third party.
func IsEmailProven(provider string) bool {
	return provider == IdentityProviderLocal || provider == IdentityProviderMagic
}
