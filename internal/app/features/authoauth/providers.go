package authoauth

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dalemusser/stratabook/internal/app/system/identity"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
)

// Provider is one OAuth identity provider.
type Provider struct {
	ID         string
	OAuth      *oauth2.Config
	ProfileURL string
	// decode turns the profile response into the asserted identity and the
	// provider's account id.
	decode func(body io.Reader) (identity.Profile, string, error)
}

func callbackURL(baseURL, provider string) string {
	return baseURL + "/auth/callback/" + provider
}

// GoogleProvider configures Google sign-in from a client id and secret.
func GoogleProvider(clientID, clientSecret, baseURL string) *Provider {
	return &Provider{
		ID: identity.ProviderGoogle,
		OAuth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL(baseURL, identity.ProviderGoogle),
			Scopes:       googleScopes,
			Endpoint:     google.Endpoint,
		},
		ProfileURL: "https://www.googleapis.com/oauth2/v3/userinfo",
		decode:     decodeGoogle,
	}
}

var googleScopes = []string{"openid", "email", "profile"}

type googleCredentials struct {
	Web *struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// GoogleProviderFromJSON configures Google sign-in from a client credentials
// document ({"web":{"client_id":…,"client_secret":…}}).
func GoogleProviderFromJSON(credentials []byte, baseURL string) (*Provider, error) {
	var c googleCredentials
	if err := json.Unmarshal(credentials, &c); err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	if c.Web == nil || c.Web.ClientID == "" || c.Web.ClientSecret == "" {
		return nil, fmt.Errorf("google credentials need web.client_id and web.client_secret")
	}
	return GoogleProvider(c.Web.ClientID, c.Web.ClientSecret, baseURL), nil
}

// FacebookProvider configures Facebook sign-in.
func FacebookProvider(clientID, clientSecret, baseURL string) *Provider {
	return &Provider{
		ID: identity.ProviderFacebook,
		OAuth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL(baseURL, identity.ProviderFacebook),
			Scopes:       []string{"email", "public_profile"},
			Endpoint:     facebook.Endpoint,
		},
		ProfileURL: "https://graph.facebook.com/me?fields=id,name,email,picture",
		decode:     decodeFacebook,
	}
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func decodeGoogle(body io.Reader) (identity.Profile, string, error) {
	var u googleUserInfo
	if err := json.NewDecoder(body).Decode(&u); err != nil {
		return identity.Profile{}, "", err
	}
	if u.Sub == "" {
		return identity.Profile{}, "", fmt.Errorf("google profile has no subject")
	}
	return identity.Profile{
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		Image:         u.Picture,
	}, u.Sub, nil
}

type facebookUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// Facebook does not report whether the email was verified; the
// reconciliation only requires the flag for Google.
func decodeFacebook(body io.Reader) (identity.Profile, string, error) {
	var u facebookUser
	if err := json.NewDecoder(body).Decode(&u); err != nil {
		return identity.Profile{}, "", err
	}
	if u.ID == "" {
		return identity.Profile{}, "", fmt.Errorf("facebook profile has no id")
	}
	return identity.Profile{
		Email: u.Email,
		Name:  u.Name,
		Image: u.Picture.Data.URL,
	}, u.ID, nil
}
