package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "stratabook"

// Claims is the signed session token stored inside the session cookie.
type Claims struct {
	UserID            string `json:"uid"`
	Name              string `json:"name"`
	Username          string `json:"username,omitempty"`
	Email             string `json:"email"`
	Role              string `json:"role"`
	ImpersonatedByUID string `json:"impersonatedByUID,omitempty"`
	jwt.RegisteredClaims
}

// ErrInvalidToken is returned for tokens that fail signature, algorithm,
// issuer or expiry checks.
var ErrInvalidToken = errors.New("invalid session token")

func claimsFor(u *SessionUser, issuedAt, expires time.Time) Claims {
	return Claims{
		UserID:            u.ID,
		Name:              u.Name,
		Username:          u.Username,
		Email:             u.Email,
		Role:              u.Role,
		ImpersonatedByUID: u.ImpersonatedByUID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
}

func (c *Claims) sessionUser() *SessionUser {
	u := &SessionUser{
		ID:                c.UserID,
		Name:              c.Name,
		Username:          c.Username,
		Email:             c.Email,
		Role:              c.Role,
		ImpersonatedByUID: c.ImpersonatedByUID,
	}
	if c.ExpiresAt != nil {
		u.Expires = c.ExpiresAt.Time
	}
	return u
}

func signToken(key []byte, c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(key)
}

func parseToken(key []byte, raw string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return &c, nil
}
