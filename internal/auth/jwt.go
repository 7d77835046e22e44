package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/marketchat/internal/proto"
)

// ErrNotJWT is returned for tokens that are not three-part JWTs. Such tokens are
// still usable as opaque bearer tokens.
var ErrNotJWT = errors.New("token is not a JWT")

// Claims is the payload of an access token issued by the marketplace backend.
type Claims struct {
	UserID    proto.ID `json:"user_id"`
	Username  string   `json:"username,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims decodes the token payload without verifying the signature.
// The client never holds the signing key; the server remains the authority.
func ParseClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
		}
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// Expired reports whether the token has an expiry that lies before now.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// ExpiresIn returns the time left until expiry, or 0 without an exp claim.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}
