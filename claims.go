package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims is the read side of a session token's claims.
type AuthClaims interface {
	Subject() string
	UserID() string
	Email() string
	Role() string
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims. The claim set is
// deliberately closed: sub, email, role, iat, exp, jti and nothing else.
type JWTClaims struct {
	jwt.RegisteredClaims
	UserEmail string `json:"email,omitempty"`
	UserRole  string `json:"role,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID, which is carried in the subject claim
func (c *JWTClaims) UserID() string {
	return c.Subject()
}

// Email returns the email claim
func (c *JWTClaims) Email() string {
	return c.UserEmail
}

// Role returns the role claim
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
