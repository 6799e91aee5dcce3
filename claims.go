package guard

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents structured JWT claims with permission checking
type AuthClaims interface {
	Subject() string
	TokenID() string
	Issuer() string
	Audience() []string
	HasPermission(resource, action string) bool
	Permissions() map[string][]string
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims. The permission map
// travels in the "perms" claim shaped {resource: [actions...]}, lower cased
// on the wire.
type JWTClaims struct {
	jwt.RegisteredClaims
	Perms map[string][]string `json:"perms,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// TokenID returns the jti claim
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Issuer returns the iss claim
func (c *JWTClaims) Issuer() string {
	return c.RegisteredClaims.Issuer
}

// Audience returns the aud claim
func (c *JWTClaims) Audience() []string {
	return c.RegisteredClaims.Audience
}

// HasPermission checks whether the claims carry action on resource. Names
// are matched case insensitively against the wire representation.
func (c *JWTClaims) HasPermission(resource, action string) bool {
	actions, ok := c.Perms[strings.ToLower(resource)]
	if !ok {
		return false
	}
	action = strings.ToLower(action)
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// Permissions exposes the full permission map for context enrichment.
func (c *JWTClaims) Permissions() map[string][]string {
	return c.Perms
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
