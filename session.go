package guard

import (
	"time"
)

var _ Session = &SessionObject{}

// SessionObject is the decoded, transport independent view of a token.
type SessionObject struct {
	Username       string              `json:"username,omitempty"`
	Audience       []string            `json:"audience,omitempty"`
	Issuer         string              `json:"issuer,omitempty"`
	IssuedAt       *time.Time          `json:"issued_at,omitempty"`
	ExpirationDate *time.Time          `json:"expiration_date,omitempty"`
	Perms          map[string][]string `json:"permissions,omitempty"`
}

func (s *SessionObject) GetUsername() string {
	return s.Username
}

func (s *SessionObject) GetAudience() []string {
	return s.Audience
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetPermissions() map[string][]string {
	return s.Perms
}

func sessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToMapClaims
	}

	session := &SessionObject{
		Username: claims.Subject(),
		Audience: claims.Audience(),
		Issuer:   claims.Issuer(),
		Perms:    claims.Permissions(),
	}

	if issued := claims.IssuedAt(); !issued.IsZero() {
		session.IssuedAt = &issued
	}
	if expires := claims.Expires(); !expires.IsZero() {
		session.ExpirationDate = &expires
	}

	return session, nil
}
