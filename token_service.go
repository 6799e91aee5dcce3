package guard

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenData is the transient payload a token is minted from. Subject is the
// only required field; absent optional fields are omitted from the signed
// payload rather than encoded as null.
type TokenData struct {
	ID          string
	Subject     string
	Issuer      string
	Audience    []string
	IssuedAt    *time.Time
	NotBefore   *time.Time
	Expiration  *time.Time
	Permissions map[string][]string
}

// TokenService encodes, decodes and validates signed tokens. Stateless and
// safe for concurrent use.
type TokenService interface {
	Encode(data TokenData) (string, error)
	Decode(tokenString string) (TokenData, error)
	Validate(tokenString string) (AuthClaims, error)
	HasExpired(tokenString string) bool
}

// TokenServiceImpl implements the TokenService interface with a process wide
// HMAC secret.
type TokenServiceImpl struct {
	signingKey []byte
	logger     Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		logger:     logger,
	}
}

var _ TokenService = (*TokenServiceImpl)(nil)

// Encode signs the token data with HS256. Permission names are lower cased
// for the wire representation.
func (ts *TokenServiceImpl) Encode(data TokenData) (string, error) {
	if data.Subject == "" {
		return "", goerrors.New("token subject is required", goerrors.CategoryValidation)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:      data.ID,
			Subject: data.Subject,
			Issuer:  data.Issuer,
		},
		Perms: lowerPermissions(data.Permissions),
	}

	if len(data.Audience) > 0 {
		aud := make(jwt.ClaimStrings, len(data.Audience))
		copy(aud, data.Audience)
		claims.RegisteredClaims.Audience = aud
	}
	if data.IssuedAt != nil {
		claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(*data.IssuedAt)
	}
	if data.NotBefore != nil {
		claims.RegisteredClaims.NotBefore = jwt.NewNumericDate(*data.NotBefore)
	}
	if data.Expiration != nil {
		claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(*data.Expiration)
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Decode verifies the signature and reconstructs TokenData from the payload.
// Expiration is surfaced as data, never as a decode failure; use HasExpired
// or Validate for expiry enforcement.
func (ts *TokenServiceImpl) Decode(tokenString string) (TokenData, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, ts.keyFunc,
		jwt.WithoutClaimsValidation())

	if err != nil {
		return TokenData{}, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		ts.logger.Error("TokenService decode could not map claims")
		return TokenData{}, ErrUnableToMapClaims
	}

	data := TokenData{
		ID:          claims.RegisteredClaims.ID,
		Subject:     claims.RegisteredClaims.Subject,
		Issuer:      claims.RegisteredClaims.Issuer,
		Audience:    claims.RegisteredClaims.Audience,
		Permissions: claims.Perms,
	}
	if claims.RegisteredClaims.IssuedAt != nil {
		t := claims.RegisteredClaims.IssuedAt.Time
		data.IssuedAt = &t
	}
	if claims.RegisteredClaims.NotBefore != nil {
		t := claims.RegisteredClaims.NotBefore.Time
		data.NotBefore = &t
	}
	if claims.RegisteredClaims.ExpiresAt != nil {
		t := claims.RegisteredClaims.ExpiresAt.Time
		data.Expiration = &t
	}

	return data, nil
}

// Validate parses and fully validates a token string, returning structured
// claims. Expired or tampered tokens fail here.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, ts.keyFunc)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, ErrUnableToMapClaims
}

// HasExpired reports whether the token should be treated as expired. Any
// parse or signature failure counts as expired; a token with no expiration
// claim never expires.
func (ts *TokenServiceImpl) HasExpired(tokenString string) bool {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, ts.keyFunc,
		jwt.WithoutClaimsValidation())
	if err != nil {
		return true
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return true
	}

	if claims.RegisteredClaims.ExpiresAt == nil {
		return false
	}

	return time.Now().After(claims.RegisteredClaims.ExpiresAt.Time)
}

func (ts *TokenServiceImpl) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		ts.logger.Error("TokenService encountered unexpected signing method: %v", t.Header["alg"])
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return ts.signingKey, nil
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}

func lowerPermissions(perms map[string][]string) map[string][]string {
	if len(perms) == 0 {
		return nil
	}
	out := make(map[string][]string, len(perms))
	for resource, actions := range perms {
		lowered := make([]string, 0, len(actions))
		for _, a := range actions {
			lowered = append(lowered, strings.ToLower(a))
		}
		out[strings.ToLower(resource)] = lowered
	}
	return out
}
