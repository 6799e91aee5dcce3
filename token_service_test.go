package guard_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	guard "github.com/quillworks/go-guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

func newTokenService() *guard.TokenServiceImpl {
	return guard.NewTokenService(testSigningKey, nil)
}

func TestTokenService_EncodeDecodeRoundTrip(t *testing.T) {
	service := newTokenService()

	now := time.Now().Truncate(time.Second)
	exp := now.Add(24 * time.Hour)

	data := guard.TokenData{
		Subject:    "ada",
		Issuer:     "guard",
		Audience:   []string{"api", "web"},
		IssuedAt:   &now,
		Expiration: &exp,
		Permissions: map[string][]string{
			"REPORT": {"READ", "VIEW"},
		},
	}

	signed, err := service.Encode(data)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	decoded, err := service.Decode(signed)
	require.NoError(t, err)

	assert.Equal(t, "ada", decoded.Subject)
	assert.Equal(t, "guard", decoded.Issuer)
	assert.Equal(t, []string{"api", "web"}, decoded.Audience)
	require.NotNil(t, decoded.IssuedAt)
	assert.True(t, decoded.IssuedAt.Equal(now))
	require.NotNil(t, decoded.Expiration)
	assert.True(t, decoded.Expiration.Equal(exp))
	// wire representation is lower cased
	assert.Equal(t, map[string][]string{"report": {"read", "view"}}, decoded.Permissions)
	assert.NotEmpty(t, decoded.ID, "a token id is always assigned")
}

func TestTokenService_EncodeOmitsAbsentOptionals(t *testing.T) {
	service := newTokenService()

	signed, err := service.Encode(guard.TokenData{Subject: "ada"})
	require.NoError(t, err)

	decoded, err := service.Decode(signed)
	require.NoError(t, err)

	assert.Equal(t, "ada", decoded.Subject)
	assert.Empty(t, decoded.Issuer)
	assert.Empty(t, decoded.Audience)
	assert.Nil(t, decoded.IssuedAt)
	assert.Nil(t, decoded.NotBefore)
	assert.Nil(t, decoded.Expiration)
	assert.Empty(t, decoded.Permissions)
}

func TestTokenService_EncodeRequiresSubject(t *testing.T) {
	service := newTokenService()
	_, err := service.Encode(guard.TokenData{})
	assert.Error(t, err)
}

func TestTokenService_DecodeDoesNotEnforceExpiry(t *testing.T) {
	service := newTokenService()

	past := time.Now().Add(-2 * time.Hour)
	signed, err := service.Encode(guard.TokenData{Subject: "ada", Expiration: &past})
	require.NoError(t, err)

	// expiry surfaces as data from Decode
	decoded, err := service.Decode(signed)
	require.NoError(t, err)
	require.NotNil(t, decoded.Expiration)
	assert.True(t, decoded.Expiration.Before(time.Now()))

	// but Validate rejects it
	_, err = service.Validate(signed)
	assert.Equal(t, guard.ErrTokenExpired, err)
}

func TestTokenService_ValidateGoodToken(t *testing.T) {
	service := newTokenService()

	exp := time.Now().Add(time.Hour)
	signed, err := service.Encode(guard.TokenData{
		Subject:     "ada",
		Expiration:  &exp,
		Permissions: map[string][]string{"report": {"read"}},
	})
	require.NoError(t, err)

	claims, err := service.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "ada", claims.Subject())
	assert.True(t, claims.HasPermission("report", "read"))
	assert.False(t, claims.HasPermission("report", "delete"))
}

func TestTokenService_ValidateRejectsTampering(t *testing.T) {
	service := newTokenService()

	exp := time.Now().Add(time.Hour)
	signed, err := service.Encode(guard.TokenData{Subject: "ada", Expiration: &exp})
	require.NoError(t, err)

	t.Run("garbage input", func(t *testing.T) {
		_, err := service.Validate("not.a.jwt")
		assert.True(t, guard.IsMalformedError(err))
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := guard.NewTokenService([]byte("other-key"), nil)
		_, err := other.Validate(signed)
		assert.Error(t, err)
	})

	t.Run("modified payload", func(t *testing.T) {
		parts := strings.Split(signed, ".")
		require.Len(t, parts, 3)
		tampered := parts[0] + ".eyJzdWIiOiJldmUifQ." + parts[2]
		_, err := service.Validate(tampered)
		assert.Error(t, err)
	})

	t.Run("unexpected signing algorithm", func(t *testing.T) {
		none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "eve"})
		raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = service.Validate(raw)
		assert.Error(t, err)
	})
}

func TestTokenService_HasExpired(t *testing.T) {
	service := newTokenService()

	t.Run("unparseable token counts as expired", func(t *testing.T) {
		assert.True(t, service.HasExpired("garbage"))
	})

	t.Run("token without exp never expires", func(t *testing.T) {
		signed, err := service.Encode(guard.TokenData{Subject: "ada"})
		require.NoError(t, err)
		assert.False(t, service.HasExpired(signed))
	})

	t.Run("future exp is not expired", func(t *testing.T) {
		exp := time.Now().Add(time.Hour)
		signed, err := service.Encode(guard.TokenData{Subject: "ada", Expiration: &exp})
		require.NoError(t, err)
		assert.False(t, service.HasExpired(signed))
	})

	t.Run("past exp is expired", func(t *testing.T) {
		exp := time.Now().Add(-time.Minute)
		signed, err := service.Encode(guard.TokenData{Subject: "ada", Expiration: &exp})
		require.NoError(t, err)
		assert.True(t, service.HasExpired(signed))
	})
}

func TestTokenService_SignClaimsAssignsTokenID(t *testing.T) {
	service := newTokenService()

	claims := &guard.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ada"},
	}

	signed, err := service.SignClaims(claims)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.TokenID())

	decoded, err := service.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, claims.TokenID(), decoded.ID)
}
