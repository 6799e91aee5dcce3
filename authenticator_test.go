package guard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	guard "github.com/quillworks/go-guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testConfig struct{}

func (testConfig) GetSigningKey() string                 { return string(testSigningKey) }
func (testConfig) GetTokenExpiration() int               { return 24 }
func (testConfig) GetIssuer() string                     { return "guard-test" }
func (testConfig) GetAudience() []string                 { return []string{"api"} }
func (testConfig) GetTokenValidity(string) time.Duration { return time.Hour }

func adaIdentity() mockIdentity {
	return mockIdentity{id: "id-1", username: "ada", email: "ada@example.com"}
}

func TestAuther_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success mints a decodable token and emits one event", func(t *testing.T) {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", ctx, "ada", "secret").Return(adaIdentity(), nil)

		loader := &MockPermissionLoader{}
		loader.On("PermissionsForUser", ctx, "ada").
			Return(map[string][]string{"REPORT": {"READ"}}, nil)

		sink := &recordingSink{}
		auther := guard.NewAuthenticator(provider, loader, testConfig{}).
			WithActivitySink(sink)

		result, err := auther.Login(ctx, "ada", "secret")
		require.NoError(t, err)
		require.True(t, result.Logged)
		require.NotEmpty(t, result.Token)

		session, err := auther.SessionFromToken(result.Token)
		require.NoError(t, err)
		assert.Equal(t, "ada", session.GetUsername())
		assert.Equal(t, "guard-test", session.GetIssuer())
		assert.Equal(t, []string{"api"}, session.GetAudience())
		// permissions travel lower cased on the wire
		assert.Equal(t, map[string][]string{"report": {"read"}}, session.GetPermissions())

		require.Len(t, sink.Events(), 1)
		assert.Len(t, sink.ByType(guard.ActivityEventLoginSuccess), 1)
	})

	t.Run("credential rejection is not an error", func(t *testing.T) {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", ctx, "ada", "wrong").
			Return(nil, guard.ErrMismatchedHashAndPassword)

		sink := &recordingSink{}
		auther := guard.NewAuthenticator(provider, &MockPermissionLoader{}, testConfig{}).
			WithActivitySink(sink)

		result, err := auther.Login(ctx, "ada", "wrong")
		require.NoError(t, err)
		assert.False(t, result.Logged)
		assert.Empty(t, result.Token)

		failures := sink.ByType(guard.ActivityEventLoginFailure)
		require.Len(t, failures, 1)
		assert.Equal(t, "ada", failures[0].Username)
		assert.False(t, failures[0].Success)
	})

	t.Run("blocked accounts are also a quiet rejection", func(t *testing.T) {
		for _, domainErr := range []error{
			guard.ErrUserDisabled,
			guard.ErrUserLocked,
			guard.ErrUserExpired,
			guard.ErrPasswordExpired,
			guard.ErrTooManyLoginAttempts,
		} {
			provider := &MockIdentityProvider{}
			provider.On("VerifyIdentity", ctx, "ada", "secret").Return(nil, domainErr)

			sink := &recordingSink{}
			auther := guard.NewAuthenticator(provider, &MockPermissionLoader{}, testConfig{}).
				WithActivitySink(sink)

			result, err := auther.Login(ctx, "ada", "secret")
			require.NoError(t, err)
			assert.False(t, result.Logged)
			assert.Len(t, sink.ByType(guard.ActivityEventLoginFailure), 1)
		}
	})

	t.Run("infrastructure faults propagate", func(t *testing.T) {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", ctx, "ada", "secret").
			Return(nil, errors.New("db gone"))

		sink := &recordingSink{}
		auther := guard.NewAuthenticator(provider, &MockPermissionLoader{}, testConfig{}).
			WithActivitySink(sink)

		_, err := auther.Login(ctx, "ada", "secret")
		require.Error(t, err)
		assert.Empty(t, sink.Events())
	})

	t.Run("nil identity without error is treated as not logged", func(t *testing.T) {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", ctx, "ada", "secret").Return(nil, nil)

		sink := &recordingSink{}
		auther := guard.NewAuthenticator(provider, &MockPermissionLoader{}, testConfig{}).
			WithActivitySink(sink)

		result, err := auther.Login(ctx, "ada", "secret")
		require.NoError(t, err)
		assert.False(t, result.Logged)
		assert.Len(t, sink.ByType(guard.ActivityEventLoginFailure), 1)
	})

	t.Run("permission loader faults propagate", func(t *testing.T) {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", ctx, "ada", "secret").Return(adaIdentity(), nil)

		loader := &MockPermissionLoader{}
		loader.On("PermissionsForUser", ctx, "ada").Return(nil, errors.New("db gone"))

		auther := guard.NewAuthenticator(provider, loader, testConfig{})

		_, err := auther.Login(ctx, "ada", "secret")
		require.Error(t, err)
	})

	t.Run("identifier is trimmed and lower cased", func(t *testing.T) {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", ctx, "ada", "secret").Return(adaIdentity(), nil)

		loader := &MockPermissionLoader{}
		loader.On("PermissionsForUser", ctx, "ada").Return(map[string][]string{}, nil)

		auther := guard.NewAuthenticator(provider, loader, testConfig{})

		result, err := auther.Login(ctx, "  ADA  ", "secret")
		require.NoError(t, err)
		assert.True(t, result.Logged)
		provider.AssertExpectations(t)
	})
}

func TestAuther_WithLoggerKeepsCustomTokenService(t *testing.T) {
	custom := guard.NewTokenService([]byte("another-signing-key"), nil)

	auther := guard.NewAuthenticator(&MockIdentityProvider{}, &MockPermissionLoader{}, testConfig{}).
		WithTokenService(custom).
		WithLogger(noopLogger{})
	assert.Same(t, custom, auther.TokenService())

	// without an injected service the logger change rebuilds the default
	auther = guard.NewAuthenticator(&MockIdentityProvider{}, &MockPermissionLoader{}, testConfig{}).
		WithLogger(noopLogger{})
	assert.NotSame(t, custom, auther.TokenService())
}

func TestAuther_EmailResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("email identifiers resolve to the canonical username", func(t *testing.T) {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", ctx, "ada", "secret").Return(adaIdentity(), nil)

		loader := &MockPermissionLoader{}
		loader.On("PermissionsForUser", ctx, "ada").Return(map[string][]string{}, nil)

		auther := guard.NewAuthenticator(provider, loader, testConfig{}).
			WithEmailResolver(func(_ context.Context, email string) (string, error) {
				assert.Equal(t, "ada@example.com", email)
				return "Ada", nil
			})

		result, err := auther.Login(ctx, "ada@example.com", "secret")
		require.NoError(t, err)
		assert.True(t, result.Logged)
		provider.AssertExpectations(t)
	})

	t.Run("unknown email falls back to the raw identifier", func(t *testing.T) {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", ctx, "ghost@example.com", "secret").
			Return(nil, guard.ErrMismatchedHashAndPassword)

		auther := guard.NewAuthenticator(provider, &MockPermissionLoader{}, testConfig{}).
			WithEmailResolver(func(context.Context, string) (string, error) {
				return "", guard.ErrUserNotFound
			})

		result, err := auther.Login(ctx, "ghost@example.com", "secret")
		require.NoError(t, err)
		assert.False(t, result.Logged)
		provider.AssertExpectations(t)
	})

	t.Run("resolver infrastructure faults propagate", func(t *testing.T) {
		provider := &MockIdentityProvider{}

		auther := guard.NewAuthenticator(provider, &MockPermissionLoader{}, testConfig{}).
			WithEmailResolver(func(context.Context, string) (string, error) {
				return "", errors.New("directory down")
			})

		_, err := auther.Login(ctx, "ada@example.com", "secret")
		require.Error(t, err)
		provider.AssertNotCalled(t, "VerifyIdentity", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAuther_SessionFromToken(t *testing.T) {
	provider := &MockIdentityProvider{}
	auther := guard.NewAuthenticator(provider, &MockPermissionLoader{}, testConfig{})

	t.Run("garbage tokens are rejected", func(t *testing.T) {
		_, err := auther.SessionFromToken("not-a-token")
		require.Error(t, err)
		assert.True(t, guard.IsMalformedError(err))
	})

	t.Run("expired tokens are rejected", func(t *testing.T) {
		now := time.Now()
		past := now.Add(-time.Hour)
		signed, err := auther.TokenService().Encode(guard.TokenData{
			Subject:    "ada",
			IssuedAt:   &now,
			Expiration: &past,
		})
		require.NoError(t, err)

		_, err = auther.SessionFromToken(signed)
		assert.True(t, guard.IsTokenExpiredError(err))
	})
}
