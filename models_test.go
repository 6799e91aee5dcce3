package guard_test

import (
	"testing"
	"time"

	guard "github.com/quillworks/go-guard"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "ada", guard.NormalizeUsername("  Ada "))
	assert.Equal(t, "ada@example.com", guard.NormalizeUsername("ADA@Example.COM"))
	assert.Equal(t, "", guard.NormalizeUsername("   "))
}

func TestPermissionName(t *testing.T) {
	assert.Equal(t, "READ:REPORT", guard.PermissionName("read", "report"))
	assert.Equal(t, "CREATE:USER", guard.PermissionName("CREATE", "User"))
}

func TestUserTokenActive(t *testing.T) {
	now := time.Now()
	token := &guard.UserToken{
		ExpirationDate: now.Add(time.Hour),
	}

	assert.True(t, token.Active(now))

	t.Run("consumed is terminal", func(t *testing.T) {
		used := *token
		used.Consumed = true
		assert.False(t, used.Active(now))
	})

	t.Run("revoked is terminal", func(t *testing.T) {
		revoked := *token
		revoked.Revoked = true
		assert.False(t, revoked.Active(now))
	})

	t.Run("expiry is derived from the clock", func(t *testing.T) {
		assert.False(t, token.Active(now.Add(2*time.Hour)))
		assert.True(t, token.Active(now.Add(59*time.Minute)))
	})
}
