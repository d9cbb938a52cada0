package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// White-box: the expiry boundary needs a pinned clock, so this test reaches
// into the service's now func.
func TestTokenValidAtExactExpiryInstant(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := issuedAt.Add(2 * time.Hour)

	service := NewTokenService([]byte("test-signing-key"), 2, defLogger{})
	service.now = func() time.Time { return issuedAt }

	token, err := service.Generate(authIdentity{
		id:    "6a46ba29-2fcd-4502-b0a4-6bb45a24a96d",
		email: "test@example.com",
		role:  RoleMember,
	})
	require.NoError(t, err)

	t.Run("Before expiry", func(t *testing.T) {
		service.now = func() time.Time { return expiresAt.Add(-time.Minute) }

		claims, err := service.Validate(token)
		require.NoError(t, err)
		assert.True(t, claims.Expires().Equal(expiresAt))
	})

	t.Run("At exactly the expiry instant", func(t *testing.T) {
		service.now = func() time.Time { return expiresAt }

		_, err := service.Validate(token)
		assert.NoError(t, err)
	})

	t.Run("One second past expiry", func(t *testing.T) {
		service.now = func() time.Time { return expiresAt.Add(time.Second) }

		_, err := service.Validate(token)
		require.Error(t, err)
		assert.True(t, IsTokenExpiredError(err))
	})
}
