package jwtauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestry/pkg/domain"
)

func TestIssueAndValidate(t *testing.T) {
	v := NewValidator("test-signing-key")
	identity := domain.Identity{0x01, 0x02}

	token, err := v.Issue(identity, time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, identity.String(), claims.Subject)
}

func TestValidateRejects(t *testing.T) {
	v := NewValidator("test-signing-key")
	identity := domain.Identity{0x01}

	t.Run("wrong signing key", func(t *testing.T) {
		other := NewValidator("another-key")
		token, err := other.Issue(identity, time.Hour)
		require.NoError(t, err)

		_, err = v.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := v.Issue(identity, -time.Minute)
		require.NoError(t, err)

		_, err = v.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.ValidateToken("not.a.token")
		assert.Error(t, err)
	})
}
