package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService("test-secret", "autoscaler", time.Hour)

	token, err := svc.GenerateToken("ops-alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-alice", claims.Operator)
	assert.Equal(t, "autoscaler", claims.Issuer)
	assert.Equal(t, "ops-alice", claims.Subject)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := NewService("secret-a", "autoscaler", time.Hour).GenerateToken("ops-alice")
	require.NoError(t, err)

	_, err = NewService("secret-b", "autoscaler", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := NewService("test-secret", "autoscaler", time.Hour)

	_, err := svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := NewService("test-secret", "autoscaler", -time.Minute)

	token, err := svc.GenerateToken("ops-alice")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
