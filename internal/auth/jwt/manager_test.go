package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager("test-secret-at-least-32-characters-long", "chainmail-test", 15*time.Minute, 7*24*time.Hour)
}

func TestManager_GenerateTokenPair(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.GenerateTokenPair("op-1", "admin", "super")
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, int64(15*60), pair.ExpiresIn)
}

func TestManager_ValidateToken(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.GenerateTokenPair("op-1", "admin", "super")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(pair.AccessToken)
	require.NoError(t, err)

	assert.Equal(t, "op-1", claims.OperatorID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "super", claims.Role)
	assert.Equal(t, "chainmail-test", claims.Issuer)
}

func TestManager_ValidateToken_Invalid(t *testing.T) {
	manager := newTestManager()

	_, err := manager.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = manager.ValidateToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_ValidateToken_WrongSecret(t *testing.T) {
	manager := newTestManager()
	other := NewManager("another-secret-also-32-characters-long!", "chainmail-test", 15*time.Minute, time.Hour)

	pair, err := manager.GenerateTokenPair("op-1", "admin", "operator")
	require.NoError(t, err)

	_, err = other.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_ValidateToken_Expired(t *testing.T) {
	manager := NewManager("test-secret-at-least-32-characters-long", "chainmail-test", time.Millisecond, time.Hour)

	pair, err := manager.GenerateTokenPair("op-1", "admin", "operator")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = manager.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestManager_RefreshAccessToken(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.GenerateTokenPair("op-1", "admin", "operator")
	require.NoError(t, err)

	accessToken, err := manager.RefreshAccessToken(pair.RefreshToken)
	require.NoError(t, err)

	claims, err := manager.ValidateToken(accessToken)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID)
}

func TestManager_RefreshAccessToken_Invalid(t *testing.T) {
	manager := newTestManager()

	_, err := manager.RefreshAccessToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
