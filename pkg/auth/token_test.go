package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercaline/storefront-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "storefront-test",
		ExpirationMinutes: 60,
	}
}

func TestMintAndParseSessionToken(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()

	signed, err := MintSessionToken(cfg, time.Now(), SessionClaims{
		UserID: userID,
		Name:   "Asha Rao",
		Phone:  "+919812345678",
	})
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := ParseSessionToken(cfg, signed)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "Asha Rao", claims.Name)
	assert.Equal(t, "+919812345678", claims.Phone)
	assert.False(t, claims.Admin)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
}

func TestParseSessionTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()

	signed, err := MintSessionToken(cfg, time.Now().Add(-2*time.Hour), SessionClaims{
		UserID: uuid.New(),
		Name:   "Expired",
	})
	require.NoError(t, err)

	_, err = ParseSessionToken(cfg, signed)
	require.Error(t, err)
}

func TestParseSessionTokenRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()

	signed, err := MintSessionToken(cfg, time.Now(), SessionClaims{
		UserID: uuid.New(),
		Name:   "Tampered",
	})
	require.NoError(t, err)

	other := cfg
	other.Secret = "different-secret"
	_, err = ParseSessionToken(other, signed)
	require.Error(t, err)
}

func TestMintSessionTokenRequiresUserID(t *testing.T) {
	_, err := MintSessionToken(testJWTConfig(), time.Now(), SessionClaims{Name: "No ID"})
	require.Error(t, err)
}
