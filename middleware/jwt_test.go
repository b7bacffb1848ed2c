package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	tok, issued, err := GenerateToken(12, "ash", "s3cret", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)

	claims, err := ParseToken(tok, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, int64(12), claims.ClientID)
	assert.Equal(t, "ash", claims.Username)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, "pokemcp", claims.Issuer)
}

func TestGenerateToken_UniqueSessions(t *testing.T) {
	_, a, err := GenerateToken(1, "ash", "s", time.Hour)
	require.NoError(t, err)
	_, b, err := GenerateToken(1, "ash", "s", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGenerateToken_EmptySecret(t *testing.T) {
	_, _, err := GenerateToken(1, "ash", "", time.Hour)
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	tok, _, err := GenerateToken(1, "ash", "s", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(tok, "s")
	assert.Error(t, err)
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok, _, err := GenerateToken(1, "ash", "right", time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(tok, "wrong")
	assert.Error(t, err)
}

func TestParseToken_ForeignIssuer(t *testing.T) {
	claims := &Claims{
		ClientID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "x",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	require.NoError(t, err)
	_, err = ParseToken(tok, "s")
	assert.Error(t, err)
}

func TestParseToken_NoneAlgorithm(t *testing.T) {
	claims := &Claims{
		ClientID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "x",
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(tok, "s")
	assert.Error(t, err)
}
