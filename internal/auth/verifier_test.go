package auth

import (
	"testing"
	"time"

	"podium/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewVerifier(testSecret, "podium", "podium-clients")

	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id":  float64(42),
		"username": "speaker",
		"avatar":   "https://cdn.example/a.png",
		"iss":      "podium",
		"aud":      "podium-clients",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), identity.UserID)
	assert.Equal(t, "speaker", identity.Username)
	assert.Equal(t, "https://cdn.example/a.png", identity.Avatar)
}

func TestVerifyFailsClosed(t *testing.T) {
	v := NewVerifier(testSecret, "podium", "podium-clients")

	valid := jwt.MapClaims{
		"user_id": float64(1),
		"iss":     "podium",
		"aud":     "podium-clients",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", signToken(t, "other-secret", valid)},
		{"expired", signToken(t, testSecret, jwt.MapClaims{
			"user_id": float64(1), "iss": "podium", "aud": "podium-clients",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{"wrong issuer", signToken(t, testSecret, jwt.MapClaims{
			"user_id": float64(1), "iss": "elsewhere", "aud": "podium-clients",
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"wrong audience", signToken(t, testSecret, jwt.MapClaims{
			"user_id": float64(1), "iss": "podium", "aud": "other-app",
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"missing user id", signToken(t, testSecret, jwt.MapClaims{
			"iss": "podium", "aud": "podium-clients",
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			require.Error(t, err)
			assert.True(t, models.IsCode(err, models.CodeUnauthorized))
		})
	}
}

func TestVerifyRejectsUnsignedAlg(t *testing.T) {
	v := NewVerifier(testSecret, "", "")

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": float64(1),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(signed)
	assert.Error(t, err)
}

func TestVerifySkipsIssuerCheckWhenUnconfigured(t *testing.T) {
	v := NewVerifier(testSecret, "", "")

	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id": float64(7),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), identity.UserID)
}
