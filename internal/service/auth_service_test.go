package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

func signToken(t *testing.T, secret string, claims models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService("test-secret")
	signed := signToken(t, "test-secret", models.JWTClaims{
		UserID: "stu1",
		Role:   models.RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "stu1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc := NewAuthService("test-secret")
	signed := signToken(t, "other-secret", models.JWTClaims{UserID: "stu1"})

	_, err := svc.ValidateToken(signed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewAuthService("test-secret")
	signed := signToken(t, "test-secret", models.JWTClaims{
		UserID: "stu1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	_, err := svc.ValidateToken(signed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := NewAuthService("test-secret")

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
}
