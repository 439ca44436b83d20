package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/facility-desk/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	token, err := tm.GenerateToken(42, domain.RoleAHO)
	require.NoError(t, err)

	claims, err := tm.ParseToken(token.Value)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, domain.RoleAHO, claims.Role)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	issued := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }
	token, err := tm.GenerateToken(1, domain.RoleEmployee)
	require.NoError(t, err)

	tm.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tm.ParseToken(token.Value)
	assert.Error(t, err)
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	token, err := NewTokenManager("other", 30).GenerateToken(1, domain.RoleEmployee)
	require.NoError(t, err)

	_, err = NewTokenManager("secret", 30).ParseToken(token.Value)
	assert.Error(t, err)
}

func TestParseTokenRejectsNonCanonicalRole(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	claims := &Claims{
		UserID: 1,
		Role:   domain.Role("Сотрудник АХО"),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tm.ParseToken(signed)
	assert.Error(t, err)
}

func TestHashPasswordClampsCost(t *testing.T) {
	hashed, err := HashPassword("pa55word", 99)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hashed))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)

	assert.NoError(t, ComparePassword(hashed, "pa55word"))
	assert.Error(t, ComparePassword(hashed, "wrong"))
}
