package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medrecord-api/internal/model"
)

const secret = "0123456789abcdef0123456789abcdef"

func testUser() *model.User {
	return &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RoleDoctor, Hospital: "H1", Department: "cardio"}
}

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService(secret, "medrecord-api", time.Hour)
	user := testUser()

	token, issued, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, model.RoleDoctor, claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestValidate_Expired(t *testing.T) {
	svc := NewJWTService(secret, "", time.Hour).(*hmacService)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidate_Rejects(t *testing.T) {
	svc := NewJWTService(secret, "medrecord-api", time.Hour)
	token, _, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)

	other := NewJWTService("another-secret-another-secret-xx", "medrecord-api", time.Hour)
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: uuid.NewString(), Issuer: "medrecord-api"})
	raw, err := noExp.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = svc.ValidateToken(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err = none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
