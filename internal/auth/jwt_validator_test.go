package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
)

const testSecret = "test-secret"

func TestValidateAcceptsSignedToken(t *testing.T) {
	v, err := NewJWTValidator(testSecret, "scoreboard")
	require.NoError(t, err)

	token, err := SignToken(testSecret, "scoreboard", domain.Identity{
		UserID:   "u1",
		Username: "alice",
		Roles:    []string{"member", "organizer"},
	}, time.Minute)
	require.NoError(t, err)

	id, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, []string{"member", "organizer"}, id.Roles)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	v, err := NewJWTValidator(testSecret, "")
	require.NoError(t, err)

	token, err := SignToken(testSecret, "", domain.Identity{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), token)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredential))
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	v, err := NewJWTValidator(testSecret, "")
	require.NoError(t, err)

	token, err := SignToken("other-secret", "", domain.Identity{UserID: "u1"}, time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), token)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredential))
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	v, err := NewJWTValidator(testSecret, "scoreboard")
	require.NoError(t, err)

	token, err := SignToken(testSecret, "someone-else", domain.Identity{UserID: "u1"}, time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), token)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredential))
}

func TestValidateRejectsWrongAlgorithm(t *testing.T) {
	v, err := NewJWTValidator(testSecret, "")
	require.NoError(t, err)

	// alg=none tokens must never pass, regardless of claims.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), token)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredential))
}

func TestValidateRejectsMissingSubject(t *testing.T) {
	v, err := NewJWTValidator(testSecret, "")
	require.NoError(t, err)

	token, err := SignToken(testSecret, "", domain.Identity{}, time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), token)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredential))
}

func TestValidateFallsBackToSubjectClaim(t *testing.T) {
	v, err := NewJWTValidator(testSecret, "")
	require.NoError(t, err)

	signed := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	token, err := signed.SignedString([]byte(testSecret))
	require.NoError(t, err)

	id, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u42", id.UserID)
}

func TestNewJWTValidatorRequiresSecret(t *testing.T) {
	_, err := NewJWTValidator("", "")
	assert.Error(t, err)
}
