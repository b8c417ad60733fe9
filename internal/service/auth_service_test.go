package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/examslot-api/internal/models"
	appErrors "github.com/noah-isme/examslot-api/pkg/errors"
)

func newTestAuthService() *AuthService {
	return NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "examslot"})
}

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := newTestAuthService()
	token, expiresAt, err := svc.IssueToken("ta-1", "ta@example.com", models.RoleTA)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ta-1", claims.UserID)
	assert.Equal(t, models.RoleTA, claims.Role)
	assert.Equal(t, "ta@example.com", claims.Email)
}

func TestAuthServiceRejectsForeignIssuer(t *testing.T) {
	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	token, _, err := other.IssueToken("ta-1", "", models.RoleTA)
	require.NoError(t, err)

	_, err = newTestAuthService().ValidateToken(token)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	svc := newTestAuthService()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.IssueToken("admin-1", "", models.RoleAdmin)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthServiceIssueValidatesInput(t *testing.T) {
	svc := newTestAuthService()
	_, _, err := svc.IssueToken("", "", models.RoleAdmin)
	assert.Error(t, err)
	_, _, err = svc.IssueToken("u-1", "", models.UserRole("STUDENT"))
	assert.Error(t, err)
}
