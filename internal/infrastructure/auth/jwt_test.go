package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/domain/user"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTService_IssueAndVerify(t *testing.T) {
	svc, err := NewJWTService(testSecret, "autocrm", 15)
	require.NoError(t, err)

	token, exp, err := svc.Issue(user.User{ID: "u1", Email: "alice@example.com", Role: user.RoleEmployee})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
	assert.Equal(t, user.RoleEmployee, claims.Role)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestJWTService_VerifyRejects(t *testing.T) {
	svc, err := NewJWTService(testSecret, "autocrm", 15)
	require.NoError(t, err)
	valid, _, err := svc.Issue(user.User{ID: "u1", Role: user.RoleCustomer})
	require.NoError(t, err)

	otherIssuer, err := NewJWTService(testSecret, "someone-else", 15)
	require.NoError(t, err)
	foreign, _, err := otherIssuer.Issue(user.User{ID: "u1", Role: user.RoleCustomer})
	require.NoError(t, err)

	wrongKey, err := NewJWTService("ffffffffffffffffffffffffffffffff", "autocrm", 15)
	require.NoError(t, err)
	forged, _, err := wrongKey.Issue(user.User{ID: "u1", Role: user.RoleAdmin})
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "autocrm"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Role:             user.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "autocrm"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong issuer", foreign},
		{"wrong key", forged},
		{"missing role", noRole},
		{"unsigned", none},
		{"truncated", valid[:len(valid)-4]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTService_Expiry(t *testing.T) {
	svc, err := NewJWTService(testSecret, "", 1)
	require.NoError(t, err)

	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	token, _, err := svc.Issue(user.User{ID: "u1", Role: user.RoleAdmin})
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(30 * time.Second) }
	_, err = svc.Verify(token)
	assert.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTService_ShortSecret(t *testing.T) {
	_, err := NewJWTService("short", "", 10)
	assert.Error(t, err)
}
