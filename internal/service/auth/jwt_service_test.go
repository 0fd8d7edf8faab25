package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

var fixedTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, secret string, now func() time.Time) JWTService {
	t.Helper()
	svc, err := NewJWTService(config.AuthConfig{JWTSecret: secret, TokenLifetimeMinutes: 60}, WithTimeFunc(now))
	require.NoError(t, err)
	return svc
}

func at(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, testSecret, at(fixedTime))
	ctx := context.Background()

	t.Run("user token", func(t *testing.T) {
		t.Parallel()
		userID := uuid.New()
		token, err := svc.GenerateToken(ctx, Principal{UserID: userID, Role: RoleUser})
		require.NoError(t, err)

		claims, err := svc.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.Equal(t, userID.String(), claims.Subject)
		assert.Equal(t, RoleUser, claims.Role)
		assert.False(t, claims.IsAdmin())
		assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
		assert.Equal(t, fixedTime.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("admin token", func(t *testing.T) {
		t.Parallel()
		token, err := svc.GenerateToken(ctx, Principal{Name: " ops-oncall ", Role: RoleAdmin})
		require.NoError(t, err)

		claims, err := svc.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "ops-oncall", claims.Subject)
		assert.Equal(t, uuid.Nil, claims.UserID)
		assert.True(t, claims.IsAdmin())
	})

	t.Run("incomplete principals", func(t *testing.T) {
		t.Parallel()
		for _, p := range []Principal{
			{Role: RoleUser},
			{Role: RoleAdmin},
			{UserID: uuid.New(), Role: "root"},
		} {
			_, err := svc.GenerateToken(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPrincipal)
		}
	})
}

func TestValidateToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	issuer := newTestService(t, testSecret, at(fixedTime))
	token, err := issuer.GenerateToken(ctx, Principal{UserID: userID, Role: RoleUser})
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  string
		now     time.Time
		token   string
		wantErr error
	}{
		{name: "valid", secret: testSecret, now: fixedTime.Add(30 * time.Minute), token: token},
		{name: "within clock skew", secret: testSecret, now: fixedTime.Add(61 * time.Minute), token: token},
		{
			name:    "expired",
			secret:  testSecret,
			now:     fixedTime.Add(2 * time.Hour),
			token:   token,
			wantErr: ErrExpiredToken,
		},
		{
			name:    "wrong secret",
			secret:  "wrong-secret-that-is-long-enough-for-testing",
			now:     fixedTime,
			token:   token,
			wantErr: ErrInvalidToken,
		},
		{
			name:    "malformed",
			secret:  testSecret,
			now:     fixedTime,
			token:   "not.a.token",
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			claims, err := newTestService(t, tt.secret, at(tt.now)).ValidateToken(ctx, tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userID, claims.UserID)
		})
	}
}

func TestValidateToken_RejectsUnknownRole(t *testing.T) {
	t.Parallel()

	claims := jwtCustomClaims{
		UserID: uuid.New(),
		Role:   "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "someone",
			ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestService(t, testSecret, at(fixedTime)).ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTService_Validates(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short", TokenLifetimeMinutes: 60})
	assert.Error(t, err)

	_, err = NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	assert.Error(t, err)
}
