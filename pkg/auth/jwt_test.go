package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-min-32-characters-long"

func TestJWTService_GenerateToken(t *testing.T) {
	service := NewJWTService(testSecret, "test-issuer", time.Hour)

	token, err := service.GenerateToken("user-1", "realm-1", "Acme Holdings")

	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestJWTService_GenerateTokenNeedsUser(t *testing.T) {
	service := NewJWTService(testSecret, "test-issuer", time.Hour)

	_, err := service.GenerateToken("  ", "", "")
	assert.ErrorIs(t, err, ErrMissingClaims)
}

func TestJWTService_ValidateToken(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		realmID  string
		duration time.Duration
		wantErr  error
	}{
		{
			name:     "valid token",
			userID:   "user-1",
			realmID:  "realm-1",
			duration: time.Hour,
		},
		{
			name:     "valid token without realm",
			userID:   "user-2",
			duration: time.Hour,
		},
		{
			name:     "expired token",
			userID:   "user-1",
			duration: -time.Hour,
			wantErr:  ErrExpiredToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewJWTService(testSecret, "test-issuer", tt.duration)

			token, err := service.GenerateToken(tt.userID, tt.realmID, "Acme Holdings")
			require.NoError(t, err)

			claims, err := service.ValidateToken(token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.userID, claims.UserID)
			assert.Equal(t, tt.realmID, claims.RealmID)
			assert.Equal(t, "Acme Holdings", claims.CompanyName)
			assert.Equal(t, tt.userID, claims.Subject)
			assert.Equal(t, "test-issuer", claims.Issuer)
			assert.NotEmpty(t, claims.ID)
		})
	}
}

func TestJWTService_ValidateToken_InvalidSecret(t *testing.T) {
	service1 := NewJWTService("secret-key-1-min-32-characters-long!!!", "issuer", time.Hour)
	service2 := NewJWTService("secret-key-2-min-32-characters-long!!!", "issuer", time.Hour)

	token, err := service1.GenerateToken("user-1", "", "")
	require.NoError(t, err)

	_, err = service2.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_ValidateToken_WrongIssuer(t *testing.T) {
	token, err := NewJWTService(testSecret, "someone-else", time.Hour).GenerateToken("user-1", "", "")
	require.NoError(t, err)

	_, err = NewJWTService(testSecret, "erpinsight", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_ValidateToken_MalformedToken(t *testing.T) {
	service := NewJWTService(testSecret, "issuer", time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "invalid format", token: "not.a.valid.token"},
		{name: "random string", token: "random-string-that-is-not-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTService_RefreshToken(t *testing.T) {
	service := NewJWTService(testSecret, "issuer", time.Hour*24)

	originalToken, err := service.GenerateToken("user-1", "realm-1", "Acme Holdings")
	require.NoError(t, err)

	newToken, err := service.RefreshToken(originalToken)
	require.NoError(t, err)
	assert.NotEqual(t, originalToken, newToken)

	claims, err := service.ValidateToken(newToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "realm-1", claims.RealmID)
}

func TestJWTService_RefreshWithinGrace(t *testing.T) {
	service := NewJWTService(testSecret, "issuer", time.Hour)
	issued := time.Now()
	service.now = func() time.Time { return issued }

	token, err := service.GenerateToken("user-1", "realm-1", "")
	require.NoError(t, err)

	service.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	refreshed, err := service.RefreshToken(token)
	require.NoError(t, err)
	claims, err := service.ValidateToken(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "realm-1", claims.RealmID)

	service.now = func() time.Time { return issued.Add(time.Hour + RefreshGrace + time.Minute) }
	_, err = service.RefreshToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestClaimsAllowsRealm(t *testing.T) {
	assert.True(t, (&Claims{}).AllowsRealm("123"))
	assert.True(t, (&Claims{RealmID: "123"}).AllowsRealm("123"))
	assert.False(t, (&Claims{RealmID: "123"}).AllowsRealm("456"))
}

func TestJWTService_RejectsOtherAlgorithms(t *testing.T) {
	service := NewJWTService(testSecret, "issuer", time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "issuer"},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = service.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_LongLivedToken(t *testing.T) {
	service := NewJWTService(testSecret, "issuer", time.Hour*24*30)

	token, err := service.GenerateToken("user-1", "", "")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(time.Hour*24*30), claims.ExpiresAt.Time, time.Minute)
}
