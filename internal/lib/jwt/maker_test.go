package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_1234567890"

func TestJWTMaker_RoundTrip(t *testing.T) {
	ttl := 15 * time.Minute
	maker := NewJWTMaker(testSecret, ttl)

	tests := []struct {
		name    string
		userUID string
		email   string
		role    string
	}{
		{name: "subscriber", userUID: "7f1c2d9e-0000-4000-8000-000000000001", email: "user@domain.com", role: "user"},
		{name: "admin", userUID: "7f1c2d9e-0000-4000-8000-000000000002", email: "admin@domain.com", role: "admin"},
		{name: "no email in token", userUID: "user123", role: "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := maker.GenerateToken(tt.userUID, tt.email, tt.role)
			require.NoError(t, err)

			claims, err := maker.ParseToken(token)
			require.NoError(t, err)
			assert.Equal(t, tt.userUID, claims.UserUID)
			assert.Equal(t, tt.userUID, claims.Subject)
			assert.Equal(t, tt.email, claims.Email)
			assert.Equal(t, tt.role, claims.Role)
			assert.WithinDuration(t, time.Now().Add(ttl), claims.ExpiresAt.Time, time.Second)
		})
	}
}

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestJWTMaker_SubjectOnlyToken(t *testing.T) {
	token := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		Subject:   "user-from-sub",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	claims, err := NewJWTMaker(testSecret, time.Hour).ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-from-sub", claims.UserUID)
}

func TestJWTMaker_ParseToken_Rejects(t *testing.T) {
	maker := NewJWTMaker(testSecret, 15*time.Minute)
	valid, err := maker.GenerateToken("user-1", "user@example.com", "user")
	require.NoError(t, err)

	expired, err := NewJWTMaker(testSecret, -time.Hour).GenerateToken("user-1", "", "user")
	require.NoError(t, err)
	foreign, err := NewJWTMaker("wrong_secret_key", time.Hour).GenerateToken("user-1", "", "user")
	require.NoError(t, err)
	anonymous, err := maker.GenerateToken("", "user@example.com", "user")
	require.NoError(t, err)

	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "malformed", token: "invalid.token.here"},
		{name: "tampered", token: valid + "x"},
		{name: "expired", token: expired},
		{name: "wrong secret", token: foreign},
		{name: "no user", token: anonymous},
		{
			name:  "other hmac algorithm",
			token: signed(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.RegisteredClaims{Subject: "u", ExpiresAt: future}),
		},
		{
			name:  "unsigned",
			token: signed(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.RegisteredClaims{Subject: "u", ExpiresAt: future}),
		},
		{
			name:  "no expiry",
			token: signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{Subject: "u"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.ParseToken(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTMaker_Leeway(t *testing.T) {
	// Истёк 10 секунд назад, но укладывается в допуск на расхождение часов.
	token := signed(t, jwt.SigningMethodHS256, []byte(testSecret), CustomClaims{
		UserUID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-10 * time.Second)),
		},
	})

	_, err := NewJWTMaker(testSecret, time.Hour).ParseToken(token)
	assert.NoError(t, err)
}
