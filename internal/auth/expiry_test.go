package auth

import (
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	return signToken(t, jwt.MapClaims{"sub": "alice01", "exp": exp.Unix()})
}

func segment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// unsignedToken builds a token by hand so the header can name any alg.
func unsignedToken(header string, exp time.Time) string {
	return segment(header) + "." + segment(`{"sub":"alice01","exp":`+itoa(exp.Unix())+`}`) + ".c2ln"
}

func TestIsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name     string
		token    string
		expected bool
	}{
		{"far future", tokenExpiringAt(t, now.Add(time.Hour)), false},
		{"inside buffer", tokenExpiringAt(t, now.Add(30*time.Second)), true},
		{"exactly at buffer edge", tokenExpiringAt(t, now.Add(ExpiryBuffer)), false},
		{"one second inside buffer", tokenExpiringAt(t, now.Add(ExpiryBuffer-time.Second)), true},
		{"already expired", tokenExpiringAt(t, now.Add(-time.Minute)), true},
		{"no exp claim", signToken(t, jwt.MapClaims{"sub": "alice01"}), true},
		{"unregistered alg", unsignedToken(`{"alg":"XYZ512","typ":"JWT"}`, now.Add(time.Hour)), false},
		{"unregistered alg expired", unsignedToken(`{"alg":"XYZ512","typ":"JWT"}`, now.Add(-time.Hour)), true},
		{"garbage header", "@@@." + segment(`{"exp":`+itoa(now.Add(time.Hour).Unix())+`}`) + ".sig", false},
		{"garbage payload", segment(`{"alg":"HS256"}`) + ".@@@.sig", true},
		{"exp not a number", segment(`{"alg":"HS256"}`) + "." + segment(`{"exp":"soon"}`) + ".sig", true},
		{"garbage", "not-a-jwt", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsExpired(tt.token, now))
		})
	}
}

func TestIsExpiredIgnoresSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("some-other-key"))
	require.NoError(t, err)

	assert.False(t, IsExpired(token, now))
}
