package auth

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryBuffer is subtracted from a token's exp claim so a token that is
// about to lapse mid-request already counts as expired.
const ExpiryBuffer = 60 * time.Second

// IsExpired reports whether token should be treated as expired at now.
// Only the payload segment is decoded: the header and signature are never
// inspected, so an unknown alg does not matter. A token that can't be
// decoded, or has no exp claim, is expired.
func IsExpired(token string, now time.Time) bool {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return true
	}
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return true
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Unix()-int64(ExpiryBuffer/time.Second) < now.Unix()
}
