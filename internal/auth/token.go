// ABOUTME: Unverified inspection of gateway-issued device tokens.
// ABOUTME: Surfaces subject/expiry from JWTs so callers can plan refresh; opaque tokens yield nothing.

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what could be learned about a device token locally.
type TokenInfo struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry in the past.
// Tokens without expiry information never report expired.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Inspect extracts claims from a JWT-shaped token without verifying its
// signature — verification is the gateway's job, the client only wants the
// expiry. Returns ok=false for opaque or malformed tokens; that is not an
// error, the token is still usable as-is.
func Inspect(token string) (TokenInfo, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, false
	}

	var info TokenInfo
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, true
}
