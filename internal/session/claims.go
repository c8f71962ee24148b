package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims are the claims the client reads from an access token.
type tokenClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

func (c tokenClaims) expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// parseClaims reads claims without verifying the signature: the client holds
// no key, it only needs exp and the display name. Opaque tokens yield zero claims.
func parseClaims(token string) tokenClaims {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return tokenClaims{}
	}
	return claims
}
