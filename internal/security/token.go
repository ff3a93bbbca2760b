package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the control surface reports about a bearer token. The
// session manager treats tokens as opaque; this peek never validates the
// signature, the platform API stays the sole authority on token validity.
type TokenInfo struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

type bearerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func PeekToken(tokenStr string) (TokenInfo, error) {
	var claims bearerClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, &claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parse token: %w", err)
	}

	info := TokenInfo{
		Subject: claims.Subject,
		Role:    claims.Role,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
