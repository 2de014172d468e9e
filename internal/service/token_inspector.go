package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrOpaqueToken = errors.New("token carries no readable claims")

// TokenInfo is what the client can learn from a credential without verifying it.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// TokenInspector reads claims from JWT-shaped credentials. Signatures are not
// checked: the server stays the authority, the client only uses the expiry to
// renew ahead of time.
type TokenInspector struct {
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenInspector() *TokenInspector {
	return &TokenInspector{
		parser: jwt.NewParser(),
		now:    time.Now,
	}
}

func (i *TokenInspector) Inspect(token string) (*TokenInfo, error) {
	if token == "" {
		return nil, ErrOpaqueToken
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := i.parser.ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}

	info := &TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// ExpiresWithin reports whether token expires in less than skew. Opaque tokens
// and tokens without an expiry never do.
func (i *TokenInspector) ExpiresWithin(token string, skew time.Duration) bool {
	info, err := i.Inspect(token)
	if err != nil || info.ExpiresAt.IsZero() {
		return false
	}
	return i.now().Add(skew).After(info.ExpiresAt)
}
