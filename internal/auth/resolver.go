// Package auth resolves bearer credentials to user identities. Token
// issuance belongs to the platform's auth service; this package only
// verifies what that service issued. The same resolver backs both the
// WebSocket handshake and the REST middleware.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for missing, malformed, expired, or
// wrongly-signed credentials.
var ErrInvalidToken = errors.New("auth: invalid token")

// Resolver maps a bearer credential to a user identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (userID string, err error)
}

// JWTResolver verifies HS256 tokens issued by the auth service. The user
// identity is carried in the "id" claim (older tokens used "_id"; both
// shapes are accepted).
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver creates a resolver for tokens signed with secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// Resolve parses and verifies the token and extracts the user identity.
func (r *JWTResolver) Resolve(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	for _, key := range []string{"id", "_id"} {
		if id, ok := claims[key].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", ErrInvalidToken
}

// Static resolves tokens from a fixed map; used in tests.
type Static map[string]string

// Resolve looks the token up in the map.
func (s Static) Resolve(_ context.Context, token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", ErrInvalidToken
}
