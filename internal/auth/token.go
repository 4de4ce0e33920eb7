// Package auth verifies the signed identity tokens issued by the identity
// gateway. The core only extracts an identity from a bearer credential; it
// never issues sessions of its own beyond the HMAC helper used in tests and
// local development.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a credential is missing, malformed,
// expired, or carries no subject identity.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload. The subject carries the identity the channel
// and HTTP layers bind to.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates bearer credentials against a shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier for the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a bearer token and returns the identity bound
// to it. It accepts the raw compact form with or without a "Bearer " prefix.
func (v *Verifier) Verify(credential string) (string, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if credential == "" {
		return "", ErrInvalidToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(credential, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Issue signs a token for identity with the given time to live. Used by local
// development tooling and tests; production tokens come from the identity
// gateway.
func (v *Verifier) Issue(identity string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
