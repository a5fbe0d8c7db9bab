// Package auth verifies the HS256 bearer tokens that identify API callers.
// Tokens are issued elsewhere; this package only checks them.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLen is the shortest HMAC secret accepted.
const MinSecretLen = 32

var (
	ErrWeakSecret   = fmt.Errorf("auth: secret shorter than %d bytes", MinSecretLen)
	ErrInvalidToken = errors.New("auth: invalid token")
)

// ValidateSecret rejects secrets too short for HS256.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrWeakSecret
	}
	return nil
}

// GenerateToken signs claims with secret, valid for expiry from now. The
// service never calls it; it exists for operators and tests.
func GenerateToken(secret []byte, claims *Claims, expiry time.Duration) (string, error) {
	if err := ValidateSecret(secret); err != nil {
		return "", err
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken parses tokenStr, accepting only HS256 signatures, and
// returns its claims. A token without a user is invalid.
func ValidateToken(secret []byte, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.User() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
