package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the token payload issued by the identity provider. Subject
// falls back as the user ID when user_id is absent.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	Email  string `json:"email,omitempty"`
}

// User returns the caller's identifier.
func (c *Claims) User() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}
