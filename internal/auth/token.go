package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Tokens signs access tokens with HS256.
type Tokens struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewTokens(secret string, lifetime time.Duration) *Tokens {
	if lifetime <= 0 {
		lifetime = 72 * time.Hour
	}
	return &Tokens{secret: []byte(secret), lifetime: lifetime, now: time.Now}
}

// Issue returns a signed token carrying user_id and role.
func (t *Tokens) Issue(userID, role string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iat":     t.now().Unix(),
		"exp":     t.now().Add(t.lifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}
