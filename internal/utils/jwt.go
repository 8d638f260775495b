package utils

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authorization header")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims is the identity carried by an access token.
type Claims struct {
	UserID string
	Role   string
}

// ParseBearer verifies an "Authorization: Bearer <jwt>" header value and
// pulls out the user id and role.
func ParseBearer(header string, secret []byte) (Claims, error) {
	if header == "" {
		return Claims{}, ErrMissingToken
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return Claims{}, ErrInvalidToken
	}
	tokenStr := strings.TrimSpace(header[len(prefix):])

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	id, _ := claims["user_id"].(string)
	if id == "" {
		return Claims{}, ErrInvalidToken
	}
	role, _ := claims["role"].(string)
	return Claims{UserID: id, Role: role}, nil
}
