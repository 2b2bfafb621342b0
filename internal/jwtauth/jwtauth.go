// Package jwtauth validates the bearer tokens the hosting environment issues
// to callers. The token subject carries the caller identity.
package jwtauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"attestry/internal/platform/middleware"
	"attestry/pkg/domain"
)

// Validator checks HS256-signed tokens.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken parses and verifies a token and returns its claims.
func (v *Validator) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	return &middleware.JWTClaims{Subject: subject}, nil
}

// Issue signs a token for the given identity. Used by tests and local
// tooling; production tokens come from the hosting environment.
func (v *Validator) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   identity.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(v.signingKey)
}
