// Package auth issues and checks device credentials and maps roles to
// capability sets.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the principal operating a device.
type Claims struct {
	jwt.RegisteredClaims
	PrincipalID string `json:"pid"`
	Role        Role   `json:"role"`
}

// GenerateToken signs a device credential valid for validityDuration.
func GenerateToken(principalID string, role Role, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		PrincipalID: principalID,
		Role:        role,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies a credential and returns its claims. Expired tokens
// yield common.ErrTokenExpired, everything else common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.PrincipalID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
