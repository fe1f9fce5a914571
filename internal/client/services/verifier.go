package services

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/qrpass/internal/common"
)

type deviceClaims struct {
	jwt.RegisteredClaims
	PrincipalID string `json:"pid"`
}

// VerifierIDFromToken reads the principal id out of a device credential
// without checking its signature; the server does that on every call.
func VerifierIDFromToken(token string) (string, error) {
	claims := &deviceClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if claims.PrincipalID == "" {
		return "", fmt.Errorf("%w: no principal", common.ErrInvalidToken)
	}
	return claims.PrincipalID, nil
}
