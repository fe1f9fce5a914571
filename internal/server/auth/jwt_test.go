package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")

	tok, err := GenerateToken("ADM001", RoleAdmin, secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "ADM001", claims.PrincipalID)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "ADM001", claims.Subject)
}

func TestParseToken_Expired(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("ADM001", RoleAdmin, []byte("secret"), -1*time.Second)
	require.NoError(t, err)

	_, err = ParseToken(tok, []byte("secret"))
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestParseToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("ADM001", RoleAdmin, []byte("right-secret"), time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, []byte("wrong-secret"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_Garbage(t *testing.T) {
	t.Parallel()

	_, err := ParseToken("not-a-jwt", []byte("secret"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{PrincipalID: "ADM001", Role: RoleSuperAdmin})
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ParseToken(s, []byte("secret"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_MissingPrincipal(t *testing.T) {
	t.Parallel()

	s, err := GenerateToken("", RoleAdmin, []byte("secret"), time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(s, []byte("secret"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
