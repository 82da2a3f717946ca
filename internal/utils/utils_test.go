package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewAccessToken(t *testing.T) {
	at, err := NewAccessToken("s3cret", "gate-a-01", RoleGate, 4, 10)
	require.NoError(t, err)

	tok, err := jwt.Parse(at.Token, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	claims := tok.Claims.(jwt.MapClaims)
	assert.Equal(t, "gate-a-01", claims["sub"])
	assert.Equal(t, RoleGate, claims["role"])
	assert.Equal(t, float64(4), claims["gate"])
	assert.Equal(t, float64(at.Exp.Unix()), claims["exp"])

	_, err = jwt.Parse(at.Token, func(*jwt.Token) (interface{}, error) { return []byte("other"), nil })
	assert.Error(t, err)
}

func TestNewAccessToken_OmitsZeroGate(t *testing.T) {
	at, err := NewAccessToken("s3cret", "checkout", RoleCheckout, 0, 10)
	require.NoError(t, err)
	tok, _, err := jwt.NewParser().ParseUnverified(at.Token, jwt.MapClaims{})
	require.NoError(t, err)
	_, ok := tok.Claims.(jwt.MapClaims)["gate"]
	assert.False(t, ok)
}

func TestNewAccessToken_GateTokenNeedsGate(t *testing.T) {
	_, err := NewAccessToken("s3cret", "gate-a-01", RoleGate, 0, 10)
	assert.ErrorIs(t, err, ErrGateRequired)
}

func TestNewAccessToken_EmptySecret(t *testing.T) {
	_, err := NewAccessToken("", "x", RoleGate, 1, 1)
	assert.Error(t, err)
}

func TestPasswordRoundTrip(t *testing.T) {
	h, err := HashPassword("4821", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(h, "4821"))
	assert.False(t, VerifyPassword(h, "4822"))
}
