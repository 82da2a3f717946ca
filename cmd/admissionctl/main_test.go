package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-admission/internal/token"
	"github.com/iliyamo/ticket-admission/internal/utils"
)

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorIs(t, run(nil, &out), errUsage)
	assert.ErrorIs(t, run([]string{"bogus"}, &out), errUsage)
	assert.NoError(t, run([]string{"help"}, &out))
	assert.Contains(t, out.String(), "mint-token")
}

func TestHashPIN(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"hash-pin", "--pin", "4821", "--cost", "4"}, &out))
	assert.True(t, utils.VerifyPassword(strings.TrimSpace(out.String()), "4821"))

	assert.ErrorIs(t, run([]string{"hash-pin"}, &out), errUsage)
}

func TestMintToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"mint-token", "--role", "gate", "--subject", "dev-2", "--gate", "8", "--secret", "k"}, &out))

	tok, err := jwt.Parse(strings.TrimSpace(out.String()), func(*jwt.Token) (interface{}, error) { return []byte("k"), nil })
	require.NoError(t, err)
	claims := tok.Claims.(jwt.MapClaims)
	assert.Equal(t, utils.RoleGate, claims["role"])
	assert.Equal(t, "dev-2", claims["sub"])
	assert.Equal(t, float64(8), claims["gate"])

	assert.ErrorIs(t, run([]string{"mint-token", "--role", "ADMIN", "--secret", "k"}, &out), errUsage)
	assert.ErrorIs(t, run([]string{"mint-token", "--role", "gate", "--subject", "dev-2", "--secret", "k"}, &out), errUsage)
}

func TestInspect(t *testing.T) {
	codec, err := token.NewCodec(token.Options{Namespace: "fest", Secret: []byte("s")})
	require.NoError(t, err)
	code, err := codec.Issue(token.KindTicket, 42, time.Hour)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run([]string{"inspect", "--secret", "s", "--namespace", "fest", code}, &out))
	var got inspectOut
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, token.KindTicket, got.Kind)
	assert.Equal(t, uint64(42), got.SubjectID)

	err = run([]string{"inspect", "--secret", "wrong", "--namespace", "fest", code}, &out)
	assert.ErrorIs(t, err, token.ErrBadSignature)

	assert.ErrorIs(t, run([]string{"inspect", "--secret", "s"}, &out), errUsage)
}
