package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, now func() time.Time) *Codec {
	t.Helper()
	c, err := NewCodec(Options{Namespace: "tixadm", Secret: []byte("s3cret"), Now: now})
	require.NoError(t, err)
	return c
}

func TestNewCodec_RejectsBadOptions(t *testing.T) {
	_, err := NewCodec(Options{Namespace: "", Secret: []byte("x")})
	assert.Error(t, err)
	_, err = NewCodec(Options{Namespace: "a|b", Secret: []byte("x")})
	assert.Error(t, err)
	_, err = NewCodec(Options{Namespace: "tixadm"})
	assert.Error(t, err)
}

func TestIssue_Layout(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)
	c := newTestCodec(t, func() time.Time { return fixed })

	code, err := c.Issue(KindTicket, 42, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(code, "|")
	require.Len(t, parts, 6)
	assert.Equal(t, "tixadm", parts[0])
	assert.Equal(t, "type:ticket", parts[1])
	assert.Equal(t, "id:42", parts[2])
	assert.Equal(t, "exp:2025-06-01T19:30:00.000Z", parts[3])
	assert.True(t, strings.HasPrefix(parts[4], "nonce:"))
	assert.Len(t, strings.TrimPrefix(parts[4], "nonce:"), 16)
	assert.True(t, strings.HasPrefix(parts[5], "sig:"))
	assert.Len(t, strings.TrimPrefix(parts[5], "sig:"), 64)
}

func TestVerify_RoundTrip(t *testing.T) {
	c := newTestCodec(t, nil)
	cases := []struct {
		kind Kind
		id   uint64
		ttl  time.Duration
	}{
		{KindTicket, 1, time.Minute},
		{KindTicket, 18446744073709551615, 7 * 24 * time.Hour},
		{Kind("pass"), 0, time.Second},
	}
	for _, tc := range cases {
		code, err := c.Issue(tc.kind, tc.id, tc.ttl)
		require.NoError(t, err)
		claims, err := c.Verify(code)
		require.NoError(t, err, code)
		assert.Equal(t, tc.kind, claims.Kind)
		assert.Equal(t, tc.id, claims.SubjectID)
	}
}

func TestIssue_NonceVariesSignature(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCodec(t, func() time.Time { return fixed })
	a, err := c.Issue(KindTicket, 7, time.Hour)
	require.NoError(t, err)
	b, err := c.Issue(KindTicket, 7, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify_TamperedMaterial(t *testing.T) {
	c := newTestCodec(t, nil)
	code, err := c.Issue(KindTicket, 1234, time.Hour)
	require.NoError(t, err)

	signedLen := strings.LastIndex(code, "|sig:")
	for i := 0; i < signedLen; i++ {
		b := []byte(code)
		if b[i] == 'x' {
			b[i] = 'y'
		} else {
			b[i] = 'x'
		}
		_, err := c.Verify(string(b))
		assert.ErrorIs(t, err, ErrBadSignature, "flip at %d: %s", i, b)
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	c := newTestCodec(t, nil)
	code, err := c.Issue(KindTicket, 5, time.Hour)
	require.NoError(t, err)

	last := code[len(code)-1]
	repl := byte('0')
	if last == '0' {
		repl = '1'
	}
	_, err = c.Verify(code[:len(code)-1] + string(repl))
	assert.ErrorIs(t, err, ErrBadSignature)

	// Edits to the signed material keep the signature segment intact.
	cut := strings.LastIndex(code, sigMark)
	_, err = c.Verify(strings.ToUpper(code[:cut]) + code[cut:])
	assert.ErrorIs(t, err, ErrBadSignature)

	// Uppercasing the marker itself hides the signature.
	_, err = c.Verify(strings.ToUpper(code[:len(code)-64]) + code[len(code)-64:])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerify_MissingFieldWithForgedSignature(t *testing.T) {
	c := newTestCodec(t, nil)
	exp := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	_, err := c.Verify("tixadm|id:5|exp:" + exp + "|nonce:00|sig:deadbeef")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerify_Expired(t *testing.T) {
	c := newTestCodec(t, nil)
	code, err := c.Issue(KindTicket, 9, -time.Second)
	require.NoError(t, err)
	_, err = c.Verify(code)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerify_ExpiresWithClock(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCodec(t, func() time.Time { return now })
	code, err := c.Issue(KindTicket, 9, time.Hour)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = c.Verify(code)
	assert.NoError(t, err, "expiry instant itself is still valid")

	now = now.Add(time.Millisecond)
	_, err = c.Verify(code)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerify_Malformed(t *testing.T) {
	c := newTestCodec(t, nil)
	for _, code := range []string{
		"",
		"garbage",
		"tixadm|type:ticket|id:1|exp:2099-01-01T00:00:00.000Z",
		"tixadm|type:ticket|id:1|exp:2099-01-01T00:00:00.000Z|sig:",
		"|sig:abcd",
	} {
		_, err := c.Verify(code)
		assert.ErrorIs(t, err, ErrMalformed, "code %q", code)
	}
}

func TestVerify_MissingFieldsWithValidSignature(t *testing.T) {
	c := newTestCodec(t, nil)
	material := "tixadm|type:ticket|exp:2099-01-01T00:00:00.000Z|nonce:00"
	_, err := c.Verify(material + "|sig:" + sign([]byte("s3cret"), material))
	assert.ErrorIs(t, err, ErrMalformed)

	material = "tixadm|type:ticket|id:abc|exp:2099-01-01T00:00:00.000Z|nonce:00"
	_, err = c.Verify(material + "|sig:" + sign([]byte("s3cret"), material))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerify_ForeignNamespaceOrSecret(t *testing.T) {
	ours := newTestCodec(t, nil)

	other, err := NewCodec(Options{Namespace: "other", Secret: []byte("s3cret")})
	require.NoError(t, err)
	code, err := other.Issue(KindTicket, 1, time.Hour)
	require.NoError(t, err)
	_, err = ours.Verify(code)
	assert.ErrorIs(t, err, ErrBadSignature)

	rotated, err := NewCodec(Options{Namespace: "tixadm", Secret: []byte("new")})
	require.NoError(t, err)
	code, err = rotated.Issue(KindTicket, 1, time.Hour)
	require.NoError(t, err)
	_, err = ours.Verify(code)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerify_PreviousSecretStillAccepted(t *testing.T) {
	old := newTestCodec(t, nil)
	code, err := old.Issue(KindTicket, 77, time.Hour)
	require.NoError(t, err)

	rotated, err := NewCodec(Options{
		Namespace:       "tixadm",
		Secret:          []byte("new"),
		PreviousSecrets: [][]byte{[]byte("s3cret")},
	})
	require.NoError(t, err)

	claims, err := rotated.Verify(code)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), claims.SubjectID)

	fresh, err := rotated.Issue(KindTicket, 78, time.Hour)
	require.NoError(t, err)
	_, err = old.Verify(fresh)
	assert.ErrorIs(t, err, ErrBadSignature, "new codes are signed with the current secret only")
}
