// Package token builds and verifies the signed admission codes printed on
// tickets.  A code is a pipe-delimited string that carries its own expiry
// and an HMAC-SHA256 signature, so any gate can validate it without a
// server-side lookup.  The layout is fixed:
//
//	{namespace}|type:{kind}|id:{subjectId}|exp:{ISO8601}|nonce:{hex}|sig:{hex}
//
// Field order and delimiters must not change; previously issued tickets
// would stop verifying.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Kind tags the type of entity a code refers to.
type Kind string

// KindTicket is the only kind accepted at admission gates today.
const KindTicket Kind = "ticket"

// expiryLayout renders expiries as UTC with millisecond precision,
// e.g. 2025-06-01T18:30:00.000Z.
const expiryLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	segSep   = "|"
	sigMark  = "|sig:"
	nonceLen = 8 // bytes, rendered as 16 hex chars
)

// Sentinel verification errors.  Callers compare with errors.Is.
var (
	ErrMalformed    = errors.New("malformed")
	ErrBadSignature = errors.New("bad signature")
	ErrExpired      = errors.New("expired")
)

// Claims is what a verified code proves.
type Claims struct {
	Kind      Kind
	SubjectID uint64
	ExpiresAt time.Time
}

// Options configures a Codec.  Secret signs new codes; PreviousSecrets are
// accepted during verification only so that a rotated secret does not
// invalidate codes already in circulation.
type Options struct {
	Namespace       string
	Secret          []byte
	PreviousSecrets [][]byte
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Codec issues and verifies admission codes.  It holds no mutable state
// and is safe for concurrent use.
type Codec struct {
	namespace string
	secret    []byte
	previous  [][]byte
	now       func() time.Time
}

// NewCodec validates opts and returns a Codec.
func NewCodec(opts Options) (*Codec, error) {
	ns := strings.TrimSpace(opts.Namespace)
	if ns == "" || strings.ContainsAny(ns, "|:") {
		return nil, errors.New("token: namespace must be non-empty and free of '|' and ':'")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("token: secret is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	prev := make([][]byte, 0, len(opts.PreviousSecrets))
	for _, p := range opts.PreviousSecrets {
		if len(p) > 0 {
			prev = append(prev, p)
		}
	}
	return &Codec{namespace: ns, secret: opts.Secret, previous: prev, now: now}, nil
}

// Namespace returns the namespace prefix written into every code.
func (c *Codec) Namespace() string { return c.namespace }

// Issue returns a signed code for subjectID valid for ttl from now.  A
// non-positive ttl yields a code that is already expired.
func (c *Codec) Issue(kind Kind, subjectID uint64, ttl time.Duration) (string, error) {
	if kind == "" || strings.ContainsAny(string(kind), "|:") {
		return "", errors.New("token: invalid kind")
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	exp := c.now().UTC().Add(ttl)

	var b strings.Builder
	b.WriteString(c.namespace)
	b.WriteString("|type:")
	b.WriteString(string(kind))
	b.WriteString("|id:")
	b.WriteString(strconv.FormatUint(subjectID, 10))
	b.WriteString("|exp:")
	b.WriteString(exp.Format(expiryLayout))
	b.WriteString("|nonce:")
	b.WriteString(hex.EncodeToString(nonce))
	material := b.String()

	return material + sigMark + sign(c.secret, material), nil
}

// Verify checks the signature and expiry of code and returns its claims.
// The signature is checked before the remaining fields are interpreted, so
// any edit to the signed material surfaces as ErrBadSignature.
func (c *Codec) Verify(code string) (Claims, error) {
	i := strings.LastIndex(code, sigMark)
	if i <= 0 {
		return Claims{}, ErrMalformed
	}
	material, sig := code[:i], code[i+len(sigMark):]
	if sig == "" || strings.Contains(sig, segSep) {
		return Claims{}, ErrMalformed
	}

	fields := parseSegments(material)
	if fields.namespace != c.namespace || !c.signedByUs(material, sig) {
		return Claims{}, ErrBadSignature
	}

	kind, okKind := fields.kv["type"]
	rawID, okID := fields.kv["id"]
	rawExp, okExp := fields.kv["exp"]
	if !okKind || !okID || !okExp || kind == "" {
		return Claims{}, ErrMalformed
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return Claims{}, ErrMalformed
	}
	exp, err := time.Parse(time.RFC3339, rawExp)
	if err != nil {
		return Claims{}, ErrMalformed
	}
	if c.now().After(exp) {
		return Claims{}, ErrExpired
	}
	return Claims{Kind: Kind(kind), SubjectID: id, ExpiresAt: exp.UTC()}, nil
}

func (c *Codec) signedByUs(material, sig string) bool {
	got := []byte(sig)
	if hmac.Equal([]byte(sign(c.secret, material)), got) {
		return true
	}
	for _, p := range c.previous {
		if hmac.Equal([]byte(sign(p, material)), got) {
			return true
		}
	}
	return false
}

func sign(secret []byte, material string) string {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(material))
	return hex.EncodeToString(m.Sum(nil))
}

type segments struct {
	namespace string
	kv        map[string]string
}

// parseSegments splits the signed material into the leading namespace and
// a key/value map.  Segments without a colon after the first are ignored.
func parseSegments(material string) segments {
	parts := strings.Split(material, segSep)
	s := segments{namespace: parts[0], kv: make(map[string]string, len(parts))}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, ":")
		if !ok {
			continue
		}
		s.kv[k] = v
	}
	return s
}
