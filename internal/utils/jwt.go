package utils // package utils provides helpers for access tokens and PIN hashing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the "role" claim.
const (
	RoleGate     = "GATE"     // a registered scanning device
	RoleCheckout = "CHECKOUT" // the order service calling issuance
)

// ErrGateRequired is returned when a GATE token is minted without a gate.
var ErrGateRequired = errors.New("gate tokens require a gate id")

// AccessToken is a signed JWT along with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken builds and signs an HS256 JWT.  subject is the device id
// for gate tokens and a service name for checkout tokens; gateID is
// written as the "gate" claim when non-zero.  Gate tokens must name a gate.
func NewAccessToken(secret, subject, role string, gateID uint64, ttlMin int) (AccessToken, error) {
	if secret == "" {
		return AccessToken{}, errors.New("jwt secret is empty")
	}
	if role == RoleGate && gateID == 0 {
		return AccessToken{}, ErrGateRequired
	}
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if gateID != 0 {
		claims["gate"] = gateID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
