package middleware // reusable HTTP middleware for the gate and issuance APIs

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	CtxSubject = "user_id" // device id or service name (string)
	CtxRole    = "role"    // role claim (string)
	CtxGateID  = "gate_id" // gate claim of device tokens (uint64, absent otherwise)
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// signed with secret and copies its subject, role and gate claims into the
// request context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "invalid claims"})
			}

			if sub, err := claims.GetSubject(); err == nil && sub != "" {
				c.Set(CtxSubject, sub)
			}
			if role, ok := claims["role"].(string); ok {
				c.Set(CtxRole, role)
			}
			// JSON numbers decode as float64.
			if g, ok := claims["gate"].(float64); ok && g > 0 {
				c.Set(CtxGateID, uint64(g))
			}
			return next(c)
		}
	}
}

// Subject returns the authenticated subject, or "" when none is set.
func Subject(c echo.Context) string {
	s, _ := c.Get(CtxSubject).(string)
	return s
}

// Role returns the role claim, or "" when none is set.
func Role(c echo.Context) string {
	r, _ := c.Get(CtxRole).(string)
	return r
}

// GateID returns the gate a device token is bound to.
func GateID(c echo.Context) (uint64, bool) {
	g, ok := c.Get(CtxGateID).(uint64)
	return g, ok
}
