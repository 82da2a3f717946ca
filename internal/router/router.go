package router // router wires handlers and middleware onto the Echo instance

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-admission/internal/handler"
	"github.com/iliyamo/ticket-admission/internal/middleware"
	"github.com/iliyamo/ticket-admission/internal/utils"
)

// RegisterRoutes registers unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, metrics http.Handler) {
	e.GET("/healthz", handler.Health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterGate registers the gate device API.  Login is open; scanning and
// scan history require a GATE token.  scanLimit runs after JWTAuth so the
// limiter can key on the device.
func RegisterGate(e *echo.Echo, a *handler.GateAuthHandler, s *handler.ScanHandler, jwtSecret string, scanLimit echo.MiddlewareFunc) {
	e.POST("/v1/gate/login", a.Login)

	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(utils.RoleGate))
	if scanLimit != nil {
		g.POST("/gate/:gateId/scan", s.Scan, scanLimit)
	} else {
		g.POST("/gate/:gateId/scan", s.Scan)
	}
	g.GET("/tickets/:id/scans", s.ListScans)
}

// RegisterCheckout registers the issuance endpoint used by the order
// service.  It requires a CHECKOUT token.
func RegisterCheckout(e *echo.Echo, h *handler.IssuanceHandler, jwtSecret string) {
	g := e.Group("/v1/orders", middleware.JWTAuth(jwtSecret), middleware.RequireRole(utils.RoleCheckout))
	g.POST("/:orderId/tickets", h.Issue)
}
