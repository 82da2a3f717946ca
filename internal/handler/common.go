// Package handler exposes the HTTP surface of the admission service: gate
// device login, scanning, scan history and ticket issuance for checkout.
package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"ok": false, "error": msg})
}

// Health is used by load balancers to verify that the process is serving.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
