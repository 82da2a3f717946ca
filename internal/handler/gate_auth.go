package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-admission/internal/config"
	"github.com/iliyamo/ticket-admission/internal/repository"
	"github.com/iliyamo/ticket-admission/internal/utils"
)

// GateAuthHandler logs scanner devices in.
type GateAuthHandler struct {
	Cfg     config.Config
	Devices *repository.GateDeviceRepo
	Logger  *slog.Logger
}

func NewGateAuthHandler(cfg config.Config, d *repository.GateDeviceRepo, logger *slog.Logger) *GateAuthHandler {
	if d == nil {
		panic("nil repository passed to NewGateAuthHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GateAuthHandler{Cfg: cfg, Devices: d, Logger: logger.With("component", "gate_auth")}
}

type gateLoginReq struct {
	DeviceID string `json:"deviceId"`
	PIN      string `json:"pin"`
}

type gateLoginResp struct {
	OK       bool      `json:"ok"`
	Token    string    `json:"token"`
	Expires  time.Time `json:"expires"`
	GateID   uint64    `json:"gateId"`
	DeviceID string    `json:"deviceId"`
}

// Login exchanges a device id and PIN for a GATE access token bound to the
// device's gate.
func (h *GateAuthHandler) Login(c echo.Context) error {
	var req gateLoginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" || req.PIN == "" {
		return fail(c, http.StatusBadRequest, "deviceId/pin required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Cfg.StoreTimeout)
	defer cancel()

	d, err := h.Devices.GetByDeviceID(ctx, req.DeviceID)
	if errors.Is(err, repository.ErrDeviceNotFound) {
		return fail(c, http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		h.Logger.Error("device lookup failed", "device_id", req.DeviceID, "err", err)
		return fail(c, http.StatusInternalServerError, "query failed")
	}
	if !d.IsActive || !utils.VerifyPassword(d.PINHash, req.PIN) {
		h.Logger.Warn("gate login refused", "device_id", req.DeviceID, "active", d.IsActive)
		return fail(c, http.StatusUnauthorized, "invalid credentials")
	}

	at, err := utils.NewAccessToken(h.Cfg.JWTSecret, d.DeviceID, utils.RoleGate, d.GateID, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue access failed")
	}
	h.Logger.Info("gate device logged in", "device_id", d.DeviceID, "gate_id", d.GateID)
	return c.JSON(http.StatusOK, gateLoginResp{OK: true, Token: at.Token, Expires: at.Exp, GateID: d.GateID, DeviceID: d.DeviceID})
}
