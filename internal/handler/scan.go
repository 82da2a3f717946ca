package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/middleware"
	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/utils"
)

// Scanner runs one gate scan.  *admission.Service implements it.
type Scanner interface {
	Scan(ctx context.Context, req admission.Request) (admission.Result, error)
}

// ScanHistory lists the audit trail of a ticket.
type ScanHistory interface {
	ListByTicket(ctx context.Context, ticketID uint64) ([]model.ScanEvent, error)
}

// ScanHandler serves the gate endpoints.
type ScanHandler struct {
	Scanner Scanner
	History ScanHistory
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewScanHandler(s Scanner, h ScanHistory, timeout time.Duration, logger *slog.Logger) *ScanHandler {
	if s == nil || h == nil {
		panic("nil dependency passed to NewScanHandler")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanHandler{
		Scanner: s,
		History: h,
		Timeout: timeout,
		Logger:  logger.With("component", "scan_handler"),
	}
}

type scanReq struct {
	Code     string  `json:"code"`
	GateID   *uint64 `json:"gateId"`
	DeviceID *string `json:"deviceId"`
	Gender   *string `json:"gender"`
	Confirm  *string `json:"confirm"`
}

type scanResp struct {
	OK           bool             `json:"ok"`
	Action       admission.Action `json:"action"`
	TicketID     uint64           `json:"ticketId,omitempty"`
	DwellSeconds *int64           `json:"dwellSeconds,omitempty"`
	Field        string           `json:"field,omitempty"`
	Ticket       *model.Ticket    `json:"ticket,omitempty"`
}

type scanErrResp struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Scan handles POST /v1/gate/:gateId/scan.
func (h *ScanHandler) Scan(c echo.Context) error {
	gateID, ok := parseID(c, "gateId")
	if !ok {
		return c.JSON(http.StatusBadRequest, scanErrResp{Error: string(admission.CodeInvalidRequest)})
	}
	bound, hasGate := middleware.GateID(c)
	if middleware.Role(c) == utils.RoleGate && !hasGate {
		return fail(c, http.StatusForbidden, "device token carries no gate")
	}
	if hasGate && bound != gateID {
		return fail(c, http.StatusForbidden, "device not bound to this gate")
	}

	var body scanReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, scanErrResp{Error: string(admission.CodeInvalidRequest)})
	}
	req, err := toAdmissionRequest(body, gateID, middleware.Subject(c))
	if errors.Is(err, errDeviceMismatch) {
		return fail(c, http.StatusForbidden, "deviceId does not match token")
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, scanErrResp{Error: string(admission.CodeInvalidRequest)})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	res, err := h.Scanner.Scan(ctx, req)
	if err != nil {
		return h.scanError(c, gateID, err)
	}
	return c.JSON(http.StatusOK, toScanResp(res))
}

var errDeviceMismatch = errors.New("deviceId does not match token subject")

// toAdmissionRequest maps a scan body onto an admission request.  The
// authenticated subject is the recorded device; a body deviceId is only
// taken when the request carries no subject.
func toAdmissionRequest(body scanReq, gateID uint64, subject string) (admission.Request, error) {
	if body.GateID != nil && *body.GateID != gateID {
		return admission.Request{}, errors.New("gateId does not match path")
	}
	req := admission.Request{Code: strings.TrimSpace(body.Code), GateID: gateID}

	var claimed string
	if body.DeviceID != nil {
		claimed = strings.TrimSpace(*body.DeviceID)
	}
	switch {
	case subject != "":
		if claimed != "" && claimed != subject {
			return admission.Request{}, errDeviceMismatch
		}
		req.DeviceID = &subject
	case claimed != "":
		req.DeviceID = &claimed
	}
	if body.Gender != nil {
		g, err := model.ParseGender(strings.ToLower(strings.TrimSpace(*body.Gender)))
		if err != nil {
			return admission.Request{}, err
		}
		req.Gender = &g
	}
	if body.Confirm != nil {
		if *body.Confirm != "out" {
			return admission.Request{}, errors.New(`confirm must be "out"`)
		}
		req.ConfirmOut = true
	}
	return req, nil
}

func toScanResp(res admission.Result) scanResp {
	out := scanResp{OK: true, Action: res.Action, TicketID: res.TicketID, Field: res.Field}
	if res.Action == admission.ActionIn || res.Action == admission.ActionOut {
		secs := int64(res.Dwell / time.Second)
		out.DwellSeconds = &secs
	}
	if res.TicketID != 0 {
		t := res.Ticket
		out.Ticket = &t
	}
	return out
}

func (h *ScanHandler) scanError(c echo.Context, gateID uint64, err error) error {
	var rej *admission.Rejection
	switch {
	case errors.As(err, &rej):
		return c.JSON(http.StatusBadRequest, scanErrResp{Error: string(rej.Code)})
	case admission.IsTransient(err):
		h.Logger.Warn("scan hit storage failure", "gate_id", gateID, "err", err)
		return c.JSON(http.StatusServiceUnavailable, scanErrResp{Error: "StorageUnavailable", Retryable: true})
	default:
		h.Logger.Error("scan failed", "gate_id", gateID, "err", err)
		return c.JSON(http.StatusInternalServerError, scanErrResp{Error: "internal"})
	}
}

// ListScans handles GET /v1/tickets/:id/scans.
func (h *ScanHandler) ListScans(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid ticket id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	events, err := h.History.ListByTicket(ctx, id)
	if err != nil {
		h.Logger.Error("list scans failed", "ticket_id", id, "err", err)
		return fail(c, http.StatusInternalServerError, "query failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "items": events})
}
