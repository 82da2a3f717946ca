package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-admission/internal/issuance"
	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/repository"
)

// TicketIssuer creates the tickets of a paid order.  *issuance.Service
// implements it.
type TicketIssuer interface {
	IssueTickets(ctx context.Context, orderID, eventID uint64, items []model.LineItem, attendees []model.Attendee) ([]model.Ticket, error)
}

// IssuanceHandler is called by checkout once an order is paid.
type IssuanceHandler struct {
	Issuer  TicketIssuer
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewIssuanceHandler(i TicketIssuer, timeout time.Duration, logger *slog.Logger) *IssuanceHandler {
	if i == nil {
		panic("nil issuer passed to NewIssuanceHandler")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IssuanceHandler{Issuer: i, Timeout: timeout, Logger: logger.With("component", "issuance_handler")}
}

type lineItemReq struct {
	TicketTypeID uint64 `json:"ticketTypeId"`
	Qty          int    `json:"qty"`
}

type attendeeReq struct {
	First  *string `json:"first"`
	Last   *string `json:"last"`
	Gender *string `json:"gender"`
	Phone  *string `json:"phone"`
}

type issueReq struct {
	EventID   uint64        `json:"eventId"`
	LineItems []lineItemReq `json:"lineItems"`
	Attendees []attendeeReq `json:"attendees"`
}

// Issue handles POST /v1/orders/:orderId/tickets.
func (h *IssuanceHandler) Issue(c echo.Context) error {
	orderID, ok := parseID(c, "orderId")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid order id")
	}
	var req issueReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}

	items := make([]model.LineItem, len(req.LineItems))
	for i, li := range req.LineItems {
		items[i] = model.LineItem{TicketTypeID: li.TicketTypeID, Qty: li.Qty}
	}
	attendees := make([]model.Attendee, len(req.Attendees))
	for i, a := range req.Attendees {
		att := model.Attendee{First: trimmed(a.First), Last: trimmed(a.Last), Phone: trimmed(a.Phone)}
		if g := trimmed(a.Gender); g != nil {
			gender, err := model.ParseGender(strings.ToLower(*g))
			if err != nil {
				return fail(c, http.StatusBadRequest, err.Error())
			}
			att.Gender = &gender
		}
		attendees[i] = att
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	tickets, err := h.Issuer.IssueTickets(ctx, orderID, req.EventID, items, attendees)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, echo.Map{"ok": true, "tickets": tickets})
	case errors.Is(err, issuance.ErrInvalidOrder),
		errors.Is(err, issuance.ErrNoLineItems),
		errors.Is(err, issuance.ErrInvalidQuantity),
		errors.Is(err, issuance.ErrTicketTypeMismatch):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrTicketTypeNotFound):
		return fail(c, http.StatusNotFound, err.Error())
	default:
		h.Logger.Error("issuance failed", "order_id", orderID, "err", err)
		return fail(c, http.StatusInternalServerError, "issuance failed")
	}
}

// trimmed returns nil for absent or blank values.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
