package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/config"
	"github.com/iliyamo/ticket-admission/internal/handler"
	"github.com/iliyamo/ticket-admission/internal/metrics"
	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/repository"
	"github.com/iliyamo/ticket-admission/internal/testutil"
	"github.com/iliyamo/ticket-admission/internal/utils"
)

const secret = "router-secret"

type okScanner struct{}

func (okScanner) Scan(_ context.Context, r admission.Request) (admission.Result, error) {
	return admission.Result{Action: admission.ActionPrompt, TicketID: 1}, nil
}

type noHistory struct{}

func (noHistory) ListByTicket(context.Context, uint64) ([]model.ScanEvent, error) {
	return []model.ScanEvent{}, nil
}

type okIssuer struct{}

func (okIssuer) IssueTickets(context.Context, uint64, uint64, []model.LineItem, []model.Attendee) ([]model.Ticket, error) {
	return []model.Ticket{}, nil
}

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	db := testutil.OpenDB(t)
	e := echo.New()
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RecordScan("in", time.Millisecond)

	RegisterRoutes(e, metrics.Handler(reg))
	RegisterGate(e,
		handler.NewGateAuthHandler(config.Config{JWTSecret: secret, StoreTimeout: time.Second}, repository.NewGateDeviceRepo(db), nil),
		handler.NewScanHandler(okScanner{}, noHistory{}, time.Second, nil),
		secret, nil)
	RegisterCheckout(e, handler.NewIssuanceHandler(okIssuer{}, time.Second, nil), secret)
	return e
}

func call(e *echo.Echo, method, path, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{"eventId":1,"code":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if role != "" {
		var gate uint64
		if role == utils.RoleGate {
			gate = 1
		}
		at, _ := utils.NewAccessToken(secret, "subject", role, gate, 5)
		req.Header.Set("Authorization", "Bearer "+at.Token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	e := newServer(t)

	cases := []struct {
		method, path, role string
		status             int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodPost, "/v1/gate/login", "", http.StatusBadRequest},
		{http.MethodPost, "/v1/gate/1/scan", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/gate/1/scan", utils.RoleCheckout, http.StatusForbidden},
		{http.MethodPost, "/v1/gate/1/scan", utils.RoleGate, http.StatusOK},
		{http.MethodGet, "/v1/tickets/1/scans", utils.RoleGate, http.StatusOK},
		{http.MethodPost, "/v1/orders/1/tickets", utils.RoleGate, http.StatusForbidden},
		{http.MethodPost, "/v1/orders/1/tickets", utils.RoleCheckout, http.StatusCreated},
	}
	for _, tc := range cases {
		rec := call(e, tc.method, tc.path, tc.role)
		assert.Equal(t, tc.status, rec.Code, "%s %s as %q: %s", tc.method, tc.path, tc.role, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := call(newServer(t), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `admission_scans_total{outcome="in"} 1`)
}
