package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordScan(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordScan("in", 10*time.Millisecond)
	c.RecordScan("in", 20*time.Millisecond)
	c.RecordScan("TicketNotFound", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.scans.WithLabelValues("in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.scans.WithLabelValues("TicketNotFound")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.scanDuration))
}

func TestCollector_RecordIssued(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIssued(3)
	c.RecordIssued(2)
	assert.Equal(t, 5.0, testutil.ToFloat64(c.issued))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordIssued(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.True(t, strings.Contains(string(body), "admission_tickets_issued_total 1"))
}
