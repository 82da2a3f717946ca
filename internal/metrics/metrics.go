// Package metrics collects and exposes Prometheus metrics for the gate
// scan path and ticket issuance.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface the admission and issuance services record
// through.
type Recorder interface {
	RecordScan(outcome string, duration time.Duration)
	RecordIssued(count int)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	scans        *prometheus.CounterVec
	scanDuration prometheus.Histogram
	issued       prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_scans_total",
			Help: "Gate scans by outcome (action or rejection code).",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "admission_scan_duration_seconds",
			Help:    "Time spent deciding and writing one gate scan.",
			Buckets: prometheus.DefBuckets,
		}),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admission_tickets_issued_total",
			Help: "Tickets issued with a signed admission code.",
		}),
	}
	reg.MustRegister(c.scans, c.scanDuration, c.issued)
	return c
}

// RecordScan counts one scan outcome and observes its latency.
func (c *Collector) RecordScan(outcome string, duration time.Duration) {
	c.scans.WithLabelValues(outcome).Inc()
	c.scanDuration.Observe(duration.Seconds())
}

// RecordIssued adds count freshly issued tickets.
func (c *Collector) RecordIssued(count int) {
	c.issued.Add(float64(count))
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.  Services default to it when no Recorder is
// configured.
type Nop struct{}

func (Nop) RecordScan(string, time.Duration) {}
func (Nop) RecordIssued(int) {}
