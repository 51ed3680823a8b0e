package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "njoy_scan_outcomes_total",
			Help: "Scan attempts by classified outcome",
		},
		[]string{"gate", "status"},
	)

	scanValidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "njoy_scan_validation_duration_seconds",
			Help:    "Round trip of one scan validation",
			Buckets: prometheus.ExponentialBuckets(0.025, 2, 10),
		},
		[]string{"gate"},
	)

	scansInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "njoy_scans_in_flight",
			Help: "Validations currently awaiting a response",
		},
		[]string{"gate"},
	)

	framesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "njoy_scan_frames_dropped_total",
			Help: "Decoded frames not submitted",
		},
		[]string{"gate", "reason"},
	)

	purchaseRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "njoy_purchase_requests_total",
			Help: "Ticket purchase attempts",
		},
		[]string{"status"},
	)

	documentsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "njoy_documents_rendered_total",
			Help: "Ticket documents rendered",
		},
		[]string{"status"},
	)
)

type Monitor struct {
	gate string
}

func NewMonitor(gateID string) *Monitor {
	return &Monitor{gate: gateID}
}

// Track scan outcome and its validation round trip
func (m *Monitor) TrackScan(status string, duration time.Duration) {
	if m == nil {
		return
	}
	scanOutcomes.WithLabelValues(m.gate, status).Inc()
	scanValidationDuration.WithLabelValues(m.gate).Observe(duration.Seconds())
}

func (m *Monitor) ScanStarted() {
	if m == nil {
		return
	}
	scansInFlight.WithLabelValues(m.gate).Inc()
}

func (m *Monitor) ScanFinished() {
	if m == nil {
		return
	}
	scansInFlight.WithLabelValues(m.gate).Dec()
}

// Track frames the session decided not to submit
func (m *Monitor) TrackDroppedFrame(reason string) {
	if m == nil {
		return
	}
	framesDropped.WithLabelValues(m.gate, reason).Inc()
}

func (m *Monitor) TrackPurchase(status string) {
	if m == nil {
		return
	}
	purchaseRequests.WithLabelValues(status).Inc()
}

func (m *Monitor) TrackDocument(status string) {
	if m == nil {
		return
	}
	documentsRendered.WithLabelValues(status).Inc()
}
