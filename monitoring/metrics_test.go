package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitor_TrackScan(t *testing.T) {
	m := NewMonitor("gate-test")

	before := testutil.ToFloat64(scanOutcomes.WithLabelValues("gate-test", "accepted"))
	m.TrackScan("accepted", 120*time.Millisecond)
	m.TrackScan("accepted", 80*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(scanOutcomes.WithLabelValues("gate-test", "accepted")))
}

func TestMonitor_InFlight(t *testing.T) {
	m := NewMonitor("gate-inflight")

	m.ScanStarted()
	m.ScanStarted()
	m.ScanFinished()

	assert.Equal(t, 1.0, testutil.ToFloat64(scansInFlight.WithLabelValues("gate-inflight")))
}

func TestMonitor_Nil(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.TrackScan("error", time.Second)
		m.TrackPurchase("ok")
		m.TrackDocument("ok")
		m.TrackDroppedFrame("duplicate")
	})
}
