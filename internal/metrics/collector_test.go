package hubmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	hubmetrics "github.com/bernd-roth/GeoTracker/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := hubmetrics.NewCollector(reg)

	if c.ConnectedClients == nil {
		t.Error("ConnectedClients is nil")
	}
	if c.ActiveSessions == nil {
		t.Error("ActiveSessions is nil")
	}
	if c.TrackedSessions == nil {
		t.Error("TrackedSessions is nil")
	}
	if c.FramesReceived == nil {
		t.Error("FramesReceived is nil")
	}
	if c.PointsIngested == nil {
		t.Error("PointsIngested is nil")
	}
	if c.StoreWriteFailures == nil {
		t.Error("StoreWriteFailures is nil")
	}
	if c.DroppedObservers == nil {
		t.Error("DroppedObservers is nil")
	}

	// Registration must not panic and must be gatherable.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestGaugeMovement(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := hubmetrics.NewCollector(reg)

	c.ConnectedClients.Inc()
	c.ConnectedClients.Inc()
	c.ConnectedClients.Dec()

	if got := gaugeValue(t, c.ConnectedClients); got != 1 {
		t.Errorf("connected clients gauge = %v, want 1", got)
	}

	c.ActiveSessions.Set(7)
	if got := gaugeValue(t, c.ActiveSessions); got != 7 {
		t.Errorf("active sessions gauge = %v, want 7", got)
	}
}

func TestFrameKindCounter(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := hubmetrics.NewCollector(reg)

	c.IncFrame("telemetry")
	c.IncFrame("telemetry")
	c.IncFrame("request_history")

	if got := counterVecValue(t, c.FramesReceived, "telemetry"); got != 2 {
		t.Errorf("telemetry frame counter = %v, want 2", got)
	}
	if got := counterVecValue(t, c.FramesReceived, "request_history"); got != 1 {
		t.Errorf("request_history frame counter = %v, want 1", got)
	}
}

// gaugeValue extracts the current value of a plain gauge.
func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

// counterVecValue extracts the current value of a labeled counter.
func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("get counter with labels %v: %v", labels, err)
	}
	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		t.Fatalf("write counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
