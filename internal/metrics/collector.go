// Package hubmetrics exposes the tracking hub's Prometheus metrics.
package hubmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "geotracker"
	subsystem = "hub"
)

// labelKind distinguishes inbound frame kinds (telemetry, waypoint, the
// typed requests, heartbeat).
const labelKind = "kind"

// -------------------------------------------------------------------------
// Collector — Prometheus Hub Metrics
// -------------------------------------------------------------------------

// Collector holds all hub Prometheus metrics.
//
// Gauges mirror the hub's in-memory registries; counters track the ingest
// and broadcast volumes the operators alert on (store failures, dropped
// observers, gated coordinates).
type Collector struct {
	// ConnectedClients tracks the number of live connections.
	ConnectedClients prometheus.Gauge

	// ActiveSessions tracks sessions inside the activity timeout.
	ActiveSessions prometheus.Gauge

	// TrackedSessions tracks sessions held in the in-memory history,
	// archived keys included.
	TrackedSessions prometheus.Gauge

	// FramesReceived counts inbound frames by kind.
	FramesReceived *prometheus.CounterVec

	// PointsIngested counts telemetry points accepted into history.
	PointsIngested prometheus.Counter

	// InvalidCoordinates counts frames rejected by the coordinate gate.
	InvalidCoordinates prometheus.Counter

	// SessionResets counts producer restarts detected mid-session.
	SessionResets prometheus.Counter

	// StoreWriteFailures counts persistence failures on the ingest path.
	// In-memory state still advances; this is the durability loss signal.
	StoreWriteFailures prometheus.Counter

	// BroadcastsSent counts outbound broadcast frames, all recipients.
	BroadcastsSent prometheus.Counter

	// DroppedObservers counts connections dropped for backpressure.
	DroppedObservers prometheus.Counter

	// PointsPruned counts history points removed by the retention sweep.
	PointsPruned prometheus.Counter
}

// NewCollector creates a Collector with all hub metrics registered against
// the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ConnectedClients,
		c.ActiveSessions,
		c.TrackedSessions,
		c.FramesReceived,
		c.PointsIngested,
		c.InvalidCoordinates,
		c.SessionResets,
		c.StoreWriteFailures,
		c.BroadcastsSent,
		c.DroppedObservers,
		c.PointsPruned,
	)

	return c
}

// newMetrics creates all metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connected_clients",
			Help:      "Number of live tracking connections.",
		}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Sessions with activity inside the liveness timeout.",
		}),

		TrackedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tracked_sessions",
			Help:      "Sessions held in the in-memory history.",
		}),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total inbound frames by kind.",
		}, []string{labelKind}),

		PointsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "points_ingested_total",
			Help:      "Total telemetry points accepted into history.",
		}),

		InvalidCoordinates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "invalid_coordinates_total",
			Help:      "Total frames rejected by the coordinate gate.",
		}),

		SessionResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_resets_total",
			Help:      "Total producer restarts detected mid-session.",
		}),

		StoreWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_write_failures_total",
			Help:      "Total persistence failures on the ingest path.",
		}),

		BroadcastsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "broadcasts_sent_total",
			Help:      "Total outbound broadcast frames across all recipients.",
		}),

		DroppedObservers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dropped_observers_total",
			Help:      "Total connections dropped for backpressure or send failure.",
		}),

		PointsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "points_pruned_total",
			Help:      "Total history points removed by the retention sweep.",
		}),
	}
}

// IncFrame increments the inbound frame counter for the given kind.
func (c *Collector) IncFrame(kind string) {
	c.FramesReceived.WithLabelValues(kind).Inc()
}
