package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	// Connection lifecycle
	ConnectionsTotal   prometheus.Counter
	ActiveConnections  prometheus.Gauge
	AdmissionsRejected *prometheus.CounterVec

	// Event routing
	EventsReceived *prometheus.CounterVec
	EventsSent     prometheus.Counter
	EventErrors    *prometheus.CounterVec

	// Rooms
	LiveRooms         prometheus.Gauge
	RoomBroadcasts    prometheus.Counter
	DroppedDeliveries prometheus.Counter

	// Dependencies
	StoreCallDuration  *prometheus.HistogramVec
	VerifyCallDuration prometheus.Histogram
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all relay metrics exactly once.
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "relay_connections_total",
				Help: "Total websocket connections admitted",
			}),
			ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "relay_active_connections",
				Help: "Currently open websocket connections",
			}),
			AdmissionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "relay_admissions_rejected_total",
				Help: "Connection attempts rejected at the gate",
			}, []string{"code"}),
			EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "relay_events_received_total",
				Help: "Inbound events by type",
			}, []string{"type"}),
			EventsSent: promauto.NewCounter(prometheus.CounterOpts{
				Name: "relay_events_sent_total",
				Help: "Outbound events delivered to connections",
			}),
			EventErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "relay_event_errors_total",
				Help: "Event-level errors by code",
			}, []string{"code"}),
			LiveRooms: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "relay_live_rooms",
				Help: "Live broadcast rooms with at least one member",
			}),
			RoomBroadcasts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "relay_room_broadcasts_total",
				Help: "Room-scoped broadcast operations",
			}),
			DroppedDeliveries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "relay_dropped_deliveries_total",
				Help: "Deliveries dropped because a client send buffer was full",
			}),
			StoreCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "relay_store_call_duration_seconds",
				Help:    "Persistence store call latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"op"}),
			VerifyCallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "relay_verify_call_duration_seconds",
				Help:    "Identity verifier call latency during admission",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return instance
}

// Get returns the metrics singleton, initializing it if needed.
func Get() *Metrics {
	return Initialize()
}
