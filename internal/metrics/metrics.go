// Package metrics exposes the mesh's prometheus counters and gauges:
// an observability surface around the core replication logic, the way
// a production node would carry one. Grounded on dolthub/dolt's use of
// github.com/prometheus/client_golang for its own server metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the node publishes. A single instance
// is constructed at startup and threaded through the components that
// update it.
type Registry struct {
	PeerTableSize            prometheus.Gauge
	SensorUpdatesApplied     prometheus.Counter
	SensorUpdatesRejected    prometheus.Counter
	OutboundFramesSent       prometheus.Counter
	InboundFramesDecoded     prometheus.Counter
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		PeerTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensor_mesh",
			Name:      "peer_table_size",
			Help:      "Number of peers currently known to this node.",
		}),
		SensorUpdatesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensor_mesh",
			Name:      "sensor_updates_applied_total",
			Help:      "Number of sensor updates accepted by the LWW merge rule.",
		}),
		SensorUpdatesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensor_mesh",
			Name:      "sensor_updates_rejected_total",
			Help:      "Number of sensor updates rejected by the LWW merge rule or validation.",
		}),
		OutboundFramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensor_mesh",
			Name:      "outbound_frames_sent_total",
			Help:      "Number of frames successfully written to a peer socket.",
		}),
		InboundFramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensor_mesh",
			Name:      "inbound_frames_decoded_total",
			Help:      "Number of frames successfully decoded into a Message.",
		}),
	}

	reg.MustRegister(
		r.PeerTableSize,
		r.SensorUpdatesApplied,
		r.SensorUpdatesRejected,
		r.OutboundFramesSent,
		r.InboundFramesDecoded,
	)
	return r
}
