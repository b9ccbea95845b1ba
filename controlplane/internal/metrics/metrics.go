package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons.
const (
	DropMalformed   = "malformed"
	DropLoopback    = "loopback"
	DropNoRoute     = "no_route"
	DropOwnAddress  = "own_address"
	DropUnknownDest = "unknown_destination"
	DropUnresolved  = "unresolved"
	DropNoGateway   = "no_gateway"
	DropUnsupported = "unsupported"
)

// Registry holds all controller metrics.
//
// Every recording method is safe to call on a nil registry, which makes
// metrics optional for components and tests.
type Registry struct {
	// Event metrics
	EventsTotal   *prometheus.CounterVec
	EventDuration *prometheus.HistogramVec

	// Forwarding metrics
	PacketsDroppedTotal *prometheus.CounterVec
	FlowModsTotal       *prometheus.CounterVec
	PacketOutsTotal     prometheus.Counter
	ArpFramesTotal      *prometheus.CounterVec
	TransportErrors     prometheus.Counter

	// State metrics
	TopologyNodes    *prometheus.GaugeVec
	FlowCacheEntries prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a registry with all metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(collectors.NewGoCollector())

	r.initEventMetrics()
	r.initForwardingMetrics()
	r.initStateMetrics()

	return r
}

func (r *Registry) initEventMetrics() {
	r.EventsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdnctl_events_total",
			Help: "Total number of events processed by the controller",
		},
		[]string{"event", "status"},
	)

	r.EventDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdnctl_event_duration_seconds",
			Help:    "Event handling duration in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1.0},
		},
		[]string{"event"},
	)
}

func (r *Registry) initForwardingMetrics() {
	r.PacketsDroppedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdnctl_packets_dropped_total",
			Help: "Total number of packet-in events dropped by the controller",
		},
		[]string{"reason"},
	)

	r.FlowModsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdnctl_flow_mods_total",
			Help: "Total number of flow table modifications sent to devices",
		},
		[]string{"kind"},
	)

	r.PacketOutsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sdnctl_packet_outs_total",
			Help: "Total number of packet-out messages sent to devices",
		},
	)

	r.ArpFramesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdnctl_arp_frames_sent_total",
			Help: "Total number of ARP frames emitted by the controller",
		},
		[]string{"op"},
	)

	r.TransportErrors = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sdnctl_transport_errors_total",
			Help: "Total number of messages the transport failed to accept",
		},
	)
}

func (r *Registry) initStateMetrics() {
	r.TopologyNodes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sdnctl_topology_nodes",
			Help: "Number of nodes in the topology graph",
		},
		[]string{"kind"},
	)

	r.FlowCacheEntries = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sdnctl_flow_cache_entries",
			Help: "Number of destinations covered by installed rules",
		},
	)
}

// Gatherer returns the underlying prometheus gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordEvent records a processed event.
func (r *Registry) RecordEvent(event string, err error, duration time.Duration) {
	if r == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	r.EventsTotal.WithLabelValues(event, status).Inc()
	r.EventDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// RecordDrop records a dropped packet.
func (r *Registry) RecordDrop(reason string) {
	if r == nil {
		return
	}
	r.PacketsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordFlowMod records a flow table modification of the given kind.
func (r *Registry) RecordFlowMod(kind string) {
	if r == nil {
		return
	}
	r.FlowModsTotal.WithLabelValues(kind).Inc()
}

// RecordPacketOut records a packet-out message.
func (r *Registry) RecordPacketOut() {
	if r == nil {
		return
	}
	r.PacketOutsTotal.Inc()
}

// RecordArpFrame records an emitted ARP frame.
func (r *Registry) RecordArpFrame(op string) {
	if r == nil {
		return
	}
	r.ArpFramesTotal.WithLabelValues(op).Inc()
}

// RecordTransportError records a message the transport did not accept.
func (r *Registry) RecordTransportError() {
	if r == nil {
		return
	}
	r.TransportErrors.Inc()
}

// SetTopology updates topology size gauges.
func (r *Registry) SetTopology(devices int, hosts int) {
	if r == nil {
		return
	}
	r.TopologyNodes.WithLabelValues("device").Set(float64(devices))
	r.TopologyNodes.WithLabelValues("host").Set(float64(hosts))
}

// SetFlowCacheEntries updates the flow cache size gauge.
func (r *Registry) SetFlowCacheEntries(n int) {
	if r == nil {
		return
	}
	r.FlowCacheEntries.Set(float64(n))
}
