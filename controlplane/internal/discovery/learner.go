package discovery

import (
	"net"
	"net/netip"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// Option is a function that configures the learner.
type Option func(*options)

// WithLog configures the learner with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.Now = now
	}
}

type options struct {
	Log *zap.SugaredLogger
	Now func() time.Time
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
		Now: time.Now,
	}
}

// Learner records host observations into the topology graph and the host
// directory.
type Learner struct {
	graph *topology.Graph
	hosts *HostDirectory
	now   func() time.Time
	log   *zap.SugaredLogger
}

// NewLearner creates a new host learner.
func NewLearner(graph *topology.Graph, hosts *HostDirectory, options ...Option) *Learner {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Learner{
		graph: graph,
		hosts: hosts,
		now:   opts.Now,
		log:   opts.Log,
	}
}

// Observe records that the host with the given address and MAC was seen on
// the device port.
//
// The host node is added to the graph only on its first observation, while
// the directory entry is refreshed every time. Re-observing the same triple
// changes nothing but the entry timestamp.
func (m *Learner) Observe(device topology.DeviceID, port uint32, addr netip.Addr, mac net.HardwareAddr) {
	addr = addr.Unmap()

	if m.graph.AddHost(device, port, addr) {
		m.log.Infow("host added to graph",
			zap.Stringer("device", device),
			zap.Uint32("port", port),
			zap.Stringer("addr", addr),
		)
	}

	key := HostKey{Device: device, Addr: addr}
	if prev, ok := m.hosts.Lookup(key); ok && !slices.Equal(prev.MAC, mac) {
		m.log.Infow("host relearned",
			zap.Stringer("device", device),
			zap.Stringer("addr", addr),
			zap.Stringer("prev_mac", prev.MAC),
			zap.Stringer("mac", mac),
		)
	}

	m.hosts.Store(key, HostEntry{
		Device:    device,
		Addr:      addr,
		MAC:       slices.Clone(mac),
		Port:      port,
		UpdatedAt: m.now(),
	})
}
