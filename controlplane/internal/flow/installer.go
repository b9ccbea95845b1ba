package flow

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap"

	"github.com/yanet-platform/sdnctl/controlplane/internal/metrics"
	"github.com/yanet-platform/sdnctl/controlplane/internal/ofp"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// Option is a function that configures the installer.
type Option func(*options)

// WithLog configures the installer with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithMetrics configures the installer with a metrics registry.
func WithMetrics(registry *metrics.Registry) Option {
	return func(o *options) {
		o.Metrics = registry
	}
}

// WithClock overrides the time source used to stamp cache entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.Now = now
	}
}

type options struct {
	Log     *zap.SugaredLogger
	Metrics *metrics.Registry
	Now     func() time.Time
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
		Now: time.Now,
	}
}

// Installer turns forwarding decisions into device rules.
type Installer struct {
	tx      ofp.Transport
	cache   *Cache
	metrics *metrics.Registry
	now     func() time.Time
	log     *zap.SugaredLogger
}

// NewInstaller creates a new installer sending messages through the
// transport and tracking installed rules in the cache.
func NewInstaller(tx ofp.Transport, cache *Cache, options ...Option) *Installer {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Installer{
		tx:      tx,
		cache:   cache,
		metrics: opts.Metrics,
		now:     opts.Now,
		log:     opts.Log,
	}
}

// Cache returns the flow cache.
func (m *Installer) Cache() *Cache {
	return m.cache
}

// Covered reports whether a rule for the destination is already installed
// on the device.
func (m *Installer) Covered(device topology.DeviceID, dst netip.Addr) bool {
	_, ok := m.cache.Lookup(Key{Device: device, Dst: dst.Unmap()})
	return ok
}

// InstallMissRule installs the lowest-priority catch-all rule sending
// unmatched packets to the controller untruncated.
func (m *Installer) InstallMissRule(device topology.DeviceID) error {
	msg := &ofp.FlowMod{
		Priority: ofp.PriorityMiss,
		Actions:  []ofp.Action{ofp.OutputToController()},
		BufferID: ofp.NoBuffer,
	}
	if err := m.send(device, msg); err != nil {
		return fmt.Errorf("failed to install miss rule: %w", err)
	}

	m.metrics.RecordFlowMod("miss")
	m.log.Debugw("installed miss rule", zap.Stringer("device", device))
	return nil
}

// Install installs a forwarding rule on the device and marks the rule
// destination as covered.
func (m *Installer) Install(
	device topology.DeviceID,
	match ofp.Match,
	actions []ofp.Action,
	bufferID uint32,
) error {
	match.IPv4Dst = match.IPv4Dst.Unmap()
	msg := &ofp.FlowMod{
		Priority: ofp.PriorityForward,
		Match:    match,
		Actions:  actions,
		BufferID: bufferID,
	}
	if err := m.send(device, msg); err != nil {
		return fmt.Errorf("failed to install rule %s: %w", match, err)
	}
	m.metrics.RecordFlowMod("add")

	if match.IPv4Dst.IsValid() {
		m.cache.Store(Key{Device: device, Dst: match.IPv4Dst}, Entry{
			Device:      device,
			Dst:         match.IPv4Dst,
			InPort:      match.InPort,
			OutPort:     outputPort(actions),
			InstalledAt: m.now(),
		})
		m.metrics.SetFlowCacheEntries(m.cache.Len())
	}

	m.log.Infow("installed rule",
		zap.Stringer("device", device),
		zap.Stringer("flow", msg),
	)
	return nil
}

// ForwardMatch returns the match of a forwarding rule for IPv4 packets
// entering through inPort towards dst.
func ForwardMatch(inPort uint32, dst netip.Addr) ofp.Match {
	return ofp.Match{
		InPort:    inPort,
		EtherType: layers.EthernetTypeIPv4,
		IPv4Dst:   dst.Unmap(),
	}
}

// PacketOut sends a packet through the device applying the actions.
//
// If bufferID references a packet buffered on the device, data is not sent.
func (m *Installer) PacketOut(
	device topology.DeviceID,
	bufferID uint32,
	inPort uint32,
	actions []ofp.Action,
	data []byte,
) error {
	msg := &ofp.PacketOut{
		BufferID: bufferID,
		InPort:   inPort,
		Actions:  actions,
	}
	if bufferID == ofp.NoBuffer {
		msg.Data = data
	}

	if err := m.send(device, msg); err != nil {
		return fmt.Errorf("failed to send packet out: %w", err)
	}

	m.metrics.RecordPacketOut()
	return nil
}

// ResetAll clears the flow cache and, for every device, deletes all rules
// installed by the controller and reinstalls the miss rule.
//
// Every device is processed even if some of them fail.
func (m *Installer) ResetAll(devices []topology.DeviceID) error {
	m.cache.Clear()
	m.metrics.SetFlowCacheEntries(0)

	var errs []error
	for _, device := range devices {
		msg := &ofp.FlowDelete{
			Priority: ofp.PriorityForward,
			OutPort:  ofp.PortAny,
		}
		if err := m.send(device, msg); err != nil {
			errs = append(errs, fmt.Errorf("failed to reset rules on device %s: %w", device, err))
			continue
		}
		m.metrics.RecordFlowMod("delete")

		if err := m.InstallMissRule(device); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", device, err))
		}
	}

	m.log.Infow("reset rules on all devices", zap.Int("devices", len(devices)))
	return errors.Join(errs...)
}

func (m *Installer) send(device topology.DeviceID, msg ofp.Message) error {
	if err := m.tx.SendControlMessage(device, msg); err != nil {
		m.metrics.RecordTransportError()
		m.log.Warnw("failed to send control message",
			zap.Stringer("device", device),
			zap.Stringer("message", msg),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func outputPort(actions []ofp.Action) uint32 {
	for _, action := range actions {
		if action.Type == ofp.ActionOutput {
			return action.Port
		}
	}
	return 0
}
