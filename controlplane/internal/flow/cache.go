package flow

import (
	"net/netip"
	"time"

	"github.com/yanet-platform/sdnctl/controlplane/internal/discovery"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// Key identifies a destination covered by a rule on a device.
type Key struct {
	Device topology.DeviceID
	Dst    netip.Addr
}

// Entry describes an installed forwarding rule.
type Entry struct {
	Device topology.DeviceID
	Dst    netip.Addr
	// InPort is the ingress port the rule matches.
	InPort uint32
	// OutPort is the egress port of the rule.
	OutPort uint32
	// InstalledAt is the time the rule was sent to the device.
	InstalledAt time.Time
}

// Cache is the per-device set of destinations already covered by an
// installed rule.
//
// It is only ever cleared as a whole: any topology mutation invalidates all
// of it.
type Cache = discovery.Cache[Key, Entry]

// CacheView is a read-only snapshot of the flow cache.
type CacheView = discovery.CacheView[Key, Entry]

// NewCache creates an empty flow cache.
func NewCache() *Cache {
	return discovery.NewEmptyCache[Key, Entry]()
}
