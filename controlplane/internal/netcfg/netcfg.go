package netcfg

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/netip"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// Interface is a gateway interface owned by a device.
type Interface struct {
	// MAC is the hardware address the device answers with for IP.
	MAC net.HardwareAddr
	// IP is the gateway address of the interface.
	IP netip.Addr
	// Subnet is the network reachable behind Port.
	Subnet netip.Prefix
	// Port is the device port facing Subnet.
	Port uint32
}

// Device groups gateway interfaces of a single device, in file order.
type Device struct {
	ID         topology.DeviceID
	Interfaces []Interface
}

// Config is the static network configuration: gateway interfaces per device.
//
// It is immutable after load. Every lookup walks devices and interfaces in
// the order they were declared, so the first declared match wins.
type Config struct {
	devices []Device
	index   map[topology.DeviceID]int
}

// Empty returns a configuration without devices.
func Empty() *Config {
	return &Config{
		index: map[topology.DeviceID]int{},
	}
}

// rawConfig mirrors the on-disk layout.
type rawConfig struct {
	Bridges []rawBridge `yaml:"bridges"`
}

type rawBridge struct {
	DatapathID uint64       `yaml:"datapath_id"`
	Networks   []rawNetwork `yaml:"networks"`
}

type rawNetwork struct {
	MACAddress string `yaml:"mac_address"`
	IPAddress  string `yaml:"ip_address"`
	IPNetwork  string `yaml:"ip_network"`
	Port       uint32 `yaml:"port"`
}

// Load reads the network configuration from the given path.
//
// The file is JSON, which the YAML decoder accepts as well.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network config: %w", err)
	}

	return Parse(buf)
}

// LoadOrEmpty loads the network configuration, falling back to an empty one
// when the file is missing or invalid.
func LoadOrEmpty(path string, log *zap.SugaredLogger) *Config {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warnw("network config file not found, using empty config", zap.String("path", path))
		} else {
			log.Warnw("failed to load network config, using empty config",
				zap.String("path", path),
				zap.Error(err),
			)
		}
		return Empty()
	}

	log.Infow("loaded network config",
		zap.String("path", path),
		zap.Int("devices", len(cfg.devices)),
	)
	return cfg
}

// Parse decodes the network configuration from its serialized form.
func Parse(buf []byte) (*Config, error) {
	raw := rawConfig{}
	if err := yaml.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("failed to deserialize network config: %w", err)
	}

	cfg := Empty()
	for _, bridge := range raw.Bridges {
		id := topology.DeviceID(bridge.DatapathID)

		idx, ok := cfg.index[id]
		if !ok {
			idx = len(cfg.devices)
			cfg.index[id] = idx
			cfg.devices = append(cfg.devices, Device{ID: id})
		}

		for _, network := range bridge.Networks {
			iface, err := network.toInterface()
			if err != nil {
				return nil, fmt.Errorf("invalid network on device %s: %w", id, err)
			}
			cfg.devices[idx].Interfaces = append(cfg.devices[idx].Interfaces, iface)
		}
	}

	return cfg, nil
}

func (m rawNetwork) toInterface() (Interface, error) {
	mac, err := net.ParseMAC(m.MACAddress)
	if err != nil {
		return Interface{}, fmt.Errorf("failed to parse MAC address: %w", err)
	}
	if len(mac) != 6 {
		return Interface{}, fmt.Errorf("unsupported MAC address %q: must be EUI-48", m.MACAddress)
	}

	ip, err := netip.ParseAddr(m.IPAddress)
	if err != nil {
		return Interface{}, fmt.Errorf("failed to parse IP address: %w", err)
	}
	if !ip.Is4() {
		return Interface{}, fmt.Errorf("unsupported IP address %q: must be IPv4", m.IPAddress)
	}

	subnet, err := netip.ParsePrefix(m.IPNetwork)
	if err != nil {
		return Interface{}, fmt.Errorf("failed to parse IP network: %w", err)
	}
	if !subnet.Addr().Is4() {
		return Interface{}, fmt.Errorf("unsupported IP network %q: must be IPv4", m.IPNetwork)
	}

	return Interface{
		MAC:    mac,
		IP:     ip,
		Subnet: subnet.Masked(),
		Port:   m.Port,
	}, nil
}

// Devices returns configured devices in declaration order.
func (m *Config) Devices() []Device {
	return m.devices
}

// Interfaces returns the gateway interfaces of a device.
func (m *Config) Interfaces(id topology.DeviceID) []Interface {
	idx, ok := m.index[id]
	if !ok {
		return nil
	}
	return m.devices[idx].Interfaces
}

// InterfaceByIP returns the interface of the device that owns the address.
func (m *Config) InterfaceByIP(id topology.DeviceID, addr netip.Addr) (Interface, bool) {
	addr = addr.Unmap()
	for _, iface := range m.Interfaces(id) {
		if iface.IP == addr {
			return iface, true
		}
	}
	return Interface{}, false
}

// GatewayFor returns the first interface of the device whose subnet contains
// the address.
func (m *Config) GatewayFor(id topology.DeviceID, addr netip.Addr) (Interface, bool) {
	addr = addr.Unmap()
	for _, iface := range m.Interfaces(id) {
		if iface.Subnet.Contains(addr) {
			return iface, true
		}
	}
	return Interface{}, false
}

// OwnerOf returns the device and interface whose gateway address equals
// addr, searching all devices.
func (m *Config) OwnerOf(addr netip.Addr) (topology.DeviceID, Interface, bool) {
	addr = addr.Unmap()
	for _, dev := range m.devices {
		for _, iface := range dev.Interfaces {
			if iface.IP == addr {
				return dev.ID, iface, true
			}
		}
	}
	return 0, Interface{}, false
}

// SubnetOf returns the first device and interface whose subnet contains
// addr, searching all devices.
func (m *Config) SubnetOf(addr netip.Addr) (topology.DeviceID, Interface, bool) {
	addr = addr.Unmap()
	for _, dev := range m.devices {
		for _, iface := range dev.Interfaces {
			if iface.Subnet.Contains(addr) {
				return dev.ID, iface, true
			}
		}
	}
	return 0, Interface{}, false
}
