package sdnctl

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/sdnctl/common/go/logging"
	"github.com/yanet-platform/sdnctl/controlplane/internal/gateway"
)

type Config struct {
	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
	// NetworkConfigPath is the path to the file describing controller-owned
	// interfaces of every device. A missing file means no interfaces.
	NetworkConfigPath string `yaml:"network_config"`
	// Gateway configuration.
	Gateway *gateway.Config `yaml:"gateway"`
	// Metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
	// Controller configuration.
	Controller ControllerConfig `yaml:"controller"`
	// Southbound configuration.
	Southbound SouthboundConfig `yaml:"southbound"`
}

// MetricsConfig is the configuration for the metrics endpoint.
type MetricsConfig struct {
	// Endpoint is the HTTP endpoint metrics are exposed on. Empty disables
	// the endpoint.
	Endpoint string `yaml:"endpoint"`
}

// ControllerConfig is the configuration for the controller event loop.
type ControllerConfig struct {
	// QueueSize is the capacity of the event queue.
	QueueSize int `yaml:"queue_size"`
}

// SouthboundConfig is the configuration for the device channel.
type SouthboundConfig struct {
	// QueueSize is the number of outbound messages buffered per attached
	// device before sends start failing.
	QueueSize int `yaml:"queue_size"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging:           logging.DefaultConfig(),
		NetworkConfigPath: "/etc/sdnctl/network.yaml",
		Gateway:           gateway.DefaultConfig(),
		Metrics: MetricsConfig{
			Endpoint: "[::1]:9090",
		},
		Controller: ControllerConfig{
			QueueSize: 1024,
		},
		Southbound: SouthboundConfig{
			QueueSize: 256,
		},
	}
}

// LoadConfig loads the configuration from the given path.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (m *Config) validate() error {
	if m.Gateway == nil || m.Gateway.Server.Endpoint == "" {
		return fmt.Errorf("gateway endpoint is required")
	}
	if m.Controller.QueueSize <= 0 {
		return fmt.Errorf("controller queue size must be positive, got %d", m.Controller.QueueSize)
	}
	if m.Southbound.QueueSize <= 0 {
		return fmt.Errorf("southbound queue size must be positive, got %d", m.Southbound.QueueSize)
	}
	return nil
}
