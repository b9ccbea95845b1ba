package gateway

import (
	"github.com/c2h5oh/datasize"
)

// Config is the configuration for the gateway.
type Config struct {
	// Server is the configuration for the gateway server.
	Server ServerConfig `yaml:"server"`
}

// ServerConfig is the configuration for the gateway server.
type ServerConfig struct {
	// Endpoint is the endpoint for the gateway server to be exposed on.
	Endpoint string `yaml:"endpoint"`
	// MaxRecvMsgSize limits the size of messages received by the server,
	// including packet-in events carrying full frames.
	MaxRecvMsgSize datasize.ByteSize `yaml:"max_recv_msg_size"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Endpoint:       "[::1]:6653",
			MaxRecvMsgSize: 16 * datasize.MB,
		},
	}
}
