package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/siderolabs/grpc-proxy/proxy"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// BackendRegistry maps service names to the backends calls are proxied to.
type BackendRegistry struct {
	mu       sync.RWMutex
	backends map[string]proxy.Backend
}

// NewBackendRegistry creates a new BackendRegistry.
func NewBackendRegistry() *BackendRegistry {
	return &BackendRegistry{
		backends: map[string]proxy.Backend{},
	}
}

// GetBackend returns a backend for the given service.
//
// Service parameter must be in gRPC format, such as "sdnpb.InspectService".
func (m *BackendRegistry) GetBackend(service string) (proxy.Backend, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	backend, ok := m.backends[service]
	return backend, ok
}

// RegisterBackend registers a backend for the given service, replacing the
// previous one.
//
// The replaced backend, if any, is returned so that the caller can release
// its resources.
func (m *BackendRegistry) RegisterBackend(service string, backend proxy.Backend) (proxy.Backend, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.backends[service]
	m.backends[service] = backend
	return prev, ok
}

// Close releases every registered backend owning a connection and empties
// the registry.
func (m *BackendRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for service, backend := range m.backends {
		if closer, ok := backend.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close backend %q: %w", service, err))
			}
		}
	}
	clear(m.backends)
	return errors.Join(errs...)
}

// remoteBackend proxies calls over a client connection it owns.
type remoteBackend struct {
	*proxy.SingleBackend
	conn *grpc.ClientConn
}

func newRemoteBackend(conn *grpc.ClientConn) *remoteBackend {
	return &remoteBackend{
		SingleBackend: &proxy.SingleBackend{
			GetConn: func(ctx context.Context) (context.Context, *grpc.ClientConn, error) {
				md, _ := metadata.FromIncomingContext(ctx)
				outCtx := metadata.NewOutgoingContext(ctx, md.Copy())

				return outCtx, conn, nil
			},
		},
		conn: conn,
	}
}

// Close closes the backend connection.
func (m *remoteBackend) Close() error {
	return m.conn.Close()
}

// Services returns registered service names in sorted order.
func (m *BackendRegistry) Services() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.backends))
	for service := range m.backends {
		out = append(out, service)
	}
	slices.Sort(out)
	return out
}
