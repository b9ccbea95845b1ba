package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestBackend(t *testing.T) *remoteBackend {
	t.Helper()

	conn, err := grpc.NewClient("passthrough:///unused", grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	return newRemoteBackend(conn)
}

func TestBackendRegistry_RegisterReturnsReplaced(t *testing.T) {
	registry := NewBackendRegistry()
	first := newTestBackend(t)
	second := newTestBackend(t)

	prev, ok := registry.RegisterBackend("sdntest.Echo", first)
	require.False(t, ok)
	require.Nil(t, prev)

	prev, ok = registry.RegisterBackend("sdntest.Echo", second)
	require.True(t, ok)
	require.Same(t, first, prev)

	backend, ok := registry.GetBackend("sdntest.Echo")
	require.True(t, ok)
	require.Same(t, second, backend)
	require.NoError(t, registry.Close())
}

func TestBackendRegistry_Close(t *testing.T) {
	registry := NewBackendRegistry()
	a := newTestBackend(t)
	b := newTestBackend(t)
	registry.RegisterBackend("sdntest.A", a)
	registry.RegisterBackend("sdntest.B", b)

	require.NoError(t, registry.Close())

	assert.Equal(t, connectivity.Shutdown, a.conn.GetState())
	assert.Equal(t, connectivity.Shutdown, b.conn.GetState())
	assert.Empty(t, registry.Services())
}
