package southbound

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/yanet-platform/sdnctl/controlplane/internal/controller"
	"github.com/yanet-platform/sdnctl/controlplane/internal/ofp"
	"github.com/yanet-platform/sdnctl/controlplane/sdnpb"
)

const testTimeout = 10 * time.Second

type chanSink struct {
	events chan controller.Event
}

func (m *chanSink) Submit(ctx context.Context, ev controller.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.events <- ev:
		return nil
	}
}

func startServer(t *testing.T, svc *Service) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	sdnpb.RegisterSouthboundServer(server, svc)
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a value")
		panic("unreachable")
	}
}

func TestAttach(t *testing.T) {
	hub := NewHub(16)
	sink := &chanSink{events: make(chan controller.Event, 16)}
	conn := startServer(t, NewService(hub, sink))

	commands := make(chan *Command, 16)
	client := NewClient(conn, func(cmd *Command) {
		commands <- cmd
	})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	wg, ctx := errgroup.WithContext(ctx)
	clientCtx, stopClient := context.WithCancel(ctx)
	wg.Go(func() error {
		return client.Run(clientCtx)
	})

	require.NoError(t, client.Send(ctx, &controller.SwitchFeatures{Device: 7}))
	require.Equal(t, &controller.SwitchFeatures{Device: 7}, receive(t, sink.events))
	require.Equal(t, 1, hub.Devices())

	flowDelete := &ofp.FlowDelete{Priority: ofp.PriorityForward, OutPort: ofp.PortAny}
	require.NoError(t, hub.SendControlMessage(7, flowDelete))
	require.Equal(t, &Command{Device: 7, Message: flowDelete}, receive(t, commands))

	require.NoError(t, hub.SendRawPacket(7, 3, []byte{1, 2, 3}))
	require.Equal(t, &Command{Device: 7, Raw: &RawPacket{Port: 3, Data: []byte{1, 2, 3}}}, receive(t, commands))

	require.ErrorIs(t, hub.SendRawPacket(8, 1, nil), ErrDeviceNotAttached)

	// Devices of a closed stream are reported as left.
	stopClient()
	require.Equal(t, &controller.SwitchLeave{Device: 7}, receive(t, sink.events))
	require.Eventually(t, func() bool {
		return hub.Devices() == 0
	}, testTimeout, 10*time.Millisecond)

	require.ErrorIs(t, wg.Wait(), context.Canceled)
}

func TestAttach_SkipsInvalidEvents(t *testing.T) {
	hub := NewHub(16)
	sink := &chanSink{events: make(chan controller.Event, 16)}
	conn := startServer(t, NewService(hub, sink))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	stream, err := sdnpb.NewSouthboundClient(conn).Attach(ctx)
	require.NoError(t, err)

	invalid, err := EncodeEvent(&controller.SwitchFeatures{Device: 1})
	require.NoError(t, err)
	delete(invalid.Fields, "device")
	require.NoError(t, stream.Send(invalid))

	valid, err := EncodeEvent(&controller.SwitchLeave{Device: 1})
	require.NoError(t, err)
	require.NoError(t, stream.Send(valid))

	require.Equal(t, &controller.SwitchLeave{Device: 1}, receive(t, sink.events))
	require.Zero(t, hub.Devices())
	require.NoError(t, stream.CloseSend())
}
