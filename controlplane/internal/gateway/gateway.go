package gateway

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/siderolabs/grpc-proxy/proxy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yanet-platform/sdnctl/controlplane/internal/xgrpc"
	"github.com/yanet-platform/sdnctl/controlplane/sdnpb"
)

// gracefulStopTimeout bounds the time attached switches are given to
// disconnect on shutdown.
const gracefulStopTimeout = 5 * time.Second

type gatewayOptions struct {
	Log      *zap.SugaredLogger
	LogLevel *zap.AtomicLevel
}

func newGatewayOptions() *gatewayOptions {
	return &gatewayOptions{
		Log: zap.NewNop().Sugar(),
	}
}

// GatewayOption is a function that configures the Gateway.
type GatewayOption func(*gatewayOptions)

// WithLog sets the logger for the Gateway.
func WithLog(log *zap.SugaredLogger) GatewayOption {
	return func(o *gatewayOptions) {
		o.Log = log
	}
}

// WithAtomicLogLevel sets the atomic logger level for the Gateway.
//
// This level can be changed at runtime.
func WithAtomicLogLevel(level *zap.AtomicLevel) GatewayOption {
	return func(o *gatewayOptions) {
		o.LogLevel = level
	}
}

// Gateway is the single gRPC entry point of the controller.
//
// It serves the southbound channel switches attach to, the northbound
// inspection and logging services, and proxies calls of any other service
// to the backend registered for it.
type Gateway struct {
	cfg      *Config
	server   *grpc.Server
	registry *BackendRegistry
	log      *zap.SugaredLogger
}

// NewGateway creates a new Gateway.
func NewGateway(
	cfg *Config,
	southbound sdnpb.SouthboundServer,
	inspector StateInspector,
	options ...GatewayOption,
) *Gateway {
	opts := newGatewayOptions()
	for _, o := range options {
		o(opts)
	}
	log := opts.Log
	registry := NewBackendRegistry()

	director := func(ctx context.Context, fullMethodName string) (proxy.Mode, []proxy.Backend, error) {
		service, _, err := xgrpc.ParseFullMethod(fullMethodName)
		if err != nil {
			return proxy.One2One, nil, status.Errorf(codes.NotFound, "malformed gRPC method name: %v", err)
		}

		backend, ok := registry.GetBackend(service)
		if !ok {
			return proxy.One2One, nil, status.Errorf(codes.NotFound, "unknown service %q", service)
		}

		log.Debugf("proxying request %q to %q", fullMethodName, service)

		return proxy.One2One, []proxy.Backend{backend}, nil
	}

	serverOptions := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(xgrpc.AccessLogInterceptor(log)),
		grpc.ChainStreamInterceptor(xgrpc.StreamAccessLogInterceptor(log)),
		grpc.ForceServerCodecV2(proxy.Codec()),
		grpc.UnknownServiceHandler(
			proxy.TransparentHandler(director),
		),
	}
	if size := cfg.Server.MaxRecvMsgSize; size > 0 {
		serverOptions = append(serverOptions, grpc.MaxRecvMsgSize(int(size.Bytes())))
	}

	server := grpc.NewServer(serverOptions...)

	builtIn := func(service string) bool {
		_, ok := server.GetServiceInfo()[service]
		return ok
	}

	gatewayService := NewGatewayService(registry, builtIn, log)
	loggingService := NewLoggingService(opts.LogLevel, log)
	inspectService := NewInspectService(inspector)

	sdnpb.RegisterSouthboundServer(server, southbound)
	log.Infow("registered service", zap.String("service", fmt.Sprintf("%T", southbound)))

	sdnpb.RegisterGatewayServer(server, gatewayService)
	log.Infow("registered service", zap.String("service", fmt.Sprintf("%T", gatewayService)))

	sdnpb.RegisterLoggingServer(server, loggingService)
	log.Infow("registered service", zap.String("service", fmt.Sprintf("%T", loggingService)))

	sdnpb.RegisterInspectServiceServer(server, inspectService)
	log.Infow("registered service", zap.String("service", fmt.Sprintf("%T", inspectService)))

	return &Gateway{
		cfg:      cfg,
		server:   server,
		registry: registry,
		log:      log,
	}
}

// Registry returns the registry of proxied backends.
func (m *Gateway) Registry() *BackendRegistry {
	return m.registry
}

// Run runs the gateway until the specified context is canceled.
func (m *Gateway) Run(ctx context.Context) error {
	m.log.Infof("starting gRPC gateway")

	listener, err := net.Listen("tcp", m.cfg.Server.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize gRPC listener: %w", err)
	}

	return m.Serve(ctx, listener)
}

// Serve accepts connections on the listener until the specified context is
// canceled, then stops gracefully.
func (m *Gateway) Serve(ctx context.Context, listener net.Listener) error {
	m.log.Infow("exposing gRPC gateway", zap.Stringer("addr", listener.Addr()))

	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return m.server.Serve(listener)
	})

	<-ctx.Done()

	m.log.Infow("stopping gRPC gateway", zap.Stringer("addr", listener.Addr()))
	defer m.log.Infow("stopped gRPC gateway", zap.Stringer("addr", listener.Addr()))

	stopped := make(chan struct{})
	go func() {
		m.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(gracefulStopTimeout):
		m.log.Warnw("graceful stop timed out, closing remaining streams")
		m.server.Stop()
		<-stopped
	}

	if err := m.registry.Close(); err != nil {
		m.log.Warnw("failed to close backends", zap.Error(err))
	}

	return wg.Wait()
}
