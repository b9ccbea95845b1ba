package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/siderolabs/grpc-proxy/proxy"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// GatewayService lets external tools extend the gateway with their own gRPC
// services, which are then proxied transparently.
type GatewayService struct {
	registry *BackendRegistry
	builtIn  func(service string) bool
	log      *zap.SugaredLogger
}

// NewGatewayService creates a new GatewayService.
//
// Names for which builtIn returns true are served by the gateway itself and
// cannot be registered.
func NewGatewayService(registry *BackendRegistry, builtIn func(service string) bool, log *zap.SugaredLogger) *GatewayService {
	return &GatewayService{
		registry: registry,
		builtIn:  builtIn,
		log:      log,
	}
}

// Register registers a new backend service in the gateway.
func (m *GatewayService) Register(
	ctx context.Context,
	request *structpb.Struct,
) (*emptypb.Empty, error) {
	name := request.GetFields()["name"].GetStringValue()
	endpoint := request.GetFields()["endpoint"].GetStringValue()

	if name == "" || endpoint == "" {
		return nil, status.Error(codes.InvalidArgument, "both service name and endpoint are required")
	}
	if m.builtIn(name) {
		return nil, status.Errorf(codes.AlreadyExists, "service %q is served by the gateway itself", name)
	}

	m.log.Infow("registering backend", zap.String("service", name), zap.String("endpoint", endpoint))

	conn, err := grpc.NewClient(
		"passthrough:target",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			dialer := net.Dialer{}
			if strings.HasPrefix(endpoint, "/") {
				return dialer.DialContext(ctx, "unix", endpoint)
			}

			return dialer.DialContext(ctx, "tcp", endpoint)
		}),
		grpc.WithDefaultCallOptions(grpc.ForceCodecV2(proxy.Codec())),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client to backend: %w", err)
	}

	prev, ok := m.registry.RegisterBackend(name, newRemoteBackend(conn))
	if ok {
		if closer, ok := prev.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				m.log.Warnw("failed to close replaced backend", zap.String("service", name), zap.Error(err))
			}
		}
	}

	return &emptypb.Empty{}, nil
}
