package gateway

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yanet-platform/sdnctl/common/go/logging"
)

// LoggingService is a service that exposes logging configuration at runtime.
type LoggingService struct {
	atom *zap.AtomicLevel
	log  *zap.SugaredLogger
}

// NewLoggingService creates a new LoggingService.
func NewLoggingService(atom *zap.AtomicLevel, log *zap.SugaredLogger) *LoggingService {
	return &LoggingService{
		atom: atom,
		log:  log,
	}
}

// UpdateLevel updates the minimum logging level.
func (m *LoggingService) UpdateLevel(
	ctx context.Context,
	req *wrapperspb.StringValue,
) (*emptypb.Empty, error) {
	if m.atom == nil {
		return nil, status.Errorf(codes.Unimplemented, "service doesn't support setting log level dynamically")
	}

	level, err := logging.ParseLevel(req.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to convert logging level: %v", err)
	}

	m.atom.SetLevel(level)
	m.log.Infof("updated log level to %q", level)

	return &emptypb.Empty{}, nil
}
