package southbound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yanet-platform/sdnctl/controlplane/internal/controller"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
	"github.com/yanet-platform/sdnctl/controlplane/sdnpb"
)

// leaveTimeout bounds the time spent reporting devices of a closed stream.
const leaveTimeout = 5 * time.Second

// EventSink accepts decoded device events.
type EventSink interface {
	Submit(ctx context.Context, ev controller.Event) error
}

// Option is a function that configures the service.
type Option func(*options)

// WithLog configures the service with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// Service is the Southbound gRPC service.
//
// It forwards events received from attached streams to the sink and
// delivers commands queued in the hub back to the streams.
type Service struct {
	hub  *Hub
	sink EventSink
	log  *zap.SugaredLogger
}

var _ sdnpb.SouthboundServer = (*Service)(nil)

// NewService creates a new Southbound service.
func NewService(hub *Hub, sink EventSink, options ...Option) *Service {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Service{
		hub:  hub,
		sink: sink,
		log:  opts.Log,
	}
}

// Attach serves a single attachment stream until either side closes it.
//
// Once the stream is gone, every device still bound to it is reported to
// the sink as left.
func (m *Service) Attach(stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error {
	s := m.hub.open()
	log := m.log.With(zap.Uint64("session", s.id))

	log.Infow("event runtime attached")
	defer log.Infow("event runtime detached")

	wg, ctx := errgroup.WithContext(stream.Context())
	wg.Go(func() error {
		return m.runReceiver(ctx, stream, s, log)
	})
	wg.Go(func() error {
		return m.runSender(ctx, stream, s)
	})
	err := wg.Wait()

	m.detach(s, log)

	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, context.Canceled), status.Code(err) == codes.Canceled:
		return nil
	default:
		log.Warnw("attachment stream failed", zap.Error(err))
		return status.Errorf(codes.Aborted, "attachment stream failed: %v", err)
	}
}

func (m *Service) runReceiver(
	ctx context.Context,
	stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct],
	s *session,
	log *zap.SugaredLogger,
) error {
	for {
		msg, err := stream.Recv()
		if err != nil {
			// io.EOF also stops the sender.
			return err
		}

		ev, err := DecodeEvent(msg)
		if err != nil {
			log.Warnw("failed to decode event", zap.Error(err))
			continue
		}

		if device, ok := eventDevice(ev); ok && m.hub.bind(device, s) {
			log.Infow("device bound to stream", zap.Stringer("device", device))
		}
		if leave, ok := ev.(*controller.SwitchLeave); ok && m.hub.unbind(leave.Device, s) {
			log.Infow("device unbound from stream", zap.Stringer("device", leave.Device))
		}

		if err := m.sink.Submit(ctx, ev); err != nil {
			return fmt.Errorf("failed to submit %s event: %w", ev.Kind(), err)
		}
	}
}

func (m *Service) runSender(
	ctx context.Context,
	stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct],
	s *session,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.out:
			if err := stream.Send(cmd); err != nil {
				return fmt.Errorf("failed to send command: %w", err)
			}
		}
	}
}

func (m *Service) detach(s *session, log *zap.SugaredLogger) {
	devices := m.hub.close(s)
	if len(devices) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	for _, device := range devices {
		log.Infow("device unbound from stream", zap.Stringer("device", device))
		if err := m.sink.Submit(ctx, &controller.SwitchLeave{Device: device}); err != nil {
			log.Warnw("failed to report device leave",
				zap.Stringer("device", device),
				zap.Error(err),
			)
		}
	}
}

// eventDevice returns the device the event originates from.
func eventDevice(ev controller.Event) (topology.DeviceID, bool) {
	switch ev := ev.(type) {
	case *controller.SwitchFeatures:
		return ev.Device, true
	case *controller.SwitchJoin:
		return ev.Device, true
	case *controller.PortStatus:
		return ev.Device, true
	case *controller.PacketIn:
		return ev.Device, true
	default:
		return 0, false
	}
}
