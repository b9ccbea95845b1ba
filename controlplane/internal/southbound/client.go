package southbound

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yanet-platform/sdnctl/controlplane/internal/controller"
	"github.com/yanet-platform/sdnctl/controlplane/sdnpb"
)

// backoffResetTimeout is how long a stream must stay healthy before the
// reconnect delay starts over.
const backoffResetTimeout = 10 * time.Minute

// CommandHandler is called for every command received by the client.
type CommandHandler func(cmd *Command)

// ClientOption is a function that configures the client.
type ClientOption func(*clientOptions)

// WithClientLog configures the client with a logger.
func WithClientLog(log *zap.SugaredLogger) ClientOption {
	return func(o *clientOptions) {
		o.Log = log
	}
}

// WithMaxReconnectInterval limits the delay between reconnection attempts.
func WithMaxReconnectInterval(interval time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.MaxReconnectInterval = interval
	}
}

// WithClientQueueSize configures the capacity of the outbound event queue.
func WithClientQueueSize(size int) ClientOption {
	return func(o *clientOptions) {
		o.QueueSize = size
	}
}

type clientOptions struct {
	Log                  *zap.SugaredLogger
	MaxReconnectInterval time.Duration
	QueueSize            int
}

func newClientOptions() *clientOptions {
	return &clientOptions{
		Log:                  zap.NewNop().Sugar(),
		MaxReconnectInterval: 30 * time.Second,
		QueueSize:            256,
	}
}

// Client is the event runtime side of the attachment stream.
//
// It delivers events to the controller and hands received commands to the
// handler, re-establishing the stream with exponential backoff whenever it
// breaks.
type Client struct {
	client               *sdnpb.SouthboundClient
	handler              CommandHandler
	events               chan controller.Event
	maxReconnectInterval time.Duration
	log                  *zap.SugaredLogger
}

// NewClient creates a new attachment client over the connection.
func NewClient(conn grpc.ClientConnInterface, handler CommandHandler, options ...ClientOption) *Client {
	opts := newClientOptions()
	for _, o := range options {
		o(opts)
	}

	return &Client{
		client:               sdnpb.NewSouthboundClient(conn),
		handler:              handler,
		events:               make(chan controller.Event, max(opts.QueueSize, 1)),
		maxReconnectInterval: opts.MaxReconnectInterval,
		log:                  opts.Log,
	}
}

// Send enqueues the event for delivery.
//
// Events enqueued while the stream is down are delivered once it is
// re-established.
func (m *Client) Send(ctx context.Context, ev controller.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.events <- ev:
		return nil
	}
}

// Run keeps the attachment stream up until the specified context is
// canceled.
func (m *Client) Run(ctx context.Context) error {
	reconnect := &backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         m.maxReconnectInterval,
	}
	reconnect.Reset()

	for {
		startedAt := time.Now()
		err := m.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(startedAt) > backoffResetTimeout {
			reconnect.Reset()
		}
		delay := reconnect.NextBackOff()
		m.log.Warnw("attachment stream is down, reconnecting",
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (m *Client) serve(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)

	stream, err := m.client.Attach(ctx)
	if err != nil {
		return fmt.Errorf("failed to attach: %w", err)
	}
	m.log.Infow("attached to controller")

	wg.Go(func() error {
		return m.runSender(ctx, stream)
	})
	wg.Go(func() error {
		return m.runReceiver(stream)
	})

	return wg.Wait()
}

func (m *Client) runSender(ctx context.Context, stream grpc.BidiStreamingClient[structpb.Struct, structpb.Struct]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			msg, err := EncodeEvent(ev)
			if err != nil {
				m.log.Warnw("failed to encode event", zap.Error(err))
				continue
			}
			if err := stream.Send(msg); err != nil {
				return fmt.Errorf("failed to send %s event: %w", ev.Kind(), err)
			}
		}
	}
}

func (m *Client) runReceiver(stream grpc.BidiStreamingClient[structpb.Struct, structpb.Struct]) error {
	for {
		msg, err := stream.Recv()
		if err != nil {
			return fmt.Errorf("failed to receive command: %w", err)
		}

		cmd, err := DecodeCommand(msg)
		if err != nil {
			m.log.Warnw("failed to decode command", zap.Error(err))
			continue
		}
		m.handler(cmd)
	}
}
