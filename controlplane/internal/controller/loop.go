package controller

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/yanet-platform/sdnctl/controlplane/internal/discovery"
	"github.com/yanet-platform/sdnctl/controlplane/internal/flow"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// View exposes the controller state to inspection callbacks.
//
// It is only valid inside the callback and must not be modified.
type View struct {
	Graph    *topology.Graph
	Hosts    discovery.HostDirectoryView
	Flows    flow.CacheView
	Switches []topology.DeviceID
}

// request is either an event to handle or an inspection to run.
type request struct {
	ev      Event
	inspect func(View)
	done    chan struct{}
}

// Submit enqueues the event for the event loop.
//
// It blocks while the queue is full, until the context is canceled.
func (m *Controller) Submit(ctx context.Context, ev Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.queue <- request{ev: ev}:
		return nil
	}
}

// Inspect runs fn inside the event loop, so it observes the state between
// two events.
//
// It returns once fn completes or the context is canceled.
func (m *Controller) Inspect(ctx context.Context, fn func(View)) error {
	req := request{
		inspect: fn,
		done:    make(chan struct{}),
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.queue <- req:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-req.done:
		return nil
	}
}

// Run processes queued events until the specified context is canceled.
//
// Event handling errors are logged and never stop the loop.
func (m *Controller) Run(ctx context.Context) error {
	m.log.Infow("starting controller event loop", zap.Int("queue_size", cap(m.queue)))
	defer m.log.Infow("stopped controller event loop")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-m.queue:
			m.process(req)
		}
	}
}

func (m *Controller) process(req request) {
	if req.inspect != nil {
		defer close(req.done)
		req.inspect(m.view())
		return
	}

	if err := m.Handle(req.ev); err != nil {
		if errors.Is(err, topology.ErrNoRoute) || errors.Is(err, ErrMalformedPacket) {
			m.log.Infow("dropped event", zap.String("event", req.ev.Kind()), zap.Error(err))
			return
		}
		m.log.Warnw("failed to handle event", zap.Error(err))
	}
}

func (m *Controller) view() View {
	return View{
		Graph:    m.graph,
		Hosts:    m.hosts.View(),
		Flows:    m.installer.Cache().View(),
		Switches: m.switches,
	}
}
