package sdnctl

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/sdnctl/controlplane/internal/controller"
	"github.com/yanet-platform/sdnctl/controlplane/internal/gateway"
	"github.com/yanet-platform/sdnctl/controlplane/internal/metrics"
	"github.com/yanet-platform/sdnctl/controlplane/internal/netcfg"
	"github.com/yanet-platform/sdnctl/controlplane/internal/southbound"
)

type options struct {
	Log      *zap.SugaredLogger
	LogLevel *zap.AtomicLevel
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// DirectorOption is a function that configures the director.
type DirectorOption func(*options)

// WithLog sets the logger for the director.
func WithLog(log *zap.SugaredLogger) DirectorOption {
	return func(o *options) {
		o.Log = log
	}
}

// WithAtomicLogLevel sets the atomic logger level for the director.
//
// This level can be changed at runtime.
func WithAtomicLogLevel(level *zap.AtomicLevel) DirectorOption {
	return func(o *options) {
		o.LogLevel = level
	}
}

// Director is the entry point of the SDN controller.
//
// It loads the network configuration, wires the controller to the device
// channel and exposes everything through the gateway.
type Director struct {
	cfg        *Config
	controller *controller.Controller
	gateway    *gateway.Gateway
	metrics    *metrics.Server
	log        *zap.SugaredLogger
}

// NewDirector creates a new director using specified config.
func NewDirector(cfg *Config, options ...DirectorOption) (*Director, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	log := opts.Log
	log.Infof("initializing SDN controller ...")
	log.Debugw("parsed config", zap.Any("config", cfg))

	netCfg := netcfg.LoadOrEmpty(cfg.NetworkConfigPath, log)
	registry := metrics.NewRegistry()
	hub := southbound.NewHub(cfg.Southbound.QueueSize)

	ctrl := controller.NewController(
		netCfg,
		hub,
		controller.WithLog(log.Named("controller")),
		controller.WithMetrics(registry),
		controller.WithQueueSize(cfg.Controller.QueueSize),
	)

	gw := gateway.NewGateway(
		cfg.Gateway,
		southbound.NewService(hub, ctrl, southbound.WithLog(log.Named("southbound"))),
		ctrl,
		gateway.WithLog(log.Named("gateway")),
		gateway.WithAtomicLogLevel(opts.LogLevel),
	)

	var metricsServer *metrics.Server
	if cfg.Metrics.Endpoint != "" {
		metricsServer = metrics.NewServer(cfg.Metrics.Endpoint, registry, log.Named("metrics"))
	}

	return &Director{
		cfg:        cfg,
		controller: ctrl,
		gateway:    gw,
		metrics:    metricsServer,
		log:        log,
	}, nil
}

// Run runs the controller until the specified context is canceled.
func (m *Director) Run(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return m.controller.Run(ctx)
	})
	wg.Go(func() error {
		return m.gateway.Run(ctx)
	})
	if m.metrics != nil {
		wg.Go(func() error {
			return m.metrics.Run(ctx)
		})
	}

	return wg.Wait()
}
