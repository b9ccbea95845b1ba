package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the registry over HTTP.
type Server struct {
	endpoint string
	registry *Registry
	log      *zap.SugaredLogger
}

// NewServer creates a metrics HTTP server listening on the endpoint.
func NewServer(endpoint string, registry *Registry, log *zap.SugaredLogger) *Server {
	return &Server{
		endpoint: endpoint,
		registry: registry,
		log:      log,
	}
}

// Handler returns the HTTP handler serving "/metrics".
func (m *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry.Gatherer(), promhttp.HandlerOpts{}))
	return mux
}

// Run serves metrics until the specified context is canceled.
func (m *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              m.endpoint,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		m.log.Infow("shutting down metrics server", zap.String("addr", m.endpoint))
		if err := server.Shutdown(shutdownCtx); err != nil {
			m.log.Warnw("failed to shut down metrics server", zap.Error(err))
		}
	}()

	m.log.Infow("exposing metrics", zap.String("addr", m.endpoint))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve metrics: %w", err)
	}

	return nil
}
