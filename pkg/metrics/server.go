package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the registry over HTTP.
//
// Endpoints:
//   - GET /metrics: Prometheus metrics (OpenMetrics when negotiated)
//   - GET /healthz: liveness probe
type Server struct {
	server       *http.Server
	addr         string
	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":9090"
	Addr string `mapstructure:"addr"`
}

func (c *ServerConfig) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":9090"
	}
}

// NewServer creates a metrics server in a stopped state. Call Start to
// begin serving.
func NewServer(config ServerConfig) *Server {
	config.applyDefaults()

	return &Server{
		server: &http.Server{
			Addr:         config.Addr,
			Handler:      Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		addr: config.Addr,
	}
}

// Handler returns the HTTP handler serving /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()

	if reg := GetRegistry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintln(w, "Metrics collection is disabled")
		})
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintln(w, "ok")
	})

	return mux
}

// Start listens on the configured address and blocks until ctx is
// cancelled or the server fails. Cancellation triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// The cancelled ctx would abort the shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down gracefully. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return shutdownErr
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}
