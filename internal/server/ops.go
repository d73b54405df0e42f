package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/claudia-labs/claudia/internal/logging"
)

const (
	// DefaultOpsAddr is the default bind address for the operational
	// endpoints.
	DefaultOpsAddr = ":9090"

	opsReadHeaderTimeout = 10 * time.Second
	opsWriteTimeout      = 30 * time.Second
	opsIdleTimeout       = 60 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// RouteRegistrar mounts additional routes on the ops mux. The OAuth
// authorization flow registers its /connect and /callback here so the
// sign-in redirect shares a listener with the probes.
type RouteRegistrar interface {
	Register(mux *http.ServeMux)
}

// OpsServer serves the operational HTTP surface on a port separate from
// the MCP transport: Prometheus metrics, health probes, and the OAuth
// authorization flow.
type OpsServer struct {
	httpServer *http.Server
	addr       string
	metrics    http.Handler
	registrars []RouteRegistrar
	sc         *ServerContext
}

// NewOpsServer creates an ops server. metricsHandler may be nil when
// instrumentation is disabled; the /metrics route is then omitted.
func NewOpsServer(addr string, sc *ServerContext, metricsHandler http.Handler, registrars ...RouteRegistrar) *OpsServer {
	if addr == "" {
		addr = DefaultOpsAddr
	}
	return &OpsServer{
		addr:       addr,
		metrics:    metricsHandler,
		registrars: registrars,
		sc:         sc,
	}
}

// Start runs the server until it is shut down. Call in a goroutine for
// non-blocking operation.
func (s *OpsServer) Start() error {
	mux := http.NewServeMux()

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	health := NewHealthChecker(s.sc)
	health.Register(mux)

	for _, r := range s.registrars {
		r.Register(mux)
	}

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: opsReadHeaderTimeout,
		WriteTimeout:      opsWriteTimeout,
		IdleTimeout:       opsIdleTimeout,
	}

	s.sc.Logger().Info("starting ops server",
		logging.Operation("ops_server"),
		"addr", s.addr,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *OpsServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured bind address.
func (s *OpsServer) Addr() string {
	return s.addr
}
