package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/claudia-labs/claudia/internal/bridge"
	"github.com/claudia-labs/claudia/internal/config"
	"github.com/claudia-labs/claudia/internal/instrumentation"
	"github.com/claudia-labs/claudia/internal/msgraph"
	"github.com/claudia-labs/claudia/internal/tokens"
)

// ServerContext bundles the shared dependencies of the MCP server: the
// credential manager, the Graph client, the provider bridge, and the
// observability plumbing. Tool handlers reach everything through it.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg     config.Config
	manager *tokens.Manager
	graph   *msgraph.Client
	invoker *bridge.Invoker
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// Deps are the dependencies a ServerContext is built from.
type Deps struct {
	Config  config.Config
	Manager *tokens.Manager
	Graph   *msgraph.Client
	Invoker *bridge.Invoker
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// NewServerContext creates a server context wired to the given dependencies.
func NewServerContext(ctx context.Context, deps Deps) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = &instrumentation.Metrics{}
	}
	if deps.Audit == nil {
		deps.Audit = instrumentation.NewAuditLogger(deps.Logger, false)
	}

	return &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		cfg:     deps.Config,
		manager: deps.Manager,
		graph:   deps.Graph,
		invoker: deps.Invoker,
		metrics: deps.Metrics,
		audit:   deps.Audit,
		logger:  deps.Logger,
	}
}

// Context returns the server's lifetime context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the application configuration.
func (sc *ServerContext) Config() config.Config {
	return sc.cfg
}

// TokenManager returns the credential manager.
func (sc *ServerContext) TokenManager() *tokens.Manager {
	return sc.manager
}

// Graph returns the Microsoft Graph client.
func (sc *ServerContext) Graph() *msgraph.Client {
	return sc.graph
}

// Invoker returns the provider bridge invoker.
func (sc *ServerContext) Invoker() *bridge.Invoker {
	return sc.invoker
}

// Metrics returns the metrics recorder. Never nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// Audit returns the audit logger. Never nil.
func (sc *ServerContext) Audit() *instrumentation.AuditLogger {
	return sc.audit
}

// Logger returns the base logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Shutdown marks the server as shutting down and cancels its context.
func (sc *ServerContext) Shutdown() {
	sc.mu.Lock()
	sc.shutdown = true
	sc.mu.Unlock()
	sc.cancel()
}

// IsShutdown reports whether shutdown has begun.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}
