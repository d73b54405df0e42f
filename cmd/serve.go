package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/claudia-labs/claudia/internal/authflow"
	"github.com/claudia-labs/claudia/internal/bridge"
	"github.com/claudia-labs/claudia/internal/config"
	"github.com/claudia-labs/claudia/internal/instrumentation"
	"github.com/claudia-labs/claudia/internal/msauth"
	"github.com/claudia-labs/claudia/internal/msgraph"
	"github.com/claudia-labs/claudia/internal/server"
	"github.com/claudia-labs/claudia/internal/tokens"
	"github.com/claudia-labs/claudia/internal/tools/calendar_tools"
	"github.com/claudia-labs/claudia/internal/tools/m365_tools"
)

// defaultBridgeCommand launches the external Microsoft 365 MCP provider.
const defaultBridgeCommand = "npx @softeria/ms-365-mcp-server"

type serveOptions struct {
	transport     string
	httpAddr      string
	opsAddr       string
	debug         bool
	storeBackend  string
	redisURL      string
	redisPrefix   string
	bridgeCommand string
	bridgeTimeout time.Duration
	bridgeRetries int
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the assistant core as an MCP server.

The stdio transport is for local AI assistant integration. The
streamable-http transport is for hosted deployments; it also starts an
operational HTTP server with Prometheus metrics, health probes and the
OAuth connect/callback endpoints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", ":8080", "Address for the streamable-http transport")
	cmd.Flags().StringVar(&opts.opsAddr, "ops-addr", server.DefaultOpsAddr, "Address for metrics, health and OAuth endpoints")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.storeBackend, "store", "memory", "Credential store backend: memory or redis")
	cmd.Flags().StringVar(&opts.redisURL, "redis-url", "", "Redis URL for the redis store backend. Can also use REDIS_URL env var.")
	cmd.Flags().StringVar(&opts.redisPrefix, "redis-prefix", "", "Key prefix for the redis store backend")
	cmd.Flags().StringVar(&opts.bridgeCommand, "bridge-command", "", "Provider command line. Can also use MCP_BRIDGE_COMMAND env var.")
	cmd.Flags().DurationVar(&opts.bridgeTimeout, "bridge-timeout", bridge.DefaultTimeout, "Per-attempt provider timeout")
	cmd.Flags().IntVar(&opts.bridgeRetries, "bridge-retries", bridge.DefaultMaxRetries, "Additional provider attempts after the first")

	return cmd
}

func runServe(opts serveOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(opts.debug)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	provider, err := instrumentation.NewProvider(ctx,
		instrumentation.ConfigFromEnv("claudia", version))
	if err != nil {
		return fmt.Errorf("initialize instrumentation: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("instrumentation shutdown failed", "error", err)
		}
	}()

	store, err := newStore(opts)
	if err != nil {
		return err
	}

	metrics := provider.Metrics()

	authClient := msauth.NewClient(cfg)
	manager := tokens.NewManager(store, authClient, logger)
	manager.SetMetrics(metrics)
	graph := msgraph.NewClient(logger)
	graph.SetMetrics(metrics)

	invoker, err := newInvoker(opts, logger, metrics)
	if err != nil {
		return err
	}

	sc := server.NewServerContext(ctx, server.Deps{
		Config:  cfg,
		Manager: manager,
		Graph:   graph,
		Invoker: invoker,
		Metrics: metrics,
		Audit: instrumentation.NewAuditLogger(logger,
			instrumentation.ConfigFromEnv("claudia", version).AuditEnabled),
		Logger: logger,
	})
	defer sc.Shutdown()

	mcpSrv := mcpserver.NewMCPServer("claudia", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, sc); err != nil {
		return fmt.Errorf("register calendar tools: %w", err)
	}
	if err := m365_tools.RegisterM365Tools(mcpSrv, sc); err != nil {
		return fmt.Errorf("register provider tools: %w", err)
	}

	switch opts.transport {
	case "stdio":
		return runStdio(mcpSrv)
	case "streamable-http":
		return runStreamableHTTP(ctx, mcpSrv, sc, authClient, provider, opts, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.transport)
	}
}

func runStdio(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("stdio server stopped: %w", err)
	}
	return nil
}

func runStreamableHTTP(
	ctx context.Context,
	mcpSrv *mcpserver.MCPServer,
	sc *server.ServerContext,
	authClient *msauth.Client,
	provider *instrumentation.Provider,
	opts serveOptions,
	logger *slog.Logger,
) error {
	flow := authflow.NewHandler(authClient, sc.TokenManager(), logger)
	ops := server.NewOpsServer(opts.opsAddr, sc, provider.MetricsHandler(), flow)

	opsErr := make(chan error, 1)
	go func() {
		opsErr <- ops.Start()
	}()

	httpSrv := mcpserver.NewStreamableHTTPServer(mcpSrv)
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("starting MCP server", "transport", "streamable-http", "addr", opts.httpAddr)
		if err := httpSrv.Start(opts.httpAddr); err != nil && err != http.ErrServerClosed {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("MCP server: %w", err)
		}
	case err := <-opsErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("MCP server shutdown failed", "error", err)
	}
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", "error", err)
	}
	return nil
}

// newStore builds the credential store for the selected backend.
func newStore(opts serveOptions) (tokens.Store, error) {
	switch opts.storeBackend {
	case "memory", "":
		return tokens.NewMemoryStore(), nil
	case "redis":
		url := opts.redisURL
		if url == "" {
			url = os.Getenv("REDIS_URL")
		}
		if url == "" {
			return nil, fmt.Errorf("redis store requires --redis-url or REDIS_URL")
		}
		redisOpts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		return tokens.NewRedisStore(redis.NewClient(redisOpts), opts.redisPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s (supported: memory, redis)", opts.storeBackend)
	}
}

// newInvoker builds the provider bridge from flags and environment.
func newInvoker(opts serveOptions, logger *slog.Logger, metrics *instrumentation.Metrics) (*bridge.Invoker, error) {
	command := opts.bridgeCommand
	if command == "" {
		command = os.Getenv("MCP_BRIDGE_COMMAND")
	}
	if command == "" {
		command = defaultBridgeCommand
	}

	runner, err := bridge.NewExecRunner(command, nil)
	if err != nil {
		return nil, fmt.Errorf("configure provider bridge: %w", err)
	}
	return bridge.NewInvoker(runner, bridge.Options{
		Timeout:    opts.bridgeTimeout,
		MaxRetries: opts.bridgeRetries,
		Metrics:    metrics,
	}, logger), nil
}

// newLogger creates the process logger. Logs always go to stderr so the
// stdio MCP transport keeps stdout for the protocol.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
