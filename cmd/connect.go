package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudia-labs/claudia/internal/authflow"
	"github.com/claudia-labs/claudia/internal/config"
	"github.com/claudia-labs/claudia/internal/msauth"
	"github.com/claudia-labs/claudia/internal/tokens"
)

func newConnectCmd() *cobra.Command {
	var (
		addr string
		user string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Run a local OAuth connect server",
		Long: `Run a local HTTP server with the /connect and /callback endpoints and
print the sign-in URL for a user. Useful for connecting accounts during
development without the full serve deployment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(addr, user)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	cmd.Flags().StringVar(&user, "user", "", "Chat user identifier to connect")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runConnect(addr, user string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(false)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	authClient := msauth.NewClient(cfg)
	manager := tokens.NewManager(tokens.NewMemoryStore(), authClient, logger)
	flow := authflow.NewHandler(authClient, manager, logger)

	mux := http.NewServeMux()
	flow.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("Open http://localhost%s/connect?user=%s to sign in.\n", addr, user)
	fmt.Println("Press Ctrl-C to stop.")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("connect server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
