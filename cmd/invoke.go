package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudia-labs/claudia/internal/bridge"
)

func newInvokeCmd() *cobra.Command {
	var (
		argsJSON      string
		bridgeCommand string
		timeout       time.Duration
		retries       int
	)

	cmd := &cobra.Command{
		Use:   "invoke <tool>",
		Short: "Invoke one provider tool and print the result",
		Long: `Invoke a single Microsoft 365 provider tool through the bridge and
print the raw result to stdout. Intended for debugging the provider
integration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(args[0], argsJSON, bridgeCommand, timeout, retries)
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().StringVar(&bridgeCommand, "bridge-command", "", "Provider command line. Can also use MCP_BRIDGE_COMMAND env var.")
	cmd.Flags().DurationVar(&timeout, "timeout", bridge.DefaultTimeout, "Per-attempt provider timeout")
	cmd.Flags().IntVar(&retries, "retries", bridge.DefaultMaxRetries, "Additional provider attempts after the first")

	return cmd
}

func runInvoke(tool, argsJSON, bridgeCommand string, timeout time.Duration, retries int) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(false)

	var toolArgs map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
			return fmt.Errorf("--args must be a JSON object: %w", err)
		}
	}

	invoker, err := newInvoker(serveOptions{
		bridgeCommand: bridgeCommand,
		bridgeTimeout: timeout,
		bridgeRetries: retries,
	}, logger, nil)
	if err != nil {
		return err
	}

	res, err := invoker.Invoke(ctx, tool, toolArgs)
	if err != nil {
		return err
	}

	if !res.OK {
		return fmt.Errorf("%s: %s", res.Class, res.Message)
	}

	fmt.Println(string(res.Data))
	return nil
}
