package bridge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// killGrace is how long a provider process gets to exit after its context
// is cancelled before it is killed outright.
const killGrace = 5 * time.Second

// Runner executes one request/response exchange with the provider process.
// The payload is written to the provider's stdin and its stdout is returned
// once it exits.
type Runner interface {
	Run(ctx context.Context, payload []byte) ([]byte, error)
}

// ExecRunner launches the provider as a one-shot subprocess per exchange.
// The provider authenticates on its own; no tokens cross this boundary.
type ExecRunner struct {
	// Command is the provider command line, e.g.
	// "npx @softeria/ms-365-mcp-server".
	Command []string

	// Env is appended to the inherited environment.
	Env []string
}

// NewExecRunner parses a space-separated command line into a runner.
func NewExecRunner(commandLine string, env []string) (*ExecRunner, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("provider command is empty")
	}
	return &ExecRunner{Command: fields, Env: env}, nil
}

// Run starts the provider, writes the payload to its stdin, and returns its
// stdout after it exits. Context cancellation kills the process after a
// short grace period.
func (r *ExecRunner) Run(ctx context.Context, payload []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("provider process: %w", ctx.Err())
		}
		return nil, fmt.Errorf("provider process: %w (stderr: %s)", err, truncate(stderr.String(), 512))
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, fmt.Errorf("provider process produced no output")
	}
	return out, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
