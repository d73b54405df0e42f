// Package bridge invokes Microsoft 365 tools through an external MCP
// provider process. Each invocation is a one-shot subprocess exchange:
// write a tools/call envelope to stdin, read the reply from stdout,
// classify it, and retry when a replay might help.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/claudia-labs/claudia/internal/instrumentation"
	"github.com/claudia-labs/claudia/internal/logging"
)

// Defaults matching the hosted deployment. Both are overridable through
// Options.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
)

// allowedTools is the closed set of provider tools the assistant may
// invoke. Anything else is rejected before a process is spawned.
var allowedTools = map[string]bool{
	// Calendar
	"list-calendar-events":  true,
	"get-calendar-event":    true,
	"create-calendar-event": true,
	"update-calendar-event": true,
	"delete-calendar-event": true,
	"get-calendar-view":     true,
	"list-calendars":        true,

	// Mail
	"list-mail-messages":        true,
	"send-mail":                 true,
	"get-mail-message":          true,
	"delete-mail-message":       true,
	"list-mail-folders":         true,
	"list-mail-folder-messages": true,

	// Tasks and To Do
	"list-todo-tasks":      true,
	"create-todo-task":     true,
	"update-todo-task":     true,
	"delete-todo-task":     true,
	"get-todo-task":        true,
	"list-todo-task-lists": true,

	// Contacts
	"list-outlook-contacts":  true,
	"get-outlook-contact":    true,
	"create-outlook-contact": true,
	"update-outlook-contact": true,
	"delete-outlook-contact": true,

	// User profile
	"get-current-user": true,

	// OneDrive
	"list-drives":         true,
	"get-drive-root-item": true,
	"list-folder-files":   true,

	// Teams
	"list-chats":         true,
	"get-chat":           true,
	"list-chat-messages": true,
	"send-chat-message":  true,
}

// AvailableTools returns the sorted-by-category allow-list for prompt
// construction.
func AvailableTools() []string {
	tools := make([]string, 0, len(allowedTools))
	for name := range allowedTools {
		tools = append(tools, name)
	}
	return tools
}

// Options configures an Invoker.
type Options struct {
	// Timeout bounds each attempt, not the whole invocation.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// Metrics records every subprocess attempt. Optional.
	Metrics *instrumentation.Metrics
}

// Invoker runs allow-listed provider tools with per-attempt timeouts and
// bounded retries.
type Invoker struct {
	runner     Runner
	timeout    time.Duration
	maxRetries int
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// NewInvoker creates an Invoker over the given runner.
func NewInvoker(runner Runner, opts Options, logger *slog.Logger) *Invoker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		runner:     runner,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Invoke runs one tool call against the provider.
//
// The returned Result is always meaningful; the error return is reserved
// for context cancellation of the overall call. Unknown tools fail
// immediately with ClassInvalidTool and never spawn a process.
func (inv *Invoker) Invoke(ctx context.Context, tool string, args map[string]any) (Result, error) {
	log := logging.WithTool(inv.logger, tool)

	if !allowedTools[tool] {
		log.WarnContext(ctx, "rejected unknown tool", logging.Operation("tool_invoke"))
		return Result{
			Class:   ClassInvalidTool,
			Message: fmt.Sprintf("tool %q is not available", tool),
		}, nil
	}

	payload, err := newRequest(tool, args).encode()
	if err != nil {
		return Result{Class: ClassToolError, Message: err.Error()}, nil
	}

	for attempt := 0; attempt <= inv.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if attempt > 0 {
			log.InfoContext(ctx, "retrying tool invocation",
				logging.Operation("tool_invoke"),
				logging.Attempt(attempt+1),
			)
		}

		dec, runErr := inv.attempt(ctx, payload)
		if runErr != nil {
			inv.metrics.RecordBridgeAttempt(ctx, tool, "transport_failure")
			log.WarnContext(ctx, "provider attempt failed",
				logging.Operation("tool_invoke"),
				logging.Attempt(attempt+1),
				logging.Err(runErr),
			)
			continue
		}
		if dec.retry {
			inv.metrics.RecordBridgeAttempt(ctx, tool, "malformed_response")
			log.WarnContext(ctx, "malformed provider reply",
				logging.Operation("tool_invoke"),
				logging.Attempt(attempt+1),
			)
			continue
		}

		status := logging.StatusSuccess
		class := dec.result.Class
		if dec.result.OK {
			class = "success"
		} else {
			status = logging.StatusError
		}
		inv.metrics.RecordBridgeAttempt(ctx, tool, class)
		log.InfoContext(ctx, "tool invocation finished",
			logging.Operation("tool_invoke"),
			logging.Status(status),
			slog.String(logging.KeyClass, dec.result.Class),
		)
		return dec.result, nil
	}

	log.ErrorContext(ctx, "tool invocation exhausted retries",
		logging.Operation("tool_invoke"),
		logging.Attempt(inv.maxRetries+1),
	)
	return Result{
		Class:   ClassMaxRetriesExceeded,
		Message: fmt.Sprintf("tool %q failed after %d attempts", tool, inv.maxRetries+1),
	}, nil
}

// attempt performs a single exchange under the per-attempt timeout.
func (inv *Invoker) attempt(ctx context.Context, payload []byte) (decision, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	raw, err := inv.runner.Run(attemptCtx, payload)
	if err != nil {
		return decision{}, err
	}
	return classify(raw), nil
}

// CheckAuthentication probes the provider's session by fetching the current
// user profile.
func (inv *Invoker) CheckAuthentication(ctx context.Context) (bool, error) {
	res, err := inv.Invoke(ctx, "get-current-user", nil)
	if err != nil {
		return false, err
	}
	return res.OK, nil
}
