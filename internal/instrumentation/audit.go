package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/claudia-labs/claudia/internal/logging"
)

// ToolInvocation captures one tool invocation for the audit trail. User
// identity is recorded as an anonymized hash; raw chat user IDs never reach
// the logs.
type ToolInvocation struct {
	// Tool is the invoked tool name.
	Tool string

	// UserHash is the anonymized chat user identifier.
	UserHash string

	// Class is the failure classification when the invocation did not
	// succeed.
	Class string

	// Attempts is how many provider attempts the invocation took.
	Attempts int

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts timing a tool invocation. Call Complete when it
// finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithUser records the anonymized identity of the invoking user.
func (ti *ToolInvocation) WithUser(userID string) *ToolInvocation {
	ti.UserHash = logging.AnonymizeUser(userID)
	return ti
}

// WithSpanContext copies trace identifiers from the active span, if any.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete stops the clock and records the outcome.
func (ti *ToolInvocation) Complete(success bool, class string, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	ti.Class = class
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns the log status string for the outcome.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return logging.StatusSuccess
	}
	return logging.StatusError
}

// LogAttrs returns the invocation as slog attributes.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		logging.Tool(ti.Tool),
		slog.String(logging.KeyUserHash, ti.UserHash),
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	}

	if ti.Class != "" {
		attrs = append(attrs, slog.String(logging.KeyClass, ti.Class))
	}
	if ti.Attempts > 0 {
		attrs = append(attrs, slog.Int(logging.KeyAttempt, ti.Attempts))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, ti.Error))
	}

	return attrs
}

// AuditLogger writes the tool invocation audit trail.
type AuditLogger struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(logger *slog.Logger, enabled bool) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger, enabled: enabled}
}

// LogToolInvocation writes one completed invocation to the audit trail.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if !al.enabled {
		return
	}

	attrs := ti.LogAttrs()
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ti.Success {
		al.logger.Info("tool_executed", args...)
	} else {
		al.logger.Warn("tool_failed", args...)
	}
}
