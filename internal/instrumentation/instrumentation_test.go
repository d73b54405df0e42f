package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})

	require.NoError(t, err)
	assert.False(t, p.Enabled())
	require.NotNil(t, p.Metrics())
	assert.Nil(t, p.MetricsHandler())

	// No-op recorders must be safe to call.
	p.Metrics().RecordToolInvocation(context.Background(), "calendar_view", "success", "", time.Second)
	p.Metrics().RecordGraphOperation(context.Background(), "calendar_view", "success", time.Second)
	p.Metrics().RecordTokenRefresh(context.Background(), "success")
	p.Metrics().RecordBridgeAttempt(context.Background(), "get-current-user", "tool_error")

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_Enabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{
		Enabled:        true,
		ServiceName:    "claudia-test",
		ServiceVersion: "0.0.0-test",
	})

	require.NoError(t, err)
	defer func() { require.NoError(t, p.Shutdown(context.Background())) }()

	assert.True(t, p.Enabled())
	assert.NotNil(t, p.MetricsHandler())

	p.Metrics().RecordToolInvocation(context.Background(), "calendar_view", "success", "user:abc", 200*time.Millisecond)
	p.Metrics().RecordGraphOperation(context.Background(), "create_event", "error", time.Second)
	p.Metrics().RecordTokenRefresh(context.Background(), "invalid_grant")
	p.Metrics().RecordBridgeAttempt(context.Background(), "send-mail", "max_retries_exceeded")
}

func TestMetrics_NilRecorderIsSafe(t *testing.T) {
	// Components that were never handed a recorder call through a nil
	// pointer; every Record method must tolerate that.
	var m *Metrics

	m.RecordToolInvocation(context.Background(), "calendar_view", "success", "", time.Second)
	m.RecordGraphOperation(context.Background(), "me", "error", time.Second)
	m.RecordTokenRefresh(context.Background(), "transient_failure")
	m.RecordBridgeAttempt(context.Background(), "send-mail", "success")
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg := ConfigFromEnv("claudia", "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "claudia", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.False(t, cfg.DetailedLabels)
	assert.True(t, cfg.AuditEnabled)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("CLAUDIA_OTEL_ENABLED", "false")
	t.Setenv("CLAUDIA_OTEL_DETAILED_LABELS", "true")
	t.Setenv("CLAUDIA_AUDIT_ENABLED", "0")

	cfg := ConfigFromEnv("claudia", "dev")

	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.DetailedLabels)
	assert.False(t, cfg.AuditEnabled)
}

func TestToolInvocation_Lifecycle(t *testing.T) {
	ti := NewToolInvocation("calendar_find_free_slot").
		WithUser("U123")

	assert.NotEmpty(t, ti.UserHash)
	assert.NotEqual(t, "U123", ti.UserHash, "raw user IDs must never appear in audit records")

	ti.Complete(false, "tool_error", errors.New("mailbox not found"))

	assert.False(t, ti.Success)
	assert.Equal(t, "error", ti.Status())
	assert.Equal(t, "mailbox not found", ti.Error)
	assert.GreaterOrEqual(t, ti.Duration, time.Duration(0))
}

func TestToolInvocation_LogAttrs(t *testing.T) {
	ti := NewToolInvocation("m365_invoke").WithUser("U123")
	ti.Attempts = 3
	ti.Complete(false, "max_retries_exceeded", errors.New("provider timed out"))

	attrs := ti.LogAttrs()

	keys := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		keys[a.Key] = true
	}
	assert.True(t, keys["tool"])
	assert.True(t, keys["user_hash"])
	assert.True(t, keys["class"])
	assert.True(t, keys["attempt"])
	assert.True(t, keys["error"])
}

func TestAuditLogger_Disabled(t *testing.T) {
	// A disabled audit logger must not panic on a nil-ish invocation.
	al := NewAuditLogger(nil, false)
	al.LogToolInvocation(NewToolInvocation("x").Complete(true, "", nil))
}
