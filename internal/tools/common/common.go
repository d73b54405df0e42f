// Package common holds helpers shared by the MCP tool packages.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claudia-labs/claudia/internal/instrumentation"
	"github.com/claudia-labs/claudia/internal/logging"
	"github.com/claudia-labs/claudia/internal/server"
	"github.com/claudia-labs/claudia/internal/tokens"
)

// GetUserFromArgs extracts the chat user identifier from tool arguments.
func GetUserFromArgs(args map[string]any) (string, error) {
	user, ok := args["user"].(string)
	if !ok || user == "" {
		return "", fmt.Errorf("user is required")
	}
	return user, nil
}

// TokenForUser resolves a usable access token for the user, translating the
// credential lifecycle errors into messages the chat layer can relay.
func TokenForUser(ctx context.Context, sc *server.ServerContext, userID string) (string, error) {
	token, err := sc.TokenManager().GetValidToken(ctx, userID)
	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, tokens.ErrNotConnected):
		return "", fmt.Errorf("no Microsoft 365 account is connected. Open the /connect link to sign in")
	case errors.Is(err, tokens.ErrReauthorizationRequired):
		return "", fmt.Errorf("your Microsoft 365 session has expired. Open the /connect link to sign in again")
	case errors.Is(err, tokens.ErrTransientExchange):
		return "", fmt.Errorf("Microsoft 365 is temporarily unreachable. Please try again in a moment")
	default:
		return "", fmt.Errorf("could not prepare Microsoft 365 access: %v", err)
	}
}

// InstrumentedToolHandler wraps a tool handler with metrics and audit
// logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(
	toolName string,
	sc *server.ServerContext,
	handler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error),
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx)

		args := request.GetArguments()
		userHash := ""
		if user, ok := args["user"].(string); ok && user != "" {
			invocation.WithUser(user)
			userHash = invocation.UserHash
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := logging.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = logging.StatusError
		}
		invocation.Complete(status == logging.StatusSuccess, "", err)

		sc.Metrics().RecordToolInvocation(ctx, toolName, status, userHash, duration)
		sc.Audit().LogToolInvocation(invocation)

		return result, err
	}
}
