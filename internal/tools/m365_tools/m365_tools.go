// Package m365_tools registers the MCP tools that pass through to the
// external Microsoft 365 provider process.
package m365_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/claudia-labs/claudia/internal/bridge"
	"github.com/claudia-labs/claudia/internal/server"
	"github.com/claudia-labs/claudia/internal/tools/common"
)

// RegisterM365Tools registers the provider pass-through tools.
func RegisterM365Tools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	invokeTool := mcp.NewTool("m365_invoke",
		mcp.WithDescription("Invoke a Microsoft 365 provider tool by name. Available tools: "+
			strings.Join(sortedTools(), ", ")),
		mcp.WithString("tool",
			mcp.Required(),
			mcp.Description("Provider tool name, e.g. 'list-mail-messages'"),
		),
		mcp.WithString("arguments",
			mcp.Description("Tool arguments as a JSON object"),
		),
		mcp.WithString("user",
			mcp.Description("Chat user identifier, recorded in the audit trail"),
		),
	)
	s.AddTool(invokeTool, common.InstrumentedToolHandler("m365_invoke", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleInvoke(ctx, request, sc)
		}))

	statusTool := mcp.NewTool("m365_auth_status",
		mcp.WithDescription("Check whether the Microsoft 365 provider has an authenticated session"),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("m365_auth_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthStatus(ctx, sc)
		}))

	return nil
}

func handleInvoke(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	tool, ok := args["tool"].(string)
	if !ok || tool == "" {
		return mcp.NewToolResultError("tool is required"), nil
	}

	var toolArgs map[string]any
	if raw, ok := args["arguments"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &toolArgs); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("arguments must be a JSON object: %v", err)), nil
		}
	}

	res, err := sc.Invoker().Invoke(ctx, tool, toolArgs)
	if err != nil {
		return nil, err
	}

	if !res.OK {
		return mcp.NewToolResultError(resultMessage(tool, res)), nil
	}
	return mcp.NewToolResultText(string(res.Data)), nil
}

func handleAuthStatus(ctx context.Context, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ok, err := sc.Invoker().CheckAuthentication(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return mcp.NewToolResultText("The Microsoft 365 provider is not authenticated."), nil
	}
	return mcp.NewToolResultText("The Microsoft 365 provider is authenticated and ready."), nil
}

// resultMessage phrases a classified failure for the chat layer. Raw
// provider internals are kept short; the class drives the wording.
func resultMessage(tool string, res bridge.Result) string {
	switch res.Class {
	case bridge.ClassInvalidTool:
		return fmt.Sprintf("Tool %q is not available.", tool)
	case bridge.ClassAuthRequired:
		return "Microsoft 365 authentication is required before this tool can be used."
	case bridge.ClassMaxRetriesExceeded:
		return fmt.Sprintf("Tool %q did not respond after several attempts. Please try again later.", tool)
	default:
		return fmt.Sprintf("Tool %q failed: %s", tool, res.Message)
	}
}

func sortedTools() []string {
	tools := bridge.AvailableTools()
	sort.Strings(tools)
	return tools
}
