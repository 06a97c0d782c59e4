package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/havenchat/haven/internal/chat"
	"github.com/havenchat/haven/internal/profile"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Profiles *profile.Manager
	Pipeline TurnProcessor
}

// NewMCPServer creates an MCP server exposing the support chat over stdio,
// so agent hosts can hold a conversation and inspect profiles as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"haven",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("haven — local-first mental health support companion with per-user memory."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a message to the support companion and receive its reply."),
			mcp.WithString("user_id", mcp.Description("Stable identifier for the user"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The user's message"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("get_profile",
			mcp.WithDescription("Fetch the support profile the companion keeps for a user."),
			mcp.WithString("user_id", mcp.Description("Stable identifier for the user"), mcp.Required()),
		),
		mcpGetProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("crisis_resources",
			mcp.WithDescription("List crisis hotlines and emergency contacts. Always available, no model involved."),
		),
		mcpCrisisResources(),
	)

	s.AddResource(
		mcp.NewResource(
			"haven://crisis",
			"Crisis Resources",
			mcp.WithResourceDescription("Crisis hotlines and emergency contacts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCrisis(),
	)

	return s
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		result := deps.Pipeline.ProcessTurn(ctx, chat.TurnInput{
			UserID:  userID,
			Message: message,
		})

		return mcpText(result.Response), nil
	}
}

func mcpGetProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		p, err := deps.Profiles.Get(userID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get profile: %v", err)), nil
		}

		b, err := json.Marshal(p)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profile: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCrisisResources() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(CrisisResources)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal resources: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceCrisis() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(CrisisResources)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal resources: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
