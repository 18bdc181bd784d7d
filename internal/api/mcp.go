package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/prefd/prefd/internal/bridge"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Accessor *bridge.Accessor
	Registry *bridge.Registry
}

// NewMCPServer creates an MCP server exposing the settings bridge as tools
// and resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"prefd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("prefd — local settings bridge over a persistent preference store."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_setting",
			mcp.WithDescription("Read a setting by key. Absent keys are reported as present=false, not as errors."),
			mcp.WithString("key", mcp.Description("Setting key"), mcp.Required()),
		),
		mcpGetSetting(deps),
	)

	s.AddTool(
		mcp.NewTool("set_setting",
			mcp.WithDescription("Write a setting. The value is parsed as JSON when possible, otherwise stored as a string. A JSON null deletes the key."),
			mcp.WithString("key", mcp.Description("Setting key"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to store (JSON or plain string)"), mcp.Required()),
		),
		mcpSetSetting(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_setting",
			mcp.WithDescription("Remove a setting. Deleting an absent key succeeds."),
			mcp.WithString("key", mcp.Description("Setting key"), mcp.Required()),
		),
		mcpDeleteSetting(deps),
	)

	s.AddTool(
		mcp.NewTool("list_settings",
			mcp.WithDescription("List all current settings as a JSON object."),
		),
		mcpListSettings(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"settings://constants",
			"Settings Constants",
			mcp.WithResourceDescription("Point-in-time snapshot of all settings captured when the bridge was installed"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceConstants(deps),
	)

	return s
}

func mcpGetSetting(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		value, ok, err := deps.Accessor.GetValue(key)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read setting: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{"key": key, "present": ok, "value": value})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetSetting(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		raw, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		// Accept structured values as JSON text; anything that does not
		// parse is stored as a plain string.
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}

		if err := deps.Accessor.SetValue(key, value); err != nil {
			return mcpError(fmt.Sprintf("failed to set setting: %v", err)), nil
		}

		if value == nil {
			return mcpText(fmt.Sprintf("Deleted %s", key)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", key, raw)), nil
	}
}

func mcpDeleteSetting(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		if err := deps.Accessor.DeleteValues(key); err != nil {
			return mcpError(fmt.Sprintf("failed to delete setting: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted %s", key)), nil
	}
}

func mcpListSettings(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		values, err := deps.Accessor.Values()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list settings: %v", err)), nil
		}

		b, err := json.Marshal(values)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal settings: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceConstants(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Accessor.Constants())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal constants: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "settings://constants",
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
