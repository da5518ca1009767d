package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wspotter/kit/tool"
)

// MCPConfig controls the MCP stdio bridge.
type MCPConfig struct {
	Registry *tool.Registry
	Name     string
	Version  string
	Logger   *slog.Logger
}

// MCPBridge exposes runnable registry tools as MCP tools.
type MCPBridge struct {
	server *server.MCPServer
	tools  []string
}

// NewMCPBridge discovers the current tools and registers every runnable one.
// Each call still goes through Registry.Dispatch, so the registry rescans
// before the tool runs.
func NewMCPBridge(ctx context.Context, cfg MCPConfig) (*MCPBridge, error) {
	if cfg.Registry == nil {
		return nil, errors.New("daemon: registry is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "kit"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	tools, err := cfg.Registry.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("daemon: discover tools: %w", err)
	}

	bridge := &MCPBridge{server: server.NewMCPServer(cfg.Name, cfg.Version)}
	for _, t := range tools {
		if !t.Runnable {
			cfg.Logger.Debug("skipping unrunnable tool", "tool_id", t.ID)
			continue
		}
		_, contract, ok := cfg.Registry.Lookup(t.ID)
		if !ok {
			continue
		}
		schema, err := json.Marshal(contract.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("daemon: encode schema for %s: %w", t.ID, err)
		}
		bridge.server.AddTool(
			mcp.NewToolWithRawSchema(t.ID, t.Description, schema),
			MCPToolHandler(cfg.Registry, t.ID),
		)
		bridge.tools = append(bridge.tools, t.ID)
	}
	return bridge, nil
}

// Tools returns the ids registered with the MCP server, in discovery order.
func (b *MCPBridge) Tools() []string {
	return append([]string(nil), b.tools...)
}

// Server returns the underlying MCP server.
func (b *MCPBridge) Server() *server.MCPServer {
	return b.server
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (b *MCPBridge) ServeStdio() error {
	return server.ServeStdio(b.server)
}

// MCPToolHandler dispatches one MCP tool call through the registry. Dispatch
// errors become MCP tool errors carrying the registry error code.
func MCPToolHandler(registry *tool.Registry, toolID string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := registry.Dispatch(ctx, toolID, req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", tool.ErrorCode(err), err)), nil
		}
		data, err := json.Marshal(result.Result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
