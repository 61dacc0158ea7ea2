// Package server exposes the memory tools over the Model Context Protocol.
// The server speaks MCP over stdio; the conversation layer on the other end
// decides which user and thread each call acts on, so the default scope is
// applied here rather than trusted from the model.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/recallkit/memoryd/session"
	"github.com/recallkit/memoryd/tools"
	"github.com/recallkit/memoryd/tools/schemas"
)

const (
	serverName    = "memoryd"
	serverVersion = "0.1.0"
)

// Server wraps the MCP server and the tool registry behind it.
type Server struct {
	mcp          *mcpserver.MCPServer
	registry     *tools.Registry
	defaultScope session.Scope
	logger       zerolog.Logger
}

// New builds the MCP server and registers every tool from the registry with
// its schema. Tools present in the registry but missing a schema are an
// error: the model would never see them.
func New(registry *tools.Registry, defaultScope session.Scope, logger zerolog.Logger) (*Server, error) {
	logger = logger.With().Str("component", "mcp_server").Logger()

	s := &Server{
		mcp: mcpserver.NewMCPServer(
			serverName,
			serverVersion,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithLogging(),
		),
		registry:     registry,
		defaultScope: defaultScope,
		logger:       logger,
	}

	all := schemas.All()
	names := registry.Names()
	sort.Strings(names)
	for _, name := range names {
		schema, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("no schema for registered tool %q", name)
		}
		if err := s.addTool(name, schema); err != nil {
			return nil, err
		}
	}

	logger.Info().Strs("tools", names).Msg("MCP server ready")
	return s, nil
}

// addTool wires one registry tool into the MCP server.
func (s *Server) addTool(name string, schema schemas.ToolSchema) error {
	rawSchema, err := json.Marshal(schema.Schema)
	if err != nil {
		return fmt.Errorf("marshal schema for tool %q: %w", name, err)
	}

	tool := mcp.NewToolWithRawSchema(name, schema.Description, rawSchema)
	s.mcp.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		ctx = session.WithScope(ctx, s.defaultScope)
		result, err := s.registry.Handle(ctx, name, args)
		if err != nil {
			return mcp.NewToolResultError(tools.RenderError(err)), nil
		}
		return mcp.NewToolResultText(result), nil
	})
	return nil
}

// ServeStdio runs the server over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Info().Msg("Serving MCP over stdio")
	return mcpserver.ServeStdio(s.mcp)
}
