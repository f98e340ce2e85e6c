package surface

import (
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the mcp-go server and keeps track of what a generated
// Surface registered, so a refreshed surface (after an artefact reload)
// replaces the old primitives without restarting the process.
type Server struct {
	mcpServer *server.MCPServer
	logger    *slog.Logger

	mu           sync.Mutex
	toolNames    []string
	promptNames  []string
	resourceURIs []string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates an MCP server advertising tool, resource, and prompt
// capabilities.
func NewServer(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(true, true),
			server.WithPromptCapabilities(true),
			server.WithRecovery(),
		),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs every primitive of a generated surface.
func (s *Server) Register(surf *Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.register(surf)
}

// Refresh replaces the previously registered primitives with those of a
// freshly generated surface. Used after an artefact store reload.
func (s *Server) Refresh(surf *Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.toolNames) > 0 {
		s.mcpServer.DeleteTools(s.toolNames...)
	}
	if len(s.promptNames) > 0 {
		s.mcpServer.DeletePrompts(s.promptNames...)
	}
	for _, uri := range s.resourceURIs {
		s.mcpServer.RemoveResource(uri)
	}
	s.toolNames = nil
	s.promptNames = nil
	s.resourceURIs = nil

	s.register(surf)
	s.logger.Info("protocol surface refreshed", "primitives", len(surf.Primitives))
}

func (s *Server) register(surf *Surface) {
	for _, entry := range surf.resources {
		s.mcpServer.AddResource(entry.resource, entry.handler)
		s.resourceURIs = append(s.resourceURIs, entry.resource.URI)
	}
	for _, entry := range surf.tools {
		s.mcpServer.AddTool(entry.tool, entry.handler)
		s.toolNames = append(s.toolNames, entry.tool.Name)
	}
	for _, entry := range surf.prompts {
		s.mcpServer.AddPrompt(entry.prompt, entry.handler)
		s.promptNames = append(s.promptNames, entry.prompt.Name)
	}
}

// AddTool installs a runtime-level tool that is not part of a generated
// surface and survives Refresh. The caller owns its lifecycle and removes
// it with DeleteTools when its backing service goes away.
func (s *Server) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
}

// DeleteTools removes runtime-level tools installed with AddTool.
func (s *Server) DeleteTools(names ...string) {
	s.mcpServer.DeleteTools(names...)
}

// ServeStdio starts the server on stdio and blocks.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeStreamableHTTP starts the server on a streamable HTTP listener and
// blocks.
func (s *Server) ServeStreamableHTTP(addr string) error {
	return server.NewStreamableHTTPServer(s.mcpServer).Start(addr)
}
