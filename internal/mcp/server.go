// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes the dump engine through MCP tools:
//
// Sessions:
//   - dump_attach: Attach gdb or lldb to a process and prepare a dump session
//   - dump_disconnect: Detach from a session
//   - dump_list_sessions: List active sessions
//
// Dumping:
//   - dump_fetch: Dump local variables and watch expressions
//   - dump_layouts: Show the private layout descriptor table
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/dap-dump/internal/adapters"
	"github.com/ctagard/dap-dump/internal/config"
	"github.com/ctagard/dap-dump/internal/dap"
	"github.com/ctagard/dap-dump/internal/slogutil"
	"github.com/ctagard/dap-dump/internal/version"
)

// Server wraps the MCP server with dump capabilities
type Server struct {
	mcpServer      *server.MCPServer
	sessionManager *dap.SessionManager
	adapterReg     *adapters.Registry
	config         *config.Config
	logger         *slog.Logger
}

// NewServer creates a new dap-dump MCP server. It fails when a layout
// override file cannot be loaded.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	opts, err := dap.NewManagerOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	mcpServer := server.NewMCPServer(
		"dap-dump",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer:      mcpServer,
		sessionManager: dap.NewSessionManager(opts),
		adapterReg:     adapters.NewRegistry(cfg),
		config:         cfg,
		logger:         logger,
	}
	s.registerTools()
	return s, nil
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close detaches every session.
func (s *Server) Close() {
	s.sessionManager.Close()
}

// GetSessionManager returns the session manager
func (s *Server) GetSessionManager() *dap.SessionManager {
	return s.sessionManager
}

// GetAdapterRegistry returns the adapter registry
func (s *Server) GetAdapterRegistry() *adapters.Registry {
	return s.adapterReg
}

func (s *Server) adapterOptions() adapters.Options {
	return adapters.Options{
		RequestTimeout: s.config.RequestTimeout,
		Logger:         s.logger,
	}
}
