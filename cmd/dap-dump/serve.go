package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-dump/internal/config"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/mcp"
	"github.com/ctagard/dap-dump/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol server on stdin/stdout.

Tools:
  dump_attach          Attach gdb or lldb to a process
  dump_fetch           Dump variables and watch expressions
  dump_layouts         List private layout descriptors
  dump_list_sessions   List active sessions
  dump_disconnect      Detach from a session

Add to an MCP client configuration:

  {
    "mcpServers": {
      "dap-dump": {"command": "dap-dump", "args": ["serve"]}
    }
  }`,
	RunE: runServe,
}

var serveMode string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveMode, "mode", "",
		"Capability mode: 'readonly' (no debuggee calls) or 'full' (overrides mode)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	switch config.CapabilityMode(serveMode) {
	case "":
	case config.ModeReadOnly, config.ModeFull:
		cfg.Mode = config.CapabilityMode(serveMode)
	default:
		return errors.InvalidParameter("mode", serveMode, "'readonly' or 'full'")
	}

	logger := newLogger(cfg)
	server, err := mcp.NewServer(cfg, logger)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		server.Close()
		os.Exit(0)
	}()

	logger.Info("dap-dump MCP server starting", "version", version.Version, "mode", cfg.Mode)
	err = server.ServeStdio()
	server.Close()
	return err
}
