package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-dump/internal/config"
	"github.com/ctagard/dap-dump/internal/slogutil"
	"github.com/ctagard/dap-dump/internal/version"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dap-dump",
	Short: "Qt-aware variable dumper for native debuggers",
	Long: `dap-dump attaches gdb or lldb to a stopped process over the Debug Adapter
Protocol and dumps its variables as a tree of typed items. Qt containers,
strings, QVariant and other library types are decoded from raw memory using
per-version private layout tables.

Run "dap-dump serve" to expose the dumper to MCP clients over stdio, or
"dap-dump fetch" for a single dump from the command line.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("dap-dump version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a configuration file (JSON, YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides log.level)")
}

// loadConfig reads --config and applies --log-level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// newLogger logs to stderr; stdout carries documents and MCP traffic.
func newLogger(cfg *config.Config) *slog.Logger {
	return slogutil.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
}
