// Package config provides configuration management for dap-dump.
//
// Configuration controls:
//   - Capability mode (readonly vs full): whether dumps may call functions in
//     the debuggee
//   - Dump defaults: child and string limits, call timeout, fallback Qt
//     version and namespace
//   - Layout override files merged over the built-in descriptor table
//   - Adapter settings: paths of gdb and lldb-dap
//   - Safety limits: maximum sessions and idle session timeout
//
// Configuration is read with viper from an optional JSON, YAML or TOML file
// over DefaultConfig. DAPDUMP_* environment variables override both, e.g.
// DAPDUMP_DUMP_MAXNUMCHILD=500.
package config

import (
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/pkg/types"
)

// CapabilityMode defines what a dump may do to the debuggee.
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // memory reads and type queries only
	ModeFull     CapabilityMode = "full"     // debuggee function calls allowed
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "DAPDUMP"

// Config holds the server configuration
type Config struct {
	Mode CapabilityMode `json:"mode" mapstructure:"mode"`

	// Limits for safety
	MaxSessions    int           `json:"maxSessions" mapstructure:"maxSessions"`
	SessionTimeout time.Duration `json:"sessionTimeout" mapstructure:"sessionTimeout"`
	RequestTimeout time.Duration `json:"requestTimeout" mapstructure:"requestTimeout"`

	Dump     DumpConfig     `json:"dump" mapstructure:"dump"`
	Layouts  LayoutsConfig  `json:"layouts" mapstructure:"layouts"`
	Log      LogConfig      `json:"log" mapstructure:"log"`
	Adapters AdapterConfigs `json:"adapters" mapstructure:"adapters"`
}

// DumpConfig holds the per-session dump defaults.
type DumpConfig struct {
	MaxNumChild        int           `json:"maxNumChild" mapstructure:"maxNumChild"`
	DisplayStringLimit int           `json:"displayStringLimit" mapstructure:"displayStringLimit"`
	CallTimeout        time.Duration `json:"callTimeout" mapstructure:"callTimeout"`
	Fancy              bool          `json:"fancy" mapstructure:"fancy"`
	AutoDeref          bool          `json:"autoDeref" mapstructure:"autoDeref"`
	QObjectNames       bool          `json:"qobjectNames" mapstructure:"qobjectNames"`
	PassExceptions     bool          `json:"passExceptions" mapstructure:"passExceptions"`
	// QtVersion is used when the debuggee's version cannot be detected.
	QtVersion string `json:"qtVersion" mapstructure:"qtVersion"`
	// QtNamespace, when set, skips namespace detection.
	QtNamespace string `json:"qtNamespace" mapstructure:"qtNamespace"`
	// TypeCommand prints a type in gdb's ptype/o format; %s is the name.
	TypeCommand string `json:"typeCommand" mapstructure:"typeCommand"`
}

// LayoutsConfig lists descriptor override files.
type LayoutsConfig struct {
	OverrideFiles []string `json:"overrideFiles" mapstructure:"overrideFiles"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"` // text or json
}

// AdapterConfigs holds configuration for each debug adapter
type AdapterConfigs struct {
	GDB  GDBConfig  `json:"gdb" mapstructure:"gdb"`
	LLDB LLDBConfig `json:"lldb" mapstructure:"lldb"`
}

// LLDBConfig holds LLDB-specific configuration
type LLDBConfig struct {
	Path string `json:"path" mapstructure:"path"` // Path to lldb-dap binary (formerly lldb-vscode)
}

// GDBConfig holds GDB-specific configuration
type GDBConfig struct {
	Path string `json:"path" mapstructure:"path"` // Path to gdb binary (requires GDB 14.1+ for DAP support)
}

// findLLDBDap searches for lldb-dap in common locations across platforms
func findLLDBDap() string {
	if path, err := exec.LookPath("lldb-dap"); err == nil {
		return path
	}

	locations := []string{
		// macOS - Xcode Command Line Tools and Xcode.app
		"/Library/Developer/CommandLineTools/usr/bin/lldb-dap",
		"/Applications/Xcode.app/Contents/Developer/usr/bin/lldb-dap",
		"/opt/homebrew/bin/lldb-dap",
		"/usr/local/bin/lldb-dap",

		// Linux - LLVM/Clang package installations
		"/usr/bin/lldb-dap",
		"/usr/bin/lldb-dap-18",
		"/usr/bin/lldb-dap-17",
		"/usr/lib/llvm-18/bin/lldb-dap",
		"/usr/lib/llvm-17/bin/lldb-dap",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	// Older name, pre-LLVM 16
	if path, err := exec.LookPath("lldb-vscode"); err == nil {
		return path
	}
	return "lldb-dap"
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	d := dump.DefaultOptions()
	return &Config{
		Mode:           ModeFull,
		MaxSessions:    10,
		SessionTimeout: 30 * time.Minute,
		RequestTimeout: 10 * time.Second,
		Dump: DumpConfig{
			MaxNumChild:        d.MaxNumChild,
			DisplayStringLimit: d.DisplayStringLimit,
			CallTimeout:        d.CallTimeout,
			Fancy:              true,
			QtVersion:          d.QtVersion.String(),
			TypeCommand:        "ptype/o %s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Adapters: AdapterConfigs{
			GDB:  GDBConfig{Path: "gdb"},
			LLDB: LLDBConfig{Path: findLLDBDap()},
		},
	}
}

// setDefaults registers every key of cfg so environment overrides and
// partial files resolve against it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("mode", string(cfg.Mode))
	v.SetDefault("maxSessions", cfg.MaxSessions)
	v.SetDefault("sessionTimeout", cfg.SessionTimeout)
	v.SetDefault("requestTimeout", cfg.RequestTimeout)

	v.SetDefault("dump.maxNumChild", cfg.Dump.MaxNumChild)
	v.SetDefault("dump.displayStringLimit", cfg.Dump.DisplayStringLimit)
	v.SetDefault("dump.callTimeout", cfg.Dump.CallTimeout)
	v.SetDefault("dump.fancy", cfg.Dump.Fancy)
	v.SetDefault("dump.autoDeref", cfg.Dump.AutoDeref)
	v.SetDefault("dump.qobjectNames", cfg.Dump.QObjectNames)
	v.SetDefault("dump.passExceptions", cfg.Dump.PassExceptions)
	v.SetDefault("dump.qtVersion", cfg.Dump.QtVersion)
	v.SetDefault("dump.qtNamespace", cfg.Dump.QtNamespace)
	v.SetDefault("dump.typeCommand", cfg.Dump.TypeCommand)

	v.SetDefault("layouts.overrideFiles", cfg.Layouts.OverrideFiles)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("adapters.gdb.path", cfg.Adapters.GDB.Path)
	v.SetDefault("adapters.lldb.path", cfg.Adapters.LLDB.Path)
}

// LoadConfig loads configuration from path, or defaults and environment
// only when path is empty. The file format follows its extension.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.ConfigInvalid(path, err.Error()).WithCause(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigInvalid(path, err.Error()).WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigInvalid(path, err.Error())
	}
	return &cfg, nil
}

// Validate checks values viper cannot type check.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReadOnly, ModeFull:
	default:
		return errors.InvalidParameter("mode", c.Mode, "readonly or full")
	}
	if c.Dump.MaxNumChild < 0 {
		return errors.InvalidParameter("dump.maxNumChild", c.Dump.MaxNumChild, "a non-negative number")
	}
	if c.Dump.DisplayStringLimit < 0 {
		return errors.InvalidParameter("dump.displayStringLimit", c.Dump.DisplayStringLimit, "a non-negative number")
	}
	if _, err := layout.ParseVersion(c.Dump.QtVersion); err != nil {
		return errors.InvalidParameter("dump.qtVersion", c.Dump.QtVersion, "a version such as 5.15.2")
	}
	if !strings.Contains(c.Dump.TypeCommand, "%s") {
		return errors.InvalidParameter("dump.typeCommand", c.Dump.TypeCommand, "a command containing %s")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.InvalidParameter("log.format", c.Log.Format, "text or json")
	}
	return nil
}

// CanEvaluate returns true if dumps may call functions in the debuggee
func (c *Config) CanEvaluate() bool {
	return c.Mode == ModeFull
}

// FallbackQtVersion returns the configured Qt version used when detection
// fails.
func (c *Config) FallbackQtVersion() layout.Version {
	v, err := layout.ParseVersion(c.Dump.QtVersion)
	if err != nil {
		return dump.DefaultOptions().QtVersion
	}
	return v
}

// DumpOptions returns the session defaults for the dump engine.
func (c *Config) DumpOptions() dump.Options {
	opts := dump.DefaultOptions()
	opts.MaxNumChild = c.Dump.MaxNumChild
	opts.DisplayStringLimit = c.Dump.DisplayStringLimit
	if c.Dump.CallTimeout > 0 {
		opts.CallTimeout = c.Dump.CallTimeout
	}
	opts.CanCall = c.CanEvaluate()
	opts.QtVersion = c.FallbackQtVersion()
	opts.QtNamespace = c.Dump.QtNamespace
	return opts
}

// FetchDefaults returns a request carrying the configured display flags.
// Callers add the variables and inames to dump.
func (c *Config) FetchDefaults() types.FetchRequest {
	return types.FetchRequest{
		Fancy:          c.Dump.Fancy,
		AutoDeref:      c.Dump.AutoDeref,
		QObjectNames:   c.Dump.QObjectNames,
		PassExceptions: c.Dump.PassExceptions,
	}
}

// LayoutTable returns the built-in descriptor table with the override
// files merged in order.
func (c *Config) LayoutTable() (*layout.Table, error) {
	t := layout.DefaultTable()
	for _, path := range c.Layouts.OverrideFiles {
		if err := t.LoadOverrides(path); err != nil {
			return nil, err
		}
	}
	return t, nil
}
