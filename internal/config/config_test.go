package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/layout"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != ModeFull {
		t.Errorf("expected mode %s, got %s", ModeFull, cfg.Mode)
	}
	if cfg.MaxSessions != 10 {
		t.Errorf("expected MaxSessions 10, got %d", cfg.MaxSessions)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("expected SessionTimeout 30m, got %v", cfg.SessionTimeout)
	}
	if cfg.Dump.MaxNumChild != 100 || cfg.Dump.DisplayStringLimit != 100 {
		t.Errorf("expected limits 100/100, got %d/%d", cfg.Dump.MaxNumChild, cfg.Dump.DisplayStringLimit)
	}
	if cfg.Dump.CallTimeout != 5*time.Second {
		t.Errorf("expected CallTimeout 5s, got %v", cfg.Dump.CallTimeout)
	}
	if cfg.Dump.QtVersion != "5.6.0" {
		t.Errorf("expected fallback Qt version 5.6.0, got %s", cfg.Dump.QtVersion)
	}
	if cfg.Adapters.GDB.Path != "gdb" {
		t.Errorf("expected gdb path 'gdb', got %s", cfg.Adapters.GDB.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

// TestLoadConfig_EmptyPath verifies that an empty path yields the defaults.
func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defaults := DefaultConfig()
	if cfg.Mode != defaults.Mode || cfg.MaxSessions != defaults.MaxSessions {
		t.Errorf("expected defaults, got mode %s, MaxSessions %d", cfg.Mode, cfg.MaxSessions)
	}
	if cfg.Dump.TypeCommand != defaults.Dump.TypeCommand {
		t.Errorf("expected type command %q, got %q", defaults.Dump.TypeCommand, cfg.Dump.TypeCommand)
	}
}

// TestLoadConfig_Formats verifies loading from JSON, YAML and TOML files
// over the defaults.
func TestLoadConfig_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "config.json",
			content: `{
				"mode": "readonly",
				"sessionTimeout": "5m",
				"dump": {"maxNumChild": 250, "qtVersion": "5.15.2", "qtNamespace": "myns::"},
				"adapters": {"gdb": {"path": "/opt/gdb/bin/gdb"}}
			}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `mode: readonly
sessionTimeout: 5m
dump:
  maxNumChild: 250
  qtVersion: 5.15.2
  qtNamespace: "myns::"
adapters:
  gdb:
    path: /opt/gdb/bin/gdb
`,
		},
		{
			name: "toml",
			file: "config.toml",
			content: `mode = "readonly"
sessionTimeout = "5m"

[dump]
maxNumChild = 250
qtVersion = "5.15.2"
qtNamespace = "myns::"

[adapters.gdb]
path = "/opt/gdb/bin/gdb"
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Mode != ModeReadOnly {
				t.Errorf("expected mode readonly, got %s", cfg.Mode)
			}
			if cfg.SessionTimeout != 5*time.Minute {
				t.Errorf("expected SessionTimeout 5m, got %v", cfg.SessionTimeout)
			}
			if cfg.Dump.MaxNumChild != 250 {
				t.Errorf("expected MaxNumChild 250, got %d", cfg.Dump.MaxNumChild)
			}
			if cfg.Dump.DisplayStringLimit != 100 {
				t.Errorf("unset DisplayStringLimit should keep its default, got %d", cfg.Dump.DisplayStringLimit)
			}
			if cfg.FallbackQtVersion() != layout.Make(5, 15, 2) {
				t.Errorf("expected fallback 5.15.2, got %s", cfg.FallbackQtVersion())
			}
			if cfg.Adapters.GDB.Path != "/opt/gdb/bin/gdb" {
				t.Errorf("expected gdb path override, got %s", cfg.Adapters.GDB.Path)
			}
			if cfg.CanEvaluate() {
				t.Error("readonly mode must not allow debuggee calls")
			}
		})
	}
}

// TestLoadConfig_Env verifies DAPDUMP_* environment overrides.
func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("DAPDUMP_DUMP_MAXNUMCHILD", "500")
	t.Setenv("DAPDUMP_LOG_LEVEL", "debug")
	t.Setenv("DAPDUMP_MODE", "readonly")

	path := writeConfig(t, "config.json", `{"dump": {"maxNumChild": 250}}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dump.MaxNumChild != 500 {
		t.Errorf("expected env MaxNumChild 500, got %d", cfg.Dump.MaxNumChild)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Mode != ModeReadOnly {
		t.Errorf("expected mode readonly, got %s", cfg.Mode)
	}
}

// TestLoadConfig_Invalid verifies that bad files and values are rejected
// with CONFIG_INVALID.
func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"syntax", "config.json", `{"mode": `},
		{"mode", "config.json", `{"mode": "godmode"}`},
		{"negative limit", "config.json", `{"dump": {"maxNumChild": -1}}`},
		{"qt version", "config.json", `{"dump": {"qtVersion": "five"}}`},
		{"type command", "config.json", `{"dump": {"typeCommand": "ptype"}}`},
		{"log format", "config.json", `{"log": {"format": "xml"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.content))
			if errors.CodeOf(err) != errors.CodeConfigInvalid {
				t.Errorf("expected %s, got %v", errors.CodeConfigInvalid, err)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
		if errors.CodeOf(err) != errors.CodeConfigInvalid {
			t.Errorf("expected %s, got %v", errors.CodeConfigInvalid, err)
		}
	})
}

// TestDumpOptions verifies the mapping onto the dump engine defaults.
func TestDumpOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeReadOnly
	cfg.Dump.MaxNumChild = 42
	cfg.Dump.QtNamespace = "ns::"
	cfg.Dump.QtVersion = "6.2.4"

	opts := cfg.DumpOptions()
	if opts.MaxNumChild != 42 {
		t.Errorf("expected MaxNumChild 42, got %d", opts.MaxNumChild)
	}
	if opts.CanCall {
		t.Error("readonly mode must disable calls")
	}
	if opts.QtNamespace != "ns::" {
		t.Errorf("expected namespace ns::, got %q", opts.QtNamespace)
	}
	if opts.QtVersion != layout.Make(6, 2, 4) {
		t.Errorf("expected Qt 6.2.4, got %s", opts.QtVersion)
	}
}

// TestFetchDefaults verifies that the display flags seed fetch requests.
func TestFetchDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dump.AutoDeref = true

	req := cfg.FetchDefaults()
	if !req.Fancy || !req.AutoDeref {
		t.Errorf("expected fancy and autoderef, got %+v", req)
	}
	if len(req.VarList) != 0 || req.MaxNumChild != 0 {
		t.Errorf("expected no variables or limits, got %+v", req)
	}
}

// TestLayoutTable verifies that override files are merged into the
// built-in table.
func TestLayoutTable(t *testing.T) {
	override := writeConfig(t, "layouts.toml", `
[[descriptor]]
name = "QCustomPrivate"
min = "5.0"
[descriptor.offsets]
value = 12
`)
	cfg := DefaultConfig()
	cfg.Layouts.OverrideFiles = []string{override}

	table, err := cfg.LayoutTable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d, ok := table.Lookup("QCustomPrivate", layout.Make(5, 15, 0), 8, layout.Unix); !ok || d.Off("value") != 12 {
		t.Errorf("override not merged: %v %v", ok, d)
	}

	cfg.Layouts.OverrideFiles = []string{writeConfig(t, "bad.toml", "[[descriptor]]\n")}
	if _, err := cfg.LayoutTable(); errors.CodeOf(err) != errors.CodeLayoutOverrideInvalid {
		t.Errorf("expected %s, got %v", errors.CodeLayoutOverrideInvalid, err)
	}
}
