package adapters

import (
	"os/exec"

	"github.com/ctagard/dap-dump/internal/config"
	"github.com/ctagard/dap-dump/pkg/types"
)

// GDBAdapter runs GDB's native DAP support. Requires GDB 14.1 or later,
// which includes built-in DAP support via --interpreter=dap.
type GDBAdapter struct {
	gdbPath string
}

// NewGDBAdapter creates a new GDB adapter
func NewGDBAdapter(cfg config.GDBConfig) *GDBAdapter {
	path := cfg.Path
	if path == "" {
		path = "gdb"
	}
	return &GDBAdapter{gdbPath: path}
}

func (g *GDBAdapter) Kind() types.AdapterKind { return types.AdapterGDB }

// Command starts gdb in DAP mode. Pretty printers are disabled so values
// are printed raw; the dumper does its own decoding.
func (g *GDBAdapter) Command() *exec.Cmd {
	//nolint:gosec // G204: This is a debug adapter that intentionally spawns subprocesses
	return exec.Command(g.gdbPath,
		"--interpreter=dap",
		"--quiet",
		"--eval-command", "set print pretty off",
		"--eval-command", "disable pretty-printer",
	)
}

// BuildAttachArgs builds the attach arguments for GDB DAP
func (g *GDBAdapter) BuildAttachArgs(req types.AttachRequest) map[string]any {
	return attachArgs(req)
}
