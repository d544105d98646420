package adapters

import (
	"os/exec"

	"github.com/ctagard/dap-dump/internal/config"
	"github.com/ctagard/dap-dump/pkg/types"
)

// LLDBAdapter runs lldb-dap (formerly lldb-vscode).
//
// Type layouts are read with a gdb-style "ptype/o" repl command, which
// lldb does not provide; configure dump.typeCommand with an equivalent
// command alias when using lldb.
type LLDBAdapter struct {
	lldbDapPath string
}

// NewLLDBAdapter creates a new LLDB adapter
func NewLLDBAdapter(cfg config.LLDBConfig) *LLDBAdapter {
	path := cfg.Path
	if path == "" {
		path = "lldb-dap"
	}
	return &LLDBAdapter{lldbDapPath: path}
}

func (l *LLDBAdapter) Kind() types.AdapterKind { return types.AdapterLLDB }

// Command starts lldb-dap with repl input treated as commands, so probes
// such as "show osabi" reach the command interpreter.
func (l *LLDBAdapter) Command() *exec.Cmd {
	//nolint:gosec // G204: This is a debug adapter that intentionally spawns subprocesses
	return exec.Command(l.lldbDapPath, "--repl-mode=command")
}

// BuildAttachArgs builds the attach arguments for lldb-dap. lldb-dap waits
// for a process launched later when only the program is known.
func (l *LLDBAdapter) BuildAttachArgs(req types.AttachRequest) map[string]any {
	args := attachArgs(req)
	if req.PID <= 0 && req.Program != "" {
		args["waitFor"] = true
	}
	return args
}
