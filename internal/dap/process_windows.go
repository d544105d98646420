//go:build windows

package dap

import (
	stderrors "errors"
	"os"
	"os/exec"
)

// stopAdapter kills a spawned adapter. Windows has no process groups to
// signal, so only the adapter itself is killed.
func stopAdapter(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return err
	}
	_ = cmd.Wait()
	return nil
}
