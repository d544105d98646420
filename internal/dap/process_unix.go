//go:build !windows

package dap

import (
	stderrors "errors"
	"os"
	"os/exec"
	"syscall"
)

// stopAdapter kills a spawned adapter together with its process group.
// Adapters are started as group leaders, so the group id is their pid.
func stopAdapter(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		if err := cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	// Reap the adapter; its exit status is irrelevant after a kill.
	_ = cmd.Wait()
	return nil
}
