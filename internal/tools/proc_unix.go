//go:build unix

package tools

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the command in its own process group so a timeout
// kills the renderer together with any children it spawned.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
