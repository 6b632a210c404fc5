//go:build !windows

package executor

import (
	"os"
	"os/exec"
	"syscall"
)

// Actions may spawn their own subordinates, and killing only the direct
// child leaves them alive and holding the output pipes. Run each action
// as its own process group and take the whole group down on
// cancellation.
func setSubprocessAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
}
