//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureWorker places the worker in its own process group so that
// termination reaches any children it spawns.
func configureWorker(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateWorker asks the worker's process group to shut down. The
// command's WaitDelay escalates to a kill if the group ignores it.
func terminateWorker(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
}
