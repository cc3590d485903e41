//go:build !unix

package sandbox

import "os/exec"

func configureWorker(cmd *exec.Cmd) {}

// terminateWorker kills the worker directly; process groups are not
// available on this platform.
func terminateWorker(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
