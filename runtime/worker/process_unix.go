//go:build unix

package worker

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const supported = true

// setProcessGroup puts the worker in its own process group so cancellation
// can take down everything it started.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}

// closeOnExec keeps the result descriptor out of processes the worker
// spawns, so a lingering grandchild cannot hold the parent's read open.
func closeOnExec(fd int) {
	unix.CloseOnExec(fd)
}
