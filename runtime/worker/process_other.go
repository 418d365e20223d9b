//go:build !unix

package worker

import "os/exec"

// Passing extra descriptors to a child needs Unix.
const supported = false

func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func closeOnExec(fd int) {}
