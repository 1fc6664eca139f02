//go:build !unix

package toolchain

import (
	"os/exec"
	"time"
)

func configureProcess(cmd *exec.Cmd, waitDelay time.Duration) {
	cmd.WaitDelay = waitDelay
}

func signalNumber(*exec.ExitError) int {
	return 0
}
