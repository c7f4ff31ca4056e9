//go:build unix

package task

import (
	"os/exec"
	"syscall"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
)

// setProcessGroup detaches the shell into its own process group so that
// signals reach the commands it forks.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the process group led by pid.
func terminateGroup(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

// killGroup sends SIGKILL to the process group led by pid.
func killGroup(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

func signalGroup(pid int, sig syscall.Signal) error {
	// Negative pid addresses the whole group
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
