//go:build !windows

package bridge

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcessGroup(p *os.Process) error {
	return signalProcessGroup(p, syscall.SIGTERM)
}

func killProcessGroup(p *os.Process) error {
	return signalProcessGroup(p, syscall.SIGKILL)
}

// signalProcessGroup signals every process in the group led by p.
func signalProcessGroup(p *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-p.Pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}
