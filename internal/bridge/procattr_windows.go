//go:build windows

package bridge

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func terminateProcessGroup(p *os.Process) error {
	return p.Signal(os.Interrupt)
}

func killProcessGroup(p *os.Process) error {
	return p.Kill()
}
