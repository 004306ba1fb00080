//go:build windows

package worker

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// killProcessGroup kills the worker. Windows has no process groups to
// signal, so descendants are left to the pipe drain deadline.
func killProcessGroup(p *os.Process) error {
	return p.Kill()
}
