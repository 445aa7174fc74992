//go:build unix

package procs

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it outlives the caller's
// terminal.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
