//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setDetachedProcAttr runs the child in a new session so it survives the
// launcher exiting or its terminal closing
func setDetachedProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
