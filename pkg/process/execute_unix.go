//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setupDetachedAttributes configures Unix-specific process attributes.
// The child gets its own session so it survives the launcher's exit and
// does not receive terminal signals meant for us.
func setupDetachedAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
