package processstate

import (
	"github.com/core-tools/vms-deploy/pkg/errors"

	"github.com/shirou/gopsutil/v3/process"
)

// IsProcessRunning reports whether a process with the given PID exists.
// Works on both Unix (signal 0 semantics) and Windows via gopsutil.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	return process.PidExists(int32(pid))
}
