package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
)

// LaunchConfig describes how to start the application process
type LaunchConfig struct {
	ExecutablePath   string   `yaml:"executable_path"`
	Args             []string `yaml:"args,omitempty"`
	Environment      []string `yaml:"environment,omitempty"`
	WorkingDirectory string   `yaml:"working_directory,omitempty"`
	LogFile          string   `yaml:"log_file"`
}

// ValidateLaunchConfig checks a launch configuration for required fields
func ValidateLaunchConfig(config LaunchConfig) error {
	if config.ExecutablePath == "" {
		return errors.NewValidationError("executable path cannot be empty", nil)
	}
	if config.LogFile == "" {
		return errors.NewValidationError("log file path cannot be empty", nil)
	}
	return nil
}

// Launch starts the configured program detached from the current process,
// with combined stdout/stderr appended to the log file. The returned PID
// belongs to a process this tool no longer controls.
func Launch(config LaunchConfig, logger logging.Logger) (int, error) {
	if err := ValidateLaunchConfig(config); err != nil {
		return 0, err
	}

	// Check if the program is executable, and make it executable if it's not
	if err := ensureExecutable(config.ExecutablePath); err != nil {
		return 0, err
	}

	workDir := config.WorkingDirectory
	if workDir == "" {
		absPath, err := filepath.Abs(config.ExecutablePath)
		if err != nil {
			return 0, errors.NewIOError("failed to get absolute path", err).WithContext("executable_path", config.ExecutablePath)
		}
		workDir = filepath.Dir(absPath)
	}

	if err := os.MkdirAll(filepath.Dir(config.LogFile), 0755); err != nil {
		return 0, errors.NewIOError("failed to create log directory", err).WithContext("log_file", config.LogFile)
	}
	logFile, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, errors.NewIOError("failed to open log file", err).WithContext("log_file", config.LogFile)
	}
	defer logFile.Close()

	env := os.Environ()
	env = append(env, config.Environment...)

	logger.Infof("Launching process, executable: '%s', args: %v, working directory: '%s', log: '%s'",
		config.ExecutablePath, config.Args, workDir, config.LogFile)

	cmd := exec.Command(config.ExecutablePath, config.Args...)
	cmd.Dir = workDir
	cmd.Env = env
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	// Platform-specific detachment is handled in execute_unix.go / execute_windows.go
	setupDetachedAttributes(cmd)

	if err := cmd.Start(); err != nil {
		return 0, errors.NewProcessError("failed to start the process", err).WithContext("executable_path", config.ExecutablePath)
	}

	pid := cmd.Process.Pid

	// Release the handle so the child keeps running after we exit
	if err := cmd.Process.Release(); err != nil {
		logger.Warnf("Failed to release process handle, pid: %d, error: %v", pid, err)
	}

	logger.Infof("Process launched, pid: %d", pid)
	return pid, nil
}

// ensureExecutable checks if a file is executable and makes it executable if it's not
func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.NewNotFoundError("executable does not exist", err).WithContext("path", path)
	}

	if runtime.GOOS == "windows" {
		return nil // Execute bits do not apply
	}

	mode := info.Mode()
	if mode&0111 != 0 {
		return nil
	}

	if err := os.Chmod(path, mode|0111); err != nil {
		return errors.NewPermissionError("failed to make file executable", err).WithContext("path", path)
	}

	return nil
}
