package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
	"github.com/core-tools/vms-deploy/pkg/processstate"
)

// Default application name for PID file paths
const DefaultAppName = "vms"

// Config holds configuration for PID file placement
type Config struct {
	// Base directory for PID files. If empty, uses an OS-appropriate default
	BaseDirectory string `yaml:"base_directory,omitempty"`

	// Application name used for the PID file name
	AppName string `yaml:"app_name,omitempty"`
}

// Lock is an exclusive start lock backed by a PID file. Acquisition uses
// an atomic create-if-absent, so two concurrent starters cannot both win.
// A file left behind by a dead process is detected and broken.
type Lock struct {
	path     string
	logger   logging.Logger
	acquired bool
}

// NewLock creates a PID file lock for the given configuration
func NewLock(config Config, logger logging.Logger) *Lock {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}

	baseDir := config.BaseDirectory
	if baseDir == "" {
		baseDir = defaultBaseDirectory()
	}

	return &Lock{
		path:   filepath.Join(baseDir, config.AppName+".pid"),
		logger: logger,
	}
}

// Path returns the PID file path
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock on behalf of the given PID. It fails with a
// conflict error when another live process holds it; a stale file from a
// dead process is removed and acquisition retried once.
func (l *Lock) Acquire(pid int) error {
	if pid <= 0 {
		return errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}

	if err := ensureDirectory(l.path); err != nil {
		return err
	}

	err := l.tryCreate(pid)
	if err == nil {
		l.acquired = true
		l.logger.Infof("PID file lock acquired, pid: %d, path: %s", pid, l.path)
		return nil
	}
	if !errors.IsConflictError(err) {
		return err
	}

	// The file exists; find out whether its owner is still alive
	ownerPID, readErr := l.ReadPID()
	if readErr == nil {
		running, stateErr := processstate.IsProcessRunning(ownerPID)
		if stateErr == nil && running {
			return errors.NewConflictError("already running", nil).
				WithContext("pid", ownerPID).
				WithContext("pid_file", l.path)
		}
	}

	l.logger.Warnf("Removing stale PID file, path: %s", l.path)
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove stale PID file", err).WithContext("pid_file", l.path)
	}

	if err := l.tryCreate(pid); err != nil {
		if errors.IsConflictError(err) {
			// Someone else won the race after we broke the stale file
			return errors.NewConflictError("already running", nil).WithContext("pid_file", l.path)
		}
		return err
	}

	l.acquired = true
	l.logger.Infof("PID file lock acquired after breaking stale lock, pid: %d, path: %s", pid, l.path)
	return nil
}

// Update rewrites the PID stored in a held lock, e.g. after the launched
// process PID becomes known
func (l *Lock) Update(pid int) error {
	if !l.acquired {
		return errors.NewValidationError("lock is not held", nil).WithContext("pid_file", l.path)
	}
	content := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(l.path, []byte(content), 0644); err != nil {
		return errors.NewIOError("failed to update PID file", err).WithContext("pid_file", l.path)
	}
	l.logger.Debugf("PID file updated, pid: %d, path: %s", pid, l.path)
	return nil
}

// ReadPID reads the PID recorded in the lock file
func (l *Lock) ReadPID() (int, error) {
	content, err := os.ReadFile(l.path)
	if err != nil {
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", l.path)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, errors.NewValidationError("invalid PID in file", err).
			WithContext("pid_file", l.path).
			WithContext("content", pidStr)
	}

	return pid, nil
}

// Release removes the PID file if this lock holds it
func (l *Lock) Release() error {
	if !l.acquired {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", l.path)
	}
	l.acquired = false
	l.logger.Debugf("PID file lock released, path: %s", l.path)
	return nil
}

func (l *Lock) tryCreate(pid int) error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errors.NewConflictError("PID file already exists", err).WithContext("pid_file", l.path)
		}
		return errors.NewIOError("failed to create PID file", err).WithContext("pid_file", l.path)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%d\n", pid); err != nil {
		os.Remove(l.path)
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", l.path)
	}

	return nil
}

func ensureDirectory(pidFilePath string) error {
	dir := filepath.Dir(pidFilePath)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.NewIOError("failed to create PID file directory", err).WithContext("directory", dir)
			}
			return nil
		}
		return errors.NewIOError("failed to access PID file directory", err).WithContext("directory", dir)
	}
	if !info.IsDir() {
		return errors.NewValidationError("PID file path is not a directory", nil).WithContext("path", dir)
	}
	return nil
}

// defaultBaseDirectory returns an OS-appropriate directory for PID files
func defaultBaseDirectory() string {
	switch runtime.GOOS {
	case "windows":
		if programData := os.Getenv("PROGRAMDATA"); programData != "" {
			return programData
		}
		return os.TempDir()

	case "darwin":
		if os.Geteuid() == 0 {
			return "/var/run"
		}
		return os.TempDir()

	default:
		if os.Geteuid() == 0 {
			if _, err := os.Stat("/run"); err == nil {
				return "/run"
			}
			return "/var/run"
		}
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			return runtimeDir
		}
		return os.TempDir()
	}
}
