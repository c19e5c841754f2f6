package launcher

import (
	"context"
	"os"
	"time"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
	"github.com/core-tools/vms-deploy/pkg/monitoring"
	"github.com/core-tools/vms-deploy/pkg/process"
	"github.com/core-tools/vms-deploy/pkg/processfile"
)

// Config describes a single-instance application launch
type Config struct {
	// Command-line substring identifying a running instance
	Pattern string `yaml:"pattern"`

	Launch  process.LaunchConfig   `yaml:"launch"`
	PIDFile processfile.Config     `yaml:"pid_file,omitempty"`
	Probe   monitoring.ProbeConfig `yaml:"probe,omitempty"`
}

// SetDefaults applies defaults for unset fields
func (c *Config) SetDefaults() {
	if c.Probe.Type == "" {
		c.Probe.Type = monitoring.ProbeTypeProcess
	}
	if c.Probe.RunOptions.InitialDelay == 0 {
		// Matches the fixed settle delay the application is known to need
		c.Probe.RunOptions.InitialDelay = 3 * time.Second
	}
}

// Validate checks the launch configuration
func (c *Config) Validate() error {
	if c.Pattern == "" {
		return errors.NewValidationError("instance pattern cannot be empty", nil)
	}
	if err := process.ValidateLaunchConfig(c.Launch); err != nil {
		return err
	}
	return monitoring.ValidateProbeConfig(c.Probe)
}

// Scanner finds running instances by command-line pattern
type Scanner interface {
	FindByCmdline(ctx context.Context, pattern string) ([]process.Info, error)
}

// Locker is the exclusive start lock
type Locker interface {
	Acquire(pid int) error
	Update(pid int) error
	Release() error
	Path() string
}

// Verifier confirms the launched process came up
type Verifier interface {
	Verify(ctx context.Context, pid int, config monitoring.ProbeConfig) error
}

// LaunchFunc starts the program detached and returns its PID
type LaunchFunc func(config process.LaunchConfig, logger logging.Logger) (int, error)

// Launcher starts the application exactly once
type Launcher struct {
	config   Config
	scanner  Scanner
	lock     Locker
	verifier Verifier
	launch   LaunchFunc
	logger   logging.Logger
}

// NewLauncher creates a launcher with production collaborators
func NewLauncher(config Config, logger logging.Logger) (*Launcher, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Launcher{
		config:   config,
		scanner:  process.NewScanner(logger),
		lock:     processfile.NewLock(config.PIDFile, logger),
		verifier: monitoring.NewVerifier(logger),
		launch:   process.Launch,
		logger:   logger,
	}, nil
}

// NewLauncherWithCollaborators creates a launcher with injected
// collaborators, used by tests
func NewLauncherWithCollaborators(config Config, scanner Scanner, lock Locker, verifier Verifier, launch LaunchFunc, logger logging.Logger) (*Launcher, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Launcher{
		config:   config,
		scanner:  scanner,
		lock:     lock,
		verifier: verifier,
		launch:   launch,
		logger:   logger,
	}, nil
}

// Start launches the application unless an instance already runs. On
// success the PID file records the application PID and is intentionally
// left in place; it is the instance lock.
func (l *Launcher) Start(ctx context.Context) (int, error) {
	// The lock is the authoritative guard against concurrent starters
	if err := l.lock.Acquire(os.Getpid()); err != nil {
		return 0, err
	}

	// Secondary advisory check: catches instances started outside this
	// tool, which hold no PID file
	matches, err := l.scanner.FindByCmdline(ctx, l.config.Pattern)
	if err != nil {
		l.lock.Release()
		return 0, err
	}
	if len(matches) > 0 {
		l.lock.Release()
		return 0, errors.NewConflictError("application is already running", nil).
			WithContext("pid", matches[0].PID).
			WithContext("pattern", l.config.Pattern)
	}

	pid, err := l.launch(l.config.Launch, l.logger)
	if err != nil {
		l.lock.Release()
		return 0, err
	}

	if err := l.lock.Update(pid); err != nil {
		l.logger.Warnf("Failed to record application PID in lock file, pid: %d, error: %v", pid, err)
	}

	if err := l.verifier.Verify(ctx, pid, l.config.Probe); err != nil {
		l.lock.Release()
		return 0, errors.NewProcessError("application failed to start", err).
			WithContext("pid", pid).
			WithContext("log_file", l.config.Launch.LogFile)
	}

	l.logger.Infof("Application started, pid: %d, pid_file: %s, log: %s", pid, l.lock.Path(), l.config.Launch.LogFile)
	return pid, nil
}
