package pyruntime

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/core-tools/vms-deploy/pkg/cmdrun"
	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
)

// MinimumVersion is the lowest Python version the application supports
var MinimumVersion = Version{Major: 3, Minor: 8}

// Version is a parsed Python version number
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v is the same or a later version than min.
// Patch level is ignored: the requirement is expressed as major.minor.
func (v Version) AtLeast(min Version) bool {
	if v.Major != min.Major {
		return v.Major > min.Major
	}
	return v.Minor >= min.Minor
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts a version number from strings like "Python 3.11.4"
// or a bare "3.8"
func ParseVersion(s string) (Version, error) {
	match := versionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return Version{}, errors.NewValidationError("unrecognized version string", nil).WithContext("input", s)
	}

	major, _ := strconv.Atoi(match[1])
	minor, _ := strconv.Atoi(match[2])
	patch := 0
	if match[3] != "" {
		patch, _ = strconv.Atoi(match[3])
	}

	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

// Checker verifies the Python runtime and installs the dependency manifest
type Checker struct {
	runner cmdrun.Runner
	logger logging.Logger

	// Resolved interpreter path, set by CheckVersion
	interpreter string
}

// NewChecker creates a runtime checker
func NewChecker(runner cmdrun.Runner, logger logging.Logger) *Checker {
	return &Checker{
		runner: runner,
		logger: logger,
	}
}

// Interpreter returns the resolved Python executable path. Empty until
// CheckVersion has succeeded.
func (c *Checker) Interpreter() string {
	return c.interpreter
}

// CheckVersion locates the Python interpreter and verifies it meets the
// minimum version requirement
func (c *Checker) CheckVersion(ctx context.Context, min Version) (Version, error) {
	interpreter, err := c.findInterpreter()
	if err != nil {
		return Version{}, err
	}

	output, err := c.runner.Run(ctx, interpreter, "--version")
	if err != nil {
		return Version{}, errors.NewRuntimeError("failed to query Python version", err).WithContext("interpreter", interpreter)
	}

	version, err := ParseVersion(output)
	if err != nil {
		return Version{}, errors.NewRuntimeError("failed to parse Python version output", err).WithContext("output", strings.TrimSpace(output))
	}

	if !version.AtLeast(min) {
		return version, errors.NewRuntimeError(
			fmt.Sprintf("Python %d.%d or newer is required, found %d.%d", min.Major, min.Minor, version.Major, version.Minor),
			nil,
		).WithContext("interpreter", interpreter)
	}

	c.interpreter = interpreter
	c.logger.Infof("Python runtime OK, interpreter: %s, version: %s", interpreter, version)
	return version, nil
}

// InstallDependencies installs the packages listed in the manifest file
// (one per line) via pip
func (c *Checker) InstallDependencies(ctx context.Context, manifestPath string) error {
	if _, err := os.Stat(manifestPath); err != nil {
		return errors.NewNotFoundError("dependency manifest does not exist", err).WithContext("manifest", manifestPath)
	}

	interpreter := c.interpreter
	if interpreter == "" {
		found, err := c.findInterpreter()
		if err != nil {
			return err
		}
		interpreter = found
	}

	c.logger.Infof("Installing dependencies, manifest: %s", manifestPath)

	output, err := c.runner.Run(ctx, interpreter, "-m", "pip", "install", "-r", manifestPath)
	if err != nil {
		return errors.NewRuntimeError("dependency installation failed", err).
			WithContext("manifest", manifestPath).
			WithContext("output", output)
	}

	c.logger.Infof("Dependencies installed, manifest: %s", manifestPath)
	return nil
}

func (c *Checker) findInterpreter() (string, error) {
	for _, name := range []string{"python3", "python"} {
		if path, err := c.runner.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.NewNotFoundError("no Python interpreter found in PATH", nil)
}
