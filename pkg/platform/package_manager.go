package platform

import (
	"context"
	"fmt"

	"github.com/core-tools/vms-deploy/pkg/cmdrun"
	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
)

// PackageManagerKind identifies the package manager family of the platform
type PackageManagerKind string

const (
	PackageManagerApt    PackageManagerKind = "apt"
	PackageManagerDnf    PackageManagerKind = "dnf"
	PackageManagerYum    PackageManagerKind = "yum"
	PackageManagerZypper PackageManagerKind = "zypper"
	PackageManagerApk    PackageManagerKind = "apk"
	PackageManagerBrew   PackageManagerKind = "brew"
)

// idToPackageManager maps os-release IDs (and ID_LIKE values) to package managers
var idToPackageManager = map[string]PackageManagerKind{
	"ubuntu":    PackageManagerApt,
	"debian":    PackageManagerApt,
	"fedora":    PackageManagerDnf,
	"rhel":      PackageManagerYum,
	"centos":    PackageManagerYum,
	"rocky":     PackageManagerDnf,
	"almalinux": PackageManagerDnf,
	"opensuse":  PackageManagerZypper,
	"suse":      PackageManagerZypper,
	"sles":      PackageManagerZypper,
	"alpine":    PackageManagerApk,
}

// PackageManager installs OS packages and manages system services
type PackageManager struct {
	kind   PackageManagerKind
	runner cmdrun.Runner
	logger logging.Logger
}

// NewPackageManager resolves the package manager for the detected platform
func NewPackageManager(info *Info, runner cmdrun.Runner, logger logging.Logger) (*PackageManager, error) {
	if info == nil {
		return nil, errors.NewValidationError("platform info cannot be nil", nil)
	}

	kind, err := resolvePackageManager(info)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Resolved package manager, platform: %s, manager: %s", info.ID, kind)

	return &PackageManager{
		kind:   kind,
		runner: runner,
		logger: logger,
	}, nil
}

func resolvePackageManager(info *Info) (PackageManagerKind, error) {
	if info.OS == "darwin" {
		return PackageManagerBrew, nil
	}

	if kind, ok := idToPackageManager[info.ID]; ok {
		return kind, nil
	}
	for _, like := range info.IDLike {
		if kind, ok := idToPackageManager[like]; ok {
			return kind, nil
		}
	}

	return "", errors.NewNotFoundError(
		fmt.Sprintf("no known package manager for platform: %s", info.ID), nil,
	).WithContext("os", info.OS).WithContext("id_like", info.IDLike)
}

// Kind returns the resolved package manager family
func (m *PackageManager) Kind() PackageManagerKind {
	return m.kind
}

// InstallArgs returns the command line used to install a package
func InstallArgs(kind PackageManagerKind, pkg string) []string {
	switch kind {
	case PackageManagerApt:
		return []string{"apt-get", "install", "-y", pkg}
	case PackageManagerDnf:
		return []string{"dnf", "install", "-y", pkg}
	case PackageManagerYum:
		return []string{"yum", "install", "-y", pkg}
	case PackageManagerZypper:
		return []string{"zypper", "--non-interactive", "install", pkg}
	case PackageManagerApk:
		return []string{"apk", "add", pkg}
	case PackageManagerBrew:
		return []string{"brew", "install", pkg}
	default:
		return nil
	}
}

// Install installs a package using the platform package manager
func (m *PackageManager) Install(ctx context.Context, pkg string) error {
	args := InstallArgs(m.kind, pkg)
	if args == nil {
		return errors.NewValidationError("unsupported package manager", nil).WithContext("kind", string(m.kind))
	}

	m.logger.Infof("Installing package, manager: %s, package: %s", m.kind, pkg)

	output, err := m.runner.Run(ctx, args[0], args[1:]...)
	if err != nil {
		return errors.NewProcessError("package installation failed", err).
			WithContext("package", pkg).
			WithContext("output", output)
	}

	m.logger.Infof("Package installed, package: %s", pkg)
	return nil
}

// RunTool runs a platform administration tool through the command runner
func (m *PackageManager) RunTool(ctx context.Context, name string, args ...string) error {
	output, err := m.runner.Run(ctx, name, args...)
	if err != nil {
		return errors.NewProcessError("tool execution failed", err).
			WithContext("tool", name).
			WithContext("output", output)
	}
	return nil
}

// EnableService enables and starts a system service. On Linux this uses
// systemctl, on macOS brew services.
func (m *PackageManager) EnableService(ctx context.Context, service string) error {
	if m.kind == PackageManagerBrew {
		m.logger.Infof("Starting service via brew, service: %s", service)
		if output, err := m.runner.Run(ctx, "brew", "services", "start", service); err != nil {
			return errors.NewProcessError("failed to start service", err).
				WithContext("service", service).
				WithContext("output", output)
		}
		return nil
	}

	m.logger.Infof("Enabling service, service: %s", service)
	if output, err := m.runner.Run(ctx, "systemctl", "enable", service); err != nil {
		return errors.NewProcessError("failed to enable service", err).
			WithContext("service", service).
			WithContext("output", output)
	}
	if output, err := m.runner.Run(ctx, "systemctl", "start", service); err != nil {
		return errors.NewProcessError("failed to start service", err).
			WithContext("service", service).
			WithContext("output", output)
	}

	m.logger.Infof("Service enabled and started, service: %s", service)
	return nil
}
