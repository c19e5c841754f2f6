package cmdrun

import (
	"context"
	"os/exec"
	"strings"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
)

// Runner executes external commands. Deployment steps depend on this
// interface instead of os/exec so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	LookPath(name string) (string, error)
}

type execRunner struct {
	logger logging.Logger
}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner(logger logging.Logger) Runner {
	return &execRunner{logger: logger}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if ctx == nil {
		return "", errors.NewValidationError("context cannot be nil", nil)
	}

	r.logger.Debugf("Running command: %s %s", name, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), errors.NewProcessError("command failed", err).
			WithContext("command", name).
			WithContext("args", strings.Join(args, " ")).
			WithContext("output", strings.TrimSpace(string(output)))
	}

	return string(output), nil
}

func (r *execRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.NewNotFoundError("executable not found in PATH", err).WithContext("name", name)
	}
	return path, nil
}
