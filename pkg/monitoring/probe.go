package monitoring

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
	"github.com/core-tools/vms-deploy/pkg/processstate"
)

type ProbeType string

const (
	// ProbeTypeProcess checks that the PID is still present in the
	// process table after the settle delay
	ProbeTypeProcess ProbeType = "process"

	// ProbeTypeHTTP additionally requires an HTTP endpoint to answer
	ProbeTypeHTTP ProbeType = "http"

	// ProbeTypeTCP additionally requires a TCP port to accept connections
	ProbeTypeTCP ProbeType = "tcp"
)

type HTTPProbeConfig struct {
	URL    string `yaml:"url"`
	Method string `yaml:"method,omitempty"`
}

type TCPProbeConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

type ProbeRunOptions struct {
	// How long to wait before the first check; gives the process time to settle
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	Retries      int           `yaml:"retries,omitempty"`
	RetryDelay   time.Duration `yaml:"retry_delay,omitempty"`
}

// ProbeConfig describes how to verify a freshly launched process
type ProbeConfig struct {
	Type ProbeType `yaml:"type"`

	HTTP HTTPProbeConfig `yaml:"http,omitempty"`
	TCP  TCPProbeConfig  `yaml:"tcp,omitempty"`

	RunOptions ProbeRunOptions `yaml:"run_options,omitempty"`
}

// ValidateProbeConfig checks a probe configuration
func ValidateProbeConfig(config ProbeConfig) error {
	switch config.Type {
	case ProbeTypeProcess:
		return nil
	case ProbeTypeHTTP:
		if config.HTTP.URL == "" {
			return errors.NewValidationError("HTTP probe requires a URL", nil)
		}
		return nil
	case ProbeTypeTCP:
		if config.TCP.Address == "" {
			return errors.NewValidationError("TCP probe requires an address", nil)
		}
		if config.TCP.Port <= 0 || config.TCP.Port > 65535 {
			return errors.NewValidationError(
				fmt.Sprintf("invalid TCP probe port: %d", config.TCP.Port), nil,
			).WithContext("valid_range", "1-65535")
		}
		return nil
	default:
		return errors.NewValidationError(
			fmt.Sprintf("unsupported probe type: %s", config.Type), nil,
		).WithContext("supported_types", "process, http, tcp")
	}
}

// Verifier runs post-launch verification probes
type Verifier struct {
	logger logging.Logger
}

// NewVerifier creates a probe verifier
func NewVerifier(logger logging.Logger) *Verifier {
	return &Verifier{logger: logger}
}

// Verify waits for the configured settle delay and then confirms the
// launched process is alive. HTTP and TCP probes also require the probe
// target to answer; the process check runs in every mode.
func (v *Verifier) Verify(ctx context.Context, pid int, config ProbeConfig) error {
	if err := ValidateProbeConfig(config); err != nil {
		return err
	}

	opts := config.RunOptions
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Second
	}

	if opts.InitialDelay > 0 {
		v.logger.Debugf("Waiting for process to settle, pid: %d, delay: %v", pid, opts.InitialDelay)
		select {
		case <-time.After(opts.InitialDelay):
		case <-ctx.Done():
			return errors.NewTimeoutError("verification cancelled", ctx.Err()).WithContext("pid", pid)
		}
	}

	running, err := processstate.IsProcessRunning(pid)
	if err != nil {
		return errors.NewProcessError("failed to check process state", err).WithContext("pid", pid)
	}
	if !running {
		return errors.NewProcessError("process exited during startup", nil).WithContext("pid", pid)
	}
	v.logger.Debugf("Process is alive, pid: %d", pid)

	switch config.Type {
	case ProbeTypeHTTP:
		return v.verifyWithRetries(ctx, pid, opts, func(checkCtx context.Context) error {
			return httpProbe(checkCtx, config.HTTP)
		})
	case ProbeTypeTCP:
		return v.verifyWithRetries(ctx, pid, opts, func(checkCtx context.Context) error {
			return tcpProbe(checkCtx, config.TCP)
		})
	default:
		return nil
	}
}

func (v *Verifier) verifyWithRetries(ctx context.Context, pid int, opts ProbeRunOptions, check func(context.Context) error) error {
	attempts := opts.Retries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		checkCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		lastErr = check(checkCtx)
		cancel()

		if lastErr == nil {
			v.logger.Infof("Readiness probe succeeded, pid: %d, attempt: %d", pid, attempt)
			return nil
		}

		v.logger.Warnf("Readiness probe failed, pid: %d, attempt: %d/%d, error: %v", pid, attempt, attempts, lastErr)

		if attempt < attempts {
			select {
			case <-time.After(opts.RetryDelay):
			case <-ctx.Done():
				return errors.NewTimeoutError("verification cancelled", ctx.Err()).WithContext("pid", pid)
			}
		}
	}

	return errors.NewProcessError("readiness probe failed", lastErr).WithContext("pid", pid)
}

func httpProbe(ctx context.Context, config HTTPProbeConfig) error {
	method := config.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, config.URL, nil)
	if err != nil {
		return errors.NewValidationError("invalid probe request", err).WithContext("url", config.URL)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

func tcpProbe(ctx context.Context, config TCPProbeConfig) error {
	var dialer net.Dialer
	address := net.JoinHostPort(config.Address, fmt.Sprintf("%d", config.Port))

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}
