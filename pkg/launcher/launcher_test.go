package launcher

import (
	"context"
	"testing"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
	"github.com/core-tools/vms-deploy/pkg/monitoring"
	"github.com/core-tools/vms-deploy/pkg/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LauncherMockLogger is a simple mock implementation of Logger for testing
type LauncherMockLogger struct{}

func (m *LauncherMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *LauncherMockLogger) Debugf(format string, args ...interface{})               {}
func (m *LauncherMockLogger) Infof(format string, args ...interface{})                {}
func (m *LauncherMockLogger) Warnf(format string, args ...interface{})                {}
func (m *LauncherMockLogger) Errorf(format string, args ...interface{})               {}

type fakeScanner struct {
	matches []process.Info
	err     error
}

func (s *fakeScanner) FindByCmdline(ctx context.Context, pattern string) ([]process.Info, error) {
	return s.matches, s.err
}

type fakeLock struct {
	acquired    bool
	released    bool
	recordedPID int
	acquireErr  error
}

func (l *fakeLock) Acquire(pid int) error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired = true
	return nil
}

func (l *fakeLock) Update(pid int) error {
	l.recordedPID = pid
	return nil
}

func (l *fakeLock) Release() error {
	l.released = true
	return nil
}

func (l *fakeLock) Path() string {
	return "/tmp/test.pid"
}

type fakeVerifier struct {
	err error
}

func (v *fakeVerifier) Verify(ctx context.Context, pid int, config monitoring.ProbeConfig) error {
	return v.err
}

func testConfig() Config {
	return Config{
		Pattern: "app.py",
		Launch: process.LaunchConfig{
			ExecutablePath: "/usr/bin/python3",
			Args:           []string{"/opt/vms/app.py"},
			LogFile:        "/tmp/app.log",
		},
	}
}

func launchReturning(pid int, err error) LaunchFunc {
	return func(config process.LaunchConfig, logger logging.Logger) (int, error) {
		return pid, err
	}
}

func TestStart_Success(t *testing.T) {
	lock := &fakeLock{}
	launcher, err := NewLauncherWithCollaborators(
		testConfig(), &fakeScanner{}, lock, &fakeVerifier{}, launchReturning(4242, nil), &LauncherMockLogger{})
	require.NoError(t, err)

	pid, err := launcher.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4242, pid)
	assert.Equal(t, 4242, lock.recordedPID)
	assert.True(t, lock.acquired)
	assert.False(t, lock.released, "lock must stay held for the running instance")
}

func TestStart_RefusesWhenInstanceRunning(t *testing.T) {
	lock := &fakeLock{}
	scanner := &fakeScanner{matches: []process.Info{{PID: 100, Cmdline: "python3 /opt/vms/app.py"}}}

	launched := false
	launch := func(config process.LaunchConfig, logger logging.Logger) (int, error) {
		launched = true
		return 0, nil
	}

	launcher, err := NewLauncherWithCollaborators(
		testConfig(), scanner, lock, &fakeVerifier{}, launch, &LauncherMockLogger{})
	require.NoError(t, err)

	_, err = launcher.Start(context.Background())
	require.Error(t, err)

	assert.True(t, errors.IsConflictError(err))
	assert.False(t, launched)
	assert.True(t, lock.released, "lock must be released on refusal")
}

func TestStart_RefusesWhenLockHeld(t *testing.T) {
	lock := &fakeLock{acquireErr: errors.NewConflictError("already running", nil)}

	launcher, err := NewLauncherWithCollaborators(
		testConfig(), &fakeScanner{}, lock, &fakeVerifier{}, launchReturning(0, nil), &LauncherMockLogger{})
	require.NoError(t, err)

	_, err = launcher.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
}

func TestStart_LaunchFailureReleasesLock(t *testing.T) {
	lock := &fakeLock{}
	launchErr := errors.NewProcessError("spawn failed", nil)

	launcher, err := NewLauncherWithCollaborators(
		testConfig(), &fakeScanner{}, lock, &fakeVerifier{}, launchReturning(0, launchErr), &LauncherMockLogger{})
	require.NoError(t, err)

	_, err = launcher.Start(context.Background())
	require.Error(t, err)
	assert.True(t, lock.released)
}

func TestStart_VerificationFailureReleasesLock(t *testing.T) {
	lock := &fakeLock{}
	verifier := &fakeVerifier{err: errors.NewProcessError("process exited during startup", nil)}

	launcher, err := NewLauncherWithCollaborators(
		testConfig(), &fakeScanner{}, lock, verifier, launchReturning(4242, nil), &LauncherMockLogger{})
	require.NoError(t, err)

	_, err = launcher.Start(context.Background())
	require.Error(t, err)
	assert.True(t, lock.released)
}

func TestNewLauncher_InvalidConfig(t *testing.T) {
	config := testConfig()
	config.Pattern = ""

	_, err := NewLauncherWithCollaborators(
		config, &fakeScanner{}, &fakeLock{}, &fakeVerifier{}, launchReturning(0, nil), &LauncherMockLogger{})
	assert.Error(t, err)
}

func TestConfig_SetDefaults(t *testing.T) {
	config := testConfig()
	config.SetDefaults()

	assert.Equal(t, monitoring.ProbeTypeProcess, config.Probe.Type)
	assert.NotZero(t, config.Probe.RunOptions.InitialDelay)
}
