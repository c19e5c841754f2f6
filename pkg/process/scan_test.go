package process

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ProcessMockLogger is a simple mock implementation of Logger for testing
type ProcessMockLogger struct{}

func (m *ProcessMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *ProcessMockLogger) Debugf(format string, args ...interface{})               {}
func (m *ProcessMockLogger) Infof(format string, args ...interface{})                {}
func (m *ProcessMockLogger) Warnf(format string, args ...interface{})                {}
func (m *ProcessMockLogger) Errorf(format string, args ...interface{})               {}

func fixedSnapshot(infos []Info) SnapshotFunc {
	return func(ctx context.Context) ([]Info, error) {
		return infos, nil
	}
}

func TestFindByCmdline_Match(t *testing.T) {
	snapshot := fixedSnapshot([]Info{
		{PID: 100, Name: "python3", Cmdline: "python3 /opt/vms/app.py"},
		{PID: 200, Name: "bash", Cmdline: "bash -l"},
	})
	scanner := NewScannerWithSnapshot(snapshot, &ProcessMockLogger{})

	matches, err := scanner.FindByCmdline(context.Background(), "app.py")
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, int32(100), matches[0].PID)
}

func TestFindByCmdline_NoMatch(t *testing.T) {
	snapshot := fixedSnapshot([]Info{
		{PID: 200, Name: "bash", Cmdline: "bash -l"},
	})
	scanner := NewScannerWithSnapshot(snapshot, &ProcessMockLogger{})

	matches, err := scanner.FindByCmdline(context.Background(), "app.py")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindByCmdline_ExcludesSelf(t *testing.T) {
	snapshot := fixedSnapshot([]Info{
		{PID: int32(os.Getpid()), Name: "vmsstart", Cmdline: "vmsstart --pattern app.py"},
	})
	scanner := NewScannerWithSnapshot(snapshot, &ProcessMockLogger{})

	matches, err := scanner.FindByCmdline(context.Background(), "app.py")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindByCmdline_EmptyPattern(t *testing.T) {
	scanner := NewScannerWithSnapshot(fixedSnapshot(nil), &ProcessMockLogger{})

	_, err := scanner.FindByCmdline(context.Background(), "")
	assert.Error(t, err)
}

func TestGopsutilSnapshot_IncludesSelf(t *testing.T) {
	infos, err := GopsutilSnapshot(context.Background())
	require.NoError(t, err)

	ownPID := int32(os.Getpid())
	found := false
	for _, info := range infos {
		if info.PID == ownPID {
			found = true
			break
		}
	}
	assert.True(t, found, "own process should appear in the snapshot")
}

func TestValidateLaunchConfig(t *testing.T) {
	valid := LaunchConfig{ExecutablePath: "/usr/bin/python3", LogFile: "/tmp/app.log"}
	assert.NoError(t, ValidateLaunchConfig(valid))

	assert.Error(t, ValidateLaunchConfig(LaunchConfig{LogFile: "/tmp/app.log"}))
	assert.Error(t, ValidateLaunchConfig(LaunchConfig{ExecutablePath: "/usr/bin/python3"}))
}
