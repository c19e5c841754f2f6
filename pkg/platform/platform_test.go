package platform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PlatformMockLogger is a simple mock implementation of Logger for testing
type PlatformMockLogger struct{}

func (m *PlatformMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *PlatformMockLogger) Debugf(format string, args ...interface{})               {}
func (m *PlatformMockLogger) Infof(format string, args ...interface{})                {}
func (m *PlatformMockLogger) Warnf(format string, args ...interface{})                {}
func (m *PlatformMockLogger) Errorf(format string, args ...interface{})               {}

// recordingRunner records commands instead of executing them
type recordingRunner struct {
	commands [][]string
	fail     bool
	output   string
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	r.commands = append(r.commands, append([]string{name}, args...))
	if r.fail {
		return r.output, assert.AnError
	}
	return r.output, nil
}

func (r *recordingRunner) LookPath(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

func TestParseOSRelease_Ubuntu(t *testing.T) {
	content := `NAME="Ubuntu"
VERSION="22.04.3 LTS (Jammy Jellyfish)"
ID=ubuntu
ID_LIKE=debian
PRETTY_NAME="Ubuntu 22.04.3 LTS"
VERSION_ID="22.04"
`

	info := &Info{OS: "linux"}
	err := parseOSRelease(strings.NewReader(content), info)
	require.NoError(t, err)

	assert.Equal(t, "ubuntu", info.ID)
	assert.Equal(t, []string{"debian"}, info.IDLike)
	assert.Equal(t, "22.04", info.VersionID)
	assert.Equal(t, "Ubuntu 22.04.3 LTS", info.PrettyName)
}

func TestParseOSRelease_CentOS(t *testing.T) {
	content := `NAME="CentOS Stream"
ID="centos"
ID_LIKE="rhel fedora"
VERSION_ID="9"
`

	info := &Info{OS: "linux"}
	err := parseOSRelease(strings.NewReader(content), info)
	require.NoError(t, err)

	assert.Equal(t, "centos", info.ID)
	assert.Equal(t, []string{"rhel", "fedora"}, info.IDLike)
}

func TestParseOSRelease_IgnoresCommentsAndBlankLines(t *testing.T) {
	content := `# a comment
ID=alpine

PRETTY_NAME="Alpine Linux v3.19"
not-a-key-value
`

	info := &Info{OS: "linux"}
	err := parseOSRelease(strings.NewReader(content), info)
	require.NoError(t, err)

	assert.Equal(t, "alpine", info.ID)
	assert.Equal(t, "Alpine Linux v3.19", info.PrettyName)
}

func TestResolvePackageManager(t *testing.T) {
	tests := []struct {
		name     string
		info     Info
		expected PackageManagerKind
		wantErr  bool
	}{
		{name: "ubuntu", info: Info{OS: "linux", ID: "ubuntu"}, expected: PackageManagerApt},
		{name: "debian", info: Info{OS: "linux", ID: "debian"}, expected: PackageManagerApt},
		{name: "centos", info: Info{OS: "linux", ID: "centos"}, expected: PackageManagerYum},
		{name: "fedora", info: Info{OS: "linux", ID: "fedora"}, expected: PackageManagerDnf},
		{name: "alpine", info: Info{OS: "linux", ID: "alpine"}, expected: PackageManagerApk},
		{name: "darwin", info: Info{OS: "darwin"}, expected: PackageManagerBrew},
		{name: "id_like fallback", info: Info{OS: "linux", ID: "linuxmint", IDLike: []string{"ubuntu", "debian"}}, expected: PackageManagerApt},
		{name: "unknown", info: Info{OS: "linux", ID: "plan9ish"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := resolvePackageManager(&tt.info)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestInstallArgs(t *testing.T) {
	assert.Equal(t, []string{"apt-get", "install", "-y", "postgresql"}, InstallArgs(PackageManagerApt, "postgresql"))
	assert.Equal(t, []string{"yum", "install", "-y", "postgresql-server"}, InstallArgs(PackageManagerYum, "postgresql-server"))
	assert.Equal(t, []string{"brew", "install", "postgresql"}, InstallArgs(PackageManagerBrew, "postgresql"))
	assert.Nil(t, InstallArgs("portage", "postgresql"))
}

func TestPackageManager_Install(t *testing.T) {
	runner := &recordingRunner{}
	pm, err := NewPackageManager(&Info{OS: "linux", ID: "ubuntu"}, runner, &PlatformMockLogger{})
	require.NoError(t, err)

	err = pm.Install(context.Background(), "postgresql")
	require.NoError(t, err)

	require.Len(t, runner.commands, 1)
	assert.Equal(t, []string{"apt-get", "install", "-y", "postgresql"}, runner.commands[0])
}

func TestPackageManager_EnableService(t *testing.T) {
	runner := &recordingRunner{}
	pm, err := NewPackageManager(&Info{OS: "linux", ID: "debian"}, runner, &PlatformMockLogger{})
	require.NoError(t, err)

	err = pm.EnableService(context.Background(), "postgresql")
	require.NoError(t, err)

	require.Len(t, runner.commands, 2)
	assert.Equal(t, []string{"systemctl", "enable", "postgresql"}, runner.commands[0])
	assert.Equal(t, []string{"systemctl", "start", "postgresql"}, runner.commands[1])
}

func TestPackageManager_InstallFailure(t *testing.T) {
	runner := &recordingRunner{fail: true, output: "E: Unable to locate package"}
	pm, err := NewPackageManager(&Info{OS: "linux", ID: "ubuntu"}, runner, &PlatformMockLogger{})
	require.NoError(t, err)

	err = pm.Install(context.Background(), "postgresql")
	assert.Error(t, err)
}
