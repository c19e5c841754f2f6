package pyruntime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PyRuntimeMockLogger is a simple mock implementation of Logger for testing
type PyRuntimeMockLogger struct{}

func (m *PyRuntimeMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *PyRuntimeMockLogger) Debugf(format string, args ...interface{})               {}
func (m *PyRuntimeMockLogger) Infof(format string, args ...interface{})                {}
func (m *PyRuntimeMockLogger) Warnf(format string, args ...interface{})                {}
func (m *PyRuntimeMockLogger) Errorf(format string, args ...interface{})               {}

// fakeRunner simulates the interpreter and pip
type fakeRunner struct {
	versionOutput string
	commands      [][]string
	missing       map[string]bool
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	r.commands = append(r.commands, append([]string{name}, args...))
	if len(args) == 1 && args[0] == "--version" {
		return r.versionOutput, nil
	}
	return "", nil
}

func (r *fakeRunner) LookPath(name string) (string, error) {
	if r.missing[name] {
		return "", os.ErrNotExist
	}
	return "/usr/bin/" + name, nil
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected Version
		wantErr  bool
	}{
		{input: "Python 3.11.4", expected: Version{3, 11, 4}, wantErr: false},
		{input: "Python 3.8.0\n", expected: Version{3, 8, 0}, wantErr: false},
		{input: "3.7", expected: Version{3, 7, 0}, wantErr: false},
		{input: "2.7.18", expected: Version{2, 7, 18}, wantErr: false},
		{input: "no digits here", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			version, err := ParseVersion(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, version)
		})
	}
}

func TestVersion_AtLeast(t *testing.T) {
	min := Version{Major: 3, Minor: 8}

	assert.False(t, Version{3, 7, 0}.AtLeast(min))
	assert.True(t, Version{3, 8, 0}.AtLeast(min))
	assert.True(t, Version{3, 11, 2}.AtLeast(min))
	assert.True(t, Version{4, 0, 0}.AtLeast(min))
	assert.False(t, Version{2, 9, 0}.AtLeast(min))
}

func TestCheckVersion_TooOld(t *testing.T) {
	runner := &fakeRunner{versionOutput: "Python 3.7.9"}
	checker := NewChecker(runner, &PyRuntimeMockLogger{})

	_, err := checker.CheckVersion(context.Background(), MinimumVersion)
	assert.Error(t, err)
	assert.Empty(t, checker.Interpreter())
}

func TestCheckVersion_Passes(t *testing.T) {
	for _, output := range []string{"Python 3.8.10", "Python 3.11.4"} {
		runner := &fakeRunner{versionOutput: output}
		checker := NewChecker(runner, &PyRuntimeMockLogger{})

		version, err := checker.CheckVersion(context.Background(), MinimumVersion)
		require.NoError(t, err, output)
		assert.True(t, version.AtLeast(MinimumVersion))
		assert.Equal(t, "/usr/bin/python3", checker.Interpreter())
	}
}

func TestCheckVersion_FallsBackToPython(t *testing.T) {
	runner := &fakeRunner{versionOutput: "Python 3.10.2", missing: map[string]bool{"python3": true}}
	checker := NewChecker(runner, &PyRuntimeMockLogger{})

	_, err := checker.CheckVersion(context.Background(), MinimumVersion)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/python", checker.Interpreter())
}

func TestCheckVersion_NoInterpreter(t *testing.T) {
	runner := &fakeRunner{missing: map[string]bool{"python3": true, "python": true}}
	checker := NewChecker(runner, &PyRuntimeMockLogger{})

	_, err := checker.CheckVersion(context.Background(), MinimumVersion)
	assert.Error(t, err)
}

func TestInstallDependencies(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "requirements.txt")
	require.NoError(t, os.WriteFile(manifest, []byte("flask\npsycopg2\n"), 0644))

	runner := &fakeRunner{versionOutput: "Python 3.9.1"}
	checker := NewChecker(runner, &PyRuntimeMockLogger{})

	_, err := checker.CheckVersion(context.Background(), MinimumVersion)
	require.NoError(t, err)

	err = checker.InstallDependencies(context.Background(), manifest)
	require.NoError(t, err)

	last := runner.commands[len(runner.commands)-1]
	assert.Equal(t, []string{"/usr/bin/python3", "-m", "pip", "install", "-r", manifest}, last)
}

func TestInstallDependencies_MissingManifest(t *testing.T) {
	runner := &fakeRunner{}
	checker := NewChecker(runner, &PyRuntimeMockLogger{})

	err := checker.InstallDependencies(context.Background(), filepath.Join(t.TempDir(), "requirements.txt"))
	assert.Error(t, err)
	assert.Empty(t, runner.commands)
}
