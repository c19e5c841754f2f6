package deploy

import (
	"os"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/launcher"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level deployment profile file structure
type Config struct {
	Deployment DeploymentOptions `yaml:"deployment"`
	Launcher   *launcher.Config  `yaml:"launcher,omitempty"` // Optional launcher overrides
}

// DeploymentOptions represents deployment-level configuration
type DeploymentOptions struct {
	ArchivePath   string `yaml:"archive_path,omitempty"`
	InstallDir    string `yaml:"install_dir,omitempty"`
	MarkerFile    string `yaml:"marker_file,omitempty"`
	ManifestFile  string `yaml:"manifest_file,omitempty"`
	AppConfigFile string `yaml:"app_config_file,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`

	// Skip the PostgreSQL package installation step entirely, e.g. when
	// deploying against a managed database
	SkipDatabaseInstall bool `yaml:"skip_database_install,omitempty"`

	MinPythonVersion string `yaml:"min_python_version,omitempty"`
}

// Defaults for the deployment options
const (
	DefaultArchivePath      = "vehicle-manager.tar.gz"
	DefaultInstallDir       = "/opt/vehicle-manager"
	DefaultMarkerFile       = "app.py"
	DefaultManifestFile     = "requirements.txt"
	DefaultAppConfigFile    = "config.json"
	DefaultMinPythonVersion = "3.8"
)

// LoadConfigFromFile loads a deployment profile from a YAML file
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	SetConfigDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// SetConfigDefaults applies default values to a deployment profile
func SetConfigDefaults(config *Config) {
	opts := &config.Deployment

	if opts.ArchivePath == "" {
		opts.ArchivePath = DefaultArchivePath
	}
	if opts.InstallDir == "" {
		opts.InstallDir = DefaultInstallDir
	}
	if opts.MarkerFile == "" {
		opts.MarkerFile = DefaultMarkerFile
	}
	if opts.ManifestFile == "" {
		opts.ManifestFile = DefaultManifestFile
	}
	if opts.AppConfigFile == "" {
		opts.AppConfigFile = DefaultAppConfigFile
	}
	if opts.LogLevel == "" {
		opts.LogLevel = "info"
	}
	if opts.MinPythonVersion == "" {
		opts.MinPythonVersion = DefaultMinPythonVersion
	}
}

// ValidateConfig validates a deployment profile
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	opts := &config.Deployment

	if opts.ArchivePath == "" {
		return errors.NewValidationError("archive path cannot be empty", nil)
	}
	if opts.InstallDir == "" {
		return errors.NewValidationError("install directory cannot be empty", nil)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	valid := false
	for _, level := range validLogLevels {
		if opts.LogLevel == level {
			valid = true
			break
		}
	}
	if !valid {
		return errors.NewValidationError("invalid log level: "+opts.LogLevel, nil).
			WithContext("valid_levels", "debug, info, warn, error")
	}

	return nil
}

// SaveLauncherConfig writes the generated launcher configuration next to
// the deployed application, for the start command to consume
func SaveLauncherConfig(filename string, config *launcher.Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.NewValidationError("failed to marshal launcher configuration", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.NewIOError("failed to write launcher configuration", err).WithContext("filename", filename)
	}

	return nil
}

// LoadLauncherConfig reads a launcher configuration written by a previous
// deployment
func LoadLauncherConfig(filename string) (*launcher.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read launcher configuration", err).WithContext("filename", filename)
	}

	var config launcher.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse launcher configuration", err).WithContext("filename", filename)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
