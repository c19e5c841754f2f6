package deploy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/core-tools/vms-deploy/pkg/appconfig"
	"github.com/core-tools/vms-deploy/pkg/archive"
	"github.com/core-tools/vms-deploy/pkg/cmdrun"
	"github.com/core-tools/vms-deploy/pkg/database"
	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/launcher"
	"github.com/core-tools/vms-deploy/pkg/logging"
	"github.com/core-tools/vms-deploy/pkg/platform"
	"github.com/core-tools/vms-deploy/pkg/pyruntime"
)

// LauncherConfigFile is the name of the launcher configuration the
// deployer writes into the install directory
const LauncherConfigFile = "vms-start.yaml"

// Deployer runs the deployment pipeline: extract, provision the
// database, verify the runtime, install dependencies, initialize the
// schema and write the launcher configuration
type Deployer struct {
	config    *Config
	extractor *archive.Extractor
	runner    cmdrun.Runner
	checker   *pyruntime.Checker
	logger    logging.Logger
}

// NewDeployer creates a deployer for the given profile
func NewDeployer(config *Config, logger logging.Logger) (*Deployer, error) {
	return NewDeployerWithRunner(config, cmdrun.NewExecRunner(logger), logger)
}

// NewDeployerWithRunner creates a deployer with an injected command
// runner, used by tests
func NewDeployerWithRunner(config *Config, runner cmdrun.Runner, logger logging.Logger) (*Deployer, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}
	SetConfigDefaults(config)
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return &Deployer{
		config:    config,
		extractor: archive.NewExtractor(logger),
		runner:    runner,
		checker:   pyruntime.NewChecker(runner, logger),
		logger:    logger,
	}, nil
}

// step is a named pipeline stage. Tolerated steps log their failure and
// let the pipeline continue; everything else aborts deployment.
type step struct {
	name      string
	tolerated bool

	// Logged when a tolerated step fails, explaining why the pipeline
	// goes on
	failureNote string

	run func(ctx context.Context) error
}

// Run executes the deployment pipeline in order
func (d *Deployer) Run(ctx context.Context) error {
	opts := &d.config.Deployment

	d.logger.Infof("Starting deployment, archive: %s, install dir: %s", opts.ArchivePath, opts.InstallDir)

	var (
		info      *platform.Info
		appDB     *appconfig.Database
		dbManager *database.Manager
	)

	steps := []step{
		{
			name: "detect platform",
			run: func(ctx context.Context) error {
				detected, err := platform.Detect(d.logger)
				if err != nil {
					return err
				}
				info = detected
				return nil
			},
		},
		{
			name: "extract application bundle",
			run: func(ctx context.Context) error {
				return d.extractor.Extract(opts.ArchivePath, opts.InstallDir, opts.MarkerFile)
			},
		},
		{
			name:        "install PostgreSQL server",
			tolerated:   true,
			failureNote: "Assuming a PostgreSQL server is already available",
			run: func(ctx context.Context) error {
				if opts.SkipDatabaseInstall {
					d.logger.Infof("PostgreSQL installation skipped by configuration")
					return nil
				}
				pm, err := platform.NewPackageManager(info, d.runner, d.logger)
				if err != nil {
					return err
				}
				return database.InstallServer(ctx, pm, d.logger)
			},
		},
		{
			name: "load application config",
			run: func(ctx context.Context) error {
				loaded, err := appconfig.Load(filepath.Join(opts.InstallDir, opts.AppConfigFile), d.logger)
				if err != nil {
					return err
				}
				appDB = loaded

				manager, err := database.NewManager(appDB, d.logger)
				if err != nil {
					return err
				}
				dbManager = manager
				return nil
			},
		},
		{
			name: "ensure database exists",
			run: func(ctx context.Context) error {
				return dbManager.Ensure(ctx)
			},
		},
		{
			name: "configure database credentials",
			run: func(ctx context.Context) error {
				return dbManager.ConfigurePassword(ctx)
			},
		},
		{
			name: "check Python runtime",
			run: func(ctx context.Context) error {
				min, err := pyruntime.ParseVersion(opts.MinPythonVersion)
				if err != nil {
					return err
				}
				_, err = d.checker.CheckVersion(ctx, min)
				return err
			},
		},
		{
			name: "install dependencies",
			run: func(ctx context.Context) error {
				return d.checker.InstallDependencies(ctx, filepath.Join(opts.InstallDir, opts.ManifestFile))
			},
		},
		{
			name: "initialize database schema",
			run: func(ctx context.Context) error {
				return dbManager.Initialize(ctx)
			},
		},
		{
			name: "set file permissions",
			run: func(ctx context.Context) error {
				return d.fixPermissions()
			},
		},
		{
			name: "write launcher configuration",
			run: func(ctx context.Context) error {
				return d.writeLauncherConfig()
			},
		},
	}

	if err := d.runSteps(ctx, steps); err != nil {
		return err
	}

	d.printInstructions()
	return nil
}

// runSteps executes the pipeline stages in order. A tolerated step's
// failure is logged and the pipeline continues; any other failure aborts
// and is returned as the pipeline error.
func (d *Deployer) runSteps(ctx context.Context, steps []step) error {
	for _, s := range steps {
		d.logger.Infof("==> %s", s.name)
		if err := s.run(ctx); err != nil {
			if s.tolerated {
				d.logger.Warnf("Step failed but deployment continues, step: %s, error: %v", s.name, err)
				if s.failureNote != "" {
					d.logger.Warnf("%s", s.failureNote)
				}
				continue
			}
			d.logger.Errorf("Deployment failed, step: %s, error: %v", s.name, err)
			return err
		}
	}
	return nil
}

// fixPermissions makes the application entry point executable
func (d *Deployer) fixPermissions() error {
	entryPoint := filepath.Join(d.config.Deployment.InstallDir, d.config.Deployment.MarkerFile)

	info, err := os.Stat(entryPoint)
	if err != nil {
		return errors.NewIOError("failed to stat application entry point", err).WithContext("path", entryPoint)
	}
	if err := os.Chmod(entryPoint, info.Mode()|0755); err != nil {
		return errors.NewPermissionError("failed to set entry point permissions", err).WithContext("path", entryPoint)
	}

	d.logger.Debugf("Entry point permissions set, path: %s", entryPoint)
	return nil
}

// writeLauncherConfig generates the start configuration from the profile
// and what deployment discovered (interpreter path, install layout)
func (d *Deployer) writeLauncherConfig() error {
	opts := &d.config.Deployment
	entryPoint := filepath.Join(opts.InstallDir, opts.MarkerFile)

	config := launcher.Config{}
	if d.config.Launcher != nil {
		config = *d.config.Launcher
	}

	if config.Pattern == "" {
		config.Pattern = entryPoint
	}
	if config.Launch.ExecutablePath == "" {
		config.Launch.ExecutablePath = d.checker.Interpreter()
	}
	if len(config.Launch.Args) == 0 {
		config.Launch.Args = []string{entryPoint}
	}
	if config.Launch.WorkingDirectory == "" {
		config.Launch.WorkingDirectory = opts.InstallDir
	}
	if config.Launch.LogFile == "" {
		config.Launch.LogFile = filepath.Join(opts.InstallDir, "logs", "app.log")
	}
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return err
	}

	path := filepath.Join(opts.InstallDir, LauncherConfigFile)
	if err := SaveLauncherConfig(path, &config); err != nil {
		return err
	}

	d.logger.Infof("Launcher configuration written, path: %s", path)
	return nil
}

func (d *Deployer) printInstructions() {
	configPath := filepath.Join(d.config.Deployment.InstallDir, LauncherConfigFile)

	d.logger.Infof("Deployment complete")
	d.logger.Infof("To start the application:")
	d.logger.Infof("    vmsstart --config %s", configPath)
}
