package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/core-tools/vms-deploy/pkg/deploy"
	"github.com/core-tools/vms-deploy/pkg/launcher"
	"github.com/core-tools/vms-deploy/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config   string `long:"config" description:"launcher configuration file written by vmsdeploy"`
	LogLevel string `long:"log-level" description:"log level: debug, info, warn, error"`
	NoColor  bool   `long:"no-color" description:"disable colored output"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	configPath := opts.Config
	if configPath == "" {
		configPath = filepath.Join(deploy.DefaultInstallDir, deploy.LauncherConfigFile)
	}

	logger, err := logging.NewZapConsoleLogger(logging.ZapConsoleConfig{
		Level:   opts.LogLevel,
		NoColor: opts.NoColor,
	})
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	config, err := deploy.LoadLauncherConfig(configPath)
	if err != nil {
		logger.Errorf("Failed to load launcher configuration: %v", err)
		os.Exit(1)
	}

	launcherLogger := logging.NewLogger(
		logPrefix("launcher"), logging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})

	appLauncher, err := launcher.NewLauncher(*config, launcherLogger)
	if err != nil {
		logger.Errorf("Invalid launcher configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pid, err := appLauncher.Start(ctx)
	if err != nil {
		logger.Errorf("Start failed: %v", err)
		os.Exit(1)
	}

	logger.Infof("Application is running, pid: %d", pid)
}
