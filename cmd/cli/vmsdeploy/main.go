package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/core-tools/vms-deploy/pkg/deploy"
	"github.com/core-tools/vms-deploy/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config     string `long:"config" description:"deployment profile file (YAML)"`
	Archive    string `long:"archive" description:"application bundle archive path"`
	InstallDir string `long:"install-dir" description:"installation directory"`
	Yes        bool   `long:"yes" short:"y" description:"accept defaults without prompting"`
	LogLevel   string `long:"log-level" description:"log level: debug, info, warn, error"`
	NoColor    bool   `long:"no-color" description:"disable colored output"`
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

	config := &deploy.Config{}
	if opts.Config != "" {
		config, err = deploy.LoadConfigFromFile(opts.Config)
		if err != nil {
			fmt.Printf("Failed to load deployment profile: %v\n", err)
			os.Exit(1)
		}
	}
	deploy.SetConfigDefaults(config)

	if opts.Archive != "" {
		config.Deployment.ArchivePath = opts.Archive
	}
	if opts.InstallDir != "" {
		config.Deployment.InstallDir = opts.InstallDir
	}
	if opts.LogLevel != "" {
		config.Deployment.LogLevel = opts.LogLevel
	}

	if !opts.Yes {
		reader := bufio.NewReader(os.Stdin)
		config.Deployment.ArchivePath = prompt(reader, "Application bundle archive", config.Deployment.ArchivePath)
		config.Deployment.InstallDir = prompt(reader, "Installation directory", config.Deployment.InstallDir)
	}

	logger, err := logging.NewZapConsoleLogger(logging.ZapConsoleConfig{
		Level:   config.Deployment.LogLevel,
		NoColor: opts.NoColor,
	})
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	deployLogger := logging.NewLogger(
		logPrefix("deploy"), logging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})

	deployer, err := deploy.NewDeployer(config, deployLogger)
	if err != nil {
		logger.Errorf("Invalid deployment configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := deployer.Run(ctx); err != nil {
		os.Exit(1)
	}
}

// prompt asks for a value on stdin, falling back to the default on an
// empty answer
func prompt(reader *bufio.Reader, label, defaultValue string) string {
	fmt.Printf("%s [%s]: ", label, defaultValue)
	line, err := reader.ReadString('\n')
	if err != nil {
		return defaultValue
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultValue
	}
	return line
}
