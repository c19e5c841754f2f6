package database

import (
	"context"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"
	"github.com/core-tools/vms-deploy/pkg/platform"
)

// serverPackageName returns the PostgreSQL server package for the
// platform package manager family
func serverPackageName(kind platform.PackageManagerKind) string {
	switch kind {
	case platform.PackageManagerYum, platform.PackageManagerDnf:
		return "postgresql-server"
	default:
		return "postgresql"
	}
}

const postgresService = "postgresql"

// InstallServer installs the PostgreSQL server package and enables its
// service. Callers are expected to tolerate failure: a server may already
// be provisioned outside the package manager.
func InstallServer(ctx context.Context, pm *platform.PackageManager, logger logging.Logger) error {
	pkg := serverPackageName(pm.Kind())

	if err := pm.Install(ctx, pkg); err != nil {
		return errors.NewDatabaseError("PostgreSQL server installation failed", err).WithContext("package", pkg)
	}

	// RHEL-family packages ship without an initialized cluster
	if pkg == "postgresql-server" {
		logger.Infof("Initializing PostgreSQL data directory")
		if err := initializeCluster(ctx, pm); err != nil {
			// postgresql-setup fails when the cluster already exists; not fatal
			logger.Warnf("PostgreSQL data directory initialization failed (may already exist): %v", err)
		}
	}

	if err := pm.EnableService(ctx, postgresService); err != nil {
		return errors.NewDatabaseError("failed to enable PostgreSQL service", err)
	}

	return nil
}

func initializeCluster(ctx context.Context, pm *platform.PackageManager) error {
	return pm.RunTool(ctx, "postgresql-setup", "--initdb")
}
