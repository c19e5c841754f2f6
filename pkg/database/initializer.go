package database

import (
	"context"
	"database/sql"
	"embed"
	goerrors "errors"

	"github.com/core-tools/vms-deploy/pkg/errors"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Initialize applies the embedded schema migrations to the target
// database. Running against an already initialized database is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.NewDatabaseError("failed to load embedded migrations", err)
	}

	db, err := sql.Open("pgx", m.config.DSN(""))
	if err != nil {
		return errors.NewDatabaseError("failed to open database connection", err).WithContext("dbname", m.config.DBName)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return errors.NewDatabaseError("database is not reachable", err).
			WithContext("host", m.config.Host).
			WithContext("dbname", m.config.DBName)
	}

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return errors.NewDatabaseError("failed to create migration driver", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, m.config.DBName, driver)
	if err != nil {
		return errors.NewDatabaseError("failed to create migrator", err)
	}

	m.logger.Infof("Applying schema migrations, dbname: %s", m.config.DBName)

	if err := migrator.Up(); err != nil {
		if goerrors.Is(err, migrate.ErrNoChange) {
			m.logger.Infof("Schema already up to date, dbname: %s", m.config.DBName)
			return nil
		}
		return errors.NewDatabaseError("schema migration failed", err).WithContext("dbname", m.config.DBName)
	}

	m.logger.Infof("Schema migrations applied, dbname: %s", m.config.DBName)
	return nil
}
