package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/core-tools/vms-deploy/pkg/appconfig"
	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"

	"github.com/jackc/pgx/v5"
)

// maintenanceDB is the database used for administrative statements that
// cannot run against the target database (it may not exist yet)
const maintenanceDB = "postgres"

const connectTimeout = 10 * time.Second

// Manager performs the database-side deployment steps: making sure the
// target database exists and the application role credentials are set
type Manager struct {
	config *appconfig.Database
	logger logging.Logger
}

// NewManager creates a database manager for the given connection settings
func NewManager(config *appconfig.Database, logger logging.Logger) (*Manager, error) {
	if config == nil {
		return nil, errors.NewValidationError("database config cannot be nil", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Manager{
		config: config,
		logger: logger,
	}, nil
}

// Ensure checks that the target database exists and creates it when absent
func (m *Manager) Ensure(ctx context.Context) error {
	conn, err := m.connect(ctx, maintenanceDB)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", m.config.DBName).Scan(&exists)
	if err != nil {
		return errors.NewDatabaseError("failed to check database existence", err).WithContext("dbname", m.config.DBName)
	}

	if exists {
		m.logger.Infof("Database already exists, dbname: %s", m.config.DBName)
		return nil
	}

	m.logger.Infof("Database does not exist, creating, dbname: %s", m.config.DBName)

	// CREATE DATABASE does not accept bind parameters
	createSQL := fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{m.config.DBName}.Sanitize())
	if _, err := conn.Exec(ctx, createSQL); err != nil {
		return errors.NewDatabaseError("failed to create database", err).WithContext("dbname", m.config.DBName)
	}

	m.logger.Infof("Database created, dbname: %s", m.config.DBName)
	return nil
}

// ConfigurePassword sets the configured role's password on the server so
// the application can authenticate with the credentials from its config
func (m *Manager) ConfigurePassword(ctx context.Context) error {
	conn, err := m.connect(ctx, maintenanceDB)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	alterSQL := alterPasswordSQL(m.config.User, m.config.Password)
	if _, err := conn.Exec(ctx, alterSQL); err != nil {
		return errors.NewDatabaseError("failed to configure role password", err).WithContext("user", m.config.User)
	}

	m.logger.Infof("Role password configured, user: %s", m.config.User)
	return nil
}

// Ping verifies the target database is reachable with the configured credentials
func (m *Manager) Ping(ctx context.Context) error {
	conn, err := m.connect(ctx, m.config.DBName)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	if err := conn.Ping(ctx); err != nil {
		return errors.NewDatabaseError("database ping failed", err).WithContext("dbname", m.config.DBName)
	}
	return nil
}

func (m *Manager) connect(ctx context.Context, dbname string) (*pgx.Conn, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := pgx.Connect(connectCtx, m.config.DSN(dbname))
	if err != nil {
		return nil, errors.NewDatabaseError("failed to connect to database server", err).
			WithContext("host", m.config.Host).
			WithContext("port", m.config.Port).
			WithContext("dbname", dbname)
	}
	return conn, nil
}

// alterPasswordSQL builds the ALTER USER statement. Role name is quoted as
// an identifier, the password as a string literal; neither position accepts
// bind parameters.
func alterPasswordSQL(user, password string) string {
	return fmt.Sprintf(
		"ALTER USER %s WITH PASSWORD '%s'",
		pgx.Identifier{user}.Sanitize(),
		strings.ReplaceAll(password, "'", "''"),
	)
}
