package appconfig

import (
	"fmt"
	"net/url"
	"os"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"

	"github.com/ilyakaznacheev/cleanenv"
)

// Database holds the application's database connection settings as read
// from its config.json. Every key is optional; absent keys fall back to
// the defaults the application itself assumes.
type Database struct {
	Host     string `json:"host" yaml:"host" env:"VMS_DB_HOST" env-default:"localhost"`
	Port     int    `json:"port" yaml:"port" env:"VMS_DB_PORT" env-default:"5432"`
	User     string `json:"user" yaml:"user" env:"VMS_DB_USER" env-default:"postgres"`
	Password string `json:"password" yaml:"password" env:"VMS_DB_PASSWORD" env-default:"P@ssw0rd"`
	DBName   string `json:"dbname" yaml:"dbname" env:"VMS_DB_NAME" env-default:"vehicle_db"`
}

// Load reads the application config file. A missing file is not an error:
// the defaults are returned unchanged, matching the application's own
// fallback behavior.
func Load(path string, logger logging.Logger) (*Database, error) {
	var config Database

	if path == "" {
		return nil, errors.NewValidationError("config path cannot be empty", nil)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warnf("Application config not found, using defaults, path: %s", path)
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, errors.NewValidationError("failed to apply config defaults", err)
		}
		return &config, nil
	}

	if err := cleanenv.ReadConfig(path, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse application config", err).WithContext("path", path)
	}

	logger.Infof("Application config loaded, path: %s, database: %s:%d/%s", path, config.Host, config.Port, config.DBName)
	return &config, nil
}

// DSN builds a pgx connection string for the given database name. Pass an
// empty dbname to connect to the configured database.
func (d *Database) DSN(dbname string) string {
	if dbname == "" {
		dbname = d.DBName
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + dbname,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Validate checks the loaded settings for obviously broken values
func (d *Database) Validate() error {
	if d.Host == "" {
		return errors.NewValidationError("database host cannot be empty", nil)
	}
	if d.Port <= 0 || d.Port > 65535 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid database port: %d", d.Port), nil,
		).WithContext("valid_range", "1-65535")
	}
	if d.User == "" {
		return errors.NewValidationError("database user cannot be empty", nil)
	}
	if d.DBName == "" {
		return errors.NewValidationError("database name cannot be empty", nil)
	}
	return nil
}
