package storage

import (
	"database/sql"
	"embed"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

var ErrUnknownDirection = errors.New("unknown migration direction")

// NormalizeDSN turns on parseTime, which the adapters need to scan DATETIME
// columns into time.Time.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := parseDSN(dsn)
	if err != nil {
		return "", err
	}
	return cfg.FormatDSN(), nil
}

func parseDSN(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	cfg.ParseTime = true
	return cfg, nil
}

// Migrate applies the embedded schema. The stored procedure body holds several
// statements, so the DSN is forced to multiStatements.
func Migrate(dsn, direction string, logger zerolog.Logger) error {
	if direction != MigrateUp && direction != MigrateDown {
		return errors.Wrap(ErrUnknownDirection, direction)
	}

	cfg, err := parseDSN(dsn)
	if err != nil {
		return err
	}
	cfg.MultiStatements = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return errors.Wrap(err, "open mysql")
	}

	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		db.Close()
		return errors.Wrap(err, "migration driver")
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		db.Close()
		return errors.Wrap(err, "migration source")
	}

	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		db.Close()
		return errors.Wrap(err, "init migrate")
	}
	defer m.Close()

	if direction == MigrateUp {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info().Str("direction", direction).Msg("schema already current")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "migrate %s", direction)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return errors.Wrap(verr, "read schema version")
	}
	logger.Info().
		Str("direction", direction).
		Uint("version", version).
		Bool("dirty", dirty).
		Msg("schema migrated")
	return nil
}
