package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

const migrationsTable = "chargeback_schema_migrations"

var (
	errNilHandle          = errors.New("migration_db_required")
	errUnsupportedDialect = errors.New("migration_dialect_unsupported")
)

// RunMigrations brings the chargeback tables up to the latest embedded version for the
// given dialect and logs the resulting schema version. The migrator is never closed;
// that would close db.
func RunMigrations(db *sql.DB, dialect string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	m, err := newMigrator(db, dialect)
	if err != nil {
		return err
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		log.Debug("chargeback schema already current", zap.String("dialect", dialect))
	case err != nil:
		return fmt.Errorf("apply chargeback migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read chargeback schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("chargeback schema version %d is dirty", version)
	}
	log.Info("chargeback schema ready", zap.String("dialect", dialect), zap.Uint("version", version))
	return nil
}

func newMigrator(db *sql.DB, dialect string) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errNilHandle
	}
	driver, err := databaseDriver(db, dialect)
	if err != nil {
		return nil, err
	}
	files, err := fs.Sub(embeddedMigrations, migrationsDir(dialect))
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, dialect, driver)
}

func databaseDriver(db *sql.DB, dialect string) (database.Driver, error) {
	var (
		driver database.Driver
		err    error
	)
	switch dialect {
	case DialectPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	case DialectSQLite:
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: migrationsTable})
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedDialect, dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("%s migration driver: %w", dialect, err)
	}
	return driver, nil
}
