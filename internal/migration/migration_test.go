package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func migrationVersions(t *testing.T, dialect, suffix string) []string {
	t.Helper()
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir(dialect))
	require.NoError(t, err)

	var versions []string
	for _, entry := range entries {
		if v, ok := strings.CutSuffix(entry.Name(), suffix); ok {
			versions = append(versions, v)
		}
	}
	return versions
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	pgUp := migrationVersions(t, DialectPostgres, ".up.sql")
	require.NotEmpty(t, pgUp)
	assert.Equal(t, pgUp, migrationVersions(t, DialectPostgres, ".down.sql"))
	assert.Equal(t, pgUp, migrationVersions(t, DialectSQLite, ".up.sql"))
	assert.Equal(t, pgUp, migrationVersions(t, DialectSQLite, ".down.sql"))
}

func TestEmbeddedSchemaCreatesLedgers(t *testing.T) {
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		up, err := fs.ReadFile(embeddedMigrations, migrationsDir(dialect)+"/000001_chargebacks.up.sql")
		require.NoError(t, err)
		for _, table := range []string{"chargebacks", "chargeback_states", "chargeback_hold_states"} {
			assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS "+table+" (", dialect)
		}
	}
}

func TestRunMigrationsOnSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migration_test?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, RunMigrations(sqlDB, DialectSQLite, nil))
	// Second run finds nothing to apply.
	require.NoError(t, RunMigrations(sqlDB, DialectSQLite, nil))

	var tables []string
	require.NoError(t, db.Raw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'chargeback%' ORDER BY name",
	).Scan(&tables).Error)
	assert.Equal(t, []string{
		"chargeback_hold_states",
		"chargeback_schema_migrations",
		"chargeback_states",
		"chargebacks",
	}, tables)

	var version int
	require.NoError(t, db.Raw("SELECT version FROM chargeback_schema_migrations").Scan(&version).Error)
	assert.Equal(t, 1, version)
}

func TestRunMigrationsRejectsBadInput(t *testing.T) {
	assert.ErrorIs(t, RunMigrations(nil, DialectPostgres, nil), errNilHandle)

	db, err := gorm.Open(sqlite.Open("file:migration_dialect_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	assert.ErrorIs(t, RunMigrations(sqlDB, "mysql", nil), errUnsupportedDialect)
}
