package migration

import "embed"

// One directory per dialect under sql/, each with the same version sequence.
//
//go:embed sql/postgres/*.sql sql/sqlite/*.sql
var embeddedMigrations embed.FS

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

func migrationsDir(dialect string) string {
	return "sql/" + dialect
}
