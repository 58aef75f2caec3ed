package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationMissing is returned by MigrateDown when the latest applied
	// version has no file in the migration source.
	ErrMigrationMissing = errors.New("database: applied migration not found in source")

	// ErrNoDownMigration is returned by MigrateDown for a migration without a .down.sql file.
	ErrNoDownMigration = errors.New("database: migration has no down SQL")
)
