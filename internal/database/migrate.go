package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"
)

// migrationSource points at the repo's migrations directory relative to the
// working directory the binaries run from.
const migrationSource = "file://migrations"

// RunMigrations brings the schema up to the latest version. A database that
// is already current is not an error; a dirty version is, since the ledger
// must never run on a half-migrated schema.
func RunMigrations(databaseURL string) error {
	m, err := migrate.New(migrationSource, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema is dirty at version %d, refusing to start", version)
	}

	log.Info().Uint("version", version).Msg("schema up to date")
	return nil
}

// RollbackMigrations drops the whole schema. Used by integration tests to
// reset state; never called by the binaries.
func RollbackMigrations(databaseURL string) error {
	m, err := migrate.New(migrationSource, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", err)
	}

	log.Info().Msg("schema rolled back")
	return nil
}
