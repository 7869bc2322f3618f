package migrate

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrations ship inside the binary, a plain `fts migrate` needs no
// extra files on the host
//
//go:embed migrations
var migrationFiles embed.FS

// MigrateDb brings the schema of the database behind dbURI up to date.
func MigrateDb(dbURI string) error {
	m, err := newMigration(dbURI)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func newMigration(dbURI string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	// the pgx database driver registers under its own scheme
	return migrate.NewWithSourceInstance("iofs", src,
		strings.Replace(dbURI, "postgresql://", "pgx://", 1))
}
