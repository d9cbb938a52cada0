package identity

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded schema migrations. dialect is a goose
// dialect name ("sqlite3", "postgres").
func RunMigrations(ctx context.Context, db *sql.DB, dialect string) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.Dialect(dialect), db, fsys)
	if err != nil {
		return err
	}

	_, err = provider.Up(ctx)
	return err
}
