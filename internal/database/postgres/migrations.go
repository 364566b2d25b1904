package postgres

import (
	"context"
	"embed"
	"io/fs"

	"github.com/kozaktomas/punchclock/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func (p *Pool) migrator() *database.Migrator {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic("postgres: embedded migrations missing: " + err.Error())
	}
	return &database.Migrator{DB: p.db, FS: sub, Backend: "postgres", Placeholder: "$1"}
}

// Migrate applies all pending migrations automatically on startup
func (p *Pool) Migrate(ctx context.Context) error {
	return p.migrator().Migrate(ctx)
}

// MigrationsApplied returns the list of applied migrations
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	return p.migrator().Applied(ctx)
}
