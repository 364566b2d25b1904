// Package sqlite is the embedded storage backend, used for single-node
// deployments and for store tests that should not need Docker.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/kozaktomas/punchclock/internal/config"
	"github.com/kozaktomas/punchclock/internal/database"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is how timestamps are stored in TEXT columns. Fixed width and
// always UTC, so lexical order is chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func init() {
	database.Register("sqlite", Open)
}

// DB wraps a single-connection SQLite handle. One connection serializes
// writers, so enrollment transactions never interleave.
type DB struct {
	db *sql.DB
}

// dsn adds the pragmas every connection needs.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

// NewDB opens the database file at path (":memory:" for a private in-memory database).
func NewDB(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

func (d *DB) migrator() *database.Migrator {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic("sqlite: embedded migrations missing: " + err.Error())
	}
	return &database.Migrator{DB: d.db, FS: sub, Backend: "sqlite", Placeholder: "?"}
}

// Migrate applies pending migrations.
func (d *DB) Migrate(ctx context.Context) error {
	return d.migrator().Migrate(ctx)
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY violation.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Backend bundles the repositories sharing one database handle.
type Backend struct {
	db         *DB
	employees  *EmployeeRepository
	attendance *AttendanceRepository
}

// Open opens the file named by a sqlite:// URL and applies migrations.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (database.Backend, error) {
	db, err := NewDB(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return NewBackend(db), nil
}

// NewBackend wraps an already migrated database.
func NewBackend(db *DB) *Backend {
	return &Backend{
		db:         db,
		employees:  &EmployeeRepository{db: db.db},
		attendance: &AttendanceRepository{db: db.db},
	}
}

func (b *Backend) Employees() database.EmployeeStore { return b.employees }

func (b *Backend) Attendance() database.AttendanceStore { return b.attendance }

func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) MigrationsApplied(ctx context.Context) ([]string, error) {
	return b.db.migrator().Applied(ctx)
}
