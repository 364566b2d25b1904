package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/kozaktomas/punchclock/internal/logging"
)

// Migrator applies embedded SQL migrations once each, tracked in schema_migrations.
// Each file runs in its own transaction together with its version row.
type Migrator struct {
	DB *sql.DB
	// FS holds the *.sql files at its root, applied in lexical order.
	FS fs.FS
	// Backend names the engine in log lines.
	Backend string
	// Placeholder is the first bind parameter of the dialect ("$1" or "?").
	Placeholder string
}

// getAppliedMigrations returns a set of already-applied migration versions.
func (m *Migrator) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	_, err := m.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	versions, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// pendingFiles returns sorted SQL migration filenames not yet applied.
func (m *Migrator) pendingFiles(applied map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(m.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !applied[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements cuts a migration file into individual statements.
// Migration files must not contain semicolons inside literals.
func splitStatements(content string) []string {
	var stmts []string
	for part := range strings.SplitSeq(content, ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// Migrate applies all pending migrations.
func (m *Migrator) Migrate(ctx context.Context) error {
	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	files, err := m.pendingFiles(applied)
	if err != nil {
		return err
	}

	log := logging.FromContext(ctx)
	for _, file := range files {
		content, err := fs.ReadFile(m.FS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if err := m.apply(ctx, file, splitStatements(string(content))); err != nil {
			return err
		}
		log.Info("applied migration", "backend", m.Backend, "version", file)
	}

	return nil
}

func (m *Migrator) apply(ctx context.Context, file string, stmts []string) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", file, err)
	}

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %s statement %d: %w", file, i+1, err)
		}
	}

	record := "INSERT INTO schema_migrations (version) VALUES (" + m.Placeholder + ")"
	if _, err := tx.ExecContext(ctx, record, file); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration %s: %w", file, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}

// Applied returns the applied migration versions in order.
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	rows, err := m.DB.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}
