package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/punchclock/internal/config"
	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBackend(t *testing.T) *Backend {
	t.Helper()
	ctx := context.Background()

	db, err := NewDB(ctx, filepath.Join(t.TempDir(), "punchclock.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	b := NewBackend(db)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBackendSuite(t *testing.T) {
	dbtest.RunBackendSuite(t, setupBackend(t))
}

func TestMigrations(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	applied, err := b.MigrationsApplied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_employees.sql", "002_create_attendance.sql"}, applied)

	// Re-running is a no-op.
	require.NoError(t, b.db.Migrate(ctx))
	applied, err = b.MigrationsApplied(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 2)
}

func TestOpenRegisteredBackend(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "registered.db")
	b, err := database.Open(context.Background(), &config.DatabaseConfig{URL: url})
	require.NoError(t, err)
	defer b.Close()

	applied, err := b.MigrationsApplied(context.Background())
	require.NoError(t, err)
	assert.Len(t, applied, 2)
}

func TestIsUniqueViolation(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	e := dbtest.NewEmployee("org-unique", "EMP-001", "First", nil)
	dbtest.CreateEmployee(t, b.Employees(), e)

	_, err := b.db.db.ExecContext(ctx,
		`INSERT INTO employees (id, org_id, code, name, name_normalized, email, created_at, updated_at)
		 VALUES ('x', 'org-unique', 'EMP-001', 'Second', 'second', 'second@example.com', '', '')`)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err), "expected unique violation, got %v", err)

	_, err = b.db.db.ExecContext(ctx, `INSERT INTO employees (id) VALUES ('y')`)
	require.Error(t, err)
	assert.False(t, isUniqueViolation(err), "NOT NULL failure is not a unique violation: %v", err)
}
