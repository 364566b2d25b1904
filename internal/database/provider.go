package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/punchclock/internal/config"
)

// Backend is an opened storage engine with migrations applied.
type Backend interface {
	Employees() EmployeeStore
	Attendance() AttendanceStore
	// MigrationsApplied returns the applied migration versions in order
	MigrationsApplied(ctx context.Context) ([]string, error)
	Close() error
}

// Opener opens a backend and applies pending migrations.
type Opener func(ctx context.Context, cfg *config.DatabaseConfig) (Backend, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Opener)
)

// Register makes a storage backend available by driver name.
// This is called from the backend packages' init to avoid import cycles.
func Register(driver string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if open == nil {
		panic("database: Register opener is nil")
	}
	if _, dup := backends[driver]; dup {
		panic("database: Register called twice for driver " + driver)
	}
	backends[driver] = open
}

// Drivers returns the names of the registered backends.
func Drivers() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the backend selected by the DATABASE_URL scheme.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (Backend, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("database not configured: DATABASE_URL is required")
	}
	driver := cfg.Driver()

	backendsMu.RLock()
	open, ok := backends[driver]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme %q (registered backends: %v)", driver, Drivers())
	}

	backend, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", driver, err)
	}
	return backend, nil
}
