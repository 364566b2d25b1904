// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/facematch"
)

// MockEmployeeStore is an in-memory implementation of database.EmployeeStore.
// Enrollment units of work run under an exclusive lock on a staged copy and
// are discarded when fn fails.
type MockEmployeeStore struct {
	mu        sync.RWMutex
	employees map[string]database.Employee
	accounts  map[string]database.Account

	// Error injection
	ListCandidatesError error
	GetEmployeeError    error
	SearchError         error
	EnrollmentError     error
}

// NewMockEmployeeStore creates a new mock employee store
func NewMockEmployeeStore() *MockEmployeeStore {
	return &MockEmployeeStore{
		employees: make(map[string]database.Employee),
		accounts:  make(map[string]database.Account),
	}
}

// AddEmployee adds an employee to the mock store without uniqueness checks
func (m *MockEmployeeStore) AddEmployee(e database.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Status == "" {
		e.Status = database.EmployeeActive
	}
	m.employees[e.ID] = e
}

// Accounts returns a copy of the stored accounts
func (m *MockEmployeeStore) Accounts() []database.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Collect(maps.Values(m.accounts))
}

// Count returns the number of stored employees
func (m *MockEmployeeStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.employees)
}

func sortedByCode(employees map[string]database.Employee, keep func(e database.Employee) bool) []database.Employee {
	var out []database.Employee
	for _, e := range employees {
		if keep(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b database.Employee) int { return strings.Compare(a.Code, b.Code) })
	return out
}

// ListCandidates returns active employees with a descriptor
func (m *MockEmployeeStore) ListCandidates(ctx context.Context, orgID string) ([]database.Employee, error) {
	if m.ListCandidatesError != nil {
		return nil, m.ListCandidatesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedByCode(m.employees, func(e database.Employee) bool {
		return e.OrgID == orgID && e.Status == database.EmployeeActive && e.Enrolled()
	}), nil
}

// GetEmployee retrieves an employee by ID within the organization
func (m *MockEmployeeStore) GetEmployee(ctx context.Context, orgID, employeeID string) (*database.Employee, error) {
	if m.GetEmployeeError != nil {
		return nil, m.GetEmployeeError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[employeeID]
	if !ok || e.OrgID != orgID {
		return nil, database.ErrNotFound
	}
	return &e, nil
}

// SearchEmployees filters employees like the SQL backends do
func (m *MockEmployeeStore) SearchEmployees(ctx context.Context, orgID string, filter database.EmployeeFilter) ([]database.Employee, error) {
	if m.SearchError != nil {
		return nil, m.SearchError
	}
	raw := strings.ToLower(strings.TrimSpace(filter.Search))
	term := facematch.NormalizePersonName(raw)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedByCode(m.employees, func(e database.Employee) bool {
		if e.OrgID != orgID {
			return false
		}
		if filter.Status != "" && e.Status != filter.Status {
			return false
		}
		if filter.Department != "" && e.Department != filter.Department {
			return false
		}
		if raw == "" {
			return true
		}
		return strings.Contains(facematch.NormalizePersonName(e.Name), term) ||
			strings.Contains(strings.ToLower(e.Code), raw) ||
			strings.Contains(strings.ToLower(e.Email), raw)
	}), nil
}

// WithinEnrollment runs fn against a staged copy and commits it on success
func (m *MockEmployeeStore) WithinEnrollment(ctx context.Context, orgID string, fn func(tx database.EnrollmentTx) error) error {
	if m.EnrollmentError != nil {
		return m.EnrollmentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &mockEnrollmentTx{
		employees: maps.Clone(m.employees),
		accounts:  maps.Clone(m.accounts),
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.employees = tx.employees
	m.accounts = tx.accounts
	return nil
}

type mockEnrollmentTx struct {
	employees map[string]database.Employee
	accounts  map[string]database.Account
}

func (t *mockEnrollmentTx) ListDescriptors(ctx context.Context, orgID, excludeID string) ([]database.Employee, error) {
	return sortedByCode(t.employees, func(e database.Employee) bool {
		return e.OrgID == orgID && e.ID != excludeID && e.Enrolled()
	}), nil
}

func (t *mockEnrollmentTx) EmailExists(ctx context.Context, orgID, email string) (bool, error) {
	for _, e := range t.employees {
		if e.OrgID == orgID && strings.EqualFold(e.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t *mockEnrollmentTx) NextEmployeeCode(ctx context.Context, orgID string) (string, error) {
	var codes []string
	for _, e := range t.employees {
		if e.OrgID == orgID {
			codes = append(codes, e.Code)
		}
	}
	return database.NextEmployeeCode(codes), nil
}

func (t *mockEnrollmentTx) InsertEmployee(ctx context.Context, e *database.Employee) error {
	for _, other := range t.employees {
		if other.OrgID != e.OrgID {
			continue
		}
		if other.Code == e.Code || strings.EqualFold(other.Email, e.Email) {
			return fmt.Errorf("insert employee %s: %w", e.Code, database.ErrDuplicate)
		}
	}
	now := time.Now().UTC()
	e.Email = strings.ToLower(e.Email)
	e.CreatedAt, e.UpdatedAt = now, now
	t.employees[e.ID] = *e
	return nil
}

func (t *mockEnrollmentTx) InsertAccount(ctx context.Context, a *database.Account) error {
	for _, other := range t.accounts {
		if other.OrgID == a.OrgID && strings.EqualFold(other.Email, a.Email) {
			return fmt.Errorf("insert account: %w", database.ErrDuplicate)
		}
	}
	a.CreatedAt = time.Now().UTC()
	t.accounts[a.ID] = *a
	return nil
}

func (t *mockEnrollmentTx) UpdateDescriptor(ctx context.Context, orgID, employeeID string, descriptor []float32, faceImage string) error {
	e, ok := t.employees[employeeID]
	if !ok || e.OrgID != orgID {
		return database.ErrNotFound
	}
	e.Descriptor = slices.Clone(descriptor)
	e.FaceImage = faceImage
	e.UpdatedAt = time.Now().UTC()
	t.employees[employeeID] = e
	return nil
}

// MockAttendanceStore is an in-memory implementation of database.AttendanceStore
// that enforces the (org, employee, work date) key atomically.
type MockAttendanceStore struct {
	mu       sync.Mutex
	records  map[string]database.AttendanceRecord
	getCalls int

	// Error injection
	InsertError   error
	GetError      error
	CompleteError error
	ListError     error
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{records: make(map[string]database.AttendanceRecord)}
}

func recordKey(orgID, employeeID, workDate string) string {
	return orgID + "|" + employeeID + "|" + workDate
}

// AddRecord adds a record to the mock store, replacing any record with the same key
func (m *MockAttendanceStore) AddRecord(rec database.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey(rec.OrgID, rec.EmployeeID, rec.WorkDate)] = rec
}

// GetCalls returns how many times GetAttendance was called
func (m *MockAttendanceStore) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

// InsertPunchIn stores a record unless one exists for the key
func (m *MockAttendanceStore) InsertPunchIn(ctx context.Context, rec *database.AttendanceRecord) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(rec.OrgID, rec.EmployeeID, rec.WorkDate)
	if _, exists := m.records[key]; exists {
		return fmt.Errorf("insert punch-in for %s on %s: %w", rec.EmployeeID, rec.WorkDate, database.ErrDuplicate)
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	m.records[key] = *rec
	return nil
}

// GetAttendance retrieves the record for one work date
func (m *MockAttendanceStore) GetAttendance(ctx context.Context, orgID, employeeID, workDate string) (*database.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.GetError != nil {
		return nil, m.GetError
	}
	rec, ok := m.records[recordKey(orgID, employeeID, workDate)]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &rec, nil
}

// CompletePunchOut applies punch-out fields while OutTime is nil
func (m *MockAttendanceStore) CompletePunchOut(ctx context.Context, orgID, employeeID, workDate string, out database.PunchOut) (bool, error) {
	if m.CompleteError != nil {
		return false, m.CompleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(orgID, employeeID, workDate)
	rec, ok := m.records[key]
	if !ok || rec.OutTime != nil {
		return false, nil
	}
	outTime := out.OutTime
	rec.OutTime = &outTime
	rec.OutLocation = out.OutLocation
	rec.WorkingMinutes = out.WorkingMinutes
	rec.Status = out.Status
	rec.UpdatedAt = time.Now().UTC()
	m.records[key] = rec
	return true, nil
}

// ListAttendance filters, orders and pages records like the SQL backends
func (m *MockAttendanceStore) ListAttendance(ctx context.Context, filter database.AttendanceFilter) ([]database.AttendanceRecord, int, error) {
	if m.ListError != nil {
		return nil, 0, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []database.AttendanceRecord
	for _, rec := range m.records {
		switch {
		case rec.OrgID != filter.OrgID:
		case filter.EmployeeID != "" && rec.EmployeeID != filter.EmployeeID:
		case filter.From != "" && rec.WorkDate < filter.From:
		case filter.To != "" && rec.WorkDate > filter.To:
		case filter.Status != "" && rec.Status != filter.Status:
		default:
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b database.AttendanceRecord) int {
		if c := strings.Compare(b.WorkDate, a.WorkDate); c != 0 {
			return c
		}
		if c := b.InTime.Compare(a.InTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	total := len(out)
	if filter.Limit > 0 {
		start := min(filter.Offset, total)
		end := min(start+filter.Limit, total)
		out = out[start:end]
	}
	return out, total, nil
}

// MockBackend bundles the mock stores as a database.Backend
type MockBackend struct {
	EmployeeStore   *MockEmployeeStore
	AttendanceStore *MockAttendanceStore
}

// NewMockBackend creates a backend with empty mock stores
func NewMockBackend() *MockBackend {
	return &MockBackend{
		EmployeeStore:   NewMockEmployeeStore(),
		AttendanceStore: NewMockAttendanceStore(),
	}
}

func (b *MockBackend) Employees() database.EmployeeStore { return b.EmployeeStore }

func (b *MockBackend) Attendance() database.AttendanceStore { return b.AttendanceStore }

func (b *MockBackend) MigrationsApplied(ctx context.Context) ([]string, error) { return nil, nil }

func (b *MockBackend) Close() error { return nil }
