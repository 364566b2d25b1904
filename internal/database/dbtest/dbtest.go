// Package dbtest holds the behaviour every storage backend must share.
// Backend test files call RunBackendSuite with a freshly migrated backend.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Descriptor returns a 128-value descriptor with the first component set to x.
func Descriptor(x float32) []float32 {
	d := make([]float32, 128)
	d[0] = x
	return d
}

// NewEmployee returns an active employee of org with a fresh ID.
func NewEmployee(org, code, name string, descriptor []float32) *database.Employee {
	return &database.Employee{
		ID:         uuid.NewString(),
		OrgID:      org,
		Code:       code,
		Name:       name,
		Email:      fmt.Sprintf("%s@%s.example", code, org),
		Status:     database.EmployeeActive,
		Descriptor: descriptor,
	}
}

// CreateEmployee stores e through an enrollment unit of work.
func CreateEmployee(t *testing.T, store database.EmployeeStore, e *database.Employee) {
	t.Helper()
	err := store.WithinEnrollment(context.Background(), e.OrgID, func(tx database.EnrollmentTx) error {
		return tx.InsertEmployee(context.Background(), e)
	})
	require.NoError(t, err)
}

// RunBackendSuite exercises a migrated backend. Every subtest uses its own
// organization, so the suite can share one database.
func RunBackendSuite(t *testing.T, b database.Backend) {
	t.Run("Enrollment", func(t *testing.T) { testEnrollment(t, b.Employees()) })
	t.Run("EnrollmentLongOrgID", func(t *testing.T) { testEnrollmentLongOrgID(t, b.Employees()) })
	t.Run("EnrollmentRollback", func(t *testing.T) { testEnrollmentRollback(t, b.Employees()) })
	t.Run("Candidates", func(t *testing.T) { testCandidates(t, b.Employees()) })
	t.Run("Search", func(t *testing.T) { testSearch(t, b.Employees()) })
	t.Run("PunchLifecycle", func(t *testing.T) { testPunchLifecycle(t, b) })
	t.Run("ConcurrentPunchIn", func(t *testing.T) { testConcurrentPunchIn(t, b) })
	t.Run("ConcurrentPunchOut", func(t *testing.T) { testConcurrentPunchOut(t, b) })
	t.Run("ListAttendance", func(t *testing.T) { testListAttendance(t, b) })
}

func orgName() string {
	return "org-" + uuid.NewString()[:8]
}

func testEnrollment(t *testing.T, store database.EmployeeStore) {
	ctx := context.Background()
	org := orgName()

	var first *database.Employee
	err := store.WithinEnrollment(ctx, org, func(tx database.EnrollmentTx) error {
		code, err := tx.NextEmployeeCode(ctx, org)
		if err != nil {
			return err
		}
		assert.Equal(t, "EMP-001", code)

		first = NewEmployee(org, code, "Anita Sharma", Descriptor(0.1))
		first.Email = "Anita@Example.com"
		if err := tx.InsertEmployee(ctx, first); err != nil {
			return err
		}
		return tx.InsertAccount(ctx, &database.Account{
			ID:           uuid.NewString(),
			OrgID:        org,
			EmployeeID:   first.ID,
			Email:        first.Email,
			PasswordHash: "$2a$10$hash",
			Role:         database.AccountRoleEmployee,
		})
	})
	require.NoError(t, err)

	got, err := store.GetEmployee(ctx, org, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "EMP-001", got.Code)
	assert.Equal(t, "anita@example.com", got.Email)
	assert.Len(t, got.Descriptor, 128)
	assert.InDelta(t, 0.1, got.Descriptor[0], 1e-6)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = store.GetEmployee(ctx, "other-org", first.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = store.GetEmployee(ctx, org, uuid.NewString())
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = store.GetEmployee(ctx, org, "not-a-uuid")
	assert.ErrorIs(t, err, database.ErrNotFound)

	err = store.WithinEnrollment(ctx, org, func(tx database.EnrollmentTx) error {
		exists, err := tx.EmailExists(ctx, org, "ANITA@example.com")
		require.NoError(t, err)
		assert.True(t, exists)

		code, err := tx.NextEmployeeCode(ctx, org)
		require.NoError(t, err)
		assert.Equal(t, "EMP-002", code)

		dup := NewEmployee(org, code, "Someone Else", nil)
		dup.Email = "anita@example.com"
		return tx.InsertEmployee(ctx, dup)
	})
	assert.ErrorIs(t, err, database.ErrDuplicate)

	second := NewEmployee(org, "EMP-002", "Ravi Kumar", nil)
	CreateEmployee(t, store, second)

	err = store.WithinEnrollment(ctx, org, func(tx database.EnrollmentTx) error {
		others, err := tx.ListDescriptors(ctx, org, second.ID)
		if err != nil {
			return err
		}
		require.Len(t, others, 1)
		assert.Equal(t, first.ID, others[0].ID)
		return tx.UpdateDescriptor(ctx, org, second.ID, Descriptor(0.9), "faces/ravi.jpg")
	})
	require.NoError(t, err)

	got, err = store.GetEmployee(ctx, org, second.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.Descriptor[0], 1e-6)
	assert.Equal(t, "faces/ravi.jpg", got.FaceImage)

	err = store.WithinEnrollment(ctx, org, func(tx database.EnrollmentTx) error {
		return tx.UpdateDescriptor(ctx, org, uuid.NewString(), Descriptor(0.2), "")
	})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

// testEnrollmentLongOrgID enrolls into an organization whose id has the
// maximum length accepted by the HTTP layer.
func testEnrollmentLongOrgID(t *testing.T, store database.EmployeeStore) {
	ctx := context.Background()
	org := orgName()
	org += strings.Repeat("z", 64-len(org))
	require.Len(t, org, 64)

	e := NewEmployee(org, "EMP-001", "Long Org", Descriptor(0.4))
	e.Email = "long.org@example.com"
	err := store.WithinEnrollment(ctx, org, func(tx database.EnrollmentTx) error {
		code, err := tx.NextEmployeeCode(ctx, org)
		if err != nil {
			return err
		}
		e.Code = code
		return tx.InsertEmployee(ctx, e)
	})
	require.NoError(t, err)

	err = store.WithinEnrollment(ctx, org, func(tx database.EnrollmentTx) error {
		return tx.UpdateDescriptor(ctx, org, e.ID, Descriptor(0.5), "")
	})
	require.NoError(t, err)

	got, err := store.GetEmployee(ctx, org, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "EMP-001", got.Code)
	assert.InDelta(t, 0.5, got.Descriptor[0], 1e-6)
}

func testEnrollmentRollback(t *testing.T, store database.EmployeeStore) {
	ctx := context.Background()
	org := orgName()
	boom := errors.New("account creation failed")

	e := NewEmployee(org, "EMP-001", "Rolled Back", Descriptor(0.3))
	err := store.WithinEnrollment(ctx, org, func(tx database.EnrollmentTx) error {
		if err := tx.InsertEmployee(ctx, e); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetEmployee(ctx, org, e.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func testCandidates(t *testing.T, store database.EmployeeStore) {
	ctx := context.Background()
	org := orgName()

	active := NewEmployee(org, "EMP-001", "Active Enrolled", Descriptor(0.1))
	unenrolled := NewEmployee(org, "EMP-002", "Active Unenrolled", nil)
	inactive := NewEmployee(org, "EMP-003", "Inactive Enrolled", Descriptor(0.2))
	inactive.Status = database.EmployeeInactive
	foreign := NewEmployee(orgName(), "EMP-001", "Other Org", Descriptor(0.1))

	for _, e := range []*database.Employee{active, unenrolled, inactive, foreign} {
		CreateEmployee(t, store, e)
	}

	candidates, err := store.ListCandidates(ctx, org)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, active.ID, candidates[0].ID)

	err = store.WithinEnrollment(ctx, org, func(tx database.EnrollmentTx) error {
		all, err := tx.ListDescriptors(ctx, org, "")
		if err != nil {
			return err
		}
		// Duplicate checks look at every enrolled employee, whatever the status.
		assert.Len(t, all, 2)
		return nil
	})
	require.NoError(t, err)
}

func testSearch(t *testing.T, store database.EmployeeStore) {
	ctx := context.Background()
	org := orgName()

	jan := NewEmployee(org, "EMP-001", "Jan Novák", nil)
	jan.Department = "Engineering"
	anita := NewEmployee(org, "EMP-002", "Anita Sharma", nil)
	anita.Department = "Finance"
	CreateEmployee(t, store, jan)
	CreateEmployee(t, store, anita)

	tests := []struct {
		name   string
		filter database.EmployeeFilter
		want   []string
	}{
		{"all", database.EmployeeFilter{}, []string{jan.ID, anita.ID}},
		{"diacritics insensitive", database.EmployeeFilter{Search: "novak"}, []string{jan.ID}},
		{"by code", database.EmployeeFilter{Search: "emp-002"}, []string{anita.ID}},
		{"by department", database.EmployeeFilter{Department: "Finance"}, []string{anita.ID}},
		{"by status", database.EmployeeFilter{Status: database.EmployeeTerminated}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.SearchEmployees(ctx, org, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func newRecord(e *database.Employee, date string, in time.Time) *database.AttendanceRecord {
	return &database.AttendanceRecord{
		ID:           uuid.NewString(),
		OrgID:        e.OrgID,
		EmployeeID:   e.ID,
		EmployeeCode: e.Code,
		EmployeeName: e.Name,
		WorkDate:     date,
		InTime:       in,
		InLocation:   "Main Gate",
		Status:       "PRESENT",
	}
}

func testPunchLifecycle(t *testing.T, b database.Backend) {
	ctx := context.Background()
	org := orgName()
	e := NewEmployee(org, "EMP-001", "Punch Lifecycle", nil)
	CreateEmployee(t, b.Employees(), e)
	ledger := b.Attendance()

	in := time.Date(2026, 3, 2, 9, 45, 0, 0, time.UTC)
	rec := newRecord(e, "2026-03-02", in)
	rec.LateMinutes = 15
	require.NoError(t, ledger.InsertPunchIn(ctx, rec))

	err := ledger.InsertPunchIn(ctx, newRecord(e, "2026-03-02", in.Add(time.Minute)))
	assert.ErrorIs(t, err, database.ErrDuplicate)

	_, err = ledger.GetAttendance(ctx, org, e.ID, "2026-03-03")
	assert.ErrorIs(t, err, database.ErrNotFound)

	got, err := ledger.GetAttendance(ctx, org, e.ID, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", got.WorkDate)
	assert.True(t, got.InTime.Equal(in), "in time %v", got.InTime)
	assert.Nil(t, got.OutTime)
	assert.Equal(t, 15, got.LateMinutes)
	assert.Equal(t, "Punch Lifecycle", got.EmployeeName)

	out := in.Add(500 * time.Minute)
	ok, err := ledger.CompletePunchOut(ctx, org, e.ID, "2026-03-02", database.PunchOut{
		OutTime: out, OutLocation: "Back Door", WorkingMinutes: 500, Status: "PRESENT",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.CompletePunchOut(ctx, org, e.ID, "2026-03-02", database.PunchOut{
		OutTime: out.Add(time.Hour), WorkingMinutes: 560, Status: "PRESENT",
	})
	require.NoError(t, err)
	assert.False(t, ok, "second punch-out must not update")

	got, err = ledger.GetAttendance(ctx, org, e.ID, "2026-03-02")
	require.NoError(t, err)
	require.NotNil(t, got.OutTime)
	assert.True(t, got.OutTime.Equal(out))
	assert.Equal(t, 500, got.WorkingMinutes)
	assert.Equal(t, "Back Door", got.OutLocation)
}

func testConcurrentPunchIn(t *testing.T, b database.Backend) {
	ctx := context.Background()
	org := orgName()
	e := NewEmployee(org, "EMP-001", "Racer", nil)
	CreateEmployee(t, b.Employees(), e)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.Attendance().InsertPunchIn(ctx, newRecord(e, "2026-03-02", in.Add(time.Duration(i)*time.Second)))
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, duplicates := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, database.ErrDuplicate):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, duplicates)
}

func testConcurrentPunchOut(t *testing.T, b database.Backend) {
	ctx := context.Background()
	org := orgName()
	e := NewEmployee(org, "EMP-001", "Double Out", nil)
	CreateEmployee(t, b.Employees(), e)

	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, b.Attendance().InsertPunchIn(ctx, newRecord(e, "2026-03-02", in)))

	const attempts = 4
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := b.Attendance().CompletePunchOut(ctx, org, e.ID, "2026-03-02", database.PunchOut{
				OutTime: in.Add(time.Duration(300+i) * time.Minute), WorkingMinutes: 300 + i, Status: "HALF",
			})
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for ok := range results {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won)
}

func testListAttendance(t *testing.T, b database.Backend) {
	ctx := context.Background()
	org := orgName()
	alice := NewEmployee(org, "EMP-001", "Alice", nil)
	bob := NewEmployee(org, "EMP-002", "Bob", nil)
	CreateEmployee(t, b.Employees(), alice)
	CreateEmployee(t, b.Employees(), bob)

	days := []string{"2026-03-02", "2026-03-03", "2026-03-04"}
	for i, day := range days {
		in := time.Date(2026, 3, 2+i, 9, 0, 0, 0, time.UTC)
		require.NoError(t, b.Attendance().InsertPunchIn(ctx, newRecord(alice, day, in)))
		rec := newRecord(bob, day, in.Add(time.Minute))
		if i == 1 {
			rec.Status = "HALF"
		}
		require.NoError(t, b.Attendance().InsertPunchIn(ctx, rec))
	}

	records, total, err := b.Attendance().ListAttendance(ctx, database.AttendanceFilter{OrgID: org})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, records, 6)
	assert.Equal(t, "2026-03-04", records[0].WorkDate)
	assert.Equal(t, bob.ID, records[0].EmployeeID, "later in-time first within a day")

	records, total, err = b.Attendance().ListAttendance(ctx, database.AttendanceFilter{
		OrgID: org, From: "2026-03-03", To: "2026-03-04",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, records, 4)

	records, total, err = b.Attendance().ListAttendance(ctx, database.AttendanceFilter{
		OrgID: org, EmployeeID: alice.ID, Limit: 2, Offset: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, records, 1)
	assert.Equal(t, "2026-03-02", records[0].WorkDate)

	records, total, err = b.Attendance().ListAttendance(ctx, database.AttendanceFilter{OrgID: org, Status: "HALF"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "2026-03-03", records[0].WorkDate)

	records, total, err = b.Attendance().ListAttendance(ctx, database.AttendanceFilter{OrgID: "missing-org"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, records)
}
