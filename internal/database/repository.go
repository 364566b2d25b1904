package database

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a keyed lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate key")
)

// EmployeeReader provides read-only access to employees and their descriptors
type EmployeeReader interface {
	// ListCandidates returns active employees of the organization that have a descriptor
	ListCandidates(ctx context.Context, orgID string) ([]Employee, error)
	// GetEmployee retrieves an employee by ID within the organization, ErrNotFound if absent
	GetEmployee(ctx context.Context, orgID, employeeID string) (*Employee, error)
	// SearchEmployees lists employees ordered by code. The search term is
	// normalized the same way names are (lowercase, no diacritics).
	SearchEmployees(ctx context.Context, orgID string, filter EmployeeFilter) ([]Employee, error)
}

// EnrollmentTx is the set of operations available inside an enrollment unit of work.
// All calls share one transaction; nothing is visible to other readers until it commits.
type EnrollmentTx interface {
	// ListDescriptors returns every employee of the organization with a descriptor,
	// regardless of status, except excludeID (may be empty)
	ListDescriptors(ctx context.Context, orgID, excludeID string) ([]Employee, error)
	// EmailExists checks whether an employee with the email exists in the organization
	EmailExists(ctx context.Context, orgID, email string) (bool, error)
	// NextEmployeeCode allocates the next EMP-nnn code for the organization
	NextEmployeeCode(ctx context.Context, orgID string) (string, error)
	// InsertEmployee stores a new employee, ErrDuplicate on code or email collision
	InsertEmployee(ctx context.Context, e *Employee) error
	// InsertAccount stores the login account for an employee, ErrDuplicate on email collision
	InsertAccount(ctx context.Context, a *Account) error
	// UpdateDescriptor replaces an employee's descriptor, ErrNotFound if absent
	UpdateDescriptor(ctx context.Context, orgID, employeeID string, descriptor []float32, faceImage string) error
}

// EmployeeStore provides employee reads plus the enrollment unit of work
type EmployeeStore interface {
	EmployeeReader

	// WithinEnrollment runs fn in one transaction serialized per organization.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinEnrollment(ctx context.Context, orgID string, fn func(tx EnrollmentTx) error) error
}

// AttendanceStore persists the attendance ledger
type AttendanceStore interface {
	// InsertPunchIn creates the day's record. Returns ErrDuplicate when a record
	// for (org, employee, work date) already exists.
	InsertPunchIn(ctx context.Context, rec *AttendanceRecord) error
	// GetAttendance retrieves the record for one work date, ErrNotFound if absent
	GetAttendance(ctx context.Context, orgID, employeeID, workDate string) (*AttendanceRecord, error)
	// CompletePunchOut writes punch-out fields only if punch-out is still unset.
	// Returns false when no row was updated.
	CompletePunchOut(ctx context.Context, orgID, employeeID, workDate string, out PunchOut) (bool, error)
	// ListAttendance returns the page selected by filter and the total match count,
	// newest work date first
	ListAttendance(ctx context.Context, filter AttendanceFilter) ([]AttendanceRecord, int, error)
}
