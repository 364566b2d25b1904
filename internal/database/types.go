package database

import (
	"time"
)

// Employee statuses. Only active employees are matched and may punch.
const (
	EmployeeActive     = "active"
	EmployeeInactive   = "inactive"
	EmployeeTerminated = "terminated"
)

// Employee is an organization member with an optional enrolled face descriptor.
type Employee struct {
	ID          string
	OrgID       string
	Code        string // EMP-001, sequential per organization
	Name        string
	Email       string // lower-cased, unique per organization
	Phone       string
	Department  string
	Designation string
	Status      string
	Descriptor  []float32 // nil until enrolled
	FaceImage   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Enrolled reports whether the employee has a stored descriptor.
func (e *Employee) Enrolled() bool {
	return len(e.Descriptor) > 0
}

// Account is the login identity created together with an employee.
type Account struct {
	ID           string
	OrgID        string
	EmployeeID   string
	Email        string
	PasswordHash string // bcrypt
	Role         string
	CreatedAt    time.Time
}

// AttendanceRecord is one employee's ledger entry for one work date.
type AttendanceRecord struct {
	ID             string
	OrgID          string
	EmployeeID     string
	EmployeeCode   string // snapshot at punch-in
	EmployeeName   string // snapshot at punch-in
	WorkDate       string // YYYY-MM-DD in the policy timezone
	InTime         time.Time
	InLocation     string
	OutTime        *time.Time // nil until punch-out
	OutLocation    string
	LateMinutes    int
	WorkingMinutes int
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PunchOut carries the fields written by the single permitted record update.
type PunchOut struct {
	OutTime        time.Time
	OutLocation    string
	WorkingMinutes int
	Status         string
}

// AttendanceFilter selects ledger records. Empty fields do not filter.
// From and To are inclusive work dates.
type AttendanceFilter struct {
	OrgID      string
	EmployeeID string
	From       string
	To         string
	Status     string
	Limit      int // 0 means no limit
	Offset     int
}

// EmployeeFilter selects employees of one organization.
type EmployeeFilter struct {
	Search     string // matched against normalized name, code and email
	Status     string
	Department string
}
