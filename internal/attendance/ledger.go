package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/logging"
)

var (
	ErrAlreadyPunchedIn  = errors.New("already punched in today")
	ErrAlreadyPunchedOut = errors.New("already punched out today")
	ErrNoPunchInFound    = errors.New("no punch-in found for today")
	ErrInvalidQuery      = errors.New("invalid attendance query")
)

// Ledger records punches against an AttendanceStore.
type Ledger struct {
	store  database.AttendanceStore
	policy Policy
	now    func() time.Time
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now as the ledger's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger over store using policy.
func NewLedger(store database.AttendanceStore, policy Policy, opts ...Option) *Ledger {
	l := &Ledger{store: store, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the rules the ledger applies.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// Today returns the current work date.
func (l *Ledger) Today() string {
	return l.policy.WorkDate(l.now())
}

// PunchIn creates today's record for the employee.
func (l *Ledger) PunchIn(ctx context.Context, emp *database.Employee, location string) (*database.AttendanceRecord, error) {
	now := l.now()
	rec := &database.AttendanceRecord{
		ID:           uuid.NewString(),
		OrgID:        emp.OrgID,
		EmployeeID:   emp.ID,
		EmployeeCode: emp.Code,
		EmployeeName: emp.Name,
		WorkDate:     l.policy.WorkDate(now),
		InTime:       now.UTC(),
		InLocation:   location,
		LateMinutes:  l.policy.LateMinutes(now),
		Status:       string(StatusPresent),
	}

	err := l.store.InsertPunchIn(ctx, rec)
	if errors.Is(err, database.ErrDuplicate) {
		return nil, ErrAlreadyPunchedIn
	}
	if err != nil {
		return nil, fmt.Errorf("punch in: %w", err)
	}

	logging.FromContext(ctx).Info("punched in",
		"employee", rec.EmployeeCode, "work_date", rec.WorkDate, "late_minutes", rec.LateMinutes)
	return rec, nil
}

// PunchOut completes today's record. Only the first punch-out of a day wins.
func (l *Ledger) PunchOut(ctx context.Context, emp *database.Employee, location string) (*database.AttendanceRecord, error) {
	now := l.now()
	workDate := l.policy.WorkDate(now)

	rec, err := l.store.GetAttendance(ctx, emp.OrgID, emp.ID, workDate)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoPunchInFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}
	if rec.InTime.IsZero() {
		return nil, ErrNoPunchInFound
	}
	if rec.OutTime != nil {
		return nil, ErrAlreadyPunchedOut
	}

	minutes := WorkingMinutes(rec.InTime, now)
	out := database.PunchOut{
		OutTime:        now.UTC(),
		OutLocation:    location,
		WorkingMinutes: minutes,
		Status:         string(l.policy.StatusFor(minutes)),
	}
	ok, err := l.store.CompletePunchOut(ctx, emp.OrgID, emp.ID, workDate, out)
	if err != nil {
		return nil, fmt.Errorf("punch out: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyPunchedOut
	}

	rec.OutTime = &out.OutTime
	rec.OutLocation = out.OutLocation
	rec.WorkingMinutes = out.WorkingMinutes
	rec.Status = out.Status

	logging.FromContext(ctx).Info("punched out",
		"employee", rec.EmployeeCode, "work_date", workDate,
		"working_minutes", minutes, "status", rec.Status)
	return rec, nil
}

// State reports where the employee is in today's punch sequence.
func (l *Ledger) State(ctx context.Context, orgID, employeeID string) (PunchState, error) {
	rec, err := l.store.GetAttendance(ctx, orgID, employeeID, l.Today())
	if errors.Is(err, database.ErrNotFound) {
		return StateNotPunched, nil
	}
	if err != nil {
		return "", fmt.Errorf("load attendance state: %w", err)
	}
	return StateOf(rec), nil
}

// StateOf derives the punch state of a single record.
func StateOf(rec *database.AttendanceRecord) PunchState {
	switch {
	case rec == nil || rec.InTime.IsZero():
		return StateNotPunched
	case rec.OutTime == nil:
		return StateIn
	default:
		return StateOut
	}
}

// Query selects records for the read operations. Dates are YYYY-MM-DD.
type Query struct {
	EmployeeID string
	From       string
	To         string
	Status     string
	Page       int // 1-based
	PageSize   int
}

// Page is one page of ledger records.
type Page struct {
	Records  []database.AttendanceRecord
	Total    int
	Page     int
	PageSize int
}

// TotalPages returns the number of pages for Total records.
func (p Page) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// TodayRecords lists every record of the organization for the current work date.
func (l *Ledger) TodayRecords(ctx context.Context, orgID string) ([]database.AttendanceRecord, error) {
	today := l.Today()
	records, _, err := l.store.ListAttendance(ctx, database.AttendanceFilter{OrgID: orgID, From: today, To: today})
	if err != nil {
		return nil, fmt.Errorf("list today's attendance: %w", err)
	}
	return records, nil
}

// ByEmployee lists an employee's records, newest first, optionally bounded by dates.
func (l *Ledger) ByEmployee(ctx context.Context, orgID, employeeID string, q Query) (Page, error) {
	q.EmployeeID = employeeID
	return l.List(ctx, orgID, q)
}

// Range lists the organization's records between two inclusive work dates.
func (l *Ledger) Range(ctx context.Context, orgID, from, to string) ([]database.AttendanceRecord, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: from and to are required", ErrInvalidQuery)
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	records, _, err := l.store.ListAttendance(ctx, database.AttendanceFilter{OrgID: orgID, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list attendance range: %w", err)
	}
	return records, nil
}

// List returns one page of records matching q.
func (l *Ledger) List(ctx context.Context, orgID string, q Query) (Page, error) {
	if err := validateRange(q.From, q.To); err != nil {
		return Page{}, err
	}
	if q.Status != "" {
		if _, err := ParseStatus(q.Status); err != nil {
			return Page{}, err
		}
	}

	page := max(q.Page, 1)
	size := q.PageSize
	if size <= 0 {
		size = database.DefaultPageSize
	}
	size = min(size, database.MaxPageSize)

	records, total, err := l.store.ListAttendance(ctx, database.AttendanceFilter{
		OrgID:      orgID,
		EmployeeID: q.EmployeeID,
		From:       q.From,
		To:         q.To,
		Status:     q.Status,
		Limit:      size,
		Offset:     (page - 1) * size,
	})
	if err != nil {
		return Page{}, fmt.Errorf("list attendance: %w", err)
	}
	return Page{Records: records, Total: total, Page: page, PageSize: size}, nil
}

func validateRange(from, to string) error {
	var fromDate, toDate time.Time
	var err error
	if from != "" {
		if fromDate, err = ParseDate(from); err != nil {
			return err
		}
	}
	if to != "" {
		if toDate, err = ParseDate(to); err != nil {
			return err
		}
	}
	if from != "" && to != "" && toDate.Before(fromDate) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidQuery, from, to)
	}
	return nil
}
