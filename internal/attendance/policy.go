// Package attendance implements the daily punch ledger: one record per
// employee per work date, punched in once and out once.
package attendance

import (
	"fmt"
	"time"

	"github.com/kozaktomas/punchclock/internal/config"
)

// DateLayout is the civil date format used for work dates.
const DateLayout = "2006-01-02"

// Status is the day classification stored on a record.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusHalf    Status = "HALF"
	StatusAbsent  Status = "ABSENT"
)

// ParseStatus validates a status filter value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPresent, StatusHalf, StatusAbsent:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidQuery, s)
}

// PunchState is where an employee is in today's NOT_PUNCHED -> IN -> OUT sequence.
type PunchState string

const (
	StateNotPunched PunchState = "NOT_PUNCHED"
	StateIn         PunchState = "IN"
	StateOut        PunchState = "OUT"
)

// Policy holds the timing rules. A record below HalfDay minutes is ABSENT
// even though the employee punched in.
type Policy struct {
	Location    *time.Location
	StartHour   int
	StartMinute int
	FullDay     int // minutes
	HalfDay     int // minutes
}

// NewPolicy builds a Policy from configuration.
func NewPolicy(cfg config.AttendancePolicy) (Policy, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Policy{}, err
	}
	h, m, err := cfg.OfficeStartClock()
	if err != nil {
		return Policy{}, err
	}
	if cfg.HalfDayMinutes <= 0 || cfg.FullDayMinutes <= cfg.HalfDayMinutes {
		return Policy{}, fmt.Errorf("invalid day thresholds: half %d, full %d", cfg.HalfDayMinutes, cfg.FullDayMinutes)
	}
	return Policy{
		Location:    loc,
		StartHour:   h,
		StartMinute: m,
		FullDay:     cfg.FullDayMinutes,
		HalfDay:     cfg.HalfDayMinutes,
	}, nil
}

// WorkDate returns the civil date of t in the policy timezone.
func (p Policy) WorkDate(t time.Time) string {
	return t.In(p.Location).Format(DateLayout)
}

// OfficeStart returns the office start instant on t's civil date.
func (p Policy) OfficeStart(t time.Time) time.Time {
	local := t.In(p.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), p.StartHour, p.StartMinute, 0, 0, p.Location)
}

// LateMinutes counts whole minutes after office start, never negative.
func (p Policy) LateMinutes(t time.Time) int {
	late := t.Sub(p.OfficeStart(t))
	if late <= 0 {
		return 0
	}
	return int(late / time.Minute)
}

// WorkingMinutes counts whole minutes between punch-in and punch-out.
func WorkingMinutes(in, out time.Time) int {
	d := out.Sub(in)
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

// StatusFor classifies a day by worked minutes.
func (p Policy) StatusFor(workingMinutes int) Status {
	switch {
	case workingMinutes >= p.FullDay:
		return StatusPresent
	case workingMinutes >= p.HalfDay:
		return StatusHalf
	default:
		return StatusAbsent
	}
}

// ParseDate validates a YYYY-MM-DD work date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidQuery, s)
	}
	return t, nil
}
