package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/database/dbtest"
)

func TestMockBackendSuite(t *testing.T) {
	dbtest.RunBackendSuite(t, NewMockBackend())
}

func TestMockErrorInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	employees := NewMockEmployeeStore()
	employees.ListCandidatesError = boom
	if _, err := employees.ListCandidates(ctx, "org"); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}

	attendance := NewMockAttendanceStore()
	attendance.GetError = boom
	if _, err := attendance.GetAttendance(ctx, "org", "emp", "2026-03-02"); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
	if attendance.GetCalls() != 1 {
		t.Errorf("expected 1 recorded call, got %d", attendance.GetCalls())
	}

	attendance.InsertError = boom
	if err := attendance.InsertPunchIn(ctx, &database.AttendanceRecord{}); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
}
