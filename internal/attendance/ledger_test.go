package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/database/mock"
	"github.com/kozaktomas/punchclock/internal/testfixtures"
)

func testEmployee() *database.Employee {
	return &database.Employee{ID: "emp-1", OrgID: "org-1", Code: "EMP-001", Name: "Jana Nováková", Status: database.EmployeeActive}
}

func newTestLedger(t *testing.T, h, m int) (*Ledger, *mock.MockAttendanceStore, *testfixtures.Clock) {
	t.Helper()
	store := mock.NewMockAttendanceStore()
	clock := testfixtures.At(time.UTC, 2026, 3, 2, h, m)
	return NewLedger(store, testPolicy(), WithClock(clock.Now)), store, clock
}

func TestPunchIn(t *testing.T) {
	ledger, _, _ := newTestLedger(t, 9, 45)
	ctx := context.Background()
	emp := testEmployee()

	rec, err := ledger.PunchIn(ctx, emp, "Main office")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", rec.WorkDate)
	assert.Equal(t, 15, rec.LateMinutes)
	assert.Equal(t, string(StatusPresent), rec.Status)
	assert.Equal(t, "EMP-001", rec.EmployeeCode)
	assert.Equal(t, "Jana Nováková", rec.EmployeeName)
	assert.Equal(t, "Main office", rec.InLocation)
	assert.Nil(t, rec.OutTime)
	assert.NotEmpty(t, rec.ID)

	state, err := ledger.State(ctx, emp.OrgID, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, StateIn, state)
}

func TestPunchIn_OnTime(t *testing.T) {
	ledger, _, _ := newTestLedger(t, 9, 0)

	rec, err := ledger.PunchIn(context.Background(), testEmployee(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.LateMinutes)
}

func TestPunchIn_Twice(t *testing.T) {
	ledger, _, clock := newTestLedger(t, 9, 0)
	ctx := context.Background()

	_, err := ledger.PunchIn(ctx, testEmployee(), "")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = ledger.PunchIn(ctx, testEmployee(), "")
	assert.ErrorIs(t, err, ErrAlreadyPunchedIn)
}

func TestPunchIn_NextDayAllowed(t *testing.T) {
	ledger, _, clock := newTestLedger(t, 9, 0)
	ctx := context.Background()

	_, err := ledger.PunchIn(ctx, testEmployee(), "")
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	rec, err := ledger.PunchIn(ctx, testEmployee(), "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", rec.WorkDate)
}

func TestPunchIn_StoreError(t *testing.T) {
	ledger, store, _ := newTestLedger(t, 9, 0)
	store.InsertError = errors.New("connection reset")

	_, err := ledger.PunchIn(context.Background(), testEmployee(), "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyPunchedIn)
}

func TestPunchOut_Status(t *testing.T) {
	tests := []struct {
		name     string
		worked   time.Duration
		expected Status
	}{
		{name: "Full day", worked: 500 * time.Minute, expected: StatusPresent},
		{name: "Half day", worked: 300 * time.Minute, expected: StatusHalf},
		{name: "Short day", worked: 100 * time.Minute, expected: StatusAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _, clock := newTestLedger(t, 8, 0)
			ctx := context.Background()
			emp := testEmployee()

			_, err := ledger.PunchIn(ctx, emp, "Gate A")
			require.NoError(t, err)

			clock.Advance(tt.worked)
			rec, err := ledger.PunchOut(ctx, emp, "Gate B")
			require.NoError(t, err)
			assert.Equal(t, string(tt.expected), rec.Status)
			assert.Equal(t, int(tt.worked/time.Minute), rec.WorkingMinutes)
			assert.Equal(t, "Gate B", rec.OutLocation)
			require.NotNil(t, rec.OutTime)

			state, err := ledger.State(ctx, emp.OrgID, emp.ID)
			require.NoError(t, err)
			assert.Equal(t, StateOut, state)
		})
	}
}

func TestPunchOut_WithoutPunchIn(t *testing.T) {
	ledger, _, _ := newTestLedger(t, 17, 0)

	_, err := ledger.PunchOut(context.Background(), testEmployee(), "")
	assert.ErrorIs(t, err, ErrNoPunchInFound)
}

func TestPunchOut_RecordWithoutInTime(t *testing.T) {
	ledger, store, _ := newTestLedger(t, 17, 0)
	emp := testEmployee()
	store.AddRecord(database.AttendanceRecord{ID: "r1", OrgID: emp.OrgID, EmployeeID: emp.ID, WorkDate: "2026-03-02"})

	_, err := ledger.PunchOut(context.Background(), emp, "")
	assert.ErrorIs(t, err, ErrNoPunchInFound)
}

func TestPunchOut_Twice(t *testing.T) {
	ledger, _, clock := newTestLedger(t, 9, 0)
	ctx := context.Background()
	emp := testEmployee()

	_, err := ledger.PunchIn(ctx, emp, "")
	require.NoError(t, err)
	clock.Advance(8 * time.Hour)
	first, err := ledger.PunchOut(ctx, emp, "")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = ledger.PunchOut(ctx, emp, "")
	assert.ErrorIs(t, err, ErrAlreadyPunchedOut)

	// First punch-out is preserved.
	stored, err := ledger.List(ctx, emp.OrgID, Query{EmployeeID: emp.ID})
	require.NoError(t, err)
	require.Len(t, stored.Records, 1)
	assert.Equal(t, first.WorkingMinutes, stored.Records[0].WorkingMinutes)
	assert.Equal(t, 480, stored.Records[0].WorkingMinutes)
}

func TestPunchOut_ConcurrentSingleWinner(t *testing.T) {
	ledger, _, clock := newTestLedger(t, 9, 0)
	ctx := context.Background()
	emp := testEmployee()

	_, err := ledger.PunchIn(ctx, emp, "")
	require.NoError(t, err)
	clock.Advance(6 * time.Hour)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.PunchOut(ctx, emp, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, lost int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyPunchedOut):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, lost)
}

func TestPunchOut_CompareAndSetLost(t *testing.T) {
	store := &racingStore{MockAttendanceStore: mock.NewMockAttendanceStore()}
	clock := testfixtures.At(time.UTC, 2026, 3, 2, 9, 0)
	ledger := NewLedger(store, testPolicy(), WithClock(clock.Now))
	ctx := context.Background()
	emp := testEmployee()

	_, err := ledger.PunchIn(ctx, emp, "")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	_, err = ledger.PunchOut(ctx, emp, "")
	assert.ErrorIs(t, err, ErrAlreadyPunchedOut)
}

// racingStore simulates another punch-out landing between read and update.
type racingStore struct {
	*mock.MockAttendanceStore
}

func (s *racingStore) CompletePunchOut(ctx context.Context, orgID, employeeID, workDate string, out database.PunchOut) (bool, error) {
	if _, err := s.MockAttendanceStore.CompletePunchOut(ctx, orgID, employeeID, workDate, out); err != nil {
		return false, err
	}
	return s.MockAttendanceStore.CompletePunchOut(ctx, orgID, employeeID, workDate, out)
}

func TestState_NotPunched(t *testing.T) {
	ledger, _, _ := newTestLedger(t, 9, 0)

	state, err := ledger.State(context.Background(), "org-1", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, StateNotPunched, state)
}

func TestState_StoreError(t *testing.T) {
	ledger, store, _ := newTestLedger(t, 9, 0)
	store.GetError = errors.New("boom")

	_, err := ledger.State(context.Background(), "org-1", "emp-1")
	assert.Error(t, err)
}

func TestStateOf(t *testing.T) {
	out := time.Now()
	assert.Equal(t, StateNotPunched, StateOf(nil))
	assert.Equal(t, StateNotPunched, StateOf(&database.AttendanceRecord{}))
	assert.Equal(t, StateIn, StateOf(&database.AttendanceRecord{InTime: out}))
	assert.Equal(t, StateOut, StateOf(&database.AttendanceRecord{InTime: out, OutTime: &out}))
}

func seedRecords(store *mock.MockAttendanceStore) {
	in := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := []struct {
		id, emp, date, status string
	}{
		{"r1", "emp-1", "2026-02-27", "PRESENT"},
		{"r2", "emp-1", "2026-02-28", "HALF"},
		{"r3", "emp-1", "2026-03-02", "PRESENT"},
		{"r4", "emp-2", "2026-03-02", "ABSENT"},
		{"r5", "emp-2", "2026-03-01", "PRESENT"},
	}
	for _, r := range rows {
		store.AddRecord(database.AttendanceRecord{
			ID: r.id, OrgID: "org-1", EmployeeID: r.emp, WorkDate: r.date, InTime: in, Status: r.status,
		})
	}
	store.AddRecord(database.AttendanceRecord{ID: "x1", OrgID: "org-2", EmployeeID: "emp-9", WorkDate: "2026-03-02", InTime: in})
}

func TestTodayRecords(t *testing.T) {
	ledger, store, _ := newTestLedger(t, 12, 0)
	seedRecords(store)

	records, err := ledger.TodayRecords(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "2026-03-02", r.WorkDate)
		assert.Equal(t, "org-1", r.OrgID)
	}
}

func TestByEmployee(t *testing.T) {
	ledger, store, _ := newTestLedger(t, 12, 0)
	seedRecords(store)

	page, err := ledger.ByEmployee(context.Background(), "org-1", "emp-1", Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Records, 3)
	assert.Equal(t, "2026-03-02", page.Records[0].WorkDate)
	assert.Equal(t, "2026-02-27", page.Records[2].WorkDate)
}

func TestRange(t *testing.T) {
	ledger, store, _ := newTestLedger(t, 12, 0)
	seedRecords(store)
	ctx := context.Background()

	records, err := ledger.Range(ctx, "org-1", "2026-02-28", "2026-03-01")
	require.NoError(t, err)
	require.Len(t, records, 2)

	tests := []struct {
		name     string
		from, to string
	}{
		{name: "Missing from", from: "", to: "2026-03-01"},
		{name: "Bad format", from: "2026/02/28", to: "2026-03-01"},
		{name: "Reversed", from: "2026-03-02", to: "2026-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Range(ctx, "org-1", tt.from, tt.to)
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestList(t *testing.T) {
	ledger, store, _ := newTestLedger(t, 12, 0)
	seedRecords(store)
	ctx := context.Background()

	page, err := ledger.List(ctx, "org-1", Query{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages())
	require.Len(t, page.Records, 2)
	assert.Equal(t, "2026-03-01", page.Records[0].WorkDate)

	page, err = ledger.List(ctx, "org-1", Query{Status: "PRESENT"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, database.DefaultPageSize, page.PageSize)

	page, err = ledger.List(ctx, "org-1", Query{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, database.MaxPageSize, page.PageSize)

	_, err = ledger.List(ctx, "org-1", Query{Status: "LATE"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestList_StoreError(t *testing.T) {
	ledger, store, _ := newTestLedger(t, 12, 0)
	store.ListError = errors.New("timeout")

	_, err := ledger.List(context.Background(), "org-1", Query{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidQuery)
}
