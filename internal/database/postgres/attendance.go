package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/punchclock/internal/database"
)

const attendanceColumns = `id, org_id, employee_id, employee_code, employee_name,
	to_char(work_date, 'YYYY-MM-DD'), in_time, in_location, out_time, out_location,
	late_minutes, working_minutes, status, created_at, updated_at`

// AttendanceRepository provides the PostgreSQL-backed attendance ledger.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// InsertPunchIn creates the day's record. The (org_id, employee_id, work_date)
// unique constraint decides concurrent punch-ins.
func (r *AttendanceRepository) InsertPunchIn(ctx context.Context, rec *database.AttendanceRecord) error {
	query := `
		INSERT INTO attendance (id, org_id, employee_id, employee_code, employee_name,
			work_date, in_time, in_location, late_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		rec.ID, rec.OrgID, rec.EmployeeID, rec.EmployeeCode, rec.EmployeeName,
		rec.WorkDate, rec.InTime, rec.InLocation, rec.LateMinutes, rec.Status,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert punch-in for %s on %s: %w", rec.EmployeeID, rec.WorkDate, database.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert punch-in: %w", err)
	}
	return nil
}

// GetAttendance retrieves the record of one employee for one work date.
func (r *AttendanceRepository) GetAttendance(ctx context.Context, orgID, employeeID, workDate string) (*database.AttendanceRecord, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return nil, database.ErrNotFound
	}

	query := `SELECT ` + attendanceColumns + `
		FROM attendance
		WHERE org_id = $1 AND employee_id = $2 AND work_date = $3::date`

	rec, err := scanAttendance(r.pool.QueryRow(ctx, query, orgID, employeeID, workDate))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return &rec, nil
}

// CompletePunchOut sets punch-out fields only while out_time is still NULL.
func (r *AttendanceRepository) CompletePunchOut(ctx context.Context, orgID, employeeID, workDate string, out database.PunchOut) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE attendance
		SET out_time = $4, out_location = $5, working_minutes = $6, status = $7, updated_at = NOW()
		WHERE org_id = $1 AND employee_id = $2 AND work_date = $3::date AND out_time IS NULL
	`, orgID, employeeID, workDate, out.OutTime, out.OutLocation, out.WorkingMinutes, out.Status)
	if err != nil {
		return false, fmt.Errorf("complete punch-out: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete punch-out rows: %w", err)
	}
	return n == 1, nil
}

// ListAttendance returns one page of records and the total count.
func (r *AttendanceRepository) ListAttendance(ctx context.Context, filter database.AttendanceFilter) ([]database.AttendanceRecord, int, error) {
	conds := []string{"org_id = $1"}
	args := []any{filter.OrgID}

	if filter.EmployeeID != "" {
		if _, err := uuid.Parse(filter.EmployeeID); err != nil {
			return nil, 0, nil
		}
		args = append(args, filter.EmployeeID)
		conds = append(conds, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.From != "" {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("work_date >= $%d::date", len(args)))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("work_date <= $%d::date", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}

	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE ` + where +
		` ORDER BY work_date DESC, in_time DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, total, nil
}

func scanAttendance(scanner interface{ Scan(...any) error }) (database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var outTime sql.NullTime

	err := scanner.Scan(
		&rec.ID, &rec.OrgID, &rec.EmployeeID, &rec.EmployeeCode, &rec.EmployeeName,
		&rec.WorkDate, &rec.InTime, &rec.InLocation, &outTime, &rec.OutLocation,
		&rec.LateMinutes, &rec.WorkingMinutes, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return database.AttendanceRecord{}, err
	}
	if outTime.Valid {
		t := outTime.Time
		rec.OutTime = &t
	}
	return rec, nil
}
