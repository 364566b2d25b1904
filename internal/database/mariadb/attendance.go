package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/punchclock/internal/database"
)

const attendanceColumns = `id, org_id, employee_id, employee_code, employee_name, work_date,
	in_time, in_location, out_time, out_location, late_minutes, working_minutes, status,
	created_at, updated_at`

// AttendanceRepository implements database.AttendanceStore using MariaDB.
type AttendanceRepository struct {
	db *sql.DB
}

// InsertPunchIn creates the day's record; the unique (org_id, employee_id,
// work_date) key rejects a second one.
func (r *AttendanceRepository) InsertPunchIn(ctx context.Context, rec *database.AttendanceRecord) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, org_id, employee_id, employee_code, employee_name, work_date,
			in_time, in_location, late_minutes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OrgID, rec.EmployeeID, rec.EmployeeCode, rec.EmployeeName, rec.WorkDate,
		rec.InTime.UTC(), rec.InLocation, rec.LateMinutes, rec.Status, now, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert punch-in for %s on %s: %w", rec.EmployeeID, rec.WorkDate, database.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert punch-in: %w", err)
	}
	rec.CreatedAt, rec.UpdatedAt = now, now
	return nil
}

// GetAttendance retrieves the record of one employee for one work date.
func (r *AttendanceRepository) GetAttendance(ctx context.Context, orgID, employeeID, workDate string) (*database.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attendanceColumns+`
		FROM attendance WHERE org_id = ? AND employee_id = ? AND work_date = ?`,
		orgID, employeeID, workDate)

	rec, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return &rec, nil
}

// CompletePunchOut sets punch-out fields only while out_time is still NULL.
// The out_time change guarantees a non-zero affected row count on success.
func (r *AttendanceRepository) CompletePunchOut(ctx context.Context, orgID, employeeID, workDate string, out database.PunchOut) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET out_time = ?, out_location = ?, working_minutes = ?, status = ?, updated_at = ?
		WHERE org_id = ? AND employee_id = ? AND work_date = ? AND out_time IS NULL`,
		out.OutTime.UTC(), out.OutLocation, out.WorkingMinutes, out.Status, time.Now().UTC(),
		orgID, employeeID, workDate,
	)
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
	conds := []string{"org_id = ?"}
	args := []any{filter.OrgID}

	if filter.EmployeeID != "" {
		conds = append(conds, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.From != "" {
		conds = append(conds, "work_date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		conds = append(conds, "work_date <= ?")
		args = append(args, filter.To)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendance WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}

	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE ` + where +
		` ORDER BY work_date DESC, in_time DESC, id`
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
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
		&rec.ID, &rec.OrgID, &rec.EmployeeID, &rec.EmployeeCode, &rec.EmployeeName, &rec.WorkDate,
		&rec.InTime, &rec.InLocation, &outTime, &rec.OutLocation, &rec.LateMinutes, &rec.WorkingMinutes,
		&rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
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
