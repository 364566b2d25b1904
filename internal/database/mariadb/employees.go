package mariadb

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/facematch"
)

const employeeColumns = `id, org_id, code, name, email, phone, department, designation,
	status, descriptor, face_image, created_at, updated_at`

// enrollLockTimeout bounds the wait for another enrollment of the same organization.
const enrollLockTimeout = 10

// enrollLockName derives a fixed width GET_LOCK name for the organization.
// Lock names are limited to 64 characters.
func enrollLockName(orgID string) string {
	sum := sha1.Sum([]byte(orgID))
	return "punchclock_enroll_" + hex.EncodeToString(sum[:])
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EmployeeRepository implements database.EmployeeStore using MariaDB.
type EmployeeRepository struct {
	db *sql.DB
}

// ListCandidates returns active employees with a descriptor.
func (r *EmployeeRepository) ListCandidates(ctx context.Context, orgID string) ([]database.Employee, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+employeeColumns+`
		FROM employees
		WHERE org_id = ? AND status = 'active' AND descriptor IS NOT NULL
		ORDER BY code`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()
	return scanEmployees(rows)
}

// GetEmployee retrieves an employee by ID within the organization.
func (r *EmployeeRepository) GetEmployee(ctx context.Context, orgID, employeeID string) (*database.Employee, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE org_id = ? AND id = ?`, orgID, employeeID)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return &e, nil
}

// SearchEmployees lists employees of the organization ordered by code.
func (r *EmployeeRepository) SearchEmployees(ctx context.Context, orgID string, filter database.EmployeeFilter) ([]database.Employee, error) {
	conds := []string{"org_id = ?"}
	args := []any{orgID}

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Department != "" {
		conds = append(conds, "department = ?")
		args = append(args, filter.Department)
	}
	if raw := strings.ToLower(strings.TrimSpace(filter.Search)); raw != "" {
		conds = append(conds, "(LOCATE(?, name_normalized) > 0 OR LOCATE(?, LOWER(code)) > 0 OR LOCATE(?, email) > 0)")
		args = append(args, facematch.NormalizePersonName(raw), raw, raw)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE `+strings.Join(conds, " AND ")+` ORDER BY code`, args...)
	if err != nil {
		return nil, fmt.Errorf("search employees: %w", err)
	}
	defer rows.Close()
	return scanEmployees(rows)
}

// WithinEnrollment runs fn in a transaction holding a named lock for the
// organization, so concurrent enrollments of one organization are sequential.
func (r *EmployeeRepository) WithinEnrollment(ctx context.Context, orgID string, fn func(tx database.EnrollmentTx) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	lockName := enrollLockName(orgID)
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", lockName, enrollLockTimeout).Scan(&got); err != nil {
		return fmt.Errorf("acquire enrollment lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return fmt.Errorf("acquire enrollment lock for %s: timed out", orgID)
	}
	defer conn.ExecContext(context.WithoutCancel(ctx), "SELECT RELEASE_LOCK(?)", lockName)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment: %w", err)
	}

	if err := fn(&enrollmentTx{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("enrollment failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

type enrollmentTx struct {
	q queryer
}

func (t *enrollmentTx) ListDescriptors(ctx context.Context, orgID, excludeID string) ([]database.Employee, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+employeeColumns+`
		FROM employees
		WHERE org_id = ? AND descriptor IS NOT NULL AND id <> ?
		ORDER BY code`, orgID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	defer rows.Close()
	return scanEmployees(rows)
}

func (t *enrollmentTx) EmailExists(ctx context.Context, orgID, email string) (bool, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM employees WHERE org_id = ? AND email = ?", orgID, strings.ToLower(email),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return n > 0, nil
}

func (t *enrollmentTx) NextEmployeeCode(ctx context.Context, orgID string) (string, error) {
	rows, err := t.q.QueryContext(ctx, "SELECT code FROM employees WHERE org_id = ? FOR UPDATE", orgID)
	if err != nil {
		return "", fmt.Errorf("query employee codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return "", fmt.Errorf("scan employee code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate employee codes: %w", err)
	}
	return database.NextEmployeeCode(codes), nil
}

func (t *enrollmentTx) InsertEmployee(ctx context.Context, e *database.Employee) error {
	descriptor, err := encodeDescriptor(e.Descriptor)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO employees (id, org_id, code, name, name_normalized, email, phone,
			department, designation, status, descriptor, face_image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrgID, e.Code, e.Name, facematch.NormalizePersonName(e.Name),
		strings.ToLower(e.Email), e.Phone, e.Department, e.Designation, e.Status,
		descriptor, e.FaceImage, now, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert employee %s: %w", e.Code, database.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

func (t *enrollmentTx) InsertAccount(ctx context.Context, a *database.Account) error {
	now := time.Now().UTC()
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO accounts (id, org_id, employee_id, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrgID, a.EmployeeID, strings.ToLower(a.Email), a.PasswordHash, a.Role, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert account: %w", database.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	a.CreatedAt = now
	return nil
}

func (t *enrollmentTx) UpdateDescriptor(ctx context.Context, orgID, employeeID string, descriptor []float32, faceImage string) error {
	encoded, err := encodeDescriptor(descriptor)
	if err != nil {
		return err
	}

	// RowsAffected is 0 when the new values equal the old ones, so existence
	// is checked separately.
	var exists int
	err = t.q.QueryRowContext(ctx,
		"SELECT 1 FROM employees WHERE org_id = ? AND id = ? FOR UPDATE", orgID, employeeID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock employee: %w", err)
	}

	_, err = t.q.ExecContext(ctx, `
		UPDATE employees SET descriptor = ?, face_image = ?, updated_at = ?
		WHERE org_id = ? AND id = ?`,
		encoded, faceImage, time.Now().UTC(), orgID, employeeID,
	)
	if err != nil {
		return fmt.Errorf("update descriptor: %w", err)
	}
	return nil
}

// encodeDescriptor stores a descriptor as a JSON array, NULL when empty.
func encodeDescriptor(d []float32) (any, error) {
	if len(d) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	return string(b), nil
}

func scanEmployee(scanner interface{ Scan(...any) error }) (database.Employee, error) {
	var e database.Employee
	var descriptor sql.NullString

	err := scanner.Scan(
		&e.ID, &e.OrgID, &e.Code, &e.Name, &e.Email, &e.Phone, &e.Department, &e.Designation,
		&e.Status, &descriptor, &e.FaceImage, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return database.Employee{}, err
	}

	if descriptor.Valid {
		if err := json.Unmarshal([]byte(descriptor.String), &e.Descriptor); err != nil {
			return database.Employee{}, fmt.Errorf("decode descriptor of %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func scanEmployees(rows *sql.Rows) ([]database.Employee, error) {
	var employees []database.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}
