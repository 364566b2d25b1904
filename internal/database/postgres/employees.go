package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/facematch"
	"github.com/pgvector/pgvector-go"
)

const employeeColumns = `id, org_id, code, name, email, phone, department, designation,
	status, descriptor::text, face_image, created_at, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EmployeeRepository provides PostgreSQL-backed employee storage.
type EmployeeRepository struct {
	pool *Pool
}

// NewEmployeeRepository creates a new PostgreSQL employee repository.
func NewEmployeeRepository(pool *Pool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

// ListCandidates returns active employees with a descriptor.
func (r *EmployeeRepository) ListCandidates(ctx context.Context, orgID string) ([]database.Employee, error) {
	query := `SELECT ` + employeeColumns + `
		FROM employees
		WHERE org_id = $1 AND status = 'active' AND descriptor IS NOT NULL
		ORDER BY code`

	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows)
}

// GetEmployee retrieves an employee by ID within the organization.
func (r *EmployeeRepository) GetEmployee(ctx context.Context, orgID, employeeID string) (*database.Employee, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return nil, database.ErrNotFound
	}

	query := `SELECT ` + employeeColumns + ` FROM employees WHERE org_id = $1 AND id = $2`
	e, err := scanEmployee(r.pool.QueryRow(ctx, query, orgID, employeeID))
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
	conds := []string{"org_id = $1"}
	args := []any{orgID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conds = append(conds, fmt.Sprintf("department = $%d", len(args)))
	}
	if raw := strings.ToLower(strings.TrimSpace(filter.Search)); raw != "" {
		args = append(args, facematch.NormalizePersonName(raw), raw)
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(strpos(name_normalized, $%d) > 0 OR strpos(LOWER(code), $%d) > 0 OR strpos(email, $%d) > 0)", n-1, n, n))
	}

	query := `SELECT ` + employeeColumns + ` FROM employees WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY code`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search employees: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows)
}

// WithinEnrollment runs fn in a transaction holding the organization's advisory lock.
func (r *EmployeeRepository) WithinEnrollment(ctx context.Context, orgID string, fn func(tx database.EnrollmentTx) error) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "enroll:"+orgID); err != nil {
		tx.Rollback()
		return fmt.Errorf("lock organization: %w", err)
	}

	if err := fn(&enrollmentTx{q: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// enrollmentTx implements database.EnrollmentTx on one transaction.
type enrollmentTx struct {
	q queryer
}

func (t *enrollmentTx) ListDescriptors(ctx context.Context, orgID, excludeID string) ([]database.Employee, error) {
	query := `SELECT ` + employeeColumns + `
		FROM employees
		WHERE org_id = $1 AND descriptor IS NOT NULL AND id::text <> $2
		ORDER BY code`

	rows, err := t.q.QueryContext(ctx, query, orgID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows)
}

func (t *enrollmentTx) EmailExists(ctx context.Context, orgID, email string) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM employees WHERE org_id = $1 AND email = $2)",
		orgID, strings.ToLower(email),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (t *enrollmentTx) NextEmployeeCode(ctx context.Context, orgID string) (string, error) {
	rows, err := t.q.QueryContext(ctx, "SELECT code FROM employees WHERE org_id = $1", orgID)
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
	query := `
		INSERT INTO employees (id, org_id, code, name, name_normalized, email, phone,
			department, designation, status, descriptor, face_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := t.q.QueryRowContext(ctx, query,
		e.ID, e.OrgID, e.Code, e.Name, facematch.NormalizePersonName(e.Name),
		strings.ToLower(e.Email), e.Phone, e.Department, e.Designation, e.Status,
		vectorOrNull(e.Descriptor), e.FaceImage,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert employee %s: %w", e.Code, database.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

func (t *enrollmentTx) InsertAccount(ctx context.Context, a *database.Account) error {
	query := `
		INSERT INTO accounts (id, org_id, employee_id, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := t.q.QueryRowContext(ctx, query,
		a.ID, a.OrgID, a.EmployeeID, strings.ToLower(a.Email), a.PasswordHash, a.Role,
	).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert account: %w", database.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (t *enrollmentTx) UpdateDescriptor(ctx context.Context, orgID, employeeID string, descriptor []float32, faceImage string) error {
	if _, err := uuid.Parse(employeeID); err != nil {
		return database.ErrNotFound
	}

	result, err := t.q.ExecContext(ctx, `
		UPDATE employees
		SET descriptor = $3, face_image = $4, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
	`, orgID, employeeID, vectorOrNull(descriptor), faceImage)
	if err != nil {
		return fmt.Errorf("update descriptor: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update descriptor rows: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

func vectorOrNull(d []float32) any {
	if len(d) == 0 {
		return nil
	}
	return pgvector.NewVector(d)
}

// scanEmployee scans a single employee row selected with employeeColumns.
func scanEmployee(scanner interface{ Scan(...any) error }) (database.Employee, error) {
	var e database.Employee
	var descriptor sql.NullString
	var created, updated time.Time

	err := scanner.Scan(
		&e.ID, &e.OrgID, &e.Code, &e.Name, &e.Email, &e.Phone, &e.Department, &e.Designation,
		&e.Status, &descriptor, &e.FaceImage, &created, &updated,
	)
	if err != nil {
		return database.Employee{}, err
	}

	if descriptor.Valid {
		var vec pgvector.Vector
		if err := vec.Scan(descriptor.String); err != nil {
			return database.Employee{}, fmt.Errorf("parse descriptor of %s: %w", e.ID, err)
		}
		e.Descriptor = vec.Slice()
	}
	e.CreatedAt = created
	e.UpdatedAt = updated
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
