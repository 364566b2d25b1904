package punch

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/facematch"
	"github.com/kozaktomas/punchclock/internal/logging"
)

// Enroll stores a new descriptor for an existing employee. It is rejected
// when another employee of the organization is within the duplicate threshold.
func (c *Coordinator) Enroll(ctx context.Context, orgID, employeeID string, descriptor []float32, faceImage string) error {
	if err := facematch.ValidateDescriptor(descriptor, c.matching.DescriptorDim); err != nil {
		return validationError("descriptor: %v", err)
	}

	err := c.employees.WithinEnrollment(ctx, orgID, func(tx database.EnrollmentTx) error {
		if err := c.checkDuplicateFace(ctx, tx, orgID, employeeID, descriptor); err != nil {
			return err
		}
		if err := tx.UpdateDescriptor(ctx, orgID, employeeID, descriptor, faceImage); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrEmployeeNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.FromContext(ctx).Info("descriptor enrolled", "employee_id", employeeID)
	return nil
}

func (c *Coordinator) checkDuplicateFace(ctx context.Context, tx database.EnrollmentTx, orgID, excludeID string, descriptor []float32) error {
	existing, err := tx.ListDescriptors(ctx, orgID, excludeID)
	if err != nil {
		return err
	}
	candidates := make([]facematch.Candidate, 0, len(existing))
	codes := make(map[string]string, len(existing))
	for _, e := range existing {
		candidates = append(candidates, facematch.Candidate{ID: e.ID, Descriptor: e.Descriptor})
		codes[e.ID] = e.Code
	}

	dup, distance, found := facematch.FindDuplicate(candidates, descriptor, c.matching.DuplicateThreshold)
	if !found {
		return nil
	}
	return &DuplicateFaceError{EmployeeID: dup.ID, EmployeeCode: codes[dup.ID], Distance: distance}
}

// OnboardRequest describes a new employee. Descriptor is optional; without
// it the employee can be enrolled later. An empty Password gets a generated
// temporary one.
type OnboardRequest struct {
	Name        string
	Email       string
	Phone       string
	Department  string
	Designation string
	Password    string
	Descriptor  []float32
	FaceImage   string
}

// Onboarded is the created employee plus the temporary password, when one
// was generated.
type Onboarded struct {
	Employee          *database.Employee
	TemporaryPassword string
}

// Onboard creates an employee and its login account in one unit of work.
func (c *Coordinator) Onboard(ctx context.Context, orgID string, req OnboardRequest) (*Onboarded, error) {
	name := strings.Join(strings.Fields(req.Name), " ")
	if name == "" {
		return nil, validationError("name is required")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, validationError("invalid email %q", req.Email)
	}
	if len(req.Descriptor) > 0 {
		if err := facematch.ValidateDescriptor(req.Descriptor, c.matching.DescriptorDim); err != nil {
			return nil, validationError("descriptor: %v", err)
		}
	}

	password, generated := req.Password, ""
	if password == "" {
		password = rand.Text()
		generated = password
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	emp := &database.Employee{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		Name:        name,
		Email:       email,
		Phone:       strings.TrimSpace(req.Phone),
		Department:  strings.TrimSpace(req.Department),
		Designation: strings.TrimSpace(req.Designation),
		Status:      database.EmployeeActive,
		Descriptor:  req.Descriptor,
		FaceImage:   req.FaceImage,
	}

	err = c.employees.WithinEnrollment(ctx, orgID, func(tx database.EnrollmentTx) error {
		exists, err := tx.EmailExists(ctx, orgID, email)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateEmail
		}
		if emp.Enrolled() {
			if err := c.checkDuplicateFace(ctx, tx, orgID, "", emp.Descriptor); err != nil {
				return err
			}
		}

		if emp.Code, err = tx.NextEmployeeCode(ctx, orgID); err != nil {
			return err
		}
		if err := tx.InsertEmployee(ctx, emp); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return ErrDuplicateEmail
			}
			return err
		}

		err = tx.InsertAccount(ctx, &database.Account{
			ID:           uuid.NewString(),
			OrgID:        orgID,
			EmployeeID:   emp.ID,
			Email:        email,
			PasswordHash: string(hash),
			Role:         database.AccountRoleEmployee,
		})
		if errors.Is(err, database.ErrDuplicate) {
			return ErrDuplicateEmail
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("employee onboarded", "employee", emp.Code, "enrolled", emp.Enrolled())
	return &Onboarded{Employee: emp, TemporaryPassword: generated}, nil
}

// SearchEmployees lists the organization's employees matching filter.
func (c *Coordinator) SearchEmployees(ctx context.Context, orgID string, filter database.EmployeeFilter) ([]database.Employee, error) {
	switch filter.Status {
	case "", database.EmployeeActive, database.EmployeeInactive, database.EmployeeTerminated:
	default:
		return nil, validationError("unknown status %q", filter.Status)
	}
	employees, err := c.employees.SearchEmployees(ctx, orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("search employees: %w", err)
	}
	return employees, nil
}

// GetEmployee loads one employee of the organization.
func (c *Coordinator) GetEmployee(ctx context.Context, orgID, employeeID string) (*database.Employee, error) {
	emp, err := c.employees.GetEmployee(ctx, orgID, employeeID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrEmployeeNotFound
	}
	return emp, err
}
