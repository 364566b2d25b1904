package punch

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrEmployeeNotFound     = errors.New("employee not found")
	ErrEmployeeInactive     = errors.New("employee is not active")
	ErrDuplicateFace        = errors.New("face already enrolled for another employee")
	ErrDuplicateEmail       = errors.New("employee with this email already exists")
	ErrExtractorUnavailable = errors.New("face extractor is not configured")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// DuplicateFaceError names the employee an enrollment collided with.
type DuplicateFaceError struct {
	EmployeeID   string
	EmployeeCode string
	Distance     float64
}

func (e *DuplicateFaceError) Error() string {
	return fmt.Sprintf("face matches employee %s (distance %.3f)", e.EmployeeCode, e.Distance)
}

func (e *DuplicateFaceError) Unwrap() error {
	return ErrDuplicateFace
}
