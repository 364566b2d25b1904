package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Employee code format: EMP-001, EMP-002, ... widening past 999.
const (
	EmployeeCodePrefix = "EMP-"
	employeeCodeDigits = 3
)

// Pagination bounds for ledger listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AccountRoleEmployee is the role given to accounts created at onboarding.
const AccountRoleEmployee = "employee"

// FormatEmployeeCode renders the n-th employee code of an organization.
func FormatEmployeeCode(n int) string {
	return fmt.Sprintf("%s%0*d", EmployeeCodePrefix, employeeCodeDigits, n)
}

// ParseEmployeeCode returns the sequence number of a code, or 0 when the
// code was not allocated by FormatEmployeeCode.
func ParseEmployeeCode(code string) int {
	rest, ok := strings.CutPrefix(code, EmployeeCodePrefix)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// NextEmployeeCode returns the code following the highest of existing.
func NextEmployeeCode(existing []string) string {
	highest := 0
	for _, c := range existing {
		highest = max(highest, ParseEmployeeCode(c))
	}
	return FormatEmployeeCode(highest + 1)
}
