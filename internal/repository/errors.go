package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyReversed is returned when a receipt was already marked reversed.
	ErrAlreadyReversed = errors.New("receipt already reversed")

	// ErrSerialization marks transient conflicts that are safe to retry.
	ErrSerialization = errors.New("transaction serialization failure")
)

// Constraint names shared by the Postgres schema and the memory store.
const (
	ConstraintStructureCode   = "fee_structures_code_key"
	ConstraintLedgerPeriod    = "student_fee_ledgers_student_period_key"
	ConstraintReceiptNumber   = "fee_receipts_payment_number_key"
	ConstraintReversalOf      = "fee_receipts_reversal_of_key"
	ConstraintAuditLogPrimary = "fee_audit_logs_pkey"
)

// DuplicateError reports a unique constraint violation.
type DuplicateError struct {
	Constraint string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate key violates unique constraint %q", e.Constraint)
}

// IsDuplicate reports whether err is a unique violation of constraint. An
// empty constraint matches any unique violation.
func IsDuplicate(err error, constraint string) bool {
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		return false
	}
	return constraint == "" || dup.Constraint == constraint
}

// Postgres SQLSTATE codes we translate.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// translateError maps driver errors to repository errors.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return &DuplicateError{Constraint: pqErr.Constraint}
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrSerialization, pqErr.Message)
		}
	}
	return err
}
