package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrAmountExceedsBalance   = errors.New("amount exceeds outstanding balance")
	ErrStructureNotFound      = errors.New("fee structure not found")
	ErrStructureLocked        = errors.New("fee structure is locked")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrStructureNotAssignable = errors.New("fee structure cannot be assigned")
	ErrStructureVersionExists = errors.New("fee structure version already exists")
	ErrLedgerNotFound         = errors.New("ledger not found")
	ErrLedgerAlreadyExists    = errors.New("ledger already exists")
	ErrLedgerClosed           = errors.New("ledger is closed")
	ErrLedgerFullyPaid        = errors.New("ledger is already fully paid")
	ErrOutstandingNotZero     = errors.New("outstanding balance is not zero")
	ErrReceiptNotFound        = errors.New("receipt not found")
	ErrReceiptAlreadyReversed = errors.New("receipt is already reversed")
	ErrReversalOfReversal     = errors.New("a reversal receipt cannot be reversed")
	ErrAuditImmutable         = errors.New("audit log entries are immutable")
	ErrTransactionFailed      = errors.New("transaction failed")
)

// Kind classifies a BusinessError for callers that translate it, such as HTTP handlers.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindState       Kind = "state"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindTransaction Kind = "transaction"
	KindInternal    Kind = "internal"
)

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BusinessError represents a business logic error
type BusinessError struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(kind Kind, code, message string, err error) *BusinessError {
	return &BusinessError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// As extracts the BusinessError from err's chain.
func As(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal when err is not a BusinessError.
func KindOf(err error) Kind {
	if be, ok := As(err); ok {
		return be.Kind
	}
	return KindInternal
}

// Error codes
const (
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeInvalidAmount          = "INVALID_AMOUNT"
	ErrCodeAmountExceedsBalance   = "AMOUNT_EXCEEDS_BALANCE"
	ErrCodeStructureNotFound      = "STRUCTURE_NOT_FOUND"
	ErrCodeStructureLocked        = "STRUCTURE_LOCKED"
	ErrCodeInvalidTransition      = "INVALID_STATUS_TRANSITION"
	ErrCodeStructureNotAssignable = "STRUCTURE_NOT_ASSIGNABLE"
	ErrCodeStructureVersionExists = "STRUCTURE_VERSION_EXISTS"
	ErrCodeLedgerNotFound         = "LEDGER_NOT_FOUND"
	ErrCodeLedgerAlreadyExists    = "LEDGER_ALREADY_EXISTS"
	ErrCodeLedgerClosed           = "LEDGER_CLOSED"
	ErrCodeLedgerFullyPaid        = "LEDGER_FULLY_PAID"
	ErrCodeOutstandingNotZero     = "OUTSTANDING_NOT_ZERO"
	ErrCodeReceiptNotFound        = "RECEIPT_NOT_FOUND"
	ErrCodeReceiptAlreadyReversed = "RECEIPT_ALREADY_REVERSED"
	ErrCodeReversalOfReversal     = "REVERSAL_NOT_REVERSIBLE"
	ErrCodeAuditImmutable         = "AUDIT_IMMUTABLE"
	ErrCodeTransactionFailed      = "TRANSACTION_FAILED"
	ErrCodeDatabaseError          = "DATABASE_ERROR"
	ErrCodeCacheError             = "CACHE_ERROR"
)

// Wrap common errors with business context

func WrapValidation(message string, fields ...FieldError) *BusinessError {
	be := NewBusinessError(KindValidation, ErrCodeValidation, message, ErrValidation)
	be.Fields = fields
	return be
}

func WrapInvalidAmount(amount string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeInvalidAmount,
		fmt.Sprintf("Invalid amount: %s", amount),
		ErrInvalidAmount,
	)
}

func WrapAmountExceedsBalance(amount, outstanding string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeAmountExceedsBalance,
		fmt.Sprintf("Amount %s exceeds outstanding balance %s", amount, outstanding),
		ErrAmountExceedsBalance,
	)
}

func WrapStructureNotFound(id string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeStructureNotFound,
		fmt.Sprintf("Fee structure with ID %s not found", id),
		ErrStructureNotFound,
	)
}

// WrapStructureLocked is the LockedStructureError: any change other than archival
// on a structure that has students assigned.
func WrapStructureLocked(code string) *BusinessError {
	return NewBusinessError(
		KindState,
		ErrCodeStructureLocked,
		fmt.Sprintf("Fee structure %s is locked; create a new version instead", code),
		ErrStructureLocked,
	)
}

func WrapInvalidTransition(code, from, to string) *BusinessError {
	return NewBusinessError(
		KindState,
		ErrCodeInvalidTransition,
		fmt.Sprintf("Fee structure %s cannot move from %s to %s", code, from, to),
		ErrInvalidTransition,
	)
}

func WrapStructureNotAssignable(code, status string) *BusinessError {
	return NewBusinessError(
		KindState,
		ErrCodeStructureNotAssignable,
		fmt.Sprintf("Fee structure %s is %s; only approved or active structures can be assigned", code, status),
		ErrStructureNotAssignable,
	)
}

func WrapStructureVersionExists(code string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeStructureVersionExists,
		fmt.Sprintf("Fee structure %s already exists", code),
		ErrStructureVersionExists,
	)
}

func WrapLedgerNotFound(id string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeLedgerNotFound,
		fmt.Sprintf("Ledger with ID %s not found", id),
		ErrLedgerNotFound,
	)
}

func WrapLedgerAlreadyExists(studentID, academicYear string, semester int) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeLedgerAlreadyExists,
		fmt.Sprintf("Student %s already has a ledger for %s semester %d", studentID, academicYear, semester),
		ErrLedgerAlreadyExists,
	)
}

func WrapLedgerClosed(id string) *BusinessError {
	return NewBusinessError(
		KindState,
		ErrCodeLedgerClosed,
		fmt.Sprintf("Ledger with ID %s is closed", id),
		ErrLedgerClosed,
	)
}

func WrapLedgerFullyPaid(id string) *BusinessError {
	return NewBusinessError(
		KindState,
		ErrCodeLedgerFullyPaid,
		fmt.Sprintf("Ledger with ID %s is already fully paid", id),
		ErrLedgerFullyPaid,
	)
}

func WrapOutstandingNotZero(id, outstanding string) *BusinessError {
	return NewBusinessError(
		KindState,
		ErrCodeOutstandingNotZero,
		fmt.Sprintf("Ledger with ID %s still has an outstanding balance of %s", id, outstanding),
		ErrOutstandingNotZero,
	)
}

func WrapReceiptNotFound(ref string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeReceiptNotFound,
		fmt.Sprintf("Receipt %s not found", ref),
		ErrReceiptNotFound,
	)
}

func WrapReceiptAlreadyReversed(number string) *BusinessError {
	return NewBusinessError(
		KindState,
		ErrCodeReceiptAlreadyReversed,
		fmt.Sprintf("Receipt %s has already been reversed", number),
		ErrReceiptAlreadyReversed,
	)
}

func WrapReversalOfReversal(number string) *BusinessError {
	return NewBusinessError(
		KindState,
		ErrCodeReversalOfReversal,
		fmt.Sprintf("Receipt %s is a reversal and cannot be reversed", number),
		ErrReversalOfReversal,
	)
}

func WrapAuditImmutable() *BusinessError {
	return NewBusinessError(
		KindState,
		ErrCodeAuditImmutable,
		"Audit log entries cannot be updated or deleted",
		ErrAuditImmutable,
	)
}

func WrapTransactionFailed(err error) *BusinessError {
	return NewBusinessError(
		KindTransaction,
		ErrCodeTransactionFailed,
		"transaction aborted; no changes were applied",
		err,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		KindInternal,
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		KindInternal,
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
