package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/fee-engine/internal/domain"
)

// StructureRepository defines the interface for fee structure data operations.
// Structures are never deleted.
type StructureRepository interface {
	// Create inserts a new structure; duplicate codes fail with ErrDuplicate
	Create(ctx context.Context, structure *domain.FeeStructure) error

	// GetByID retrieves a structure by id
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error)

	// GetByIDForUpdate retrieves a structure and locks it until the transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error)

	// Update persists lifecycle and fee head changes
	Update(ctx context.Context, structure *domain.FeeStructure) error

	// List returns structures matching the filter, newest first
	List(ctx context.Context, filter domain.StructureFilter) ([]*domain.FeeStructure, error)
}

// LedgerRepository defines the interface for student ledger data operations.
// Ledgers are never deleted.
type LedgerRepository interface {
	// Create inserts a ledger; a second ledger for the same student and period fails with ErrDuplicate
	Create(ctx context.Context, ledger *domain.StudentFeeLedger) error

	// GetByID retrieves a ledger by id
	GetByID(ctx context.Context, id uuid.UUID) (*domain.StudentFeeLedger, error)

	// GetByIDForUpdate retrieves a ledger and locks it until the transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.StudentFeeLedger, error)

	// UpdateBalances persists the paid, computed and closure fields. The fee
	// snapshot and identity columns are never written after creation.
	UpdateBalances(ctx context.Context, ledger *domain.StudentFeeLedger) error

	// List returns ledgers matching the filter
	List(ctx context.Context, filter domain.LedgerFilter) ([]*domain.StudentFeeLedger, error)

	// ListOpenIDs returns the ids of ledgers that are not closed
	ListOpenIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ReceiptRepository defines the interface for the append-only receipt journal.
type ReceiptRepository interface {
	// Create appends a receipt
	Create(ctx context.Context, receipt *domain.FeeReceipt) error

	// GetByID retrieves a receipt by id
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FeeReceipt, error)

	// GetByIDForUpdate retrieves a receipt and locks it until the transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.FeeReceipt, error)

	// GetByNumber retrieves a payment receipt by its receipt number
	GetByNumber(ctx context.Context, number string) (*domain.FeeReceipt, error)

	// ListByLedger returns all receipts of a ledger in creation order
	ListByLedger(ctx context.Context, ledgerID uuid.UUID) ([]*domain.FeeReceipt, error)

	// CountReversalsOf counts reversal receipts referencing the original
	CountReversalsOf(ctx context.Context, originalID uuid.UUID) (int, error)

	// MarkReversed flags an unreversed payment as reversed; it fails with
	// ErrAlreadyReversed when the receipt was reversed before
	MarkReversed(ctx context.Context, id, reversalID uuid.UUID, reason string, at time.Time) error
}

// AuditLogRepository defines the interface for the write-once audit trail.
// There is deliberately no update or delete.
type AuditLogRepository interface {
	// Append writes one entry
	Append(ctx context.Context, entry *domain.FeeAuditLog) error

	// Query returns entries matching the filter, newest first
	Query(ctx context.Context, filter domain.AuditFilter) ([]*domain.FeeAuditLog, error)

	// ActionSummary counts entries per action in [from, to)
	ActionSummary(ctx context.Context, from, to *time.Time) ([]domain.ActionCount, error)
}

// SequenceRepository issues the daily receipt counter.
type SequenceRepository interface {
	// Next increments and returns the counter for day (YYYYMMDD)
	Next(ctx context.Context, day string) (int64, error)
}

// Repositories is the set of repositories bound to one connection or transaction.
type Repositories interface {
	Structures() StructureRepository
	Ledgers() LedgerRepository
	Receipts() ReceiptRepository
	AuditLogs() AuditLogRepository
	Sequences() SequenceRepository
}

// Store gives non-transactional access to the repositories and runs
// transactional units of work.
type Store interface {
	Repositories

	// WithTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Repositories) error) error

	// Ping checks storage connectivity
	Ping(ctx context.Context) error
}
