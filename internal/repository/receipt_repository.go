package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/fee-engine/internal/domain"
)

const receiptColumns = `id, receipt_number, ledger_id, student_id, receipt_type, amount, payment_mode,
	transaction_ref, payment_date, remarks, previous_balance, new_balance, total_paid_before,
	total_paid_after, is_reversed, reversed_by, reversed_at, reversal_of, reversal_reason,
	created_by_id, created_by_name, created_at`

type receiptRepository struct {
	db sqlx.ExtContext
}

// NewReceiptRepository returns the append-only receipt journal. There is no
// general update: MarkReversed is the only write after Create.
func NewReceiptRepository(db sqlx.ExtContext) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) Create(ctx context.Context, rc *domain.FeeReceipt) error {
	query := `
		INSERT INTO fee_receipts (` + receiptColumns + `)
		VALUES (:id, :receipt_number, :ledger_id, :student_id, :receipt_type, :amount, :payment_mode,
			:transaction_ref, :payment_date, :remarks, :previous_balance, :new_balance, :total_paid_before,
			:total_paid_after, :is_reversed, :reversed_by, :reversed_at, :reversal_of, :reversal_reason,
			:created_by_id, :created_by_name, :created_at)
	`

	_, err := sqlx.NamedExecContext(ctx, r.db, query, rc)
	return translateError(err)
}

func (r *receiptRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FeeReceipt, error) {
	return r.get(ctx, `SELECT `+receiptColumns+` FROM fee_receipts WHERE id = $1`, id)
}

func (r *receiptRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.FeeReceipt, error) {
	return r.get(ctx, `SELECT `+receiptColumns+` FROM fee_receipts WHERE id = $1 FOR UPDATE`, id)
}

func (r *receiptRepository) GetByNumber(ctx context.Context, number string) (*domain.FeeReceipt, error) {
	return r.get(ctx, `SELECT `+receiptColumns+` FROM fee_receipts WHERE receipt_number = $1 AND receipt_type = 'PAYMENT'`, number)
}

func (r *receiptRepository) get(ctx context.Context, query string, arg interface{}) (*domain.FeeReceipt, error) {
	var rc domain.FeeReceipt
	if err := sqlx.GetContext(ctx, r.db, &rc, query, arg); err != nil {
		return nil, translateError(err)
	}
	return &rc, nil
}

func (r *receiptRepository) ListByLedger(ctx context.Context, ledgerID uuid.UUID) ([]*domain.FeeReceipt, error) {
	query := `
		SELECT ` + receiptColumns + `
		FROM fee_receipts
		WHERE ledger_id = $1
		ORDER BY created_at, receipt_number
	`

	receipts := []*domain.FeeReceipt{}
	if err := sqlx.SelectContext(ctx, r.db, &receipts, query, ledgerID); err != nil {
		return nil, translateError(err)
	}
	return receipts, nil
}

func (r *receiptRepository) CountReversalsOf(ctx context.Context, originalID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM fee_receipts WHERE reversal_of = $1`, originalID)
	return n, translateError(err)
}

func (r *receiptRepository) MarkReversed(ctx context.Context, id, reversalID uuid.UUID, reason string, at time.Time) error {
	query := `
		UPDATE fee_receipts
		SET is_reversed = TRUE, reversed_by = $2, reversed_at = $3, reversal_reason = $4
		WHERE id = $1 AND receipt_type = 'PAYMENT' AND is_reversed = FALSE
	`

	res, err := r.db.ExecContext(ctx, query, id, reversalID, at, reason)
	if err != nil {
		return translateError(err)
	}
	if err := requireRow(res); err != nil {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrAlreadyReversed
	}
	return nil
}
