package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/repository"
	customError "github.com/segyhp/fee-engine/pkg/errors"
	"github.com/segyhp/fee-engine/pkg/validation"
)

// ProcessReceipt records a payment against a ledger. The receipt, the ledger
// update and the audit entry commit together or not at all.
func (s *AccountingService) ProcessReceipt(ctx context.Context, ledgerID uuid.UUID, req *domain.RecordPaymentRequest, actor domain.Actor, rc domain.RequestContext) (*domain.FeeReceipt, *domain.StudentFeeLedger, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, nil, err
	}
	if err := s.validateActor(actor); err != nil {
		return nil, nil, err
	}
	amount, err := domain.MoneyFromDecimal(req.Amount)
	if err != nil {
		return nil, nil, customError.WrapValidation("invalid payment amount",
			customError.FieldError{Field: "amount", Message: err.Error()})
	}

	var (
		receipt *domain.FeeReceipt
		ledger  *domain.StudentFeeLedger
	)
	err = s.runTx(ctx, "process_receipt", func(tx repository.Repositories) error {
		now := s.clock()
		var err error
		ledger, err = tx.Ledgers().GetByIDForUpdate(ctx, ledgerID)
		if err != nil {
			return ledgerLookupError(err, ledgerID)
		}
		// bring status current before judging the payment
		ledger.Recompute(now, s.loc)
		if err := ledger.CheckPayment(amount); err != nil {
			return err
		}

		seq, err := tx.Sequences().Next(ctx, domain.SequenceDay(now))
		if err != nil {
			return err
		}
		paymentDate := now
		if req.PaymentDate != nil {
			paymentDate = req.PaymentDate.In(s.loc)
		}

		before := *ledger
		receipt = domain.NewPaymentReceipt(ledger, domain.ReceiptNumber(now, seq), amount, req.PaymentMode,
			strings.TrimSpace(req.TransactionRef), req.Remarks, paymentDate, actor, now)
		ledger.ApplyPayment(amount, paymentDate, now, s.loc)
		if err := ledger.CheckInvariants(); err != nil {
			return err
		}

		if err := tx.Receipts().Create(ctx, receipt); err != nil {
			return err
		}
		if err := tx.Ledgers().UpdateBalances(ctx, ledger); err != nil {
			return err
		}
		return appendAudit(ctx, tx, domain.AuditEntry{
			Action:     domain.AuditPaymentRecorded,
			EntityType: domain.EntityReceipt,
			EntityID:   receipt.ID.String(),
			Actor:      actor,
			Request:    rc,
			Before:     before.Summary(),
			After:      receipt,
			Metadata: domain.Metadata{
				"ledger_id":      ledger.ID.String(),
				"receipt_number": receipt.ReceiptNumber,
				"amount":         amount.String(),
				"payment_mode":   string(req.PaymentMode),
				"fee_status":     string(ledger.FeeStatus),
			},
		}, now)
	})
	if err != nil {
		return nil, nil, err
	}

	s.invalidate(ctx, ledger.ID)
	s.logger.Info("payment recorded",
		zap.String("receipt_number", receipt.ReceiptNumber),
		zap.String("ledger_id", ledger.ID.String()),
		zap.String("amount", amount.String()),
		zap.String("fee_status", string(ledger.FeeStatus)))
	return receipt, ledger, nil
}

// ReverseReceipt cancels a payment by appending a REVERSAL receipt. The
// original is flagged, never edited beyond its reversal link.
func (s *AccountingService) ReverseReceipt(ctx context.Context, receiptID uuid.UUID, req *domain.ReverseReceiptRequest, actor domain.Actor, rc domain.RequestContext) (*domain.FeeReceipt, *domain.StudentFeeLedger, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, nil, err
	}
	if err := s.validateActor(actor); err != nil {
		return nil, nil, err
	}

	var (
		reversal *domain.FeeReceipt
		ledger   *domain.StudentFeeLedger
	)
	err := s.runTx(ctx, "reverse_receipt", func(tx repository.Repositories) error {
		now := s.clock()
		original, err := tx.Receipts().GetByIDForUpdate(ctx, receiptID)
		if err != nil {
			return receiptLookupError(err, receiptID.String())
		}
		if err := original.CheckReversible(); err != nil {
			return err
		}

		ledger, err = tx.Ledgers().GetByIDForUpdate(ctx, original.LedgerID)
		if err != nil {
			return ledgerLookupError(err, original.LedgerID)
		}
		if ledger.IsClosed {
			return customError.WrapLedgerClosed(ledger.ID.String())
		}
		ledger.Recompute(now, s.loc)

		prior, err := tx.Receipts().CountReversalsOf(ctx, original.ID)
		if err != nil {
			return err
		}

		before := *ledger
		reversal = domain.NewReversalReceipt(ledger, original, domain.ReversalNumber(now, prior+1), req.Reason, actor, now)
		ledger.ApplyReversal(original.Amount, now, s.loc)
		if err := ledger.CheckInvariants(); err != nil {
			return err
		}

		if err := tx.Receipts().Create(ctx, reversal); err != nil {
			if repository.IsDuplicate(err, repository.ConstraintReversalOf) {
				return customError.WrapReceiptAlreadyReversed(original.ReceiptNumber)
			}
			return err
		}
		if err := tx.Receipts().MarkReversed(ctx, original.ID, reversal.ID, req.Reason, now); err != nil {
			if errors.Is(err, repository.ErrAlreadyReversed) {
				return customError.WrapReceiptAlreadyReversed(original.ReceiptNumber)
			}
			return err
		}
		if err := tx.Ledgers().UpdateBalances(ctx, ledger); err != nil {
			return err
		}
		return appendAudit(ctx, tx, domain.AuditEntry{
			Action:     domain.AuditReceiptReversed,
			EntityType: domain.EntityReceipt,
			EntityID:   original.ID.String(),
			Actor:      actor,
			Request:    rc,
			Before:     original,
			After:      reversal,
			Metadata: domain.Metadata{
				"ledger_id":        ledger.ID.String(),
				"original_number":  original.ReceiptNumber,
				"reversal_number":  reversal.ReceiptNumber,
				"amount":           original.Amount.String(),
				"reason":           req.Reason,
				"total_paid_after": ledger.TotalPaid.String(),
				"balance_before":   before.OutstandingBalance.String(),
			},
		}, now)
	})
	if err != nil {
		return nil, nil, err
	}

	s.invalidate(ctx, ledger.ID)
	s.logger.Info("receipt reversed",
		zap.String("reversal_number", reversal.ReceiptNumber),
		zap.String("ledger_id", ledger.ID.String()),
		zap.String("amount", reversal.Amount.String()))
	return reversal, ledger, nil
}

func (s *AccountingService) GetReceipt(ctx context.Context, id uuid.UUID) (*domain.FeeReceipt, error) {
	receipt, err := s.store.Receipts().GetByID(ctx, id)
	if err != nil {
		return nil, readError(receiptLookupError(err, id.String()))
	}
	return receipt, nil
}

// GetReceiptByNumber finds a payment receipt by its RCP number.
func (s *AccountingService) GetReceiptByNumber(ctx context.Context, number string) (*domain.FeeReceipt, error) {
	receipt, err := s.store.Receipts().GetByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return nil, readError(receiptLookupError(err, number))
	}
	return receipt, nil
}

// ListReceipts returns a ledger's receipts in the order they were written.
func (s *AccountingService) ListReceipts(ctx context.Context, ledgerID uuid.UUID) ([]*domain.FeeReceipt, error) {
	if _, err := s.GetLedger(ctx, ledgerID); err != nil {
		return nil, err
	}
	receipts, err := s.store.Receipts().ListByLedger(ctx, ledgerID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return receipts, nil
}

func receiptLookupError(err error, ref string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return customError.WrapReceiptNotFound(ref)
	}
	return err
}
