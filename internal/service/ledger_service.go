package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/repository"
	customError "github.com/segyhp/fee-engine/pkg/errors"
	"github.com/segyhp/fee-engine/pkg/validation"
)

// CreateLedger assigns a structure to a student for the structure's academic
// period. The structure is locked in the same transaction on first assignment.
func (s *AccountingService) CreateLedger(ctx context.Context, req *domain.CreateLedgerRequest, actor domain.Actor, rc domain.RequestContext) (*domain.StudentFeeLedger, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	if err := s.validateActor(actor); err != nil {
		return nil, err
	}

	concession, err := domain.MoneyFromDecimal(req.ConcessionAmount)
	if err != nil {
		return nil, customError.WrapValidation("invalid concession amount",
			customError.FieldError{Field: "concession_amount", Message: err.Error()})
	}
	installments := make([]domain.Installment, 0, len(req.Installments))
	for i, in := range req.Installments {
		amount, err := domain.MoneyFromDecimal(in.Amount)
		if err != nil {
			return nil, customError.WrapValidation("invalid installment amount",
				customError.FieldError{Field: fmt.Sprintf("installments[%d].amount", i), Message: err.Error()})
		}
		installments = append(installments, domain.Installment{DueDate: in.DueDate, Amount: amount})
	}

	params := domain.LedgerParams{
		StudentID:         req.StudentID,
		StudentName:       req.StudentName,
		ConcessionAmount:  concession,
		ConcessionReason:  req.ConcessionReason,
		OptionalHeadCodes: req.OptionalHeadCodes,
		Installments:      installments,
		DueDate:           req.DueDate,
		DefaultDueDays:    s.defaultDueDays,
		CreatedBy:         actor.ID,
	}

	var ledger *domain.StudentFeeLedger
	err = s.runTx(ctx, "create_ledger", func(tx repository.Repositories) error {
		now := s.clock()
		structure, err := tx.Structures().GetByIDForUpdate(ctx, req.StructureID)
		if err != nil {
			return structureLookupError(err, req.StructureID)
		}

		ledger, err = domain.NewStudentFeeLedger(structure, params, now, s.loc)
		if err != nil {
			return err
		}
		if err := tx.Ledgers().Create(ctx, ledger); err != nil {
			if repository.IsDuplicate(err, repository.ConstraintLedgerPeriod) {
				return customError.WrapLedgerAlreadyExists(ledger.StudentID, ledger.AcademicYear, ledger.Semester)
			}
			return err
		}

		if !structure.IsLocked {
			before := *structure
			reason := fmt.Sprintf("assigned to student %s", ledger.StudentID)
			if err := structure.Lock(reason, now); err != nil {
				return err
			}
			if err := tx.Structures().Update(ctx, structure); err != nil {
				return err
			}
			if err := appendAudit(ctx, tx, domain.AuditEntry{
				Action:     domain.AuditStructureLocked,
				EntityType: domain.EntityFeeStructure,
				EntityID:   structure.ID.String(),
				Actor:      actor,
				Request:    rc,
				Before:     &before,
				After:      structure,
				Metadata:   domain.Metadata{"reason": reason, "ledger_id": ledger.ID.String()},
			}, now); err != nil {
				return err
			}
		}

		return appendAudit(ctx, tx, domain.AuditEntry{
			Action:     domain.AuditLedgerCreated,
			EntityType: domain.EntityLedger,
			EntityID:   ledger.ID.String(),
			Actor:      actor,
			Request:    rc,
			After:      ledger,
			Metadata: domain.Metadata{
				"structure_code": structure.Code,
				"net_payable":    ledger.NetPayable.String(),
			},
		}, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ledger created",
		zap.String("ledger_id", ledger.ID.String()),
		zap.String("student_id", ledger.StudentID),
		zap.String("net_payable", ledger.NetPayable.String()))
	return ledger, nil
}

// CloseLedger terminally closes a settled ledger.
func (s *AccountingService) CloseLedger(ctx context.Context, id uuid.UUID, req *domain.CloseLedgerRequest, actor domain.Actor, rc domain.RequestContext) (*domain.StudentFeeLedger, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	if err := s.validateActor(actor); err != nil {
		return nil, err
	}

	var ledger *domain.StudentFeeLedger
	err := s.runTx(ctx, "close_ledger", func(tx repository.Repositories) error {
		now := s.clock()
		var err error
		ledger, err = tx.Ledgers().GetByIDForUpdate(ctx, id)
		if err != nil {
			return ledgerLookupError(err, id)
		}
		before := *ledger

		if err := ledger.Close(actor.ID, req.Remarks, now, s.loc); err != nil {
			return err
		}
		if err := tx.Ledgers().UpdateBalances(ctx, ledger); err != nil {
			return err
		}
		return appendAudit(ctx, tx, domain.AuditEntry{
			Action:     domain.AuditLedgerClosed,
			EntityType: domain.EntityLedger,
			EntityID:   ledger.ID.String(),
			Actor:      actor,
			Request:    rc,
			Before:     &before,
			After:      ledger,
			Metadata:   domain.Metadata{"remarks": req.Remarks},
		}, now)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, ledger.ID)
	s.logger.Info("ledger closed", zap.String("ledger_id", ledger.ID.String()), zap.String("actor", actor.ID))
	return ledger, nil
}

// RefreshLedger recomputes status and aging of one ledger as of now.
func (s *AccountingService) RefreshLedger(ctx context.Context, id uuid.UUID) (*domain.StudentFeeLedger, error) {
	ledger, _, err := s.refreshLedger(ctx, id, s.clock())
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// UpdateOverdueStatus is the maintenance sweep: every open ledger gets its
// overdue flag, overdue days and aging bucket recomputed as of asOf. Each
// ledger is refreshed in its own transaction so one failure does not stop
// the sweep.
func (s *AccountingService) UpdateOverdueStatus(ctx context.Context, asOf time.Time) (*domain.SweepResult, error) {
	ids, err := s.store.Ledgers().ListOpenIDs(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	result := &domain.SweepResult{AsOf: asOf.In(s.loc)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, customError.WrapTransactionFailed(err)
		}
		result.Scanned++

		_, changed, err := s.refreshLedger(ctx, id, asOf)
		if err != nil {
			result.Failed++
			s.logger.Error("overdue refresh failed", zap.String("ledger_id", id.String()), zap.Error(err))
			continue
		}
		if changed {
			result.Updated++
		}
	}

	_ = s.audit.Log(ctx, domain.AuditEntry{
		Action:     domain.AuditOverdueSweep,
		EntityType: domain.EntitySystem,
		EntityID:   "overdue-sweep",
		Actor:      domain.SystemActor,
		After:      result,
	})

	s.logger.Info("overdue sweep completed",
		zap.Int("scanned", result.Scanned), zap.Int("updated", result.Updated), zap.Int("failed", result.Failed))
	return result, nil
}

// refreshLedger persists recomputed fields when they differ. An audit entry is
// written only when the status or aging bucket moved; the daily overdue day
// count alone is not an auditable event.
func (s *AccountingService) refreshLedger(ctx context.Context, id uuid.UUID, asOf time.Time) (*domain.StudentFeeLedger, bool, error) {
	var (
		ledger  *domain.StudentFeeLedger
		changed bool
	)
	err := s.runTx(ctx, "refresh_ledger", func(tx repository.Repositories) error {
		now := s.clock()
		var err error
		ledger, err = tx.Ledgers().GetByIDForUpdate(ctx, id)
		if err != nil {
			return ledgerLookupError(err, id)
		}
		before := *ledger

		ledger.Recompute(asOf, s.loc)
		changed = ledger.FeeStatus != before.FeeStatus ||
			ledger.IsOverdue != before.IsOverdue ||
			ledger.OverdueDays != before.OverdueDays ||
			ledger.AgingBucket != before.AgingBucket
		if !changed {
			return nil
		}

		ledger.UpdatedAt = now
		if err := tx.Ledgers().UpdateBalances(ctx, ledger); err != nil {
			return err
		}
		if ledger.FeeStatus == before.FeeStatus && ledger.AgingBucket == before.AgingBucket {
			return nil
		}
		return appendAudit(ctx, tx, domain.AuditEntry{
			Action:     domain.AuditLedgerAgingUpdated,
			EntityType: domain.EntityLedger,
			EntityID:   ledger.ID.String(),
			Actor:      domain.SystemActor,
			Before:     &before,
			After:      ledger,
			Metadata: domain.Metadata{
				"from_status": string(before.FeeStatus),
				"to_status":   string(ledger.FeeStatus),
				"from_bucket": string(before.AgingBucket),
				"to_bucket":   string(ledger.AgingBucket),
			},
		}, now)
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.invalidate(ctx, id)
	}
	return ledger, changed, nil
}

func (s *AccountingService) GetLedger(ctx context.Context, id uuid.UUID) (*domain.StudentFeeLedger, error) {
	ledger, err := s.store.Ledgers().GetByID(ctx, id)
	if err != nil {
		return nil, readError(ledgerLookupError(err, id))
	}
	return ledger, nil
}

func (s *AccountingService) ListLedgers(ctx context.Context, filter domain.LedgerFilter) ([]*domain.StudentFeeLedger, error) {
	ledgers, err := s.store.Ledgers().List(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return ledgers, nil
}

// GetStatement returns a ledger with its full receipt history.
func (s *AccountingService) GetStatement(ctx context.Context, id uuid.UUID) (*domain.LedgerStatement, error) {
	ledger, err := s.GetLedger(ctx, id)
	if err != nil {
		return nil, err
	}
	receipts, err := s.store.Receipts().ListByLedger(ctx, id)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	statement, err := domain.NewLedgerStatement(ledger, receipts)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !statement.Reconciled {
		s.logger.Error("ledger does not reconcile with its receipts",
			zap.String("ledger_id", id.String()),
			zap.String("total_paid", ledger.TotalPaid.String()),
			zap.String("journal_total", statement.JournalTotal.String()))
	}
	return statement, nil
}

// GetLedgerSummary serves the compact ledger view, from cache when possible.
// Stored status fields may lag until the next sweep, so the summary is
// recomputed as of today before it is returned or cached.
func (s *AccountingService) GetLedgerSummary(ctx context.Context, id uuid.UUID) (*domain.LedgerSummary, error) {
	cached, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn("ledger cache read failed", zap.String("ledger_id", id.String()), zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	ledger, err := s.GetLedger(ctx, id)
	if err != nil {
		return nil, err
	}
	ledger.Recompute(s.clock(), s.loc)
	summary := ledger.Summary()
	if err := s.cache.Set(ctx, summary); err != nil {
		s.logger.Warn("ledger cache write failed", zap.String("ledger_id", id.String()), zap.Error(err))
		return &summary, nil
	}

	// A commit between the read and Set may have invalidated before our
	// entry landed. Drop it if the stored ledger has moved on.
	current, err := s.store.Ledgers().GetByID(ctx, id)
	if err != nil || ledgerChanged(ledger, current) {
		s.invalidate(ctx, id)
	}
	return &summary, nil
}

func ledgerChanged(read, current *domain.StudentFeeLedger) bool {
	return !read.UpdatedAt.Equal(current.UpdatedAt) ||
		read.TotalPaid != current.TotalPaid ||
		read.IsClosed != current.IsClosed
}

func ledgerLookupError(err error, id uuid.UUID) error {
	if errors.Is(err, repository.ErrNotFound) {
		return customError.WrapLedgerNotFound(id.String())
	}
	return err
}

// readError wraps storage failures of non-transactional reads.
func readError(err error) error {
	if _, ok := customError.As(err); ok {
		return err
	}
	return customError.WrapDatabaseError(err)
}
