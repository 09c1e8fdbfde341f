package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/repository"
	customError "github.com/segyhp/fee-engine/pkg/errors"
	"github.com/segyhp/fee-engine/pkg/validation"
)

// CreateStructure registers a new draft fee structure at version 1.
func (s *AccountingService) CreateStructure(ctx context.Context, req *domain.CreateStructureRequest, actor domain.Actor, rc domain.RequestContext) (*domain.FeeStructure, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	if err := s.validateActor(actor); err != nil {
		return nil, err
	}
	heads, err := domain.ToFeeHeads(req.FeeHeads)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}
	structure := &domain.FeeStructure{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		AcademicYear: strings.TrimSpace(req.AcademicYear),
		Semester:     req.Semester,
		Department:   strings.TrimSpace(req.Department),
		Course:       strings.TrimSpace(req.Course),
		Currency:     currency,
		FeeHeads:     heads,
		Status:       domain.StructureStatusDraft,
		Version:      1,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	structure.Code = domain.StructureCode(structure.AcademicYear, structure.Course, structure.Department, structure.Semester, structure.Version)
	if err := structure.RecalculateTotals(); err != nil {
		return nil, err
	}
	if err := structure.ValidateFeeHeads(); err != nil {
		return nil, err
	}

	err = s.runTx(ctx, "create_structure", func(tx repository.Repositories) error {
		if err := tx.Structures().Create(ctx, structure); err != nil {
			if repository.IsDuplicate(err, repository.ConstraintStructureCode) {
				return customError.WrapStructureVersionExists(structure.Code)
			}
			return err
		}
		return appendAudit(ctx, tx, domain.AuditEntry{
			Action:     domain.AuditStructureCreated,
			EntityType: domain.EntityFeeStructure,
			EntityID:   structure.ID.String(),
			Actor:      actor,
			Request:    rc,
			After:      structure,
			Metadata:   domain.Metadata{"code": structure.Code},
		}, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("fee structure created", zap.String("code", structure.Code), zap.String("actor", actor.ID))
	return structure, nil
}

// UpdateFeeHeads replaces the line items of a draft structure.
func (s *AccountingService) UpdateFeeHeads(ctx context.Context, id uuid.UUID, req *domain.UpdateFeeHeadsRequest, actor domain.Actor, rc domain.RequestContext) (*domain.FeeStructure, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	heads, err := domain.ToFeeHeads(req.FeeHeads)
	if err != nil {
		return nil, err
	}
	return s.transitionStructure(ctx, id, actor, rc, domain.AuditStructureHeadsUpdated, nil,
		func(st *domain.FeeStructure, now time.Time) error {
			return st.ReplaceFeeHeads(heads, now)
		})
}

// ApproveStructure moves a draft to approved.
func (s *AccountingService) ApproveStructure(ctx context.Context, id uuid.UUID, req *domain.ApproveStructureRequest, actor domain.Actor, rc domain.RequestContext) (*domain.FeeStructure, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	return s.transitionStructure(ctx, id, actor, rc, domain.AuditStructureApproved,
		domain.Metadata{"remarks": req.Remarks},
		func(st *domain.FeeStructure, now time.Time) error {
			return st.Approve(actor.ID, req.Remarks, now)
		})
}

// ActivateStructure makes an approved structure effective now.
func (s *AccountingService) ActivateStructure(ctx context.Context, id uuid.UUID, actor domain.Actor, rc domain.RequestContext) (*domain.FeeStructure, error) {
	return s.transitionStructure(ctx, id, actor, rc, domain.AuditStructureActivated, nil,
		func(st *domain.FeeStructure, now time.Time) error {
			return st.Activate(now)
		})
}

// ArchiveStructure retires a structure; locked structures may be archived.
func (s *AccountingService) ArchiveStructure(ctx context.Context, id uuid.UUID, actor domain.Actor, rc domain.RequestContext) (*domain.FeeStructure, error) {
	return s.transitionStructure(ctx, id, actor, rc, domain.AuditStructureArchived, nil,
		func(st *domain.FeeStructure, now time.Time) error {
			return st.Archive(now)
		})
}

// LockStructure freezes a structure explicitly.
func (s *AccountingService) LockStructure(ctx context.Context, id uuid.UUID, req *domain.LockStructureRequest, actor domain.Actor, rc domain.RequestContext) (*domain.FeeStructure, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	return s.transitionStructure(ctx, id, actor, rc, domain.AuditStructureLocked,
		domain.Metadata{"reason": req.Reason},
		func(st *domain.FeeStructure, now time.Time) error {
			return st.Lock(req.Reason, now)
		})
}

// transitionStructure loads the structure under a row lock, applies change and
// persists it with an audit entry carrying both snapshots.
func (s *AccountingService) transitionStructure(
	ctx context.Context,
	id uuid.UUID,
	actor domain.Actor,
	rc domain.RequestContext,
	action domain.AuditAction,
	metadata domain.Metadata,
	change func(st *domain.FeeStructure, now time.Time) error,
) (*domain.FeeStructure, error) {
	if err := s.validateActor(actor); err != nil {
		return nil, err
	}

	var result *domain.FeeStructure
	err := s.runTx(ctx, string(action), func(tx repository.Repositories) error {
		now := s.clock()
		structure, err := tx.Structures().GetByIDForUpdate(ctx, id)
		if err != nil {
			return structureLookupError(err, id)
		}
		before := *structure
		before.FeeHeads = append(domain.FeeHeads(nil), structure.FeeHeads...)

		if err := change(structure, now); err != nil {
			return err
		}
		if err := tx.Structures().Update(ctx, structure); err != nil {
			return err
		}

		result = structure
		return appendAudit(ctx, tx, domain.AuditEntry{
			Action:     action,
			EntityType: domain.EntityFeeStructure,
			EntityID:   structure.ID.String(),
			Actor:      actor,
			Request:    rc,
			Before:     &before,
			After:      structure,
			Metadata:   metadata,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("fee structure updated",
		zap.String("code", result.Code), zap.String("action", string(action)), zap.String("status", string(result.Status)))
	return result, nil
}

// CreateNewVersion copies a structure into a new draft one version higher.
// The source, locked or not, is left untouched.
func (s *AccountingService) CreateNewVersion(ctx context.Context, id uuid.UUID, actor domain.Actor, rc domain.RequestContext) (*domain.FeeStructure, error) {
	if err := s.validateActor(actor); err != nil {
		return nil, err
	}

	var next *domain.FeeStructure
	err := s.runTx(ctx, "create_structure_version", func(tx repository.Repositories) error {
		now := s.clock()
		parent, err := tx.Structures().GetByID(ctx, id)
		if err != nil {
			return structureLookupError(err, id)
		}

		next = parent.NewVersion(actor.ID, now)
		if err := tx.Structures().Create(ctx, next); err != nil {
			if repository.IsDuplicate(err, repository.ConstraintStructureCode) {
				return customError.WrapStructureVersionExists(next.Code)
			}
			return err
		}
		return appendAudit(ctx, tx, domain.AuditEntry{
			Action:     domain.AuditStructureVersioned,
			EntityType: domain.EntityFeeStructure,
			EntityID:   next.ID.String(),
			Actor:      actor,
			Request:    rc,
			After:      next,
			Metadata: domain.Metadata{
				"parent_structure_id": parent.ID.String(),
				"parent_code":         parent.Code,
				"version":             next.Version,
			},
		}, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("fee structure version created", zap.String("code", next.Code), zap.Int("version", next.Version))
	return next, nil
}

func (s *AccountingService) GetStructure(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error) {
	structure, err := s.store.Structures().GetByID(ctx, id)
	if err != nil {
		return nil, readError(structureLookupError(err, id))
	}
	return structure, nil
}

func (s *AccountingService) ListStructures(ctx context.Context, filter domain.StructureFilter) ([]*domain.FeeStructure, error) {
	structures, err := s.store.Structures().List(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return structures, nil
}

func structureLookupError(err error, id uuid.UUID) error {
	if errors.Is(err, repository.ErrNotFound) {
		return customError.WrapStructureNotFound(id.String())
	}
	return err
}
