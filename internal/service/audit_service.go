package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/repository"
	customError "github.com/segyhp/fee-engine/pkg/errors"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// AuditService reads the audit trail and appends entries that are not part of
// a financial transaction. There is no update or delete.
type AuditService struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditService(store repository.Store, logger *zap.Logger, now func() time.Time) *AuditService {
	if now == nil {
		now = time.Now
	}
	return &AuditService{store: store, logger: logger.Named("audit"), now: now}
}

// Log appends entry outside any transaction. It never fails from the caller's
// point of view: errors are logged and swallowed so that auditing cannot abort
// the work being described.
func (a *AuditService) Log(ctx context.Context, entry domain.AuditEntry) error {
	log, err := domain.NewFeeAuditLog(entry, a.now())
	if err == nil {
		err = a.store.AuditLogs().Append(ctx, log)
	}
	if err != nil {
		a.logger.Error("audit log write failed",
			zap.String("action", string(entry.Action)),
			zap.String("entity_type", string(entry.EntityType)),
			zap.String("entity_id", entry.EntityID),
			zap.String("actor_id", entry.Actor.ID),
			zap.Error(err))
	}
	return nil
}

// Query returns entries matching filter, newest first.
func (a *AuditService) Query(ctx context.Context, filter domain.AuditFilter) ([]*domain.FeeAuditLog, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultAuditPageSize
	case filter.Limit > maxAuditPageSize:
		filter.Limit = maxAuditPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, customError.WrapValidation("invalid date range",
			customError.FieldError{Field: "to", Message: "must not be before from"})
	}

	entries, err := a.store.AuditLogs().Query(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return entries, nil
}

func (a *AuditService) QueryByEntity(ctx context.Context, entityType domain.EntityType, entityID string, limit, offset int) ([]*domain.FeeAuditLog, error) {
	if entityID == "" {
		return nil, customError.WrapValidation("entity id is required",
			customError.FieldError{Field: "entity_id", Message: "is required"})
	}
	return a.Query(ctx, domain.AuditFilter{EntityType: entityType, EntityID: entityID, Limit: limit, Offset: offset})
}

func (a *AuditService) QueryByActor(ctx context.Context, actorID string, limit, offset int) ([]*domain.FeeAuditLog, error) {
	if actorID == "" {
		return nil, customError.WrapValidation("actor id is required",
			customError.FieldError{Field: "actor_id", Message: "is required"})
	}
	return a.Query(ctx, domain.AuditFilter{ActorID: actorID, Limit: limit, Offset: offset})
}

// QueryByDateRange returns entries created in [from, to).
func (a *AuditService) QueryByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*domain.FeeAuditLog, error) {
	return a.Query(ctx, domain.AuditFilter{From: &from, To: &to, Limit: limit, Offset: offset})
}

// ActionSummary counts entries per action; nil bounds are open.
func (a *AuditService) ActionSummary(ctx context.Context, from, to *time.Time) ([]domain.ActionCount, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, customError.WrapValidation("invalid date range",
			customError.FieldError{Field: "to", Message: "must not be before from"})
	}
	counts, err := a.store.AuditLogs().ActionSummary(ctx, from, to)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return counts, nil
}
