package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/fee-engine/internal/cache"
	"github.com/segyhp/fee-engine/internal/config"
	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/repository"
	customError "github.com/segyhp/fee-engine/pkg/errors"
	"github.com/segyhp/fee-engine/pkg/validation"
)

const defaultRetryBackoff = 25 * time.Millisecond

// AccountingService is the only writer of structures, ledgers and receipts.
// Every mutation runs in one storage transaction together with its audit entry.
type AccountingService struct {
	store          repository.Store
	cache          cache.LedgerCache
	audit          *AuditService
	validate       *validator.Validate
	logger         *zap.Logger
	loc            *time.Location
	currency       string
	defaultDueDays int
	maxRetries     int
	retryBackoff   time.Duration
	now            func() time.Time
}

type Option func(*AccountingService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *AccountingService) { s.now = now }
}

// WithRetryBackoff sets the base delay between transaction retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *AccountingService) { s.retryBackoff = d }
}

func NewAccountingService(
	store repository.Store,
	ledgerCache cache.LedgerCache,
	logger *zap.Logger,
	cfg *config.Config,
	opts ...Option,
) *AccountingService {
	if ledgerCache == nil {
		ledgerCache = cache.NewNoopLedgerCache()
	}
	s := &AccountingService{
		store:          store,
		cache:          ledgerCache,
		validate:       validation.New(),
		logger:         logger.Named("accounting"),
		loc:            cfg.Location(),
		currency:       cfg.Business.Currency,
		defaultDueDays: cfg.Business.DefaultDueDays,
		maxRetries:     cfg.Business.TxMaxRetries,
		retryBackoff:   defaultRetryBackoff,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = NewAuditService(store, logger, s.now)
	return s
}

// Audit exposes the audit log queries.
func (s *AccountingService) Audit() *AuditService {
	return s.audit
}

// Location is the business timezone used for calendar days.
func (s *AccountingService) Location() *time.Location {
	return s.loc
}

// Now is the service clock in the business timezone.
func (s *AccountingService) Now() time.Time {
	return s.clock()
}

func (s *AccountingService) clock() time.Time {
	return s.now().In(s.loc)
}

// runTx runs fn in a transaction, retrying on serialization failures and on
// receipt-number collisions. Business errors are returned unchanged; anything
// else becomes a transaction or database error.
func (s *AccountingService) runTx(ctx context.Context, op string, fn func(tx repository.Repositories) error) error {
	for attempt := 0; ; attempt++ {
		err := s.store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}

		if _, ok := customError.As(err); ok {
			return err
		}
		if !isRetryable(err) {
			s.logger.Error("transaction failed", zap.String("op", op), zap.Error(err))
			return customError.WrapDatabaseError(err)
		}
		if attempt >= s.maxRetries {
			s.logger.Error("transaction retries exhausted",
				zap.String("op", op), zap.Int("attempts", attempt+1), zap.Error(err))
			return customError.WrapTransactionFailed(err)
		}

		s.logger.Warn("retrying transaction",
			zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return customError.WrapTransactionFailed(ctx.Err())
		case <-time.After(s.retryBackoff * time.Duration(attempt+1)):
		}
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, repository.ErrSerialization) ||
		repository.IsDuplicate(err, repository.ConstraintReceiptNumber)
}

// appendAudit writes entry through the transaction so it commits or rolls back
// with the change it describes.
func appendAudit(ctx context.Context, tx repository.Repositories, entry domain.AuditEntry, now time.Time) error {
	log, err := domain.NewFeeAuditLog(entry, now)
	if err != nil {
		return err
	}
	return tx.AuditLogs().Append(ctx, log)
}

func (s *AccountingService) validateActor(actor domain.Actor) error {
	return validation.Struct(s.validate, actor)
}

// invalidate drops cached summaries after a commit. Failures only cost a stale
// read until the TTL expires.
func (s *AccountingService) invalidate(ctx context.Context, ledgerIDs ...uuid.UUID) {
	if err := s.cache.Invalidate(ctx, ledgerIDs...); err != nil {
		s.logger.Warn("ledger cache invalidation failed", zap.Error(customError.WrapCacheError(err)))
	}
}
