package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/repository"
)

type MockLedgerCache struct {
	mock.Mock
}

func (m *MockLedgerCache) Get(ctx context.Context, ledgerID uuid.UUID) (*domain.LedgerSummary, bool, error) {
	args := m.Called(ctx, ledgerID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.LedgerSummary), args.Bool(1), args.Error(2)
}

func (m *MockLedgerCache) Set(ctx context.Context, summary domain.LedgerSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockLedgerCache) Invalidate(ctx context.Context, ledgerIDs ...uuid.UUID) error {
	args := m.Called(ctx, ledgerIDs)
	return args.Error(0)
}

var errAuditDown = errors.New("audit storage unavailable")

// failingAuditStore behaves like the wrapped store except that every audit
// append fails, inside and outside transactions.
type failingAuditStore struct {
	repository.Store
}

func (f failingAuditStore) AuditLogs() repository.AuditLogRepository { return failingAuditRepo{} }

func (f failingAuditStore) WithTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	return f.Store.WithTx(ctx, func(tx repository.Repositories) error {
		return fn(failingAuditTx{tx})
	})
}

type failingAuditTx struct {
	repository.Repositories
}

func (failingAuditTx) AuditLogs() repository.AuditLogRepository { return failingAuditRepo{} }

type failingAuditRepo struct{}

func (failingAuditRepo) Append(context.Context, *domain.FeeAuditLog) error { return errAuditDown }

func (failingAuditRepo) Query(context.Context, domain.AuditFilter) ([]*domain.FeeAuditLog, error) {
	return nil, errAuditDown
}

func (failingAuditRepo) ActionSummary(context.Context, *time.Time, *time.Time) ([]domain.ActionCount, error) {
	return nil, errAuditDown
}

// flakyStore fails the first n transactions with a serialization error.
type flakyStore struct {
	repository.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("commit transaction: %w", repository.ErrSerialization)
	}
	return f.Store.WithTx(ctx, fn)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
