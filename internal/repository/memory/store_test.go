package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/repository"
)

var (
	loc = time.UTC
	now = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
)

func activeStructure(t *testing.T, store *Store) *domain.FeeStructure {
	t.Helper()
	s := &domain.FeeStructure{
		ID:           uuid.New(),
		Name:         "MBA Semester 2",
		AcademicYear: "2024-2025",
		Semester:     2,
		Department:   "MGMT",
		Course:       "MBA",
		Currency:     "INR",
		FeeHeads: domain.FeeHeads{
			{Code: "TUITION", Name: "Tuition", Amount: domain.NewMoney(30000)},
			{Code: "BUS", Name: "Transport", Amount: domain.NewMoney(5000), IsOptional: true},
		},
		Status:    domain.StructureStatusApproved,
		Version:   1,
		CreatedBy: "admin",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Code = domain.StructureCode(s.AcademicYear, s.Course, s.Department, s.Semester, s.Version)
	require.NoError(t, s.RecalculateTotals())
	require.NoError(t, store.Structures().Create(context.Background(), s))
	return s
}

func ledgerFor(t *testing.T, s *domain.FeeStructure, studentID string) *domain.StudentFeeLedger {
	t.Helper()
	l, err := domain.NewStudentFeeLedger(s, domain.LedgerParams{StudentID: studentID, DefaultDueDays: 15}, now, loc)
	require.NoError(t, err)
	return l
}

func TestStore_StructureConstraints(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := activeStructure(t, store)

	dup := *s
	dup.ID = uuid.New()
	err := store.Structures().Create(ctx, &dup)
	assert.True(t, repository.IsDuplicate(err, repository.ConstraintStructureCode))

	_, err = store.Structures().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.Lock("assigned", now))
	require.NoError(t, store.Structures().Update(ctx, s))

	s.FeeHeads[0].Amount = domain.NewMoney(1)
	require.NoError(t, s.RecalculateTotals())
	assert.ErrorIs(t, store.Structures().Update(ctx, s), errLockedStructure)

	got, err := store.Structures().GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewMoney(30000), got.ApprovedTotal)

	require.NoError(t, got.Archive(now))
	assert.NoError(t, store.Structures().Update(ctx, got))
}

func TestStore_ReturnedValuesAreCopies(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := activeStructure(t, store)

	got, err := store.Structures().GetByID(ctx, s.ID)
	require.NoError(t, err)
	got.FeeHeads[0].Name = "changed"

	again, err := store.Structures().GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tuition", again.FeeHeads[0].Name)
}

func TestStore_LedgerPeriodIsUnique(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := activeStructure(t, store)

	require.NoError(t, store.Ledgers().Create(ctx, ledgerFor(t, s, "STU-1")))
	err := store.Ledgers().Create(ctx, ledgerFor(t, s, "STU-1"))
	assert.True(t, repository.IsDuplicate(err, repository.ConstraintLedgerPeriod))

	require.NoError(t, store.Ledgers().Create(ctx, ledgerFor(t, s, "STU-2")))
	ids, err := store.Ledgers().ListOpenIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	list, err := store.Ledgers().List(ctx, domain.LedgerFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_UpdateBalancesKeepsSnapshot(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := activeStructure(t, store)
	l := ledgerFor(t, s, "STU-3")
	require.NoError(t, store.Ledgers().Create(ctx, l))

	l.ApplyPayment(domain.NewMoney(1000), now, now, loc)
	l.NetPayable = domain.NewMoney(1)
	l.OutstandingBalance = domain.NewMoney(29000)
	require.NoError(t, store.Ledgers().UpdateBalances(ctx, l))

	got, err := store.Ledgers().GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewMoney(30000), got.NetPayable)
	assert.Equal(t, domain.NewMoney(1000), got.TotalPaid)

	got.OutstandingBalance = 0
	assert.Error(t, store.Ledgers().UpdateBalances(ctx, got))
}

func TestStore_ReceiptReversalConstraints(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := activeStructure(t, store)
	l := ledgerFor(t, s, "STU-4")
	require.NoError(t, store.Ledgers().Create(ctx, l))
	actor := domain.Actor{ID: "cashier"}

	payment := domain.NewPaymentReceipt(l, "RCP-20240701-0001", domain.NewMoney(100), domain.PaymentModeCash, "", "", now, actor, now)
	require.NoError(t, store.Receipts().Create(ctx, payment))

	dup := domain.NewPaymentReceipt(l, "RCP-20240701-0001", domain.NewMoney(100), domain.PaymentModeCash, "", "", now, actor, now)
	assert.True(t, repository.IsDuplicate(store.Receipts().Create(ctx, dup), repository.ConstraintReceiptNumber))

	rev := domain.NewReversalReceipt(l, payment, "REV-20240701-R1", "error", actor, now)
	require.NoError(t, store.Receipts().Create(ctx, rev))
	require.NoError(t, store.Receipts().MarkReversed(ctx, payment.ID, rev.ID, "error", now))
	assert.ErrorIs(t, store.Receipts().MarkReversed(ctx, payment.ID, rev.ID, "error", now), repository.ErrAlreadyReversed)
	assert.ErrorIs(t, store.Receipts().MarkReversed(ctx, uuid.New(), rev.ID, "error", now), repository.ErrNotFound)

	again := domain.NewReversalReceipt(l, payment, "REV-20240701-R2", "error", actor, now)
	assert.True(t, repository.IsDuplicate(store.Receipts().Create(ctx, again), repository.ConstraintReversalOf))

	list, err := store.Receipts().ListByLedger(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, payment.ID, list[0].ID)
	assert.True(t, list[0].IsReversed)
	assert.Equal(t, rev.ID, list[1].ID)

	n, err := store.Receipts().CountReversalsOf(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := activeStructure(t, store)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx repository.Repositories) error {
		require.NoError(t, tx.Ledgers().Create(ctx, ledgerFor(t, s, "STU-5")))
		entry, err := domain.NewFeeAuditLog(domain.AuditEntry{Action: domain.AuditLedgerCreated, EntityType: domain.EntityLedger, EntityID: "x"}, now)
		require.NoError(t, err)
		require.NoError(t, tx.AuditLogs().Append(ctx, entry))
		_, err = tx.Sequences().Next(ctx, "20240701")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ledgers, err := store.Ledgers().List(ctx, domain.LedgerFilter{IncludeClosed: true})
	require.NoError(t, err)
	assert.Empty(t, ledgers)
	entries, err := store.AuditLogs().Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	next, err := store.Sequences().Next(ctx, "20240701")
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestStore_WithTxCommits(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := activeStructure(t, store)
	l := ledgerFor(t, s, "STU-6")

	err := store.WithTx(ctx, func(tx repository.Repositories) error {
		return tx.Ledgers().Create(ctx, l)
	})
	require.NoError(t, err)

	_, err = store.Ledgers().GetByID(ctx, l.ID)
	assert.NoError(t, err)
}

func TestStore_ConcurrentSequences(t *testing.T) {
	store := New()
	ctx := context.Background()

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithTx(ctx, func(tx repository.Repositories) error {
				n, err := tx.Sequences().Next(ctx, "20240701")
				if err != nil {
					return err
				}
				mu.Lock()
				seen[n] = true
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers)
	for n := int64(1); n <= workers; n++ {
		assert.True(t, seen[n], "missing sequence %d", n)
	}
}

func TestStore_AuditQueries(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i, a := range []domain.AuditAction{domain.AuditPaymentRecorded, domain.AuditPaymentRecorded, domain.AuditReceiptReversed} {
		entry, err := domain.NewFeeAuditLog(domain.AuditEntry{
			Action:     a,
			EntityType: domain.EntityReceipt,
			EntityID:   "R",
			Actor:      domain.Actor{ID: "cashier"},
		}, now.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		require.NoError(t, store.AuditLogs().Append(ctx, entry))
	}

	to := now.Add(2 * time.Hour)
	entries, err := store.AuditLogs().Query(ctx, domain.AuditFilter{ActorID: "cashier", To: &to})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))

	summary, err := store.AuditLogs().ActionSummary(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.ActionCount{
		{Action: domain.AuditPaymentRecorded, Count: 2},
		{Action: domain.AuditReceiptReversed, Count: 1},
	}, summary)
}
