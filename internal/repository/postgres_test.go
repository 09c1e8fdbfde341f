package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/repository"
)

var testDB *sqlx.DB

// TestMain connects to TEST_DATABASE_URL. Without it the Postgres tests are skipped.
func TestMain(m *testing.M) {
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		db, err := sqlx.Connect("postgres", url)
		if err != nil {
			panic(fmt.Sprintf("Failed to connect to test database: %v", err))
		}
		if err := repository.Migrate(context.Background(), db); err != nil {
			panic(fmt.Sprintf("Failed to initialize database schema: %v", err))
		}
		testDB = db
	}

	code := m.Run()
	if testDB != nil {
		testDB.Close()
	}
	os.Exit(code)
}

func setupStore(t *testing.T) repository.Store {
	t.Helper()
	if testDB == nil {
		t.Skip("TEST_DATABASE_URL not set")
	}
	// Receipts and audit entries refuse DELETE, so truncate bypasses the row triggers.
	_, err := testDB.Exec(`TRUNCATE fee_audit_logs, fee_receipts, student_fee_ledgers, fee_structures, receipt_sequences`)
	require.NoError(t, err)
	return repository.NewPostgresStore(testDB)
}

var (
	loc = time.UTC
	now = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
)

func newActiveStructure(t *testing.T, ctx context.Context, store repository.Store) *domain.FeeStructure {
	t.Helper()
	s := &domain.FeeStructure{
		ID:           uuid.New(),
		Name:         "B.Tech CSE Semester 1",
		AcademicYear: "2024-2025",
		Semester:     1,
		Department:   "CSE",
		Course:       "BTECH",
		Currency:     "INR",
		FeeHeads: domain.FeeHeads{
			{Code: "TUITION", Name: "Tuition", Amount: domain.NewMoney(40000)},
			{Code: "LAB", Name: "Lab", Amount: domain.NewMoney(10000)},
			{Code: "HOSTEL", Name: "Hostel", Amount: domain.NewMoney(20000), IsOptional: true},
		},
		Status:    domain.StructureStatusDraft,
		Version:   1,
		CreatedBy: "admin",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Code = domain.StructureCode(s.AcademicYear, s.Course, s.Department, s.Semester, s.Version)
	require.NoError(t, s.RecalculateTotals())
	require.NoError(t, store.Structures().Create(ctx, s))

	require.NoError(t, s.Approve("registrar", "ok", now))
	require.NoError(t, s.Activate(now))
	require.NoError(t, store.Structures().Update(ctx, s))
	return s
}

func newLedger(t *testing.T, ctx context.Context, store repository.Store, s *domain.FeeStructure, studentID string) *domain.StudentFeeLedger {
	t.Helper()
	l, err := domain.NewStudentFeeLedger(s, domain.LedgerParams{
		StudentID:      studentID,
		DefaultDueDays: 30,
		CreatedBy:      "admin",
	}, now, loc)
	require.NoError(t, err)
	require.NoError(t, store.Ledgers().Create(ctx, l))
	return l
}

func TestStructureRepository_RoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	s := newActiveStructure(t, ctx, store)

	got, err := store.Structures().GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Code, got.Code)
	assert.Equal(t, domain.StructureStatusActive, got.Status)
	assert.Equal(t, domain.NewMoney(50000), got.ApprovedTotal)
	assert.Len(t, got.FeeHeads, 3)
	require.NotNil(t, got.EffectiveFrom)

	list, err := store.Structures().List(ctx, domain.StructureFilter{Department: "cse", Status: domain.StructureStatusActive})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.Structures().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStructureRepository_DuplicateCode(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	s := newActiveStructure(t, ctx, store)
	dup := *s
	dup.ID = uuid.New()

	err := store.Structures().Create(ctx, &dup)
	assert.True(t, repository.IsDuplicate(err, repository.ConstraintStructureCode), "got %v", err)
}

func TestStructureRepository_LockedRowRejectsHeadChanges(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	s := newActiveStructure(t, ctx, store)
	require.NoError(t, s.Lock("assigned", now))
	require.NoError(t, store.Structures().Update(ctx, s))

	s.FeeHeads = s.FeeHeads[:1]
	require.NoError(t, s.RecalculateTotals())
	assert.Error(t, store.Structures().Update(ctx, s))
}

func TestLedgerRepository_UniquePeriod(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	s := newActiveStructure(t, ctx, store)
	newLedger(t, ctx, store, s, "STU-1")

	again, err := domain.NewStudentFeeLedger(s, domain.LedgerParams{StudentID: "STU-1", DefaultDueDays: 30}, now, loc)
	require.NoError(t, err)
	err = store.Ledgers().Create(ctx, again)
	assert.True(t, repository.IsDuplicate(err, repository.ConstraintLedgerPeriod), "got %v", err)
}

func TestLedgerRepository_UpdateBalancesAndList(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	s := newActiveStructure(t, ctx, store)
	l := newLedger(t, ctx, store, s, "STU-2")
	newLedger(t, ctx, store, s, "STU-3")

	l.ApplyPayment(domain.NewMoney(20000), now, now, loc)
	require.NoError(t, store.Ledgers().UpdateBalances(ctx, l))

	got, err := store.Ledgers().GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewMoney(20000), got.TotalPaid)
	assert.Equal(t, domain.NewMoney(30000), got.OutstandingBalance)
	assert.Equal(t, domain.FeeStatusPartiallyPaid, got.FeeStatus)

	partial, err := store.Ledgers().List(ctx, domain.LedgerFilter{FeeStatus: domain.FeeStatusPartiallyPaid})
	require.NoError(t, err)
	require.Len(t, partial, 1)
	assert.Equal(t, l.ID, partial[0].ID)

	ids, err := store.Ledgers().ListOpenIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestReceiptRepository_ReverseOnce(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	s := newActiveStructure(t, ctx, store)
	l := newLedger(t, ctx, store, s, "STU-4")
	actor := domain.Actor{ID: "cashier-1", Name: "Cashier"}

	payment := domain.NewPaymentReceipt(l, "RCP-20240701-0001", domain.NewMoney(1000), domain.PaymentModeCash, "", "", now, actor, now)
	require.NoError(t, store.Receipts().Create(ctx, payment))

	reversal := domain.NewReversalReceipt(l, payment, "REV-20240701-R1", "bounced", actor, now)
	require.NoError(t, store.Receipts().Create(ctx, reversal))
	require.NoError(t, store.Receipts().MarkReversed(ctx, payment.ID, reversal.ID, "bounced", now))

	err := store.Receipts().MarkReversed(ctx, payment.ID, reversal.ID, "again", now)
	assert.ErrorIs(t, err, repository.ErrAlreadyReversed)

	second := domain.NewReversalReceipt(l, payment, "REV-20240701-R2", "again", actor, now)
	err = store.Receipts().Create(ctx, second)
	assert.True(t, repository.IsDuplicate(err, repository.ConstraintReversalOf), "got %v", err)

	n, err := store.Receipts().CountReversalsOf(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	byNumber, err := store.Receipts().GetByNumber(ctx, "RCP-20240701-0001")
	require.NoError(t, err)
	assert.True(t, byNumber.IsReversed)

	receipts, err := store.Receipts().ListByLedger(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, receipts, 2)
}

func TestReceiptRepository_ImmutableColumns(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	s := newActiveStructure(t, ctx, store)
	l := newLedger(t, ctx, store, s, "STU-5")
	payment := domain.NewPaymentReceipt(l, "RCP-20240701-0002", domain.NewMoney(500), domain.PaymentModeUPI, "UPI-1", "", now, domain.Actor{ID: "c"}, now)
	require.NoError(t, store.Receipts().Create(ctx, payment))

	_, err := testDB.Exec(`UPDATE fee_receipts SET amount = 1 WHERE id = $1`, payment.ID)
	assert.Error(t, err)
	_, err = testDB.Exec(`DELETE FROM fee_receipts WHERE id = $1`, payment.ID)
	assert.Error(t, err)

	dup := domain.NewPaymentReceipt(l, "RCP-20240701-0002", domain.NewMoney(500), domain.PaymentModeUPI, "", "", now, domain.Actor{ID: "c"}, now)
	err = store.Receipts().Create(ctx, dup)
	assert.True(t, repository.IsDuplicate(err, repository.ConstraintReceiptNumber), "got %v", err)
}

func TestAuditLogRepository_WriteOnce(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i, action := range []domain.AuditAction{domain.AuditStructureCreated, domain.AuditStructureApproved, domain.AuditStructureApproved} {
		entry, err := domain.NewFeeAuditLog(domain.AuditEntry{
			Action:     action,
			EntityType: domain.EntityFeeStructure,
			EntityID:   "S-1",
			Actor:      domain.Actor{ID: "admin"},
			After:      map[string]int{"step": i},
		}, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, store.AuditLogs().Append(ctx, entry))
	}

	entries, err := store.AuditLogs().Query(ctx, domain.AuditFilter{EntityType: domain.EntityFeeStructure, EntityID: "S-1"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.AuditStructureApproved, entries[0].Action)
	assert.JSONEq(t, `{"step":2}`, string(entries[0].After))

	summary, err := store.AuditLogs().ActionSummary(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, domain.ActionCount{Action: domain.AuditStructureApproved, Count: 2}, summary[0])

	_, err = testDB.Exec(`UPDATE fee_audit_logs SET actor_id = 'x'`)
	assert.Error(t, err)
	_, err = testDB.Exec(`DELETE FROM fee_audit_logs`)
	assert.Error(t, err)
}

func TestSequenceRepository_Next(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Sequences().Next(ctx, "20240701")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := store.Sequences().Next(ctx, "20240702")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestPostgresStore_WithTxRollsBack(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var id uuid.UUID
	err := store.WithTx(ctx, func(tx repository.Repositories) error {
		s := newActiveStructure(t, ctx, store)
		id = s.ID
		entry, err := domain.NewFeeAuditLog(domain.AuditEntry{Action: domain.AuditStructureLocked, EntityType: domain.EntityFeeStructure, EntityID: s.ID.String()}, now)
		require.NoError(t, err)
		require.NoError(t, tx.AuditLogs().Append(ctx, entry))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := store.AuditLogs().Query(ctx, domain.AuditFilter{EntityID: id.String()})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
