package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customError "github.com/segyhp/fee-engine/pkg/errors"
)

var testNow = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

func approvedStructure(t *testing.T) *FeeStructure {
	t.Helper()
	s := &FeeStructure{
		ID:           uuid.New(),
		Name:         "B.Tech CSE Semester 1",
		AcademicYear: "2026-2027",
		Semester:     1,
		Department:   "CSE",
		Course:       "B.Tech",
		Currency:     "INR",
		FeeHeads: FeeHeads{
			{Code: "TUITION", Name: "Tuition", Amount: NewMoney(40000)},
			{Code: "LAB", Name: "Laboratory", Amount: NewMoney(10000)},
			{Code: "HOSTEL", Name: "Hostel", Amount: NewMoney(25000), IsOptional: true},
		},
		Status:  StructureStatusDraft,
		Version: 1,
	}
	s.Code = StructureCode(s.AcademicYear, s.Course, s.Department, s.Semester, s.Version)
	require.NoError(t, s.RecalculateTotals())
	require.NoError(t, s.ValidateFeeHeads())
	require.NoError(t, s.Approve("admin", "ok", testNow))
	return s
}

func TestMoneyFromDecimal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Money
		wantErr  bool
	}{
		{name: "whole amount", input: "50000", expected: 5000000},
		{name: "two decimals", input: "199.99", expected: 19999},
		{name: "one decimal", input: "0.5", expected: 50},
		{name: "three decimals rejected", input: "10.005", wantErr: true},
		{name: "largest accepted amount", input: "100000000000.00", expected: MaxMoney},
		{name: "just above the cap", input: "100000000000.01", wantErr: true},
		{name: "negative above the cap", input: "-100000000000.01", wantErr: true},
		{name: "int64 boundary", input: "92233720368547758.08", wantErr: true},
		{name: "wraps to a small amount in int64", input: "184467440737095616.16", wantErr: true},
		{name: "wraps to zero in int64", input: "184467440737095516.16", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := MoneyFromDecimal(decimal.RequireFromString(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m)
		})
	}

	_, err := MoneyFromDecimal(decimal.RequireFromString("184467440737095616.16"))
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	assert.Equal(t, "500.25", Money(50025).String())
	assert.True(t, Money(50025).Decimal().Equal(decimal.RequireFromString("500.25")))
}

func TestSumMoney(t *testing.T) {
	total, err := SumMoney(NewMoney(100), NewMoney(50), -NewMoney(25))
	require.NoError(t, err)
	assert.Equal(t, NewMoney(125), total)

	total, err = SumMoney()
	require.NoError(t, err)
	assert.Equal(t, Money(0), total)

	_, err = SumMoney(MaxMoney, 1)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = SumMoney(MaxMoney + 1)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = SumMoney(Money(1<<62), Money(1<<62))
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(FeeHead{Code: "LAB", Name: "Lab", Amount: NewMoney(1500) + 25})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"LAB","name":"Lab","amount":"1500.25","is_optional":false}`, string(b))

	var head FeeHead
	require.NoError(t, json.Unmarshal(b, &head))
	assert.Equal(t, Money(150025), head.Amount)

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`99.5`), &m))
	assert.Equal(t, Money(9950), m)
	assert.Error(t, json.Unmarshal([]byte(`"1.005"`), &m))
}

func TestNumbering(t *testing.T) {
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "RCP-20261018-0001", ReceiptNumber(day, 1))
	assert.Equal(t, "RCP-20261018-0123", ReceiptNumber(day, 123))
	assert.Equal(t, "RCP-20261018-12345", ReceiptNumber(day, 12345))
	assert.Equal(t, "REV-20261018-R1", ReversalNumber(day, 1))
	assert.Equal(t, "20261018", SequenceDay(day))

	assert.Equal(t, "FS-2026-BTECH-CSE-S1", StructureCode("2026-2027", "B.Tech", "cse", 1, 1))
	assert.Equal(t, "FS-2026-BTECH-CSE-S1-V3", StructureCode("2026-2027", "B.Tech", "cse", 1, 3))
	assert.Equal(t, "FS-2026-MBA-MGMT-S2", StructureCode("2026", "MBA", "Mgmt", 2, 1))
}

func TestComputeFeeStatus(t *testing.T) {
	future := testNow.AddDate(0, 0, 10)
	past := testNow.AddDate(0, 0, -1)

	tests := []struct {
		name     string
		paid     Money
		net      Money
		due      time.Time
		expected FeeStatus
	}{
		{"nothing paid, not due", 0, NewMoney(50000), future, FeeStatusUnpaid},
		{"partial, not due", NewMoney(20000), NewMoney(50000), future, FeeStatusPartiallyPaid},
		{"partial, past due", NewMoney(20000), NewMoney(50000), past, FeeStatusOverdue},
		{"nothing paid, past due", 0, NewMoney(50000), past, FeeStatusOverdue},
		{"fully paid, past due", NewMoney(50000), NewMoney(50000), past, FeeStatusPaid},
		{"zero net payable", 0, 0, past, FeeStatusPaid},
		{"due today is not overdue", 0, NewMoney(1), testNow, FeeStatusUnpaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeFeeStatus(tt.paid, tt.net, tt.due, testNow, time.UTC))
		})
	}
}

func TestComputeAging(t *testing.T) {
	tests := []struct {
		name       string
		daysPast   int
		status     FeeStatus
		closed     bool
		bucket     AgingBucket
		overdue    bool
		overdueDay int
	}{
		{"future due date", -5, FeeStatusUnpaid, false, AgingCurrent, false, 0},
		{"due today", 0, FeeStatusUnpaid, false, AgingCurrent, false, 0},
		{"one day", 1, FeeStatusOverdue, false, Aging1To30, true, 1},
		{"thirty days", 30, FeeStatusOverdue, false, Aging1To30, true, 30},
		{"thirty one days", 31, FeeStatusOverdue, false, Aging31To60, true, 31},
		{"forty five days", 45, FeeStatusOverdue, false, Aging31To60, true, 45},
		{"sixty days", 60, FeeStatusOverdue, false, Aging31To60, true, 60},
		{"sixty one days", 61, FeeStatusOverdue, false, AgingOver60, true, 61},
		{"paid is always current", 90, FeeStatusPaid, false, AgingCurrent, false, 0},
		{"closed is always current", 90, FeeStatusOverdue, true, AgingCurrent, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			due := testNow.AddDate(0, 0, -tt.daysPast)
			aging := ComputeAging(tt.status, tt.closed, due, testNow, time.UTC)
			assert.Equal(t, tt.bucket, aging.Bucket)
			assert.Equal(t, tt.overdue, aging.IsOverdue)
			assert.Equal(t, tt.overdueDay, aging.OverdueDays)
		})
	}
}

func TestFeeStructureLifecycle(t *testing.T) {
	s := approvedStructure(t)
	assert.Equal(t, NewMoney(50000), s.TotalMandatory)
	assert.Equal(t, NewMoney(25000), s.TotalOptional)
	assert.Equal(t, NewMoney(50000), s.ApprovedTotal)

	// approve twice
	err := s.Approve("admin", "again", testNow)
	assert.ErrorIs(t, err, customError.ErrInvalidTransition)

	require.NoError(t, s.Activate(testNow))
	assert.Equal(t, StructureStatusActive, s.Status)
	require.NotNil(t, s.EffectiveFrom)

	require.NoError(t, s.Lock("first student assigned", testNow))
	assert.True(t, s.IsLocked)

	err = s.ReplaceFeeHeads([]FeeHead{{Code: "X", Name: "X", Amount: 1}}, testNow)
	assert.ErrorIs(t, err, customError.ErrStructureLocked)
	assert.Equal(t, customError.KindState, customError.KindOf(err))
	assert.Len(t, s.FeeHeads, 3)

	err = s.Lock("again", testNow)
	assert.ErrorIs(t, err, customError.ErrStructureLocked)

	require.NoError(t, s.Archive(testNow))
	assert.Equal(t, StructureStatusArchived, s.Status)
	assert.False(t, s.IsAssignable())
}

func TestFeeStructure_NewVersionOfLocked(t *testing.T) {
	s := approvedStructure(t)
	require.NoError(t, s.Lock("assigned", testNow))

	next := s.NewVersion("admin", testNow)

	assert.Equal(t, StructureStatusDraft, next.Status)
	assert.Equal(t, s.Version+1, next.Version)
	require.NotNil(t, next.ParentStructureID)
	assert.Equal(t, s.ID, *next.ParentStructureID)
	assert.Equal(t, s.FeeHeads, next.FeeHeads)
	assert.Equal(t, s.ApprovedTotal, next.ApprovedTotal)
	assert.False(t, next.IsLocked)
	assert.Equal(t, "FS-2026-BTECH-CSE-S1-V2", next.Code)

	// parent untouched, copy is independent
	next.FeeHeads[0].Amount = 1
	assert.Equal(t, NewMoney(40000), s.FeeHeads[0].Amount)
	assert.Equal(t, StructureStatusApproved, s.Status)
}

func TestFeeStructure_ReplaceFeeHeadsRecalculates(t *testing.T) {
	s := &FeeStructure{Code: "FS-X", Status: StructureStatusDraft}

	err := s.ReplaceFeeHeads([]FeeHead{
		{Code: "A", Name: "A", Amount: NewMoney(100)},
		{Code: "B", Name: "B", Amount: NewMoney(50), IsOptional: true},
	}, testNow)
	require.NoError(t, err)
	assert.Equal(t, NewMoney(100), s.TotalMandatory)
	assert.Equal(t, NewMoney(50), s.TotalOptional)

	err = s.ReplaceFeeHeads([]FeeHead{
		{Code: "A", Name: "A", Amount: NewMoney(100)},
		{Code: "a", Name: "dup", Amount: NewMoney(1)},
	}, testNow)
	be, ok := customError.As(err)
	require.True(t, ok)
	assert.Equal(t, customError.KindValidation, be.Kind)
	assert.NotEmpty(t, be.Fields)

	err = s.ReplaceFeeHeads([]FeeHead{{Code: "OPT", Name: "Only optional", Amount: 10, IsOptional: true}}, testNow)
	assert.ErrorIs(t, err, customError.ErrValidation)

	err = s.ReplaceFeeHeads([]FeeHead{
		{Code: "A", Name: "A", Amount: MaxMoney},
		{Code: "B", Name: "B", Amount: MaxMoney, IsOptional: true},
	}, testNow)
	be, ok = customError.As(err)
	require.True(t, ok)
	assert.Equal(t, customError.KindValidation, be.Kind)
	assert.Equal(t, "fee_heads", be.Fields[0].Field)
}

func TestNewStudentFeeLedger(t *testing.T) {
	s := approvedStructure(t)

	t.Run("future due date is unpaid and current", func(t *testing.T) {
		ledger, err := NewStudentFeeLedger(s, LedgerParams{StudentID: "STU-1", DefaultDueDays: 30}, testNow, time.UTC)
		require.NoError(t, err)

		assert.Equal(t, NewMoney(50000), ledger.NetPayable)
		assert.Equal(t, NewMoney(50000), ledger.OutstandingBalance)
		assert.Equal(t, FeeStatusUnpaid, ledger.FeeStatus)
		assert.Equal(t, AgingCurrent, ledger.AgingBucket)
		assert.Equal(t, time.Date(2026, 11, 17, 0, 0, 0, 0, time.UTC), ledger.DueDate)
		assert.Len(t, ledger.FeeHeads, 2)
		assert.NoError(t, ledger.CheckInvariants())
	})

	t.Run("concession and optional heads", func(t *testing.T) {
		ledger, err := NewStudentFeeLedger(s, LedgerParams{
			StudentID:         "STU-2",
			ConcessionAmount:  NewMoney(5000),
			OptionalHeadCodes: []string{"hostel"},
			DefaultDueDays:    30,
		}, testNow, time.UTC)
		require.NoError(t, err)

		assert.Equal(t, NewMoney(75000), ledger.GrossAmount)
		assert.Equal(t, NewMoney(70000), ledger.NetPayable)
		assert.Len(t, ledger.FeeHeads, 3)
	})

	t.Run("concession above gross rejected", func(t *testing.T) {
		_, err := NewStudentFeeLedger(s, LedgerParams{StudentID: "STU-3", ConcessionAmount: NewMoney(50001)}, testNow, time.UTC)
		assert.ErrorIs(t, err, customError.ErrValidation)
	})

	t.Run("mandatory head is not optional", func(t *testing.T) {
		_, err := NewStudentFeeLedger(s, LedgerParams{StudentID: "STU-4", OptionalHeadCodes: []string{"TUITION"}}, testNow, time.UTC)
		assert.ErrorIs(t, err, customError.ErrValidation)
	})

	t.Run("installments set the due date", func(t *testing.T) {
		first := testNow.AddDate(0, 1, 0)
		second := testNow.AddDate(0, 3, 0)
		ledger, err := NewStudentFeeLedger(s, LedgerParams{
			StudentID: "STU-5",
			Installments: []Installment{
				{DueDate: second, Amount: NewMoney(20000)},
				{DueDate: first, Amount: NewMoney(30000)},
			},
		}, testNow, time.UTC)
		require.NoError(t, err)
		require.Len(t, ledger.Installments, 2)
		assert.Equal(t, 1, ledger.Installments[0].Number)
		assert.Equal(t, time.Date(2026, 11, 18, 0, 0, 0, 0, time.UTC), ledger.DueDate)
	})

	t.Run("installments must sum to net payable", func(t *testing.T) {
		_, err := NewStudentFeeLedger(s, LedgerParams{
			StudentID:    "STU-6",
			Installments: []Installment{{DueDate: testNow, Amount: NewMoney(100)}},
		}, testNow, time.UTC)
		assert.ErrorIs(t, err, customError.ErrValidation)
	})

	t.Run("gross above the cap rejected", func(t *testing.T) {
		big := approvedStructure(t)
		big.ApprovedTotal = MaxMoney
		_, err := NewStudentFeeLedger(big, LedgerParams{StudentID: "STU-8", OptionalHeadCodes: []string{"HOSTEL"}}, testNow, time.UTC)
		assert.ErrorIs(t, err, customError.ErrValidation)
	})

	t.Run("installments above the cap rejected", func(t *testing.T) {
		_, err := NewStudentFeeLedger(s, LedgerParams{
			StudentID: "STU-9",
			Installments: []Installment{
				{DueDate: testNow, Amount: MaxMoney},
				{DueDate: testNow, Amount: MaxMoney},
			},
		}, testNow, time.UTC)
		assert.ErrorIs(t, err, customError.ErrValidation)
	})

	t.Run("draft structure not assignable", func(t *testing.T) {
		draft := &FeeStructure{Code: "FS-D", Status: StructureStatusDraft}
		_, err := NewStudentFeeLedger(draft, LedgerParams{StudentID: "STU-7"}, testNow, time.UTC)
		assert.ErrorIs(t, err, customError.ErrStructureNotAssignable)
	})
}

func TestLedger_OverdueClassification(t *testing.T) {
	s := approvedStructure(t)
	due := testNow.AddDate(0, 0, -45)
	ledger, err := NewStudentFeeLedger(s, LedgerParams{StudentID: "STU-LATE", DueDate: &due}, testNow, time.UTC)
	require.NoError(t, err)

	assert.True(t, ledger.IsOverdue)
	assert.Equal(t, 45, ledger.OverdueDays)
	assert.Equal(t, Aging31To60, ledger.AgingBucket)
	assert.Equal(t, FeeStatusOverdue, ledger.FeeStatus)
}

func TestLedger_PaymentReversalRoundTrip(t *testing.T) {
	s := approvedStructure(t)
	ledger, err := NewStudentFeeLedger(s, LedgerParams{StudentID: "STU-RT", DefaultDueDays: 30}, testNow, time.UTC)
	require.NoError(t, err)

	beforePaid, beforeOutstanding := ledger.TotalPaid, ledger.OutstandingBalance
	amount := NewMoney(20000)
	require.NoError(t, ledger.CheckPayment(amount))

	receipt := NewPaymentReceipt(ledger, "RCP-20261018-0001", amount, PaymentModeCash, "", "", testNow, Actor{ID: "a"}, testNow)
	ledger.ApplyPayment(amount, testNow, testNow, time.UTC)
	assert.Equal(t, beforeOutstanding, receipt.PreviousBalance)
	assert.Equal(t, ledger.OutstandingBalance, receipt.NewBalance)
	assert.Equal(t, ledger.TotalPaid, receipt.TotalPaidAfter)
	assert.Equal(t, FeeStatusPartiallyPaid, ledger.FeeStatus)
	require.NoError(t, ledger.CheckInvariants())

	reversal := NewReversalReceipt(ledger, receipt, "REV-20261018-R1", "bounced", Actor{ID: "a"}, testNow)
	ledger.ApplyReversal(receipt.Amount, testNow, time.UTC)
	assert.Equal(t, -amount, reversal.EffectiveAmount())
	assert.Equal(t, ledger.OutstandingBalance, reversal.NewBalance)
	assert.Equal(t, beforePaid, ledger.TotalPaid)
	assert.Equal(t, beforeOutstanding, ledger.OutstandingBalance)
	assert.Equal(t, FeeStatusUnpaid, ledger.FeeStatus)
	require.NoError(t, ledger.CheckInvariants())

	assert.ErrorIs(t, reversal.CheckReversible(), customError.ErrReversalOfReversal)
}

func TestNewLedgerStatement(t *testing.T) {
	s := approvedStructure(t)
	ledger, err := NewStudentFeeLedger(s, LedgerParams{StudentID: "STU-ST", DefaultDueDays: 30}, testNow, time.UTC)
	require.NoError(t, err)

	first := NewPaymentReceipt(ledger, "RCP-20261018-0001", NewMoney(20000), PaymentModeCash, "", "", testNow, Actor{ID: "a"}, testNow)
	ledger.ApplyPayment(first.Amount, testNow, testNow, time.UTC)
	second := NewPaymentReceipt(ledger, "RCP-20261018-0002", NewMoney(5000), PaymentModeUPI, "UPI-1", "", testNow, Actor{ID: "a"}, testNow)
	ledger.ApplyPayment(second.Amount, testNow, testNow, time.UTC)
	reversal := NewReversalReceipt(ledger, first, "REV-20261018-R1", "bounced", Actor{ID: "a"}, testNow)
	ledger.ApplyReversal(first.Amount, testNow, time.UTC)

	statement, err := NewLedgerStatement(ledger, []*FeeReceipt{first, second, reversal})
	require.NoError(t, err)
	assert.Equal(t, NewMoney(5000), statement.JournalTotal)
	assert.True(t, statement.Reconciled)

	statement, err = NewLedgerStatement(ledger, []*FeeReceipt{first, second})
	require.NoError(t, err)
	assert.Equal(t, NewMoney(25000), statement.JournalTotal)
	assert.False(t, statement.Reconciled)
}

func TestLedger_CheckPayment(t *testing.T) {
	s := approvedStructure(t)
	ledger, err := NewStudentFeeLedger(s, LedgerParams{StudentID: "STU-CP", DefaultDueDays: 30}, testNow, time.UTC)
	require.NoError(t, err)

	assert.ErrorIs(t, ledger.CheckPayment(0), customError.ErrInvalidAmount)
	assert.ErrorIs(t, ledger.CheckPayment(-1), customError.ErrInvalidAmount)
	assert.ErrorIs(t, ledger.CheckPayment(NewMoney(50001)), customError.ErrAmountExceedsBalance)

	ledger.ApplyPayment(NewMoney(50000), testNow, testNow, time.UTC)
	assert.ErrorIs(t, ledger.CheckPayment(1), customError.ErrLedgerFullyPaid)

	require.NoError(t, ledger.Close("bursar", "settled", testNow, time.UTC))
	assert.ErrorIs(t, ledger.CheckPayment(1), customError.ErrLedgerClosed)
	assert.ErrorIs(t, ledger.Close("bursar", "again", testNow, time.UTC), customError.ErrLedgerClosed)
	assert.NoError(t, ledger.CheckInvariants())
}

func TestLedger_CloseRequiresZeroBalance(t *testing.T) {
	s := approvedStructure(t)
	ledger, err := NewStudentFeeLedger(s, LedgerParams{StudentID: "STU-CL", DefaultDueDays: 30}, testNow, time.UTC)
	require.NoError(t, err)

	err = ledger.Close("bursar", "", testNow, time.UTC)
	assert.ErrorIs(t, err, customError.ErrOutstandingNotZero)
	assert.False(t, ledger.IsClosed)
}

func TestNewFeeAuditLog(t *testing.T) {
	entry := AuditEntry{
		Action:     AuditPaymentRecorded,
		EntityType: EntityReceipt,
		EntityID:   "r-1",
		Actor:      Actor{ID: "u-1", Name: "Bursar", Role: "accountant"},
		Request:    RequestContext{IPAddress: "10.0.0.1", UserAgent: "curl"},
		After:      map[string]int{"amount": 100},
		Metadata:   Metadata{"ledger_id": "l-1"},
	}

	log, err := NewFeeAuditLog(entry, testNow)
	require.NoError(t, err)
	assert.Equal(t, "u-1", log.ActorID)
	assert.Equal(t, "10.0.0.1", log.IPAddress)
	assert.Nil(t, log.Before)
	assert.JSONEq(t, `{"amount":100}`, string(log.After))
}
