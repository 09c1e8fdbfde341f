package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/fee-engine/pkg/errors"
	"github.com/segyhp/fee-engine/pkg/utils"
)

// Installment is one entry of a ledger's payment plan.
type Installment struct {
	Number  int       `json:"number"`
	DueDate time.Time `json:"due_date"`
	Amount  Money     `json:"amount"`
}

// StudentFeeLedger is what one student owes for one academic period. The fee
// heads and amounts are a snapshot taken at assignment; only the paid and
// computed fields change afterwards.
type StudentFeeLedger struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	StudentID          string       `json:"student_id" db:"student_id"`
	StudentName        string       `json:"student_name" db:"student_name"`
	AcademicYear       string       `json:"academic_year" db:"academic_year"`
	Semester           int          `json:"semester" db:"semester"`
	StructureID        uuid.UUID    `json:"structure_id" db:"structure_id"`
	StructureCode      string       `json:"structure_code" db:"structure_code"`
	StructureVersion   int          `json:"structure_version" db:"structure_version"`
	Currency           string       `json:"currency" db:"currency"`
	FeeHeads           FeeHeads     `json:"fee_heads" db:"fee_heads"`
	GrossAmount        Money        `json:"gross_amount" db:"gross_amount"`
	ConcessionAmount   Money        `json:"concession_amount" db:"concession_amount"`
	ConcessionReason   string       `json:"concession_reason,omitempty" db:"concession_reason"`
	NetPayable         Money        `json:"net_payable" db:"net_payable"`
	TotalPaid          Money        `json:"total_paid" db:"total_paid"`
	OutstandingBalance Money        `json:"outstanding_balance" db:"outstanding_balance"`
	FeeStatus          FeeStatus    `json:"fee_status" db:"fee_status"`
	DueDate            time.Time    `json:"due_date" db:"due_date"`
	Installments       Installments `json:"installments" db:"installments"`
	IsOverdue          bool         `json:"is_overdue" db:"is_overdue"`
	OverdueDays        int          `json:"overdue_days" db:"overdue_days"`
	AgingBucket        AgingBucket  `json:"aging_bucket" db:"aging_bucket"`
	LastPaymentAt      *time.Time   `json:"last_payment_at,omitempty" db:"last_payment_at"`
	IsClosed           bool         `json:"is_closed" db:"is_closed"`
	ClosedAt           *time.Time   `json:"closed_at,omitempty" db:"closed_at"`
	ClosedBy           string       `json:"closed_by,omitempty" db:"closed_by"`
	CloseRemarks       string       `json:"close_remarks,omitempty" db:"close_remarks"`
	CreatedBy          string       `json:"created_by" db:"created_by"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
}

// LedgerParams are the validated inputs of ledger creation.
type LedgerParams struct {
	StudentID         string
	StudentName       string
	ConcessionAmount  Money
	ConcessionReason  string
	OptionalHeadCodes []string
	Installments      []Installment
	DueDate           *time.Time
	DefaultDueDays    int
	CreatedBy         string
}

// NewStudentFeeLedger snapshots structure into a new ledger for one student.
func NewStudentFeeLedger(structure *FeeStructure, p LedgerParams, now time.Time, loc *time.Location) (*StudentFeeLedger, error) {
	if !structure.IsAssignable() {
		return nil, customError.WrapStructureNotAssignable(structure.Code, string(structure.Status))
	}

	heads := make(FeeHeads, 0, len(structure.FeeHeads))
	amounts := []Money{structure.ApprovedTotal}
	for _, head := range structure.FeeHeads {
		if !head.IsOptional {
			heads = append(heads, head)
		}
	}
	for _, code := range p.OptionalHeadCodes {
		head, ok := structure.HeadByCode(code)
		if !ok || !head.IsOptional {
			return nil, customError.WrapValidation("unknown optional fee head",
				customError.FieldError{Field: "optional_head_codes", Message: fmt.Sprintf("%s is not an optional head of %s", code, structure.Code)})
		}
		if containsHead(heads, head.Code) {
			continue
		}
		heads = append(heads, head)
		amounts = append(amounts, head.Amount)
	}
	gross, err := SumMoney(amounts...)
	if err != nil {
		return nil, customError.WrapValidation("fee total out of range",
			customError.FieldError{Field: "optional_head_codes", Message: err.Error()})
	}

	if p.ConcessionAmount < 0 || p.ConcessionAmount > gross {
		return nil, customError.WrapValidation("concession out of range",
			customError.FieldError{Field: "concession_amount", Message: fmt.Sprintf("must be between 0 and %s", gross)})
	}
	net := gross - p.ConcessionAmount

	installments, err := normalizeInstallments(p.Installments, net, loc)
	if err != nil {
		return nil, err
	}

	var dueDate time.Time
	switch {
	case len(installments) > 0:
		dueDate = installments[0].DueDate
	case p.DueDate != nil:
		dueDate = utils.StartOfDay(*p.DueDate, loc)
	default:
		dueDate = utils.CalculateDueDate(now, p.DefaultDueDays, loc)
	}

	ledger := &StudentFeeLedger{
		ID:               uuid.New(),
		StudentID:        strings.TrimSpace(p.StudentID),
		StudentName:      strings.TrimSpace(p.StudentName),
		AcademicYear:     structure.AcademicYear,
		Semester:         structure.Semester,
		StructureID:      structure.ID,
		StructureCode:    structure.Code,
		StructureVersion: structure.Version,
		Currency:         structure.Currency,
		FeeHeads:         heads,
		GrossAmount:      gross,
		ConcessionAmount: p.ConcessionAmount,
		ConcessionReason: p.ConcessionReason,
		NetPayable:       net,
		DueDate:          dueDate,
		Installments:     installments,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	ledger.Recompute(now, loc)
	return ledger, nil
}

func containsHead(heads FeeHeads, code string) bool {
	for _, h := range heads {
		if strings.EqualFold(h.Code, code) {
			return true
		}
	}
	return false
}

func normalizeInstallments(in []Installment, net Money, loc *time.Location) (Installments, error) {
	if len(in) == 0 {
		return Installments{}, nil
	}
	out := make(Installments, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })

	amounts := make([]Money, len(out))
	for i := range out {
		if !out[i].Amount.IsPositive() {
			return nil, customError.WrapValidation("invalid installment",
				customError.FieldError{Field: fmt.Sprintf("installments[%d].amount", i), Message: "must be greater than 0"})
		}
		out[i].Number = i + 1
		out[i].DueDate = utils.StartOfDay(out[i].DueDate, loc)
		amounts[i] = out[i].Amount
	}
	total, err := SumMoney(amounts...)
	if err != nil {
		return nil, customError.WrapValidation("installments out of range",
			customError.FieldError{Field: "installments", Message: err.Error()})
	}
	if total != net {
		return nil, customError.WrapValidation("installments do not add up",
			customError.FieldError{Field: "installments", Message: fmt.Sprintf("sum %s must equal net payable %s", total, net)})
	}
	return out, nil
}

// Recompute derives outstanding balance, status and aging from the stored amounts.
func (l *StudentFeeLedger) Recompute(today time.Time, loc *time.Location) {
	l.OutstandingBalance = l.NetPayable - l.TotalPaid
	l.FeeStatus = ComputeFeeStatus(l.TotalPaid, l.NetPayable, l.DueDate, today, loc)
	aging := ComputeAging(l.FeeStatus, l.IsClosed, l.DueDate, today, loc)
	l.IsOverdue = aging.IsOverdue
	l.OverdueDays = aging.OverdueDays
	l.AgingBucket = aging.Bucket
}

// CheckPayment validates amount against the ledger before any write.
func (l *StudentFeeLedger) CheckPayment(amount Money) error {
	if l.IsClosed {
		return customError.WrapLedgerClosed(l.ID.String())
	}
	if l.OutstandingBalance <= 0 || l.FeeStatus == FeeStatusPaid {
		return customError.WrapLedgerFullyPaid(l.ID.String())
	}
	if !amount.IsPositive() {
		return customError.WrapInvalidAmount(amount.String())
	}
	if amount > l.OutstandingBalance {
		return customError.WrapAmountExceedsBalance(amount.String(), l.OutstandingBalance.String())
	}
	return nil
}

// ApplyPayment adds amount to the paid total.
func (l *StudentFeeLedger) ApplyPayment(amount Money, paidAt, today time.Time, loc *time.Location) {
	l.TotalPaid += amount
	l.LastPaymentAt = &paidAt
	l.UpdatedAt = today
	l.Recompute(today, loc)
}

// ApplyReversal removes a reversed amount from the paid total, never going below zero.
func (l *StudentFeeLedger) ApplyReversal(amount Money, today time.Time, loc *time.Location) {
	l.TotalPaid = (l.TotalPaid - amount).FloorZero()
	l.UpdatedAt = today
	l.Recompute(today, loc)
}

// Close is terminal and only allowed once nothing is outstanding.
func (l *StudentFeeLedger) Close(by, remarks string, now time.Time, loc *time.Location) error {
	if l.IsClosed {
		return customError.WrapLedgerClosed(l.ID.String())
	}
	if l.OutstandingBalance != 0 {
		return customError.WrapOutstandingNotZero(l.ID.String(), l.OutstandingBalance.String())
	}
	l.IsClosed = true
	l.ClosedAt = &now
	l.ClosedBy = by
	l.CloseRemarks = remarks
	l.UpdatedAt = now
	l.Recompute(now, loc)
	return nil
}

// CheckInvariants verifies the accounting rules that must hold before a ledger is persisted.
func (l *StudentFeeLedger) CheckInvariants() error {
	switch {
	case l.NetPayable < 0 || l.TotalPaid < 0 || l.ConcessionAmount < 0:
		return fmt.Errorf("ledger %s: negative amount", l.ID)
	case l.NetPayable != l.GrossAmount-l.ConcessionAmount:
		return fmt.Errorf("ledger %s: net payable %s != gross %s - concession %s", l.ID, l.NetPayable, l.GrossAmount, l.ConcessionAmount)
	case l.OutstandingBalance != l.NetPayable-l.TotalPaid:
		return fmt.Errorf("ledger %s: outstanding %s != net %s - paid %s", l.ID, l.OutstandingBalance, l.NetPayable, l.TotalPaid)
	case (l.FeeStatus == FeeStatusPaid) != (l.TotalPaid >= l.NetPayable):
		return fmt.Errorf("ledger %s: status %s inconsistent with paid %s of %s", l.ID, l.FeeStatus, l.TotalPaid, l.NetPayable)
	case l.IsClosed && l.OutstandingBalance != 0:
		return fmt.Errorf("ledger %s: closed with outstanding %s", l.ID, l.OutstandingBalance)
	}
	return nil
}

// Summary is the compact, cacheable view of a ledger.
func (l *StudentFeeLedger) Summary() LedgerSummary {
	return LedgerSummary{
		LedgerID:           l.ID,
		StudentID:          l.StudentID,
		AcademicYear:       l.AcademicYear,
		Semester:           l.Semester,
		NetPayable:         l.NetPayable,
		TotalPaid:          l.TotalPaid,
		OutstandingBalance: l.OutstandingBalance,
		FeeStatus:          l.FeeStatus,
		DueDate:            l.DueDate,
		IsOverdue:          l.IsOverdue,
		OverdueDays:        l.OverdueDays,
		AgingBucket:        l.AgingBucket,
		IsClosed:           l.IsClosed,
		PaidPercentage:     utils.Percentage(l.TotalPaid.Decimal(), l.NetPayable.Decimal()),
	}
}

type LedgerSummary struct {
	LedgerID           uuid.UUID       `json:"ledger_id"`
	StudentID          string          `json:"student_id"`
	AcademicYear       string          `json:"academic_year"`
	Semester           int             `json:"semester"`
	NetPayable         Money           `json:"net_payable"`
	TotalPaid          Money           `json:"total_paid"`
	OutstandingBalance Money           `json:"outstanding_balance"`
	FeeStatus          FeeStatus       `json:"fee_status"`
	DueDate            time.Time       `json:"due_date"`
	IsOverdue          bool            `json:"is_overdue"`
	OverdueDays        int             `json:"overdue_days"`
	AgingBucket        AgingBucket     `json:"aging_bucket"`
	IsClosed           bool            `json:"is_closed"`
	PaidPercentage     decimal.Decimal `json:"paid_percentage"`
}

// LedgerFilter narrows ledger listings. Zero values match everything.
type LedgerFilter struct {
	StudentID     string
	AcademicYear  string
	Semester      int
	StructureID   *uuid.UUID
	FeeStatus     FeeStatus
	AgingBucket   AgingBucket
	IncludeClosed bool
	Limit         int
	Offset        int
}

// LedgerStatement is a ledger with its full receipt history. JournalTotal is
// the signed sum of the receipts; it matches TotalPaid on a healthy ledger.
type LedgerStatement struct {
	Ledger       *StudentFeeLedger `json:"ledger"`
	Receipts     []*FeeReceipt     `json:"receipts"`
	JournalTotal Money             `json:"journal_total"`
	Reconciled   bool              `json:"reconciled"`
}

// NewLedgerStatement replays the receipt journal against the ledger.
func NewLedgerStatement(ledger *StudentFeeLedger, receipts []*FeeReceipt) (*LedgerStatement, error) {
	amounts := make([]Money, len(receipts))
	for i, r := range receipts {
		amounts[i] = r.EffectiveAmount()
	}
	total, err := SumMoney(amounts...)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: receipt journal: %w", ledger.ID, err)
	}
	return &LedgerStatement{
		Ledger:       ledger,
		Receipts:     receipts,
		JournalTotal: total,
		Reconciled:   total == ledger.TotalPaid,
	}, nil
}

// DTOs for requests

type InstallmentInput struct {
	DueDate time.Time       `json:"due_date" validate:"required"`
	Amount  decimal.Decimal `json:"amount" validate:"required,decimal_gt=0"`
}

type CreateLedgerRequest struct {
	StudentID         string             `json:"student_id" validate:"required,max=64"`
	StudentName       string             `json:"student_name" validate:"max=200"`
	StructureID       uuid.UUID          `json:"structure_id" validate:"required"`
	ConcessionAmount  decimal.Decimal    `json:"concession_amount" validate:"decimal_gte=0"`
	ConcessionReason  string             `json:"concession_reason" validate:"max=500"`
	OptionalHeadCodes []string           `json:"optional_head_codes" validate:"omitempty,dive,required"`
	Installments      []InstallmentInput `json:"installments" validate:"omitempty,dive"`
	DueDate           *time.Time         `json:"due_date"`
}

type CloseLedgerRequest struct {
	Remarks string `json:"remarks" validate:"max=500"`
}
