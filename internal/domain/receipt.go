package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/fee-engine/pkg/errors"
)

type ReceiptType string

const (
	ReceiptTypePayment  ReceiptType = "PAYMENT"
	ReceiptTypeReversal ReceiptType = "REVERSAL"
)

type PaymentMode string

const (
	PaymentModeCash         PaymentMode = "CASH"
	PaymentModeCheque       PaymentMode = "CHEQUE"
	PaymentModeDemandDraft  PaymentMode = "DEMAND_DRAFT"
	PaymentModeBankTransfer PaymentMode = "BANK_TRANSFER"
	PaymentModeUPI          PaymentMode = "UPI"
	PaymentModeCard         PaymentMode = "CARD"
	PaymentModeOnline       PaymentMode = "ONLINE"
)

// FeeReceipt is one money movement against a ledger. Receipts are append-only:
// only the reversal flag and link of a PAYMENT may be set, once.
type FeeReceipt struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	ReceiptNumber   string      `json:"receipt_number" db:"receipt_number"`
	LedgerID        uuid.UUID   `json:"ledger_id" db:"ledger_id"`
	StudentID       string      `json:"student_id" db:"student_id"`
	ReceiptType     ReceiptType `json:"receipt_type" db:"receipt_type"`
	Amount          Money       `json:"amount" db:"amount"`
	PaymentMode     PaymentMode `json:"payment_mode" db:"payment_mode"`
	TransactionRef  string      `json:"transaction_ref,omitempty" db:"transaction_ref"`
	PaymentDate     time.Time   `json:"payment_date" db:"payment_date"`
	Remarks         string      `json:"remarks,omitempty" db:"remarks"`
	PreviousBalance Money       `json:"previous_balance" db:"previous_balance"`
	NewBalance      Money       `json:"new_balance" db:"new_balance"`
	TotalPaidBefore Money       `json:"total_paid_before" db:"total_paid_before"`
	TotalPaidAfter  Money       `json:"total_paid_after" db:"total_paid_after"`
	IsReversed      bool        `json:"is_reversed" db:"is_reversed"`
	ReversedBy      *uuid.UUID  `json:"reversed_by,omitempty" db:"reversed_by"`
	ReversedAt      *time.Time  `json:"reversed_at,omitempty" db:"reversed_at"`
	ReversalOf      *uuid.UUID  `json:"reversal_of,omitempty" db:"reversal_of"`
	ReversalReason  string      `json:"reversal_reason,omitempty" db:"reversal_reason"`
	CreatedByID     string      `json:"created_by_id" db:"created_by_id"`
	CreatedByName   string      `json:"created_by_name" db:"created_by_name"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

// EffectiveAmount is the signed contribution of the receipt to total paid.
func (r *FeeReceipt) EffectiveAmount() Money {
	if r.ReceiptType == ReceiptTypeReversal {
		return -r.Amount
	}
	return r.Amount
}

// CheckReversible rejects reversals of reversals and second reversals.
func (r *FeeReceipt) CheckReversible() error {
	if r.ReceiptType == ReceiptTypeReversal {
		return customError.WrapReversalOfReversal(r.ReceiptNumber)
	}
	if r.IsReversed || r.ReversedBy != nil {
		return customError.WrapReceiptAlreadyReversed(r.ReceiptNumber)
	}
	return nil
}

// NewPaymentReceipt snapshots the ledger balances around a payment. It must be
// called before the payment is applied to the ledger.
func NewPaymentReceipt(ledger *StudentFeeLedger, number string, amount Money, mode PaymentMode, ref, remarks string, paymentDate time.Time, actor Actor, now time.Time) *FeeReceipt {
	return &FeeReceipt{
		ID:              uuid.New(),
		ReceiptNumber:   number,
		LedgerID:        ledger.ID,
		StudentID:       ledger.StudentID,
		ReceiptType:     ReceiptTypePayment,
		Amount:          amount,
		PaymentMode:     mode,
		TransactionRef:  ref,
		PaymentDate:     paymentDate,
		Remarks:         remarks,
		PreviousBalance: ledger.OutstandingBalance,
		NewBalance:      ledger.OutstandingBalance - amount,
		TotalPaidBefore: ledger.TotalPaid,
		TotalPaidAfter:  ledger.TotalPaid + amount,
		CreatedByID:     actor.ID,
		CreatedByName:   actor.Name,
		CreatedAt:       now,
	}
}

// NewReversalReceipt builds the correcting entry for original. It must be
// called before the reversal is applied to the ledger.
func NewReversalReceipt(ledger *StudentFeeLedger, original *FeeReceipt, number, reason string, actor Actor, now time.Time) *FeeReceipt {
	originalID := original.ID
	paidAfter := (ledger.TotalPaid - original.Amount).FloorZero()
	return &FeeReceipt{
		ID:              uuid.New(),
		ReceiptNumber:   number,
		LedgerID:        ledger.ID,
		StudentID:       ledger.StudentID,
		ReceiptType:     ReceiptTypeReversal,
		Amount:          original.Amount,
		PaymentMode:     original.PaymentMode,
		TransactionRef:  original.TransactionRef,
		PaymentDate:     now,
		Remarks:         reason,
		PreviousBalance: ledger.OutstandingBalance,
		NewBalance:      ledger.NetPayable - paidAfter,
		TotalPaidBefore: ledger.TotalPaid,
		TotalPaidAfter:  paidAfter,
		ReversalOf:      &originalID,
		ReversalReason:  reason,
		CreatedByID:     actor.ID,
		CreatedByName:   actor.Name,
		CreatedAt:       now,
	}
}

// DTOs for requests

type RecordPaymentRequest struct {
	Amount         decimal.Decimal `json:"amount" validate:"required,decimal_gt=0"`
	PaymentMode    PaymentMode     `json:"payment_mode" validate:"required,oneof=CASH CHEQUE DEMAND_DRAFT BANK_TRANSFER UPI CARD ONLINE"`
	TransactionRef string          `json:"transaction_ref" validate:"max=128"`
	PaymentDate    *time.Time      `json:"payment_date"`
	Remarks        string          `json:"remarks" validate:"max=500"`
}

type ReverseReceiptRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
