package domain

import (
	"time"

	"github.com/segyhp/fee-engine/pkg/utils"
)

type FeeStatus string

const (
	FeeStatusUnpaid        FeeStatus = "UNPAID"
	FeeStatusPartiallyPaid FeeStatus = "PARTIALLY_PAID"
	FeeStatusPaid          FeeStatus = "PAID"
	FeeStatusOverdue       FeeStatus = "OVERDUE"
)

type AgingBucket string

const (
	AgingCurrent AgingBucket = "CURRENT"
	Aging1To30   AgingBucket = "1-30_DAYS"
	Aging31To60  AgingBucket = "31-60_DAYS"
	AgingOver60  AgingBucket = "60+_DAYS"
)

const agingBucketSpan = 30

// AgingBuckets lists the buckets in report order.
var AgingBuckets = []AgingBucket{AgingCurrent, Aging1To30, Aging31To60, AgingOver60}

// ComputeFeeStatus is the single source of a ledger's status.
func ComputeFeeStatus(totalPaid, netPayable Money, dueDate, today time.Time, loc *time.Location) FeeStatus {
	switch {
	case totalPaid >= netPayable:
		return FeeStatusPaid
	case utils.IsDateOverdue(dueDate, today, loc):
		return FeeStatusOverdue
	case totalPaid > 0:
		return FeeStatusPartiallyPaid
	default:
		return FeeStatusUnpaid
	}
}

// AgingBucketFor maps elapsed days past the due date to a bucket.
func AgingBucketFor(daysPastDue int) AgingBucket {
	switch {
	case daysPastDue <= 0:
		return AgingCurrent
	case daysPastDue <= agingBucketSpan:
		return Aging1To30
	case daysPastDue <= 2*agingBucketSpan:
		return Aging31To60
	default:
		return AgingOver60
	}
}

// Aging is the overdue classification of a ledger at a point in time.
type Aging struct {
	IsOverdue   bool
	OverdueDays int
	Bucket      AgingBucket
}

// ComputeAging classifies a ledger. Paid or closed ledgers are always current.
func ComputeAging(status FeeStatus, closed bool, dueDate, today time.Time, loc *time.Location) Aging {
	if status == FeeStatusPaid || closed {
		return Aging{Bucket: AgingCurrent}
	}
	days := utils.DaysBetween(dueDate, today, loc)
	if days <= 0 {
		return Aging{Bucket: AgingCurrent}
	}
	return Aging{IsOverdue: true, OverdueDays: days, Bucket: AgingBucketFor(days)}
}
