package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AgingBucketTotal struct {
	Bucket      AgingBucket `json:"bucket"`
	LedgerCount int         `json:"ledger_count"`
	Outstanding Money       `json:"outstanding"`
}

// AgingSummary groups open balances by how long they are overdue.
type AgingSummary struct {
	AsOf             time.Time          `json:"as_of"`
	Buckets          []AgingBucketTotal `json:"buckets"`
	TotalOutstanding Money              `json:"total_outstanding"`
}

// CollectionSummary totals what was billed and collected. Percentages are
// derived on read and never stored.
type CollectionSummary struct {
	LedgerCount     int               `json:"ledger_count"`
	NetPayable      Money             `json:"net_payable"`
	TotalPaid       Money             `json:"total_paid"`
	Outstanding     Money             `json:"outstanding"`
	ConcessionTotal Money             `json:"concession_total"`
	StatusCounts    map[FeeStatus]int `json:"status_counts"`
	CollectionRate  decimal.Decimal   `json:"collection_rate"`
	OverdueRate     decimal.Decimal   `json:"overdue_rate"`
	OverdueLedgers  int               `json:"overdue_ledgers"`
	OverdueBalance  Money             `json:"overdue_balance"`
}

// SweepResult reports one run of the overdue maintenance job.
type SweepResult struct {
	AsOf    time.Time `json:"as_of"`
	Scanned int       `json:"scanned"`
	Updated int       `json:"updated"`
	Failed  int       `json:"failed"`
}
