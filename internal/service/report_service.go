package service

import (
	"context"
	"time"

	"github.com/segyhp/fee-engine/internal/domain"
	customError "github.com/segyhp/fee-engine/pkg/errors"
	"github.com/segyhp/fee-engine/pkg/utils"
)

// AgingSummary buckets the outstanding balance of open ledgers as of asOf.
// Aging is recomputed from the due dates, so the result does not depend on
// when the last sweep ran.
func (s *AccountingService) AgingSummary(ctx context.Context, filter domain.LedgerFilter, asOf time.Time) (*domain.AgingSummary, error) {
	ledgers, err := s.reportLedgers(ctx, filter, asOf)
	if err != nil {
		return nil, err
	}

	totals := make(map[domain.AgingBucket]*domain.AgingBucketTotal, len(domain.AgingBuckets))
	summary := &domain.AgingSummary{AsOf: asOf.In(s.loc)}
	for _, bucket := range domain.AgingBuckets {
		summary.Buckets = append(summary.Buckets, domain.AgingBucketTotal{Bucket: bucket})
	}
	for i := range summary.Buckets {
		totals[summary.Buckets[i].Bucket] = &summary.Buckets[i]
	}

	for _, l := range ledgers {
		if l.IsClosed || l.OutstandingBalance <= 0 {
			continue
		}
		t := totals[l.AgingBucket]
		t.LedgerCount++
		t.Outstanding += l.OutstandingBalance
		summary.TotalOutstanding += l.OutstandingBalance
	}
	return summary, nil
}

// CollectionSummary totals billing and collection over the matching ledgers.
func (s *AccountingService) CollectionSummary(ctx context.Context, filter domain.LedgerFilter, asOf time.Time) (*domain.CollectionSummary, error) {
	ledgers, err := s.reportLedgers(ctx, filter, asOf)
	if err != nil {
		return nil, err
	}

	summary := &domain.CollectionSummary{StatusCounts: make(map[domain.FeeStatus]int, 4)}
	for _, l := range ledgers {
		summary.LedgerCount++
		summary.NetPayable += l.NetPayable
		summary.TotalPaid += l.TotalPaid
		summary.Outstanding += l.OutstandingBalance
		summary.ConcessionTotal += l.ConcessionAmount
		summary.StatusCounts[l.FeeStatus]++
		if l.IsOverdue {
			summary.OverdueLedgers++
			summary.OverdueBalance += l.OutstandingBalance
		}
	}
	summary.CollectionRate = utils.Percentage(summary.TotalPaid.Decimal(), summary.NetPayable.Decimal())
	summary.OverdueRate = utils.Percentage(summary.OverdueBalance.Decimal(), summary.Outstanding.Decimal())
	return summary, nil
}

// reportLedgers loads every matching ledger, page by page, with status and
// aging recomputed as of asOf. Limit and Offset of filter are ignored.
func (s *AccountingService) reportLedgers(ctx context.Context, filter domain.LedgerFilter, asOf time.Time) ([]*domain.StudentFeeLedger, error) {
	const pageSize = 500

	// Status and bucket are matched after recomputation, not on stale stored values.
	wantStatus, wantBucket := filter.FeeStatus, filter.AgingBucket
	filter.FeeStatus, filter.AgingBucket = "", ""

	var all []*domain.StudentFeeLedger
	filter.Limit = pageSize
	for offset := 0; ; offset += pageSize {
		filter.Offset = offset
		page, err := s.store.Ledgers().List(ctx, filter)
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		for _, l := range page {
			l.Recompute(asOf, s.loc)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}

	if wantStatus == "" && wantBucket == "" {
		return all, nil
	}
	kept := all[:0]
	for _, l := range all {
		if wantStatus != "" && l.FeeStatus != wantStatus {
			continue
		}
		if wantBucket != "" && l.AgingBucket != wantBucket {
			continue
		}
		kept = append(kept, l)
	}
	return kept, nil
}
