// Package memory is an in-process repository.Store with the same constraint
// semantics as the Postgres schema. Transactions are serialized and work on a
// copy of the data that replaces the committed state only on success.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/repository"
)

// errLockedStructure mirrors the fee_structures_guard_locked trigger.
var errLockedStructure = errors.New("fee structure is locked")

type state struct {
	structures map[uuid.UUID]domain.FeeStructure
	ledgers    map[uuid.UUID]domain.StudentFeeLedger
	receipts   map[uuid.UUID]domain.FeeReceipt
	receiptSeq []uuid.UUID
	auditLogs  []domain.FeeAuditLog
	sequences  map[string]int64
}

func newState() *state {
	return &state{
		structures: make(map[uuid.UUID]domain.FeeStructure),
		ledgers:    make(map[uuid.UUID]domain.StudentFeeLedger),
		receipts:   make(map[uuid.UUID]domain.FeeReceipt),
		sequences:  make(map[string]int64),
	}
}

// clone copies the maps. Stored values are never mutated in place, so their
// slices may be shared between snapshots.
func (st *state) clone() *state {
	c := &state{
		structures: make(map[uuid.UUID]domain.FeeStructure, len(st.structures)),
		ledgers:    make(map[uuid.UUID]domain.StudentFeeLedger, len(st.ledgers)),
		receipts:   make(map[uuid.UUID]domain.FeeReceipt, len(st.receipts)),
		receiptSeq: append([]uuid.UUID(nil), st.receiptSeq...),
		auditLogs:  append([]domain.FeeAuditLog(nil), st.auditLogs...),
		sequences:  make(map[string]int64, len(st.sequences)),
	}
	for k, v := range st.structures {
		c.structures[k] = v
	}
	for k, v := range st.ledgers {
		c.ledgers[k] = v
	}
	for k, v := range st.receipts {
		c.receipts[k] = v
	}
	for k, v := range st.sequences {
		c.sequences[k] = v
	}
	return c
}

// Store is the in-memory repository.Store. Its zero value is not usable; call New.
type Store struct {
	mu    sync.Mutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

// autocommit runs fn against the committed state under the store lock.
func (s *Store) autocommit(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *Store) repos() *repos {
	return &repos{run: s.autocommit}
}

func (s *Store) Structures() repository.StructureRepository { return structureRepo{s.repos()} }
func (s *Store) Ledgers() repository.LedgerRepository       { return ledgerRepo{s.repos()} }
func (s *Store) Receipts() repository.ReceiptRepository     { return receiptRepo{s.repos()} }
func (s *Store) AuditLogs() repository.AuditLogRepository   { return auditRepo{s.repos()} }
func (s *Store) Sequences() repository.SequenceRepository   { return sequenceRepo{s.repos()} }

// WithTx holds the store lock for the whole unit of work. fn must only use
// the repositories it is handed; calling back into the Store deadlocks.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	tx := &repos{run: func(f func(st *state) error) error { return f(work) }}
	if err := fn(txRepos{tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type repos struct {
	run func(fn func(st *state) error) error
}

type txRepos struct{ r *repos }

func (t txRepos) Structures() repository.StructureRepository { return structureRepo{t.r} }
func (t txRepos) Ledgers() repository.LedgerRepository       { return ledgerRepo{t.r} }
func (t txRepos) Receipts() repository.ReceiptRepository     { return receiptRepo{t.r} }
func (t txRepos) AuditLogs() repository.AuditLogRepository   { return auditRepo{t.r} }
func (t txRepos) Sequences() repository.SequenceRepository   { return sequenceRepo{t.r} }

// Fee structures

type structureRepo struct{ *repos }

func cloneStructure(s domain.FeeStructure) *domain.FeeStructure {
	s.FeeHeads = append(domain.FeeHeads(nil), s.FeeHeads...)
	return &s
}

func (r structureRepo) Create(_ context.Context, s *domain.FeeStructure) error {
	return r.run(func(st *state) error {
		for _, existing := range st.structures {
			if existing.Code == s.Code {
				return &repository.DuplicateError{Constraint: repository.ConstraintStructureCode}
			}
		}
		if _, ok := st.structures[s.ID]; ok {
			return &repository.DuplicateError{Constraint: "fee_structures_pkey"}
		}
		st.structures[s.ID] = *cloneStructure(*s)
		return nil
	})
}

func (r structureRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.FeeStructure, error) {
	var out *domain.FeeStructure
	err := r.run(func(st *state) error {
		s, ok := st.structures[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = cloneStructure(s)
		return nil
	})
	return out, err
}

func (r structureRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error) {
	return r.GetByID(ctx, id)
}

func (r structureRepo) Update(_ context.Context, s *domain.FeeStructure) error {
	return r.run(func(st *state) error {
		old, ok := st.structures[s.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if old.IsLocked && lockedChange(old, *s) {
			return errLockedStructure
		}
		// identity columns are not part of the UPDATE
		next := *cloneStructure(*s)
		next.Code, next.Name = old.Code, old.Name
		next.AcademicYear, next.Semester = old.AcademicYear, old.Semester
		next.Department, next.Course, next.Currency = old.Department, old.Course, old.Currency
		next.Version, next.ParentStructureID = old.Version, old.ParentStructureID
		next.CreatedBy, next.CreatedAt = old.CreatedBy, old.CreatedAt
		st.structures[s.ID] = next
		return nil
	})
}

func lockedChange(old, next domain.FeeStructure) bool {
	if !next.IsLocked || next.ApprovedTotal != old.ApprovedTotal ||
		next.TotalMandatory != old.TotalMandatory || next.TotalOptional != old.TotalOptional {
		return true
	}
	if len(next.FeeHeads) != len(old.FeeHeads) {
		return true
	}
	for i := range next.FeeHeads {
		if next.FeeHeads[i] != old.FeeHeads[i] {
			return true
		}
	}
	return next.Status != old.Status && next.Status != domain.StructureStatusArchived
}

func (r structureRepo) List(_ context.Context, filter domain.StructureFilter) ([]*domain.FeeStructure, error) {
	out := []*domain.FeeStructure{}
	err := r.run(func(st *state) error {
		for _, s := range st.structures {
			if filter.AcademicYear != "" && s.AcademicYear != filter.AcademicYear {
				continue
			}
			if filter.Semester > 0 && s.Semester != filter.Semester {
				continue
			}
			if filter.Department != "" && !strings.EqualFold(s.Department, filter.Department) {
				continue
			}
			if filter.Course != "" && !strings.EqualFold(s.Course, filter.Course) {
				continue
			}
			if filter.Status != "" && s.Status != filter.Status {
				continue
			}
			out = append(out, cloneStructure(s))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Version > out[j].Version
	})
	return out, err
}

// Student ledgers

type ledgerRepo struct{ *repos }

func cloneLedger(l domain.StudentFeeLedger) *domain.StudentFeeLedger {
	l.FeeHeads = append(domain.FeeHeads(nil), l.FeeHeads...)
	l.Installments = append(domain.Installments(nil), l.Installments...)
	return &l
}

func (r ledgerRepo) Create(_ context.Context, l *domain.StudentFeeLedger) error {
	return r.run(func(st *state) error {
		if _, ok := st.structures[l.StructureID]; !ok {
			return errors.New("ledger references unknown fee structure")
		}
		for _, existing := range st.ledgers {
			if existing.StudentID == l.StudentID && existing.AcademicYear == l.AcademicYear && existing.Semester == l.Semester {
				return &repository.DuplicateError{Constraint: repository.ConstraintLedgerPeriod}
			}
		}
		if _, ok := st.ledgers[l.ID]; ok {
			return &repository.DuplicateError{Constraint: "student_fee_ledgers_pkey"}
		}
		if err := l.CheckInvariants(); err != nil {
			return err
		}
		st.ledgers[l.ID] = *cloneLedger(*l)
		return nil
	})
}

func (r ledgerRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.StudentFeeLedger, error) {
	var out *domain.StudentFeeLedger
	err := r.run(func(st *state) error {
		l, ok := st.ledgers[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = cloneLedger(l)
		return nil
	})
	return out, err
}

func (r ledgerRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.StudentFeeLedger, error) {
	return r.GetByID(ctx, id)
}

func (r ledgerRepo) UpdateBalances(_ context.Context, l *domain.StudentFeeLedger) error {
	return r.run(func(st *state) error {
		old, ok := st.ledgers[l.ID]
		if !ok {
			return repository.ErrNotFound
		}
		next := old
		next.TotalPaid = l.TotalPaid
		next.OutstandingBalance = l.OutstandingBalance
		next.FeeStatus = l.FeeStatus
		next.IsOverdue = l.IsOverdue
		next.OverdueDays = l.OverdueDays
		next.AgingBucket = l.AgingBucket
		next.LastPaymentAt = l.LastPaymentAt
		next.IsClosed = l.IsClosed
		next.ClosedAt = l.ClosedAt
		next.ClosedBy = l.ClosedBy
		next.CloseRemarks = l.CloseRemarks
		next.UpdatedAt = l.UpdatedAt
		if next.TotalPaid < 0 || next.OutstandingBalance != next.NetPayable-next.TotalPaid ||
			(next.IsClosed && next.OutstandingBalance != 0) {
			return errors.New("ledger balance check violated")
		}
		st.ledgers[l.ID] = next
		return nil
	})
}

func (r ledgerRepo) List(_ context.Context, filter domain.LedgerFilter) ([]*domain.StudentFeeLedger, error) {
	out := []*domain.StudentFeeLedger{}
	err := r.run(func(st *state) error {
		for _, l := range st.ledgers {
			if filter.StudentID != "" && l.StudentID != filter.StudentID {
				continue
			}
			if filter.AcademicYear != "" && l.AcademicYear != filter.AcademicYear {
				continue
			}
			if filter.Semester > 0 && l.Semester != filter.Semester {
				continue
			}
			if filter.StructureID != nil && l.StructureID != *filter.StructureID {
				continue
			}
			if filter.FeeStatus != "" && l.FeeStatus != filter.FeeStatus {
				continue
			}
			if filter.AgingBucket != "" && l.AgingBucket != filter.AgingBucket {
				continue
			}
			if !filter.IncludeClosed && l.IsClosed {
				continue
			}
			out = append(out, cloneLedger(l))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, filter.Limit, filter.Offset), err
}

func (r ledgerRepo) ListOpenIDs(_ context.Context) ([]uuid.UUID, error) {
	var open []domain.StudentFeeLedger
	err := r.run(func(st *state) error {
		for _, l := range st.ledgers {
			if !l.IsClosed {
				open = append(open, l)
			}
		}
		return nil
	})
	sort.Slice(open, func(i, j int) bool {
		if !open[i].DueDate.Equal(open[j].DueDate) {
			return open[i].DueDate.Before(open[j].DueDate)
		}
		return open[i].ID.String() < open[j].ID.String()
	})
	ids := make([]uuid.UUID, 0, len(open))
	for _, l := range open {
		ids = append(ids, l.ID)
	}
	return ids, err
}

// Fee receipts

type receiptRepo struct{ *repos }

func cloneReceipt(rc domain.FeeReceipt) *domain.FeeReceipt {
	return &rc
}

func (r receiptRepo) Create(_ context.Context, rc *domain.FeeReceipt) error {
	return r.run(func(st *state) error {
		if _, ok := st.ledgers[rc.LedgerID]; !ok {
			return errors.New("receipt references unknown ledger")
		}
		if _, ok := st.receipts[rc.ID]; ok {
			return &repository.DuplicateError{Constraint: "fee_receipts_pkey"}
		}
		for _, existing := range st.receipts {
			if rc.ReceiptType == domain.ReceiptTypePayment && existing.ReceiptType == domain.ReceiptTypePayment &&
				existing.ReceiptNumber == rc.ReceiptNumber {
				return &repository.DuplicateError{Constraint: repository.ConstraintReceiptNumber}
			}
			if rc.ReversalOf != nil && existing.ReversalOf != nil && *existing.ReversalOf == *rc.ReversalOf {
				return &repository.DuplicateError{Constraint: repository.ConstraintReversalOf}
			}
		}
		if !rc.Amount.IsPositive() {
			return errors.New("receipt amount must be positive")
		}
		st.receipts[rc.ID] = *cloneReceipt(*rc)
		st.receiptSeq = append(st.receiptSeq, rc.ID)
		return nil
	})
}

func (r receiptRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.FeeReceipt, error) {
	var out *domain.FeeReceipt
	err := r.run(func(st *state) error {
		rc, ok := st.receipts[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = cloneReceipt(rc)
		return nil
	})
	return out, err
}

func (r receiptRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.FeeReceipt, error) {
	return r.GetByID(ctx, id)
}

func (r receiptRepo) GetByNumber(_ context.Context, number string) (*domain.FeeReceipt, error) {
	var out *domain.FeeReceipt
	err := r.run(func(st *state) error {
		for _, rc := range st.receipts {
			if rc.ReceiptType == domain.ReceiptTypePayment && rc.ReceiptNumber == number {
				out = cloneReceipt(rc)
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r receiptRepo) ListByLedger(_ context.Context, ledgerID uuid.UUID) ([]*domain.FeeReceipt, error) {
	out := []*domain.FeeReceipt{}
	err := r.run(func(st *state) error {
		for _, id := range st.receiptSeq {
			if rc := st.receipts[id]; rc.LedgerID == ledgerID {
				out = append(out, cloneReceipt(rc))
			}
		}
		return nil
	})
	return out, err
}

func (r receiptRepo) CountReversalsOf(_ context.Context, originalID uuid.UUID) (int, error) {
	var n int
	err := r.run(func(st *state) error {
		for _, rc := range st.receipts {
			if rc.ReversalOf != nil && *rc.ReversalOf == originalID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r receiptRepo) MarkReversed(_ context.Context, id, reversalID uuid.UUID, reason string, at time.Time) error {
	return r.run(func(st *state) error {
		rc, ok := st.receipts[id]
		if !ok {
			return repository.ErrNotFound
		}
		if rc.ReceiptType != domain.ReceiptTypePayment || rc.IsReversed {
			return repository.ErrAlreadyReversed
		}
		rc.IsReversed = true
		rc.ReversedBy = &reversalID
		rc.ReversedAt = &at
		rc.ReversalReason = reason
		st.receipts[id] = rc
		return nil
	})
}

// Audit log

type auditRepo struct{ *repos }

func (r auditRepo) Append(_ context.Context, entry *domain.FeeAuditLog) error {
	return r.run(func(st *state) error {
		for _, existing := range st.auditLogs {
			if existing.ID == entry.ID {
				return &repository.DuplicateError{Constraint: repository.ConstraintAuditLogPrimary}
			}
		}
		st.auditLogs = append(st.auditLogs, *entry)
		return nil
	})
}

func (r auditRepo) Query(_ context.Context, filter domain.AuditFilter) ([]*domain.FeeAuditLog, error) {
	out := []*domain.FeeAuditLog{}
	err := r.run(func(st *state) error {
		// newest appended first, so equal timestamps keep reverse insertion order
		for i := len(st.auditLogs) - 1; i >= 0; i-- {
			e := st.auditLogs[i]
			if matchAudit(e, filter) {
				out = append(out, &e)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), err
}

func (r auditRepo) ActionSummary(_ context.Context, from, to *time.Time) ([]domain.ActionCount, error) {
	counts := map[domain.AuditAction]int64{}
	err := r.run(func(st *state) error {
		for _, e := range st.auditLogs {
			if matchAudit(e, domain.AuditFilter{From: from, To: to}) {
				counts[e.Action]++
			}
		}
		return nil
	})

	out := make([]domain.ActionCount, 0, len(counts))
	for action, n := range counts {
		out = append(out, domain.ActionCount{Action: action, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Action < out[j].Action
	})
	return out, err
}

func matchAudit(e domain.FeeAuditLog, f domain.AuditFilter) bool {
	switch {
	case f.EntityType != "" && e.EntityType != f.EntityType:
		return false
	case f.EntityID != "" && e.EntityID != f.EntityID:
		return false
	case f.ActorID != "" && e.ActorID != f.ActorID:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.From != nil && e.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && !e.CreatedAt.Before(*f.To):
		return false
	}
	return true
}

// Receipt sequences

type sequenceRepo struct{ *repos }

func (r sequenceRepo) Next(_ context.Context, day string) (int64, error) {
	var next int64
	err := r.run(func(st *state) error {
		st.sequences[day]++
		next = st.sequences[day]
		return nil
	})
	return next, err
}

func page[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
