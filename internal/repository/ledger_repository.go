package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/fee-engine/internal/domain"
)

const ledgerColumns = `id, student_id, student_name, academic_year, semester, structure_id,
	structure_code, structure_version, currency, fee_heads, gross_amount, concession_amount,
	concession_reason, net_payable, total_paid, outstanding_balance, fee_status, due_date,
	installments, is_overdue, overdue_days, aging_bucket, last_payment_at, is_closed,
	closed_at, closed_by, close_remarks, created_by, created_at, updated_at`

type ledgerRepository struct {
	db sqlx.ExtContext
}

func NewLedgerRepository(db sqlx.ExtContext) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Create(ctx context.Context, l *domain.StudentFeeLedger) error {
	query := `
		INSERT INTO student_fee_ledgers (` + ledgerColumns + `)
		VALUES (:id, :student_id, :student_name, :academic_year, :semester, :structure_id,
			:structure_code, :structure_version, :currency, :fee_heads, :gross_amount, :concession_amount,
			:concession_reason, :net_payable, :total_paid, :outstanding_balance, :fee_status, :due_date,
			:installments, :is_overdue, :overdue_days, :aging_bucket, :last_payment_at, :is_closed,
			:closed_at, :closed_by, :close_remarks, :created_by, :created_at, :updated_at)
	`

	_, err := sqlx.NamedExecContext(ctx, r.db, query, l)
	return translateError(err)
}

func (r *ledgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.StudentFeeLedger, error) {
	return r.get(ctx, `SELECT `+ledgerColumns+` FROM student_fee_ledgers WHERE id = $1`, id)
}

func (r *ledgerRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.StudentFeeLedger, error) {
	return r.get(ctx, `SELECT `+ledgerColumns+` FROM student_fee_ledgers WHERE id = $1 FOR UPDATE`, id)
}

func (r *ledgerRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.StudentFeeLedger, error) {
	var l domain.StudentFeeLedger
	if err := sqlx.GetContext(ctx, r.db, &l, query, id); err != nil {
		return nil, translateError(err)
	}
	return &l, nil
}

func (r *ledgerRepository) UpdateBalances(ctx context.Context, l *domain.StudentFeeLedger) error {
	query := `
		UPDATE student_fee_ledgers
		SET total_paid = :total_paid, outstanding_balance = :outstanding_balance, fee_status = :fee_status,
			is_overdue = :is_overdue, overdue_days = :overdue_days, aging_bucket = :aging_bucket,
			last_payment_at = :last_payment_at, is_closed = :is_closed, closed_at = :closed_at,
			closed_by = :closed_by, close_remarks = :close_remarks, updated_at = :updated_at
		WHERE id = :id
	`

	res, err := sqlx.NamedExecContext(ctx, r.db, query, l)
	if err != nil {
		return translateError(err)
	}
	return requireRow(res)
}

func (r *ledgerRepository) List(ctx context.Context, filter domain.LedgerFilter) ([]*domain.StudentFeeLedger, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, strings.Replace(cond, "?", placeholder(len(args)), 1))
	}

	if filter.StudentID != "" {
		add("student_id = ?", filter.StudentID)
	}
	if filter.AcademicYear != "" {
		add("academic_year = ?", filter.AcademicYear)
	}
	if filter.Semester > 0 {
		add("semester = ?", filter.Semester)
	}
	if filter.StructureID != nil {
		add("structure_id = ?", *filter.StructureID)
	}
	if filter.FeeStatus != "" {
		add("fee_status = ?", filter.FeeStatus)
	}
	if filter.AgingBucket != "" {
		add("aging_bucket = ?", filter.AgingBucket)
	}
	if !filter.IncludeClosed {
		where = append(where, "is_closed = FALSE")
	}

	page, args := limitOffset(filter.Limit, filter.Offset, args)
	query := `SELECT ` + ledgerColumns + ` FROM student_fee_ledgers` + whereClause(where) +
		` ORDER BY created_at, id` + page

	ledgers := []*domain.StudentFeeLedger{}
	if err := sqlx.SelectContext(ctx, r.db, &ledgers, query, args...); err != nil {
		return nil, translateError(err)
	}
	return ledgers, nil
}

func (r *ledgerRepository) ListOpenIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := sqlx.SelectContext(ctx, r.db, &ids,
		`SELECT id FROM student_fee_ledgers WHERE is_closed = FALSE ORDER BY due_date, id`)
	if err != nil {
		return nil, translateError(err)
	}
	return ids, nil
}
