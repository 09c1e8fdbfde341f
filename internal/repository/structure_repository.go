package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/fee-engine/internal/domain"
)

const structureColumns = `id, code, name, academic_year, semester, department, course, currency,
	fee_heads, total_mandatory, total_optional, approved_total, status, version,
	parent_structure_id, is_locked, locked_at, lock_reason, approved_by, approved_at,
	approval_remarks, effective_from, archived_at, created_by, created_at, updated_at`

type structureRepository struct {
	db sqlx.ExtContext
}

func NewStructureRepository(db sqlx.ExtContext) StructureRepository {
	return &structureRepository{db: db}
}

func (r *structureRepository) Create(ctx context.Context, s *domain.FeeStructure) error {
	query := `
		INSERT INTO fee_structures (` + structureColumns + `)
		VALUES (:id, :code, :name, :academic_year, :semester, :department, :course, :currency,
			:fee_heads, :total_mandatory, :total_optional, :approved_total, :status, :version,
			:parent_structure_id, :is_locked, :locked_at, :lock_reason, :approved_by, :approved_at,
			:approval_remarks, :effective_from, :archived_at, :created_by, :created_at, :updated_at)
	`

	_, err := sqlx.NamedExecContext(ctx, r.db, query, s)
	return translateError(err)
}

func (r *structureRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error) {
	return r.get(ctx, `SELECT `+structureColumns+` FROM fee_structures WHERE id = $1`, id)
}

func (r *structureRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error) {
	return r.get(ctx, `SELECT `+structureColumns+` FROM fee_structures WHERE id = $1 FOR UPDATE`, id)
}

func (r *structureRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.FeeStructure, error) {
	var s domain.FeeStructure
	if err := sqlx.GetContext(ctx, r.db, &s, query, id); err != nil {
		return nil, translateError(err)
	}
	return &s, nil
}

func (r *structureRepository) Update(ctx context.Context, s *domain.FeeStructure) error {
	query := `
		UPDATE fee_structures
		SET fee_heads = :fee_heads, total_mandatory = :total_mandatory, total_optional = :total_optional,
			approved_total = :approved_total, status = :status, is_locked = :is_locked, locked_at = :locked_at,
			lock_reason = :lock_reason, approved_by = :approved_by, approved_at = :approved_at,
			approval_remarks = :approval_remarks, effective_from = :effective_from,
			archived_at = :archived_at, updated_at = :updated_at
		WHERE id = :id
	`

	res, err := sqlx.NamedExecContext(ctx, r.db, query, s)
	if err != nil {
		return translateError(err)
	}
	return requireRow(res)
}

func (r *structureRepository) List(ctx context.Context, filter domain.StructureFilter) ([]*domain.FeeStructure, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, strings.Replace(cond, "?", placeholder(len(args)), 1))
	}

	if filter.AcademicYear != "" {
		add("academic_year = ?", filter.AcademicYear)
	}
	if filter.Semester > 0 {
		add("semester = ?", filter.Semester)
	}
	if filter.Department != "" {
		add("UPPER(department) = UPPER(?)", filter.Department)
	}
	if filter.Course != "" {
		add("UPPER(course) = UPPER(?)", filter.Course)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}

	query := `SELECT ` + structureColumns + ` FROM fee_structures` + whereClause(where) +
		` ORDER BY created_at DESC, version DESC`

	structures := []*domain.FeeStructure{}
	if err := sqlx.SelectContext(ctx, r.db, &structures, query, args...); err != nil {
		return nil, translateError(err)
	}
	return structures, nil
}
