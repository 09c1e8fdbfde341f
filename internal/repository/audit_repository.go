package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/fee-engine/internal/domain"
)

const auditColumns = `id, action, entity_type, entity_id, actor_id, actor_name, actor_role,
	before_snapshot, after_snapshot, metadata, ip_address, user_agent, created_at`

type auditLogRepository struct {
	db sqlx.ExtContext
}

func NewAuditLogRepository(db sqlx.ExtContext) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Append(ctx context.Context, entry *domain.FeeAuditLog) error {
	query := `
		INSERT INTO fee_audit_logs (` + auditColumns + `)
		VALUES (:id, :action, :entity_type, :entity_id, :actor_id, :actor_name, :actor_role,
			:before_snapshot, :after_snapshot, :metadata, :ip_address, :user_agent, :created_at)
	`

	_, err := sqlx.NamedExecContext(ctx, r.db, query, entry)
	return translateError(err)
}

func (r *auditLogRepository) Query(ctx context.Context, filter domain.AuditFilter) ([]*domain.FeeAuditLog, error) {
	where, args := auditConditions(filter)
	page, args := limitOffset(filter.Limit, filter.Offset, args)
	query := `SELECT ` + auditColumns + ` FROM fee_audit_logs` + whereClause(where) +
		` ORDER BY created_at DESC, id` + page

	entries := []*domain.FeeAuditLog{}
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, args...); err != nil {
		return nil, translateError(err)
	}
	return entries, nil
}

func (r *auditLogRepository) ActionSummary(ctx context.Context, from, to *time.Time) ([]domain.ActionCount, error) {
	where, args := auditConditions(domain.AuditFilter{From: from, To: to})
	query := `SELECT action, COUNT(*) AS count FROM fee_audit_logs` + whereClause(where) +
		` GROUP BY action ORDER BY count DESC, action`

	counts := []domain.ActionCount{}
	if err := sqlx.SelectContext(ctx, r.db, &counts, query, args...); err != nil {
		return nil, translateError(err)
	}
	return counts, nil
}

func auditConditions(filter domain.AuditFilter) ([]string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, strings.Replace(cond, "?", placeholder(len(args)), 1))
	}

	if filter.EntityType != "" {
		add("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id = ?", filter.EntityID)
	}
	if filter.ActorID != "" {
		add("actor_id = ?", filter.ActorID)
	}
	if filter.Action != "" {
		add("action = ?", filter.Action)
	}
	if filter.From != nil {
		add("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		add("created_at < ?", *filter.To)
	}
	return where, args
}
