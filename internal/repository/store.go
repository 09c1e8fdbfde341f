package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// pgRepositories binds every repository to the same executor, either the
// pool or an open transaction.
type pgRepositories struct {
	structures StructureRepository
	ledgers    LedgerRepository
	receipts   ReceiptRepository
	auditLogs  AuditLogRepository
	sequences  SequenceRepository
}

func newRepositories(db sqlx.ExtContext) *pgRepositories {
	return &pgRepositories{
		structures: NewStructureRepository(db),
		ledgers:    NewLedgerRepository(db),
		receipts:   NewReceiptRepository(db),
		auditLogs:  NewAuditLogRepository(db),
		sequences:  NewSequenceRepository(db),
	}
}

func (r *pgRepositories) Structures() StructureRepository { return r.structures }
func (r *pgRepositories) Ledgers() LedgerRepository       { return r.ledgers }
func (r *pgRepositories) Receipts() ReceiptRepository     { return r.receipts }
func (r *pgRepositories) AuditLogs() AuditLogRepository   { return r.auditLogs }
func (r *pgRepositories) Sequences() SequenceRepository   { return r.sequences }

type postgresStore struct {
	*pgRepositories
	db *sqlx.DB
}

// NewPostgresStore returns a Store backed by db.
func NewPostgresStore(db *sqlx.DB) Store {
	return &postgresStore{
		pgRepositories: newRepositories(db),
		db:             db,
	}
}

// WithTx runs fn at READ COMMITTED; rows that decide a write are read with
// SELECT ... FOR UPDATE by the repositories.
func (s *postgresStore) WithTx(ctx context.Context, fn func(tx Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", translateError(err))
	}
	defer tx.Rollback()

	if err := fn(newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", translateError(err))
	}
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
