package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type sequenceRepository struct {
	db sqlx.ExtContext
}

func NewSequenceRepository(db sqlx.ExtContext) SequenceRepository {
	return &sequenceRepository{db: db}
}

// Next holds the row lock for day until the surrounding transaction ends, so
// concurrent payments on the same day are serialized on the counter.
func (r *sequenceRepository) Next(ctx context.Context, day string) (int64, error) {
	query := `
		INSERT INTO receipt_sequences (day, last_value)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_value = receipt_sequences.last_value + 1
		RETURNING last_value
	`

	var next int64
	if err := sqlx.GetContext(ctx, r.db, &next, query, day); err != nil {
		return 0, translateError(err)
	}
	return next, nil
}
