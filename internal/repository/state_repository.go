package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/storefront-cart/internal/db"
	"github.com/nikolayk812/storefront-cart/internal/port"
)

type stateRepository struct {
	q    *db.Queries
	pool *pgxpool.Pool
}

func NewState(pool *pgxpool.Pool) port.StateRepository {
	return &stateRepository{
		q:    db.New(pool),
		pool: pool,
	}
}

func NewStateWithTx(tx pgx.Tx) port.StateRepository {
	return &stateRepository{
		q:    db.New(tx),
		pool: nil, // use provided transaction instead
	}
}

func (r *stateRepository) Load(ctx context.Context, key string) (port.Record, error) {
	if key == "" {
		return port.Record{}, fmt.Errorf("key is empty")
	}

	row, err := r.q.GetState(ctx, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return port.Record{}, port.ErrNotFound
	}
	if err != nil {
		return port.Record{}, fmt.Errorf("q.GetState: %w", err)
	}

	return mapStateRowToRecord(row)
}

// Save writes the record unless a newer revision is already stored.
func (r *stateRepository) Save(ctx context.Context, record port.Record) error {
	if record.Key == "" {
		return fmt.Errorf("key is empty")
	}
	if record.Revision > math.MaxInt64 {
		return fmt.Errorf("revision[%d] overflows bigint", record.Revision)
	}

	_, err := withTx(ctx, r.pool, r.q, func(q *db.Queries) (struct{}, error) {
		current, err := q.GetRevisionForUpdate(ctx, record.Key)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return struct{}{}, fmt.Errorf("q.GetRevisionForUpdate: %w", err)
		case current > int64(record.Revision):
			return struct{}{}, fmt.Errorf("stored revision[%d] is newer than %d: %w", current, record.Revision, port.ErrStaleRevision)
		}

		err = q.UpsertState(ctx, db.UpsertStateParams{
			Namespace: record.Key,
			Revision:  int64(record.Revision),
			Payload:   record.Payload,
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("q.UpsertState: %w", err)
		}

		return struct{}{}, nil
	})

	return err
}

func (r *stateRepository) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key is empty")
	}

	rowsAffected, err := r.q.DeleteState(ctx, key)
	if err != nil {
		return false, fmt.Errorf("q.DeleteState: %w", err)
	}

	return rowsAffected > 0, nil
}

func mapStateRowToRecord(row db.CartState) (port.Record, error) {
	if row.Revision < 0 {
		return port.Record{}, fmt.Errorf("revision[%d] is negative", row.Revision)
	}

	return port.Record{
		Key:       row.Namespace,
		Revision:  uint64(row.Revision),
		Payload:   row.Payload,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
