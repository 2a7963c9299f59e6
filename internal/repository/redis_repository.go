package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nikolayk812/storefront-cart/internal/port"
	"github.com/redis/go-redis/v9"
)

const (
	fieldRevision  = "revision"
	fieldPayload   = "payload"
	fieldUpdatedAt = "updated_at"

	maxWatchRetries = 3
)

type redisRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis stores each record as a hash. A positive ttl lets Redis evict
// state that has not been written for that long.
func NewRedis(client redis.UniversalClient, ttl time.Duration) port.StateRepository {
	return &redisRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *redisRepository) Load(ctx context.Context, key string) (port.Record, error) {
	if key == "" {
		return port.Record{}, fmt.Errorf("key is empty")
	}

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return port.Record{}, fmt.Errorf("client.HGetAll: %w", err)
	}
	if len(fields) == 0 {
		return port.Record{}, port.ErrNotFound
	}

	return mapHashToRecord(key, fields)
}

// Save is an optimistic WATCH/MULTI transaction; a concurrent writer makes
// it retry a bounded number of times.
func (r *redisRepository) Save(ctx context.Context, record port.Record) error {
	if record.Key == "" {
		return fmt.Errorf("key is empty")
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, record.Key, fieldRevision).Uint64()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("tx.HGet: %w", err)
		case current > record.Revision:
			return fmt.Errorf("stored revision[%d] is newer than %d: %w", current, record.Revision, port.ErrStaleRevision)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, record.Key,
				fieldRevision, strconv.FormatUint(record.Revision, 10),
				fieldPayload, record.Payload,
				fieldUpdatedAt, time.Now().UTC().Format(time.RFC3339Nano),
			)
			if r.ttl > 0 {
				pipe.Expire(ctx, record.Key, r.ttl)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("tx.TxPipelined: %w", err)
		}

		return nil
	}

	var err error
	for range maxWatchRetries {
		err = r.client.Watch(ctx, txf, record.Key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("client.Watch: %w", err)
	}

	return nil
}

func (r *redisRepository) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key is empty")
	}

	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("client.Del: %w", err)
	}

	return deleted > 0, nil
}

func mapHashToRecord(key string, fields map[string]string) (port.Record, error) {
	revision, err := strconv.ParseUint(fields[fieldRevision], 10, 64)
	if err != nil {
		return port.Record{}, fmt.Errorf("revision[%s] is not valid: %w", fields[fieldRevision], err)
	}

	record := port.Record{
		Key:      key,
		Revision: revision,
		Payload:  []byte(fields[fieldPayload]),
	}

	if raw := fields[fieldUpdatedAt]; raw != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return port.Record{}, fmt.Errorf("updated_at[%s] is not valid: %w", raw, err)
		}
		record.UpdatedAt = updatedAt
	}

	return record, nil
}
