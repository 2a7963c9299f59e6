package port

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("state not found")
	ErrStaleRevision = errors.New("stale revision")
)

// Record is one persisted state document.
type Record struct {
	Key       string
	Revision  uint64
	Payload   []byte
	UpdatedAt time.Time
}

type StateRepository interface {
	Load(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, record Record) error
	Delete(ctx context.Context, key string) (bool, error)
}
