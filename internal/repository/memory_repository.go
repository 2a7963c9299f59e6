package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nikolayk812/storefront-cart/internal/port"
)

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string]port.Record
	now     func() time.Time
}

// NewMemory returns a process-local StateRepository. State is lost on exit.
func NewMemory() port.StateRepository {
	return &memoryRepository{
		records: make(map[string]port.Record),
		now:     time.Now,
	}
}

func (r *memoryRepository) Load(_ context.Context, key string) (port.Record, error) {
	if key == "" {
		return port.Record{}, fmt.Errorf("key is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[key]
	if !ok {
		return port.Record{}, port.ErrNotFound
	}
	record.Payload = slices.Clone(record.Payload)

	return record, nil
}

func (r *memoryRepository) Save(_ context.Context, record port.Record) error {
	if record.Key == "" {
		return fmt.Errorf("key is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.records[record.Key]; ok && current.Revision > record.Revision {
		return fmt.Errorf("stored revision[%d] is newer than %d: %w", current.Revision, record.Revision, port.ErrStaleRevision)
	}

	record.Payload = slices.Clone(record.Payload)
	record.UpdatedAt = r.now().UTC()
	r.records[record.Key] = record

	return nil
}

func (r *memoryRepository) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.records[key]
	delete(r.records, key)

	return ok, nil
}
