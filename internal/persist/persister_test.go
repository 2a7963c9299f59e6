package persist_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nikolayk812/storefront-cart/internal/cart"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/nikolayk812/storefront-cart/internal/logger"
	"github.com/nikolayk812/storefront-cart/internal/persist"
	"github.com/nikolayk812/storefront-cart/internal/port"
	"github.com/nikolayk812/storefront-cart/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "persist:test"

func TestRehydrate(t *testing.T) {
	tests := []struct {
		name      string
		repo      func(t *testing.T) port.StateRepository
		wantItems int
		wantCount int
	}{
		{
			name: "nothing saved: empty",
			repo: func(t *testing.T) port.StateRepository {
				return repository.NewMemory()
			},
		},
		{
			name: "corrupt payload: empty",
			repo: func(t *testing.T) port.StateRepository {
				return seeded(t, `{"cart":`, 3)
			},
		},
		{
			name: "load fails: empty",
			repo: func(t *testing.T) port.StateRepository {
				return &failingRepository{err: errors.New("connection refused")}
			},
		},
		{
			name: "saved cart: restored",
			repo: func(t *testing.T) port.StateRepository {
				return seeded(t, `{"cart":{"items":[{"id":1,"price":"5","quantity":2},{"id":2,"price":1,"quantity":1}],"count":3}}`, 3)
			},
			wantItems: 2,
			wantCount: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cart.NewStore()
			p := persist.New(store, tt.repo(t), persist.WithKey(testKey))

			c := p.Rehydrate(t.Context())

			assert.Len(t, c.Items, tt.wantItems)
			assert.Equal(t, tt.wantCount, c.Count)
			assert.Equal(t, c, store.Snapshot())
		})
	}
}

func TestRehydrateKeepsRevision(t *testing.T) {
	store := cart.NewStore()
	p := persist.New(store, seeded(t, `{"cart":{"items":[{"id":1,"price":"5","quantity":1}],"count":1}}`, 10), persist.WithKey(testKey))

	p.Rehydrate(t.Context())

	assert.Equal(t, uint64(10), store.Revision())
}

func TestRunMirrorsEveryCommit(t *testing.T) {
	repo := repository.NewMemory()
	store := cart.NewStore()
	p := persist.New(store, repo, persist.WithKey(testKey))

	stop := runPersister(t, p)

	store.Add(domain.Product{ID: 1, SellingPrice: domain.PriceString("19.99")})
	store.Add(domain.Product{ID: 1})
	store.Add(domain.Product{ID: 2})
	store.UpdateQuantity(2, -1)

	require.Eventually(t, func() bool {
		record, err := repo.Load(context.Background(), testKey)
		return err == nil && record.Revision == store.Revision()
	}, 2*time.Second, 10*time.Millisecond)

	stop()

	restored := cart.NewStore()
	persist.New(restored, repo, persist.WithKey(testKey)).Rehydrate(t.Context())

	c := restored.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, int64(1), c.Items[0].ID)
	assert.Equal(t, 2, c.Count)
}

func TestRunReplacesCorruptRecord(t *testing.T) {
	repo := seeded(t, `{"cart":`, 5)
	store := cart.NewStore()
	p := persist.New(store, repo, persist.WithKey(testKey))

	c := p.Rehydrate(t.Context())
	assert.True(t, c.IsEmpty())
	assert.Equal(t, uint64(5), store.Revision())

	stop := runPersister(t, p)
	store.Add(domain.Product{ID: 1})
	store.Add(domain.Product{ID: 2})
	stop()

	assertStoredCart(t, repo, store)
}

func TestRunCatchesUpAfterFailedLoad(t *testing.T) {
	repo := &flakyLoadRepository{
		StateRepository: seeded(t, `{"cart":{"items":[{"id":9,"price":"1","quantity":4}],"count":4}}`, 7),
		failures:        1,
	}
	store := cart.NewStore()
	p := persist.New(store, repo, persist.WithKey(testKey))

	c := p.Rehydrate(t.Context())
	assert.True(t, c.IsEmpty())
	assert.Zero(t, store.Revision())

	stop := runPersister(t, p)
	store.Add(domain.Product{ID: 1})
	store.Add(domain.Product{ID: 1})

	require.Eventually(t, func() bool {
		record, err := repo.Load(context.Background(), testKey)
		return err == nil && record.Revision == store.Revision() && record.Revision > 7
	}, 2*time.Second, 10*time.Millisecond)
	stop()

	assertStoredCart(t, repo, store)
}

func TestRunFlushesOnShutdown(t *testing.T) {
	repo := &slowRepository{StateRepository: repository.NewMemory(), delay: 50 * time.Millisecond}
	store := cart.NewStore()
	p := persist.New(store, repo, persist.WithKey(testKey))

	stop := runPersister(t, p)

	for range 20 {
		store.Add(domain.Product{ID: 5})
	}
	stop()

	record, err := repo.Load(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, store.Revision(), record.Revision)
	assert.Less(t, repo.saves(), 20, "pending writes should coalesce")

	c, err := persist.NewCodec().DecodeCart(record.Payload)
	require.NoError(t, err)
	assert.Equal(t, 20, c.Count)
}

func TestRunSwallowsWriteErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: "debug", Output: &syncWriter{w: buf}})

	store := cart.NewStore()
	p := persist.New(store, &failingRepository{err: errors.New("quota exceeded")},
		persist.WithKey(testKey),
		persist.WithLogger(logg),
	)

	stop := runPersister(t, p)

	c := store.Add(domain.Product{ID: 1})
	assert.Equal(t, 1, c.Count)

	stop()

	assert.Contains(t, buf.String(), "failed to persist cart")
	assert.Contains(t, buf.String(), "quota exceeded")
}

func TestWithSliceRespectsWhitelist(t *testing.T) {
	tests := []struct {
		name     string
		codec    persist.Codec
		wantJSON string
	}{
		{
			name:     "default whitelist drops other slices",
			codec:    persist.NewCodec(),
			wantJSON: `{"cart":{"items":[],"count":0}}`,
		},
		{
			name:     "whitelisted slice is stored",
			codec:    persist.Codec{Whitelist: []string{persist.SliceCart, "ui"}},
			wantJSON: `{"cart":{"items":[],"count":0},"ui":{"miniCartOpen":true}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repository.NewMemory()
			store := cart.NewStore()
			p := persist.New(store, repo,
				persist.WithKey(testKey),
				persist.WithCodec(tt.codec),
				persist.WithSlice("ui", func() any { return map[string]bool{"miniCartOpen": true} }),
			)

			stop := runPersister(t, p)
			store.Add(domain.Product{ID: 1})
			store.Remove(1)
			stop()

			record, err := repo.Load(context.Background(), testKey)
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantJSON, string(record.Payload))
		})
	}
}

func TestPurge(t *testing.T) {
	repo := seeded(t, `{"cart":{"items":[],"count":0}}`, 1)
	p := persist.New(cart.NewStore(), repo, persist.WithKey(testKey))

	require.NoError(t, p.Purge(t.Context()))

	_, err := repo.Load(t.Context(), testKey)
	require.ErrorIs(t, err, port.ErrNotFound)

	require.NoError(t, p.Purge(t.Context()), "purging twice is fine")
}

func assertStoredCart(t *testing.T, repo port.StateRepository, store *cart.Store) {
	t.Helper()

	record, err := repo.Load(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, store.Revision(), record.Revision)

	stored, err := persist.NewCodec().DecodeCart(record.Payload)
	require.NoError(t, err)

	want := store.Snapshot()
	assert.Equal(t, want.Count, stored.Count)
	require.Len(t, stored.Items, len(want.Items))
	for i := range want.Items {
		assert.Equal(t, want.Items[i].ID, stored.Items[i].ID)
		assert.Equal(t, want.Items[i].Quantity, stored.Items[i].Quantity)
	}
}

// runPersister starts p.Run and returns a function that stops it and waits.
func runPersister(t *testing.T, p *persist.Persister) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			require.NoError(t, <-done)
		})
	}
	t.Cleanup(stop)

	return stop
}

func seeded(t *testing.T, payload string, revision uint64) port.StateRepository {
	t.Helper()

	repo := repository.NewMemory()
	require.NoError(t, repo.Save(context.Background(), port.Record{
		Key:      testKey,
		Revision: revision,
		Payload:  []byte(payload),
	}))
	return repo
}

type failingRepository struct {
	err error
}

func (r *failingRepository) Load(context.Context, string) (port.Record, error) {
	return port.Record{}, r.err
}

func (r *failingRepository) Save(context.Context, port.Record) error {
	return r.err
}

func (r *failingRepository) Delete(context.Context, string) (bool, error) {
	return false, r.err
}

// flakyLoadRepository fails the first Load calls, then behaves.
type flakyLoadRepository struct {
	port.StateRepository

	mu       sync.Mutex
	failures int
}

func (r *flakyLoadRepository) Load(ctx context.Context, key string) (port.Record, error) {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return port.Record{}, errors.New("connection reset")
	}
	r.mu.Unlock()

	return r.StateRepository.Load(ctx, key)
}

type slowRepository struct {
	port.StateRepository
	delay time.Duration

	mu    sync.Mutex
	count int
}

func (r *slowRepository) Save(ctx context.Context, record port.Record) error {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()

	time.Sleep(r.delay)
	return r.StateRepository.Save(ctx, record)
}

func (r *slowRepository) saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
