package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nikolayk812/storefront-cart/internal/cart"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/nikolayk812/storefront-cart/internal/logger"
	"github.com/nikolayk812/storefront-cart/internal/metrics"
	"github.com/nikolayk812/storefront-cart/internal/port"
)

const (
	DefaultKey          = "persist:root"
	defaultWriteTimeout = 5 * time.Second
	defaultFlushTimeout = 5 * time.Second
)

// Persister mirrors the store into a StateRepository. Writes happen on a
// background goroutine after each commit; failures are logged and counted
// but never reach the caller that mutated the cart.
type Persister struct {
	store   *cart.Store
	repo    port.StateRepository
	codec   Codec
	key     string
	logg    *logger.Logger
	metrics *metrics.CartMetrics

	writeTimeout time.Duration
	flushTimeout time.Duration
	slices       map[string]func() any

	// holds at most the latest unwritten change
	pending     chan cart.Change
	unsubscribe func()
}

type Option func(*Persister)

func WithKey(key string) Option {
	return func(p *Persister) {
		p.key = key
	}
}

func WithCodec(c Codec) Option {
	return func(p *Persister) {
		p.codec = c
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(p *Persister) {
		p.logg = l
	}
}

func WithMetrics(m *metrics.CartMetrics) Option {
	return func(p *Persister) {
		p.metrics = m
	}
}

func WithTimeouts(write, flush time.Duration) Option {
	return func(p *Persister) {
		if write > 0 {
			p.writeTimeout = write
		}
		if flush > 0 {
			p.flushTimeout = flush
		}
	}
}

// WithSlice adds another application state slice to every write. Only
// slices named in the codec whitelist end up in storage.
func WithSlice(name string, read func() any) Option {
	return func(p *Persister) {
		p.slices[name] = read
	}
}

func New(store *cart.Store, repo port.StateRepository, opts ...Option) *Persister {
	p := &Persister{
		store:        store,
		repo:         repo,
		codec:        NewCodec(),
		key:          DefaultKey,
		logg:         logger.Nop(),
		writeTimeout: defaultWriteTimeout,
		flushTimeout: defaultFlushTimeout,
		slices:       make(map[string]func() any),
		pending:      make(chan cart.Change, 1),
	}
	for _, opt := range opts {
		opt(p)
	}

	// subscribe right away so commits made before Run are not missed
	p.unsubscribe = store.Subscribe(p.enqueue)

	return p
}

// Rehydrate restores the saved cart into the store. Missing or unreadable
// state leaves the store empty; it is never a startup error.
func (p *Persister) Rehydrate(ctx context.Context) domain.Cart {
	ctx = p.logg.WithField(ctx, "key", p.key)

	record, err := p.repo.Load(ctx, p.key)
	if errors.Is(err, port.ErrNotFound) {
		p.logg.Info(ctx, "no saved cart, starting empty")
		return p.store.Snapshot()
	}
	if err != nil {
		p.logg.Error(ctx, "failed to load saved cart, starting empty", err)
		return p.store.Snapshot()
	}

	restored, err := p.codec.DecodeCart(record.Payload)
	if err != nil {
		p.logg.Error(ctx, "saved cart is corrupt, starting empty", err)
		// take over the stored revision so the empty cart replaces the record
		return p.store.Restore(domain.Cart{}, record.Revision)
	}

	c := p.store.Restore(restored, record.Revision)
	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"revision": record.Revision,
		"count":    c.Count,
	}), "cart rehydrated")

	return c
}

// Run writes every committed change until ctx is done, then flushes the
// last pending change within the flush timeout. A Persister runs once.
func (p *Persister) Run(ctx context.Context) error {
	defer p.unsubscribe()

	// a write in flight when ctx ends still gets its own timeout
	writeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			p.flush(writeCtx)
			return nil
		case change := <-p.pending:
			p.write(writeCtx, change, p.writeTimeout)
		}
	}
}

// Purge deletes the stored cart. The in-memory cart is left as is.
func (p *Persister) Purge(ctx context.Context) error {
	if _, err := p.repo.Delete(ctx, p.key); err != nil {
		return fmt.Errorf("repo.Delete: %w", err)
	}
	return nil
}

// enqueue runs under the store lock, so it is the only sender and the
// send after draining cannot block.
func (p *Persister) enqueue(change cart.Change) {
	select {
	case p.pending <- change:
		return
	default:
	}

	select {
	case <-p.pending:
	default:
	}
	p.pending <- change
}

// flush drains what is pending. A stale write rebases and enqueues once
// more, hence the second round.
func (p *Persister) flush(ctx context.Context) {
	for range 2 {
		select {
		case change := <-p.pending:
			p.write(ctx, change, p.flushTimeout)
		default:
			return
		}
	}
}

func (p *Persister) write(ctx context.Context, change cart.Change, timeout time.Duration) {
	ctx = p.logg.WithFields(ctx, map[string]any{
		"key":      p.key,
		"revision": change.Revision,
		"op":       string(change.Op),
	})

	start := time.Now()
	err := p.save(ctx, change, timeout)
	duration := time.Since(start)

	switch {
	case err == nil:
		p.metrics.ObserveWrite(duration, metrics.WriteOK)
		p.logg.Debug(ctx, "cart persisted")
	case errors.Is(err, port.ErrStaleRevision):
		p.metrics.ObserveWrite(duration, metrics.WriteStale)
		p.logg.Warn(ctx, "stored cart is newer, rebasing")
		p.rebase(ctx, timeout)
	default:
		p.metrics.ObserveWrite(duration, metrics.WriteError)
		p.logg.Error(ctx, "failed to persist cart", err)
	}
}

// rebase happens when rehydration could not read the record: the store
// revision lags storage. Moving past the stored revision re-enqueues the
// current cart for the next write.
func (p *Persister) rebase(ctx context.Context, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	record, err := p.repo.Load(ctx, p.key)
	if err != nil && !errors.Is(err, port.ErrNotFound) {
		p.logg.Error(ctx, "failed to read stored revision", err)
		return
	}

	revision := p.store.Rebase(record.Revision)
	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"stored_revision": record.Revision,
		"store_revision":  revision,
	}), "store revision rebased")
}

func (p *Persister) save(ctx context.Context, change cart.Change, timeout time.Duration) error {
	state := State{SliceCart: CartSlice(change.Cart)}
	for name, read := range p.slices {
		state[name] = read()
	}

	payload, err := p.codec.Encode(state)
	if err != nil {
		return fmt.Errorf("codec.Encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = p.repo.Save(ctx, port.Record{
		Key:      p.key,
		Revision: change.Revision,
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("repo.Save: %w", err)
	}

	return nil
}
