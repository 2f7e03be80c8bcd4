// Package dedupe remembers the outcome of client requests that carry an
// idempotency key, so a retried submission replays the first response
// instead of being applied twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper maps request keys to the result they produced.
type Deduper[V any] interface {
	// Lookup returns the recorded result for key.
	Lookup(ctx context.Context, key string) (V, bool)

	// Record stores v for key unless key is already present.
	// Returns false when an earlier result was kept.
	Record(ctx context.Context, key string, v V) bool

	Size() int64
}

type entry[V any] struct {
	key string
	val V
}

// inMemoryDeduper keeps results in insertion order and evicts the oldest
// entry once maxSize is reached. maxSize <= 0 means unbounded.
type inMemoryDeduper[V any] struct {
	mu      sync.Mutex
	byKey   map[string]*list.Element
	order   *list.List // front is newest
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper[V any](opts ...Option) Deduper[V] {
	cfg := config{maxSize: 50000}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &inMemoryDeduper[V]{
		byKey:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: cfg.maxSize,
	}
}

// Lookup implements Deduper.
func (d *inMemoryDeduper[V]) Lookup(_ context.Context, key string) (V, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.byKey[key]; ok {
		return el.Value.(*entry[V]).val, true
	}
	var zero V
	return zero, false
}

// Record implements Deduper.
func (d *inMemoryDeduper[V]) Record(_ context.Context, key string, v V) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byKey[key]; ok {
		return false
	}
	if d.maxSize > 0 && len(d.byKey) >= d.maxSize {
		d.evictOldest()
	}
	d.byKey[key] = d.order.PushFront(&entry[V]{key: key, val: v})
	d.size.Add(1)
	return true
}

// evictOldest drops the least recently recorded key. Caller holds d.mu.
func (d *inMemoryDeduper[V]) evictOldest() {
	el := d.order.Back()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.byKey, el.Value.(*entry[V]).key)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper[V]) Size() int64 {
	return d.size.Load()
}
