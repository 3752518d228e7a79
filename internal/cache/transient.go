package cache

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Transient is an in-memory cache scoped to one processing batch.
// Concurrent loads of the same key share a single call to the loader.
type Transient[V any] struct {
	id    string
	mu    sync.RWMutex
	items map[string]V
	group singleflight.Group
}

// NewTransient creates an empty batch cache with a fresh batch ID.
func NewTransient[V any]() *Transient[V] {
	return &Transient[V]{
		id:    uuid.NewString(),
		items: make(map[string]V),
	}
}

// ID returns the batch ID.
func (t *Transient[V]) ID() string {
	return t.id
}

func (t *Transient[V]) Get(key string) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[key]
	return v, ok
}

func (t *Transient[V]) Set(key string, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[key] = value
}

// GetOrLoad returns the cached value for key, or calls load once and caches its result.
// Failed loads are not cached.
func (t *Transient[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := t.Get(key); ok {
		return v, nil
	}
	res, err, _ := t.group.Do(key, func() (interface{}, error) {
		if v, ok := t.Get(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return v, err
		}
		t.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		if v, ok := res.(V); ok {
			return v, err
		}
		return zero, err
	}
	return res.(V), nil
}
