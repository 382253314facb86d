package store

import (
	"context"
	"sync"
)

// Optimistic is a two-phase local mutation.
//
// Speculative runs first and must only touch local state. Confirm issues the
// remote call. When Confirm fails, Resync rebuilds local state from the remote
// instead of undoing Speculative, since the remote may have changed meanwhile.
type Optimistic struct {
	Speculative func()
	Confirm     func(ctx context.Context) error
	Resync      func(ctx context.Context)
}

// Apply runs the phases in order and returns Confirm's error.
func (o Optimistic) Apply(ctx context.Context) error {
	if o.Speculative != nil {
		o.Speculative()
	}
	err := o.Confirm(ctx)
	if err != nil && o.Resync != nil {
		// the caller's context may be the reason Confirm failed
		o.Resync(context.WithoutCancel(ctx))
	}
	return err
}

// collection is an id-keyed ordered slice guarded by a mutex.
type collection[T any] struct {
	mu    sync.RWMutex
	items []T
	id    func(T) string
}

func newCollection[T any](id func(T) string) *collection[T] {
	return &collection[T]{id: id}
}

func (c *collection[T]) snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.items...)
}

func (c *collection[T]) replace(items []T) {
	c.mu.Lock()
	c.items = append([]T(nil), items...)
	c.mu.Unlock()
}

func (c *collection[T]) clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

func (c *collection[T]) get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if c.id(it) == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func (c *collection[T]) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, it := range c.items {
		if c.id(it) == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *collection[T]) filter(keep func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []T
	for _, it := range c.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
