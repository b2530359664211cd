// Package ctxval attaches a mutable value bag to a context. Middlewares that
// run before the handler can publish values (the authenticated user, the
// request id) that code holding an earlier copy of the context still sees.
package ctxval

import (
	"context"
	"sync"
)

type ctxKey struct{}

var defKey = ctxKey{}

type bag struct {
	mu     sync.RWMutex
	values map[any]any
}

// Wrap installs a bag on ctx. Wrapping an already wrapped context is a no-op.
func Wrap(ctx context.Context) context.Context {
	if _, ok := getBag(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, defKey, &bag{values: make(map[any]any)})
}

// Set stores v under k. It does nothing when ctx was not wrapped.
func Set[K comparable, V any](ctx context.Context, k K, v V) {
	b, ok := getBag(ctx)
	if !ok {
		return
	}
	b.mu.Lock()
	b.values[k] = v
	b.mu.Unlock()
}

// Get returns the value stored under k, falling back to the plain context
// values so that keys set through context.WithValue are also visible.
func Get[K comparable, V any](ctx context.Context, k K) (V, bool) {
	if b, ok := getBag(ctx); ok {
		b.mu.RLock()
		raw, found := b.values[k]
		b.mu.RUnlock()
		if found {
			v, ok := raw.(V)
			return v, ok
		}
	}
	v, ok := ctx.Value(k).(V)
	return v, ok
}

func Delete[K comparable](ctx context.Context, k K) {
	b, ok := getBag(ctx)
	if !ok {
		return
	}
	b.mu.Lock()
	delete(b.values, k)
	b.mu.Unlock()
}

func getBag(ctx context.Context) (*bag, bool) {
	b, ok := ctx.Value(defKey).(*bag)
	return b, ok
}
