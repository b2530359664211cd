package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func ConvertList[A any, B any](listA []A, convert func(A) B) []B {
	listB := make([]B, len(listA))
	for i, a := range listA {
		listB[i] = convert(a)
	}
	return listB
}

// Unique drops zero values and duplicates, keeping the first occurrence order.
func Unique[T comparable](values []T) []T {
	var zero T
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if v == zero {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Ptr returns pointer of any value.
func Ptr[T any](t T) *T {
	return &t
}

// Val returns value if pointer is not null, otherwise it returns zero.
func Val[T any](t *T) T {
	if t != nil {
		return *t
	}
	var def T
	return def
}

// NewTimeoutContext detaches ctx from its parent's cancellation, keeping its
// values, and bounds it with timeout. Used for work that outlives a request.
func NewTimeoutContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// Register adds c to the default registry. When an identical collector is
// already registered, that one is returned instead, so constructors can run
// more than once in a process (tests, several fx apps).
func Register[C prometheus.Collector](c C) (C, error) {
	err := prometheus.Register(c)
	if err == nil {
		return c, nil
	}
	var registered prometheus.AlreadyRegisteredError
	if errors.As(err, &registered) {
		if existing, ok := registered.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	var zero C
	return zero, fmt.Errorf("register: %w", err)
}

var latencyBuckets = []float64{
	0.0005, 0.001, 0.002, 0.005,
	0.01, 0.02, 0.05,
	0.1, 0.2, 0.5,
	1, 2, 5, 10,
}

func GetHistogramVec(name string, labels ...string) (*prometheus.HistogramVec, error) {
	return Register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Buckets: latencyBuckets,
	}, labels))
}
