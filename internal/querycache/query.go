package querycache

import (
	"context"
	"fmt"
	"time"
)

// Result is a typed view of a Snapshot.
type Result[T any] struct {
	Status    Status
	Data      T
	Err       error
	Stale     bool
	UpdatedAt time.Time
}

// Query is Read with a typed fetcher. A cached value of a different type is
// reported as an error rather than a panic.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error), opts ReadOptions) (Result[T], error) {
	snap, err := c.Read(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts)
	return typed[T](snap, err)
}

func typed[T any](snap Snapshot, err error) (Result[T], error) {
	res := Result[T]{
		Status:    snap.Status,
		Err:       snap.Err,
		Stale:     snap.Stale,
		UpdatedAt: snap.UpdatedAt,
	}
	if snap.Data != nil {
		v, ok := snap.Data.(T)
		if !ok {
			terr := fmt.Errorf("cache key %q holds %T", snap.Key, snap.Data)
			res.Status, res.Err = StatusError, terr
			return res, terr
		}
		res.Data = v
	}
	return res, err
}

// MutateOptions holds the callbacks of a mutation.
type MutateOptions[T any] struct {
	// OnSuccess runs after fn succeeds, typically to invalidate keys.
	OnSuccess func(T)
	OnError   func(error)
}

// Mutate runs fn and dispatches its outcome to the callbacks. Mutations are
// never cached.
func Mutate[T any](ctx context.Context, fn func(context.Context) (T, error), opts MutateOptions[T]) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return v, err
	}
	if opts.OnSuccess != nil {
		opts.OnSuccess(v)
	}
	return v, nil
}
