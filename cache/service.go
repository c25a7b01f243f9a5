package cache

import "context"

// KeySerializer builds a cache key from a method name plus arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn loads a value from the source of truth on a cache miss.
type FetchFn = func(ctx context.Context) (any, error)

// CacheService exposes the read-through operations the cached accessor
// decorator needs. Exported so alternate backends can be plugged in.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetch FetchFn) (any, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// GetOrFetch is the type-safe wrapper over CacheService.GetOrFetch.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	result, err := service.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		// nil interface or cross-type entry: fail soft with the zero value
		// rather than panicking on assertion.
		var zero T
		return zero, nil
	}
	return typed, nil
}
