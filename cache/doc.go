// Package cache provides the read-through caching contract and key
// serialization used by the cached accessor decorator.
//
// It exports two interfaces with default implementations:
//
//   - CacheService: read-through GetOrFetch plus key and prefix deletion
//   - KeySerializer: stable cache keys from a method name and its arguments
//
// The default CacheService is backed by sturdyc (see NewCacheService); the
// default KeySerializer reflects over arguments, serializing maps with
// sorted keys and structs by exported fields so logically equal arguments
// always hit the same key.
//
// Typical use pairs the two behind a decorator:
//
//	key := serializer.SerializeKey("users"+KeySeparator+"FindByPK", id)
//	user, err := cache.GetOrFetch(ctx, service, key, func(ctx context.Context) (*User, error) {
//		return base.FindByPK(ctx, id)
//	})
//
// GetOrFetch never panics on a nil or cross-type cached value; it degrades
// to the zero value so cache trouble cannot break the underlying data path.
package cache
