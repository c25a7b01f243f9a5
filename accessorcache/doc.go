// Package accessorcache decorates data accessors with read-through caching.
//
// # Overview
//
// CachedAccessor[T] wraps an accessor.DataAccessor[T]: read operations are
// answered from the cache when possible, write operations pass through and
// invalidate the entity's cached reads. It is a drop-in replacement for the
// accessor it wraps.
//
// # Transaction awareness
//
// A read issued inside an ambient transaction bypasses the cache entirely
// and runs on the chain's bound executor. This prevents
//
//   - reading cached data that predates the chain's own uncommitted writes
//   - polluting the shared cache with uncommitted transaction data
//
// The check is the presence of any ambient binding, so the bypass costs one
// context lookup on the non-transactional fast path.
//
// # Invalidation
//
// Keys are namespaced per entity ("<entity>::<method>::<args>"); mutations
// invalidate the whole namespace by prefix. Coarser than per-key tracking,
// but correct for filters and pages whose membership a mutation cannot know.
//
// # Relationship to the duplicate-lookup cache
//
// This cache is independent of the cachestore-backed duplicate-lookup cache
// the plain accessor consults for FindByPK cache options: that one is scoped
// to a validation/handler pair with TTL and once-eviction; this one is a
// long-lived read-through layer with method-level invalidation.
package accessorcache
