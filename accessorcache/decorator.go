package accessorcache

import (
	"context"

	"github.com/goliatone/go-ambient-tx/accessor"
	"github.com/goliatone/go-ambient-tx/ambient"
	"github.com/goliatone/go-ambient-tx/cache"
)

// Interface assertion to ensure CachedAccessor implements DataAccessor[T].
var _ accessor.DataAccessor[any] = (*CachedAccessor[any])(nil)

// CachedAccessor decorates a data accessor with read-through caching. Read
// operations executed inside an ambient transaction bypass the cache so a
// chain never reads stale data past its own uncommitted writes; mutations
// pass through and invalidate the entity's cached reads.
type CachedAccessor[T any] struct {
	base   accessor.DataAccessor[T]
	cache  cache.CacheService
	keys   cache.KeySerializer
	entity string
}

// New wraps base with caching. The entity name namespaces every key so
// invalidation stays scoped to one accessor.
func New[T any](entity string, base accessor.DataAccessor[T], service cache.CacheService, keys cache.KeySerializer) *CachedAccessor[T] {
	return &CachedAccessor[T]{
		base:   base,
		cache:  service,
		keys:   keys,
		entity: entity,
	}
}

func (c *CachedAccessor[T]) key(method string, args ...any) string {
	return c.keys.SerializeKey(c.entity+cache.KeySeparator+method, args...)
}

// inTransaction reports whether the chain holds any ambient binding; cached
// reads are skipped for the duration of a transaction.
func inTransaction(ctx context.Context) bool {
	return ambient.Current(ctx) != nil
}

// invalidate drops every cached read for the entity. Mutations cannot know
// which filters or pages their rows appear in, so the whole namespace goes.
func (c *CachedAccessor[T]) invalidate(ctx context.Context) {
	// Invalidation failures are not fatal: the worst case is a refetch.
	_ = c.cache.DeleteByPrefix(ctx, c.entity+cache.KeySeparator)
}

// FindByPK retrieves a row by primary key through the cache.
func (c *CachedAccessor[T]) FindByPK(ctx context.Context, id any, opts ...accessor.CacheOptions) (*T, error) {
	if inTransaction(ctx) {
		return c.base.FindByPK(ctx, id, opts...)
	}
	return cache.GetOrFetch(ctx, c.cache, c.key("FindByPK", id), func(ctx context.Context) (*T, error) {
		return c.base.FindByPK(ctx, id, opts...)
	})
}

// FindOne retrieves the first row matching the filter through the cache.
func (c *CachedAccessor[T]) FindOne(ctx context.Context, filter accessor.Filter) (*T, error) {
	if inTransaction(ctx) {
		return c.base.FindOne(ctx, filter)
	}
	return cache.GetOrFetch(ctx, c.cache, c.key("FindOne", filter), func(ctx context.Context) (*T, error) {
		return c.base.FindOne(ctx, filter)
	})
}

// FindMany retrieves every row matching the filter through the cache.
func (c *CachedAccessor[T]) FindMany(ctx context.Context, filter accessor.Filter) ([]T, error) {
	if inTransaction(ctx) {
		return c.base.FindMany(ctx, filter)
	}
	return cache.GetOrFetch(ctx, c.cache, c.key("FindMany", filter), func(ctx context.Context) ([]T, error) {
		return c.base.FindMany(ctx, filter)
	})
}

// FindManyPaged retrieves one page through the cache; the page and totals
// are cached as a unit.
func (c *CachedAccessor[T]) FindManyPaged(ctx context.Context, limit, page int, filter accessor.Filter) (accessor.Page[T], error) {
	if inTransaction(ctx) {
		return c.base.FindManyPaged(ctx, limit, page, filter)
	}
	return cache.GetOrFetch(ctx, c.cache, c.key("FindManyPaged", limit, page, filter), func(ctx context.Context) (accessor.Page[T], error) {
		return c.base.FindManyPaged(ctx, limit, page, filter)
	})
}

// Create passes through and invalidates the entity's cached reads.
func (c *CachedAccessor[T]) Create(ctx context.Context, record *T) error {
	err := c.base.Create(ctx, record)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

// CreateMany passes through and invalidates the entity's cached reads.
func (c *CachedAccessor[T]) CreateMany(ctx context.Context, records []T) ([]T, error) {
	out, err := c.base.CreateMany(ctx, records)
	if err == nil {
		c.invalidate(ctx)
	}
	return out, err
}

// Update passes through and invalidates the entity's cached reads.
func (c *CachedAccessor[T]) Update(ctx context.Context, record *T) error {
	err := c.base.Update(ctx, record)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

// Upsert passes through and invalidates the entity's cached reads.
func (c *CachedAccessor[T]) Upsert(ctx context.Context, record *T) error {
	err := c.base.Upsert(ctx, record)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

// Delete passes through and invalidates the entity's cached reads.
func (c *CachedAccessor[T]) Delete(ctx context.Context, record *T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

// Exists is never cached: it backs validation steps that must observe the
// current row, and a stale positive would defeat them.
func (c *CachedAccessor[T]) Exists(ctx context.Context, id any) error {
	return c.base.Exists(ctx, id)
}

// Associate passes through and invalidates the entity's cached reads.
func (c *CachedAccessor[T]) Associate(ctx context.Context, entityID, relatedID any, relation string) error {
	err := c.base.Associate(ctx, entityID, relatedID, relation)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

// Disassociate passes through and invalidates the entity's cached reads.
func (c *CachedAccessor[T]) Disassociate(ctx context.Context, entityID, relatedID any, relation string) error {
	err := c.base.Disassociate(ctx, entityID, relatedID, relation)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

// Raw is never cached: arbitrary SQL cannot be invalidated correctly.
func (c *CachedAccessor[T]) Raw(ctx context.Context, query string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, query, args...)
}
