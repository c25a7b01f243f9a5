package di

import (
	"context"

	"github.com/goliatone/go-ambient-tx/accessor"
	"github.com/goliatone/go-ambient-tx/accessorcache"
	"github.com/goliatone/go-ambient-tx/cache"
	"github.com/goliatone/go-ambient-tx/cachestore"
	"github.com/goliatone/go-ambient-tx/datasource"
	"github.com/goliatone/go-ambient-tx/transactional"
)

// Config configures every component the container wires together.
type Config struct {
	// Cache configures the read-through cache service. Zero value means
	// cache.DefaultConfig.
	Cache cache.Config

	// CacheStoreCapacity bounds the duplicate-lookup cache. Zero keeps the
	// store default.
	CacheStoreCapacity int

	// DataSources are opened and registered at construction, in order.
	DataSources []datasource.Config
}

// Container wires the data source registry, the duplicate-lookup cache
// store, and the read-through cache service behind a single construction
// site. It manages singleton instances; accessors are created per entity
// through the package-level factory functions.
type Container struct {
	registry      *datasource.Registry
	store         *cachestore.Store
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	config        Config
}

// New creates a container, opening every configured data source. On any
// open failure the already-opened connections are closed before returning.
func New(config Config) (*Container, error) {
	if config.Cache == (cache.Config{}) {
		config.Cache = cache.DefaultConfig()
	}

	cacheService, err := cache.NewCacheService(config.Cache)
	if err != nil {
		return nil, err
	}

	registry := datasource.NewRegistry()
	for _, cfg := range config.DataSources {
		if _, err := registry.Open(cfg); err != nil {
			registry.Close()
			return nil, err
		}
	}

	var storeOpts []cachestore.Option
	if config.CacheStoreCapacity > 0 {
		storeOpts = append(storeOpts, cachestore.WithCapacity(config.CacheStoreCapacity))
	}

	return &Container{
		registry:      registry,
		store:         cachestore.New(storeOpts...),
		cacheService:  cacheService,
		keySerializer: cache.NewDefaultKeySerializer(),
		config:        config,
	}, nil
}

// NewWithDefaults creates a container with default cache configuration and
// no data sources. Connections can be registered later through Registry.
func NewWithDefaults() (*Container, error) {
	return New(Config{})
}

// Registry returns the singleton data source registry.
func (c *Container) Registry() *datasource.Registry {
	return c.registry
}

// CacheStore returns the singleton duplicate-lookup cache store.
func (c *Container) CacheStore() *cachestore.Store {
	return c.store
}

// CacheService returns the singleton read-through cache service.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// Run executes fn inside a transaction on the named connection.
func (c *Container) Run(ctx context.Context, connection string, fn func(ctx context.Context) error) error {
	return transactional.Run(ctx, c.registry, connection, fn)
}

// RunDefault executes fn inside a transaction on the default connection.
func (c *Container) RunDefault(ctx context.Context, fn func(ctx context.Context) error) error {
	return transactional.RunDefault(ctx, c.registry, fn)
}

// Close releases every connection held by the registry.
func (c *Container) Close() error {
	return c.registry.Close()
}

// NewAccessor creates an accessor for the entity described by meta, wired
// to the container's registry and duplicate-lookup cache store.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function. Example: NewAccessor[User](container, userMeta)
func NewAccessor[T any](container *Container, meta accessor.Meta) *accessor.Accessor[T] {
	return accessor.New[T](container.registry, meta, accessor.WithCacheStore[T](container.store))
}

// NewCachedAccessor creates an accessor for meta and wraps it with the
// read-through cache decorator. Entity keys are namespaced by meta.Name.
func NewCachedAccessor[T any](container *Container, meta accessor.Meta) *accessorcache.CachedAccessor[T] {
	base := NewAccessor[T](container, meta)
	return accessorcache.New[T](meta.Name, base, container.cacheService, container.keySerializer)
}
