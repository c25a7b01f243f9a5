// Package datasource maps logical connection names to database handles and
// resolves the executor an operation should run against: the ambient
// transaction when one is bound, the registered handle otherwise.
package datasource

import (
	"context"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ambient-tx/ambient"
)

// Default is the reserved connection name operations target when no name is
// given.
const Default = "default"

// UnknownConnectionError reports a lookup for a connection name that was
// never registered.
type UnknownConnectionError struct {
	Name string
}

func (e *UnknownConnectionError) Error() string {
	if e.Name == Default {
		return "default connection not found"
	}
	return "unknown connection: " + e.Name
}

// Registry holds the process's named data sources. It is constructed
// explicitly and injected where needed; writes happen during startup
// configuration, reads happen continuously, so atomic map operations are the
// only discipline required.
type Registry struct {
	conns *xsync.MapOf[string, *bun.DB]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: xsync.NewMapOf[string, *bun.DB]()}
}

// Register stores db under name. Registering an existing name replaces the
// previous handle (last write wins); callers own avoiding unintended reuse.
// An empty name registers the default connection.
func (r *Registry) Register(name string, db *bun.DB) {
	if name == "" {
		name = Default
	}
	r.conns.Store(name, db)
}

// Open opens a data source from cfg and registers it under cfg.Name.
func (r *Registry) Open(cfg Config) (*bun.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	r.Register(cfg.Name, db)
	return db, nil
}

// Resolve returns the handle registered under name, or an
// *UnknownConnectionError when absent. An empty name resolves the default
// connection.
func (r *Registry) Resolve(name string) (*bun.DB, error) {
	if name == "" {
		name = Default
	}
	db, ok := r.conns.Load(name)
	if !ok {
		return nil, &UnknownConnectionError{Name: name}
	}
	return db, nil
}

// Names returns the currently registered connection names.
func (r *Registry) Names() []string {
	var names []string
	r.conns.Range(func(name string, _ *bun.DB) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Close closes every registered handle and empties the registry. Close
// failures are logged and the first one is returned, but all handles are
// attempted.
func (r *Registry) Close() error {
	var first error
	r.conns.Range(func(name string, db *bun.DB) bool {
		if err := db.Close(); err != nil {
			slog.Error("datasource close failed", "connection", name, "error", err)
			if first == nil {
				first = err
			}
		}
		r.conns.Delete(name)
		return true
	})
	return first
}

// ExecutorFor resolves the executor for the given connection name: the
// ambient transaction bound in ctx when present, the registry's handle
// otherwise. This is the single lookup every data accessor performs, and the
// static surface for ad-hoc composition outside accessors.
func ExecutorFor(ctx context.Context, r *Registry, name string) (bun.IDB, error) {
	if name == "" {
		name = Default
	}
	if ex, ok := ambient.ExecutorFor(ctx, name); ok {
		return ex, nil
	}
	return r.Resolve(name)
}
