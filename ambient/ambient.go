package ambient

import (
	"context"

	"github.com/uptrace/bun"
)

// Binding maps a connection name to the executor that owns the active
// transaction for that connection. A binding travels with the context, so it
// is visible to everything invoked (directly or transitively) within one call
// chain and to nothing else.
type Binding map[string]bun.IDB

type bindingContextKey struct{}

// With returns a context carrying the given binding merged on top of any
// binding already present. Entries for the same connection name shadow the
// outer ones; other names remain visible. The parent binding is never
// mutated, so the outer chain keeps observing its own view once the inner
// call returns. Restoration is structural, not an explicit operation.
func With(ctx context.Context, b Binding) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(b) == 0 {
		return ctx
	}

	outer := Current(ctx)
	merged := make(Binding, len(outer)+len(b))
	for name, ex := range outer {
		merged[name] = ex
	}
	for name, ex := range b {
		merged[name] = ex
	}

	return context.WithValue(ctx, bindingContextKey{}, merged)
}

// Current returns the binding attached to ctx, or nil when the call chain is
// not executing inside any binding. Callers must treat the result as
// read-only.
func Current(ctx context.Context) Binding {
	if ctx == nil {
		return nil
	}
	if b, ok := ctx.Value(bindingContextKey{}).(Binding); ok {
		return b
	}
	return nil
}

// ExecutorFor reports the executor bound under the given connection name in
// the current chain, if any.
func ExecutorFor(ctx context.Context, name string) (bun.IDB, bool) {
	b := Current(ctx)
	if b == nil {
		return nil, false
	}
	ex, ok := b[name]
	return ex, ok
}

// Run executes fn with the binding attached. It exists for callers that want
// the scoped shape rather than deriving the context themselves.
func Run(ctx context.Context, b Binding, fn func(ctx context.Context) error) error {
	return fn(With(ctx, b))
}
