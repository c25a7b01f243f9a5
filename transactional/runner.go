// Package transactional runs units of work inside a database transaction
// whose executor is bound ambiently, so everything the unit calls shares the
// transaction without parameter threading.
package transactional

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/goliatone/go-ambient-tx/ambient"
	"github.com/goliatone/go-ambient-tx/datasource"
)

// DisableEnvVar disables scope creation entirely when set to a truthy value.
// Used for automated test runs; the unit of work then executes unwrapped and
// unbound. The variable is read at each wrapper invocation.
const DisableEnvVar = "AMBIENT_TX_DISABLED"

func disabled() bool {
	v, ok := os.LookupEnv(DisableEnvVar)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// Run executes fn inside a transaction on the named connection (empty name
// means the default connection).
//
// If the ambient binding already carries an executor for the name, fn runs
// directly and joins the outer transaction; transactions do not nest. A call
// targeting a different connection name opens an independent scope with no
// cross-connection atomicity.
//
// Otherwise a scope is opened and fn runs with the scope's executor bound
// under the connection name. On success the scope commits; when fn or the
// commit fails the scope rolls back and the triggering error is rethrown
// unchanged. A rollback failure is logged, never masking it. Release runs
// unconditionally on every exit path.
func Run(ctx context.Context, reg *datasource.Registry, name string, fn func(ctx context.Context) error) error {
	if name == "" {
		name = datasource.Default
	}
	if disabled() {
		return fn(ctx)
	}
	if _, ok := ambient.ExecutorFor(ctx, name); ok {
		return fn(ctx)
	}

	db, err := reg.Resolve(name)
	if err != nil {
		return err
	}

	scope := NewScope(db, name)
	if err := scope.Begin(ctx); err != nil {
		return err
	}
	defer scope.Release()

	err = fn(ambient.With(ctx, ambient.Binding{name: scope.Executor()}))
	if err == nil {
		if err = scope.Commit(ctx); err == nil {
			return nil
		}
	}

	if rbErr := scope.Rollback(ctx); rbErr != nil {
		slog.Error("transaction rollback failed",
			"connection", name, "error", rbErr, "cause", err)
	}
	return err
}

// RunDefault is Run against the default connection.
func RunDefault(ctx context.Context, reg *datasource.Registry, fn func(ctx context.Context) error) error {
	return Run(ctx, reg, datasource.Default, fn)
}

// RunWithResult is Run for units of work that produce a value. The zero
// value is returned whenever the transaction fails.
func RunWithResult[T any](ctx context.Context, reg *datasource.Registry, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Run(ctx, reg, name, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
