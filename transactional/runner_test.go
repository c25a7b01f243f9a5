package transactional

import (
	"context"
	"errors"
	"testing"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-ambient-tx/ambient"
	"github.com/goliatone/go-ambient-tx/datasource"
	"github.com/goliatone/go-ambient-tx/pkg/testsupport"
)

func insertUser(ctx context.Context, ex bun.IDB, id, name string) error {
	u := testsupport.User{ID: id, Name: name}
	_, err := ex.NewInsert().Model(&u).Exec(ctx)
	return err
}

func boundExecutor(t *testing.T, ctx context.Context, name string) bun.IDB {
	t.Helper()
	ex, ok := ambient.ExecutorFor(ctx, name)
	if !ok {
		t.Fatalf("no ambient executor bound for %q", name)
	}
	return ex
}

func TestRun_CommitsOnSuccess(t *testing.T) {
	reg, db := testsupport.NewRegistry(t)
	testsupport.CreateSchema(t, db)
	ctx := context.Background()

	err := RunDefault(ctx, reg, func(ctx context.Context) error {
		return insertUser(ctx, boundExecutor(t, ctx, datasource.Default), "u-1", "alice")
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testsupport.CountUsers(t, ctx, db); got != 1 {
		t.Errorf("rows = %d, want 1", got)
	}
}

func TestRun_RollsBackAndRethrowsSameError(t *testing.T) {
	reg, db := testsupport.NewRegistry(t)
	testsupport.CreateSchema(t, db)
	ctx := context.Background()

	errBusiness := errors.New("business rule violated")
	err := RunDefault(ctx, reg, func(ctx context.Context) error {
		if err := insertUser(ctx, boundExecutor(t, ctx, datasource.Default), "u-1", "alice"); err != nil {
			return err
		}
		return errBusiness
	})

	// The caller observes the original error, not a substitute.
	if !errors.Is(err, errBusiness) {
		t.Fatalf("Run returned %v, want the business error", err)
	}
	if got := testsupport.CountUsers(t, ctx, db); got != 0 {
		t.Errorf("rows after rollback = %d, want 0", got)
	}
}

func TestRun_EngineErrorPropagatesAndRollsBack(t *testing.T) {
	reg, db := testsupport.NewRegistry(t)
	testsupport.CreateSchema(t, db)
	ctx := context.Background()

	err := RunDefault(ctx, reg, func(ctx context.Context) error {
		ex := boundExecutor(t, ctx, datasource.Default)
		if err := insertUser(ctx, ex, "u-1", "alice"); err != nil {
			return err
		}
		// Duplicate primary key: the engine error is not caught anywhere
		// below the wrapper, so it drives the rollback.
		return insertUser(ctx, ex, "u-1", "alice-again")
	})
	if err == nil {
		t.Fatal("expected constraint violation to surface")
	}
	if got := testsupport.CountUsers(t, ctx, db); got != 0 {
		t.Errorf("rows after engine-error rollback = %d, want 0", got)
	}
}

func TestRun_NestedSameConnectionJoins(t *testing.T) {
	reg, db := testsupport.NewRegistry(t)
	testsupport.CreateSchema(t, db)
	ctx := context.Background()

	err := RunDefault(ctx, reg, func(outer context.Context) error {
		outerEx := boundExecutor(t, outer, datasource.Default)
		if err := insertUser(outer, outerEx, "u-outer", "outer"); err != nil {
			return err
		}

		return RunDefault(outer, reg, func(inner context.Context) error {
			innerEx := boundExecutor(t, inner, datasource.Default)
			if innerEx != outerEx {
				t.Error("inner call opened a second transaction instead of joining")
			}
			// Pre-commit visibility across inner and outer: the outer
			// insert is readable through the shared transaction.
			if got := testsupport.CountUsers(t, inner, innerEx); got != 1 {
				t.Errorf("inner sees %d rows pre-commit, want 1", got)
			}
			return insertUser(inner, innerEx, "u-inner", "inner")
		})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testsupport.CountUsers(t, ctx, db); got != 2 {
		t.Errorf("rows after joint commit = %d, want 2", got)
	}
}

func TestRun_NestedJoinRollsBackTogether(t *testing.T) {
	reg, db := testsupport.NewRegistry(t)
	testsupport.CreateSchema(t, db)
	ctx := context.Background()

	errOuter := errors.New("outer fails after inner returned")
	err := RunDefault(ctx, reg, func(outer context.Context) error {
		inner := RunDefault(outer, reg, func(ctx context.Context) error {
			return insertUser(ctx, boundExecutor(t, ctx, datasource.Default), "u-inner", "inner")
		})
		if inner != nil {
			return inner
		}
		return errOuter
	})
	if !errors.Is(err, errOuter) {
		t.Fatalf("Run returned %v", err)
	}

	// The inner call joined the outer scope, so its write rolls back with
	// the outer failure.
	if got := testsupport.CountUsers(t, ctx, db); got != 0 {
		t.Errorf("rows = %d, want 0", got)
	}
}

func TestRun_DifferentConnectionsAreIndependent(t *testing.T) {
	reg, db := testsupport.NewRegistry(t)
	testsupport.CreateSchema(t, db)
	audit := testsupport.NewSQLiteDB(t)
	testsupport.CreateSchema(t, audit)
	reg.Register("audit", audit)
	ctx := context.Background()

	errOuter := errors.New("outer failure")
	err := RunDefault(ctx, reg, func(outer context.Context) error {
		if err := insertUser(outer, boundExecutor(t, outer, datasource.Default), "u-1", "alice"); err != nil {
			return err
		}
		// Independent transaction on another connection; no cross-connection
		// atomicity, so its commit survives the outer rollback.
		if err := Run(outer, reg, "audit", func(ctx context.Context) error {
			return insertUser(ctx, boundExecutor(t, ctx, "audit"), "a-1", "audit entry")
		}); err != nil {
			return err
		}
		return errOuter
	})
	if !errors.Is(err, errOuter) {
		t.Fatalf("Run returned %v", err)
	}

	if got := testsupport.CountUsers(t, ctx, db); got != 0 {
		t.Errorf("default rows = %d, want 0 (rolled back)", got)
	}
	if got := testsupport.CountUsers(t, ctx, audit); got != 1 {
		t.Errorf("audit rows = %d, want 1 (committed independently)", got)
	}
}

func TestRun_UnknownConnection(t *testing.T) {
	reg := datasource.NewRegistry()

	err := Run(context.Background(), reg, "ghost", func(ctx context.Context) error {
		t.Fatal("unit of work must not run without a data source")
		return nil
	})
	var unknown *datasource.UnknownConnectionError
	if !errors.As(err, &unknown) {
		t.Fatalf("Run returned %v, want *UnknownConnectionError", err)
	}
}

func TestRun_DisabledSwitchSkipsScope(t *testing.T) {
	reg, db := testsupport.NewRegistry(t)
	testsupport.CreateSchema(t, db)
	t.Setenv(DisableEnvVar, "true")
	ctx := context.Background()

	err := RunDefault(ctx, reg, func(ctx context.Context) error {
		if _, ok := ambient.ExecutorFor(ctx, datasource.Default); ok {
			t.Error("disabled mode must run the unit of work unbound")
		}
		// Unwrapped writes go straight to the data source.
		return insertUser(ctx, db, "u-1", "alice")
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := testsupport.CountUsers(t, ctx, db); got != 1 {
		t.Errorf("rows = %d, want 1", got)
	}
}

func TestRunWithResult(t *testing.T) {
	reg, db := testsupport.NewRegistry(t)
	testsupport.CreateSchema(t, db)
	testsupport.SeedUsers(t, db, 3)
	ctx := context.Background()

	count, err := RunWithResult(ctx, reg, datasource.Default, func(ctx context.Context) (int, error) {
		ex := boundExecutor(t, ctx, datasource.Default)
		return ex.NewSelect().Model((*testsupport.User)(nil)).Count(ctx)
	})
	if err != nil {
		t.Fatalf("RunWithResult: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	_, err = RunWithResult(ctx, reg, datasource.Default, func(ctx context.Context) (int, error) {
		return 42, errors.New("fail")
	})
	if err == nil {
		t.Error("expected error from failing unit of work")
	}
}
