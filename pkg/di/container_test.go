package di

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-ambient-tx/accessor"
	"github.com/goliatone/go-ambient-tx/cache"
	"github.com/goliatone/go-ambient-tx/datasource"
	"github.com/goliatone/go-ambient-tx/pkg/testsupport"
)

func sqliteConfig(name string) datasource.Config {
	return datasource.Config{
		Name:         name,
		Driver:       datasource.DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

func newTestContainer(t *testing.T) *Container {
	t.Helper()
	c, err := New(Config{DataSources: []datasource.Config{sqliteConfig("")}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	db, err := c.Registry().Resolve(datasource.Default)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	testsupport.CreateSchema(t, db)
	return c
}

func TestNewWithDefaults(t *testing.T) {
	c, err := NewWithDefaults()
	if err != nil {
		t.Fatalf("NewWithDefaults: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if c.Registry() == nil {
		t.Error("Registry() is nil")
	}
	if c.CacheStore() == nil {
		t.Error("CacheStore() is nil")
	}
	if c.CacheService() == nil {
		t.Error("CacheService() is nil")
	}
	if c.KeySerializer() == nil {
		t.Error("KeySerializer() is nil")
	}
	if got := c.Config().Cache; got != cache.DefaultConfig() {
		t.Errorf("zero cache config should resolve to defaults, got %+v", got)
	}
}

func TestContainer_SingletonAccessors(t *testing.T) {
	c, err := NewWithDefaults()
	if err != nil {
		t.Fatalf("NewWithDefaults: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if c.CacheService() != c.CacheService() {
		t.Error("CacheService() returned different instances")
	}
	if c.KeySerializer() != c.KeySerializer() {
		t.Error("KeySerializer() returned different instances")
	}
	if c.Registry() != c.Registry() {
		t.Error("Registry() returned different instances")
	}
	if c.CacheStore() != c.CacheStore() {
		t.Error("CacheStore() returned different instances")
	}
}

func TestNew_InvalidCacheConfig(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.Capacity = -1
	if _, err := New(Config{Cache: cfg}); err == nil {
		t.Fatal("expected cache config error")
	}
}

func TestNew_InvalidDataSource(t *testing.T) {
	_, err := New(Config{DataSources: []datasource.Config{{
		Name:   "bad",
		Driver: datasource.Driver("oracle"),
		DSN:    "whatever",
	}}})
	var cfgErr *datasource.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New = %v, want *datasource.ConfigError", err)
	}
}

func TestNewAccessor_RoundTrip(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	users := NewAccessor[testsupport.User](c, accessor.Meta{Name: "users"})

	if err := users.Create(ctx, &testsupport.User{ID: "u-001", Name: "alice"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := users.FindByPK(ctx, "u-001")
	if err != nil {
		t.Fatalf("FindByPK: %v", err)
	}
	if got == nil || got.Name != "alice" {
		t.Errorf("FindByPK = %+v", got)
	}
}

func TestNewAccessor_UsesContainerCacheStore(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	users := NewAccessor[testsupport.User](c, accessor.Meta{Name: "users"})

	if err := users.Create(ctx, &testsupport.User{ID: "u-001", Name: "alice"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := users.FindByPK(ctx, "u-001", accessor.CacheOptions{TTL: time.Minute}); err != nil {
		t.Fatalf("FindByPK: %v", err)
	}
	if c.CacheStore().Len() == 0 {
		t.Error("cached lookup did not land in the container's store")
	}
}

func TestNewCachedAccessor_ServesSecondReadFromCache(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	users := NewCachedAccessor[testsupport.User](c, accessor.Meta{Name: "users"})

	if err := users.Create(ctx, &testsupport.User{ID: "u-001", Name: "alice"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, err := users.FindByPK(ctx, "u-001")
	if err != nil {
		t.Fatalf("FindByPK: %v", err)
	}

	// Delete the row behind the cache; a cached read still sees it.
	base := NewAccessor[testsupport.User](c, accessor.Meta{Name: "users"})
	if err := base.Delete(ctx, &testsupport.User{ID: "u-001"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	second, err := users.FindByPK(ctx, "u-001")
	if err != nil {
		t.Fatalf("FindByPK: %v", err)
	}
	if second == nil || second.Name != first.Name {
		t.Errorf("second read = %+v, want cached %+v", second, first)
	}
}

func TestContainer_RunDefaultRollsBackOnError(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	users := NewAccessor[testsupport.User](c, accessor.Meta{Name: "users"})

	sentinel := errors.New("abort")
	err := c.RunDefault(ctx, func(ctx context.Context) error {
		if err := users.Create(ctx, &testsupport.User{ID: "u-001", Name: "alice"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunDefault = %v, want %v", err, sentinel)
	}

	got, err := users.FindByPK(ctx, "u-001")
	if err != nil {
		t.Fatalf("FindByPK: %v", err)
	}
	if got != nil {
		t.Errorf("rolled back row is visible: %+v", got)
	}
}
