// Package testsupport provides database fixtures for package tests: an
// in-memory sqlite data source, a small schema with a many-to-many relation,
// and seed helpers.
package testsupport

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ambient-tx/datasource"
)

// User is the primary test entity.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID    string `bun:"id,pk" json:"id"`
	Name  string `bun:"name" json:"name"`
	Email string `bun:"email" json:"email"`
}

// Tag relates to User through the user_tags join table.
type Tag struct {
	bun.BaseModel `bun:"table:tags"`

	ID    string `bun:"id,pk" json:"id"`
	Label string `bun:"label" json:"label"`
}

// NewSQLiteDB opens a private in-memory sqlite database that lives for the
// duration of the test. The shared-cache DSN keeps the database alive across
// pooled connections; the random name keeps tests isolated from each other.
func NewSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := datasource.Open(datasource.Config{
		Driver:       datasource.DriverSQLite,
		DSN:          dsn,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// NewRegistry returns a registry with a fresh sqlite database registered as
// the default connection.
func NewRegistry(t *testing.T) (*datasource.Registry, *bun.DB) {
	t.Helper()

	db := NewSQLiteDB(t)
	reg := datasource.NewRegistry()
	reg.Register(datasource.Default, db)
	return reg, db
}

// CreateSchema creates the users/tags tables and their join table.
func CreateSchema(t *testing.T, db *bun.DB) {
	t.Helper()

	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT NOT NULL, email TEXT NOT NULL DEFAULT '')`,
		`CREATE TABLE tags (id TEXT PRIMARY KEY, label TEXT NOT NULL)`,
		`CREATE TABLE user_tags (user_id TEXT NOT NULL, tag_id TEXT NOT NULL, PRIMARY KEY (user_id, tag_id))`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
}

// SeedUsers inserts n users named user-01..user-n and returns them in
// insertion order.
func SeedUsers(t *testing.T, db *bun.DB, n int) []User {
	t.Helper()

	ctx := context.Background()
	users := make([]User, 0, n)
	for i := 1; i <= n; i++ {
		users = append(users, User{
			ID:    fmt.Sprintf("u-%03d", i),
			Name:  fmt.Sprintf("user-%02d", i),
			Email: fmt.Sprintf("user-%02d@example.com", i),
		})
	}
	if _, err := db.NewInsert().Model(&users).Exec(ctx); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	return users
}

// SeedTags inserts the given labels as tags with generated ids.
func SeedTags(t *testing.T, db *bun.DB, labels ...string) []Tag {
	t.Helper()

	ctx := context.Background()
	tags := make([]Tag, 0, len(labels))
	for _, label := range labels {
		tags = append(tags, Tag{ID: uuid.NewString(), Label: label})
	}
	if _, err := db.NewInsert().Model(&tags).Exec(ctx); err != nil {
		t.Fatalf("seed tags: %v", err)
	}
	return tags
}

// CountUsers returns the current row count of the users table.
func CountUsers(t *testing.T, ctx context.Context, ex bun.IDB) int {
	t.Helper()

	count, err := ex.NewSelect().Model((*User)(nil)).Count(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	return count
}
