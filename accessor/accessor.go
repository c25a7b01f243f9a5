// Package accessor provides per-entity data accessors that resolve their
// query executor ambiently: inside a transactional unit of work every
// operation runs on the bound transaction, outside one it falls back to the
// registered data source. Callers never pass a transaction handle.
package accessor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-ambient-tx/cachestore"
	"github.com/goliatone/go-ambient-tx/datasource"
)

// Meta describes the entity an accessor is bound to.
type Meta struct {
	// Name is the entity name used in cache keys and error messages.
	Name string

	// PK is the primary key column. Default: "id".
	PK string

	// Connection is the logical connection name operations target.
	// Default: the reserved default connection.
	Connection string

	// Relations are the entity's declared relation descriptors.
	Relations []Relation
}

func (m Meta) withDefaults() Meta {
	if m.PK == "" {
		m.PK = "id"
	}
	if m.Connection == "" {
		m.Connection = datasource.Default
	}
	return m
}

// Filter matches rows by column equality. A nil or empty filter matches
// everything.
type Filter map[string]any

// Page is one page of a paged query.
type Page[T any] struct {
	Count       int `json:"count"`
	PageCount   int `json:"pageCount"`
	CurrentPage int `json:"currentPage"`
	Limit       int `json:"limit"`
	Data        []T `json:"data"`
}

// CacheOptions opts a FindByPK call into the duplicate-lookup cache.
type CacheOptions struct {
	// TTL bounds how long the row stays cached. Non-positive means the
	// cache store default.
	TTL time.Duration

	// Once evicts the cached row on its first successful read. Used when a
	// validation step warms the cache for exactly one handler lookup.
	Once bool
}

// DataAccessor is the operation surface of an accessor. The concrete
// *Accessor[T] implements it; decorators wrap it.
type DataAccessor[T any] interface {
	FindByPK(ctx context.Context, id any, opts ...CacheOptions) (*T, error)
	FindOne(ctx context.Context, filter Filter) (*T, error)
	FindMany(ctx context.Context, filter Filter) ([]T, error)
	FindManyPaged(ctx context.Context, limit, page int, filter Filter) (Page[T], error)
	Create(ctx context.Context, record *T) error
	CreateMany(ctx context.Context, records []T) ([]T, error)
	Update(ctx context.Context, record *T) error
	Upsert(ctx context.Context, record *T) error
	Delete(ctx context.Context, record *T) error
	Exists(ctx context.Context, id any) error
	Associate(ctx context.Context, entityID, relatedID any, relation string) error
	Disassociate(ctx context.Context, entityID, relatedID any, relation string) error
	Raw(ctx context.Context, query string, args ...any) ([]T, error)
}

// Interface assertion to ensure Accessor implements DataAccessor[T].
var _ DataAccessor[any] = (*Accessor[any])(nil)

// Accessor is the context-aware data accessor for one entity type.
type Accessor[T any] struct {
	reg   *datasource.Registry
	meta  Meta
	cache *cachestore.Store
}

// Option configures an Accessor.
type Option[T any] func(*Accessor[T])

// WithCacheStore attaches the duplicate-lookup cache used by FindByPK when
// cache options are supplied.
func WithCacheStore[T any](store *cachestore.Store) Option[T] {
	return func(a *Accessor[T]) { a.cache = store }
}

// New builds an accessor bound to (entity meta, connection name).
func New[T any](reg *datasource.Registry, meta Meta, opts ...Option[T]) *Accessor[T] {
	a := &Accessor[T]{reg: reg, meta: meta.withDefaults()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Meta returns the accessor's entity descriptor.
func (a *Accessor[T]) Meta() Meta { return a.meta }

func (a *Accessor[T]) executor(ctx context.Context) (bun.IDB, error) {
	return datasource.ExecutorFor(ctx, a.reg, a.meta.Connection)
}

func (a *Accessor[T]) cacheKey(id any) string {
	return fmt.Sprintf("%s-%v", a.meta.Name, id)
}

func applyFilter(q *bun.SelectQuery, filter Filter) *bun.SelectQuery {
	for column, value := range filter {
		q = q.Where("? = ?", bun.Ident(column), value)
	}
	return q
}

// FindByPK loads the row with the given primary key, or nil when no row
// matches. With cache options the duplicate-lookup cache is consulted first
// under the key "<entityName>-<id>" and populated on a miss with the given
// TTL and once flag.
func (a *Accessor[T]) FindByPK(ctx context.Context, id any, opts ...CacheOptions) (*T, error) {
	useCache := len(opts) > 0 && a.cache != nil
	if useCache {
		if v, ok := a.cache.Get(a.cacheKey(id)); ok {
			if rec, ok := v.(*T); ok {
				return rec, nil
			}
		}
	}

	ex, err := a.executor(ctx)
	if err != nil {
		return nil, err
	}

	rec := new(T)
	err = ex.NewSelect().Model(rec).
		Where("? = ?", bun.Ident(a.meta.PK), id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if useCache {
		a.cache.Set(a.cacheKey(id), rec, opts[0].TTL, opts[0].Once)
	}
	return rec, nil
}

// FindOne returns the first row matching the filter, or nil when none does.
func (a *Accessor[T]) FindOne(ctx context.Context, filter Filter) (*T, error) {
	ex, err := a.executor(ctx)
	if err != nil {
		return nil, err
	}

	rec := new(T)
	err = applyFilter(ex.NewSelect().Model(rec), filter).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindMany returns every row matching the filter.
func (a *Accessor[T]) FindMany(ctx context.Context, filter Filter) ([]T, error) {
	ex, err := a.executor(ctx)
	if err != nil {
		return nil, err
	}

	var recs []T
	if err := applyFilter(ex.NewSelect().Model(&recs), filter).Scan(ctx); err != nil {
		return nil, err
	}
	return recs, nil
}

// FindManyPaged returns one page of matching rows plus pagination totals.
// Count and data are two independent queries against the resolved executor;
// under concurrent writes they are not guaranteed snapshot-consistent with
// each other.
func (a *Accessor[T]) FindManyPaged(ctx context.Context, limit, page int, filter Filter) (Page[T], error) {
	if limit < 1 {
		limit = 1
	}
	if page < 1 {
		page = 1
	}

	ex, err := a.executor(ctx)
	if err != nil {
		return Page[T]{}, err
	}

	count, err := applyFilter(ex.NewSelect().Model((*T)(nil)), filter).Count(ctx)
	if err != nil {
		return Page[T]{}, err
	}

	var recs []T
	err = applyFilter(ex.NewSelect().Model(&recs), filter).
		Order(a.meta.PK).
		Limit(limit).
		Offset((page - 1) * limit).
		Scan(ctx)
	if err != nil {
		return Page[T]{}, err
	}

	return Page[T]{
		Count:       count,
		PageCount:   (count + limit - 1) / limit,
		CurrentPage: page,
		Limit:       limit,
		Data:        recs,
	}, nil
}

// Create inserts the record. Engine errors propagate untouched so they drive
// rollback when the call chain is inside a transactional scope.
func (a *Accessor[T]) Create(ctx context.Context, record *T) error {
	ex, err := a.executor(ctx)
	if err != nil {
		return err
	}
	_, err = ex.NewInsert().Model(record).Exec(ctx)
	return err
}

// CreateMany inserts the records in one statement and returns them.
func (a *Accessor[T]) CreateMany(ctx context.Context, records []T) ([]T, error) {
	if len(records) == 0 {
		return records, nil
	}
	ex, err := a.executor(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := ex.NewInsert().Model(&records).Exec(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

// Update rewrites the record identified by its primary key.
func (a *Accessor[T]) Update(ctx context.Context, record *T) error {
	ex, err := a.executor(ctx)
	if err != nil {
		return err
	}
	_, err = ex.NewUpdate().Model(record).WherePK().Exec(ctx)
	return err
}

// Upsert updates the record when its primary key exists and inserts it
// otherwise.
func (a *Accessor[T]) Upsert(ctx context.Context, record *T) error {
	ex, err := a.executor(ctx)
	if err != nil {
		return err
	}

	res, err := ex.NewUpdate().Model(record).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	_, err = ex.NewInsert().Model(record).Exec(ctx)
	return err
}

// Delete removes the record identified by its primary key.
func (a *Accessor[T]) Delete(ctx context.Context, record *T) error {
	ex, err := a.executor(ctx)
	if err != nil {
		return err
	}
	_, err = ex.NewDelete().Model(record).WherePK().Exec(ctx)
	return err
}

// Exists is the existence check other steps compose with: it resolves the id
// and fails with *NotFoundError when no row matches.
func (a *Accessor[T]) Exists(ctx context.Context, id any) error {
	ex, err := a.executor(ctx)
	if err != nil {
		return err
	}

	exists, err := ex.NewSelect().Model((*T)(nil)).
		Where("? = ?", bun.Ident(a.meta.PK), id).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return &NotFoundError{Entity: a.meta.Name, ID: id}
	}
	return nil
}

// Associate links entityID to relatedID through the named many-to-many
// relation. Descriptor errors surface before any mutation is attempted.
func (a *Accessor[T]) Associate(ctx context.Context, entityID, relatedID any, relation string) error {
	rel, err := a.manyToMany(relation)
	if err != nil {
		return err
	}
	ex, err := a.executor(ctx)
	if err != nil {
		return err
	}

	row := map[string]any{
		rel.SourceColumn: entityID,
		rel.TargetColumn: relatedID,
	}
	_, err = ex.NewInsert().Model(&row).TableExpr("?", bun.Ident(rel.JoinTable)).Exec(ctx)
	return err
}

// Disassociate removes the join row linking entityID to relatedID through
// the named many-to-many relation.
func (a *Accessor[T]) Disassociate(ctx context.Context, entityID, relatedID any, relation string) error {
	rel, err := a.manyToMany(relation)
	if err != nil {
		return err
	}
	ex, err := a.executor(ctx)
	if err != nil {
		return err
	}

	_, err = ex.NewRaw("DELETE FROM ? WHERE ? = ? AND ? = ?",
		bun.Ident(rel.JoinTable),
		bun.Ident(rel.SourceColumn), entityID,
		bun.Ident(rel.TargetColumn), relatedID,
	).Exec(ctx)
	return err
}

func (a *Accessor[T]) manyToMany(name string) (Relation, error) {
	rel, ok := a.meta.relation(name)
	if !ok {
		return Relation{}, &RelationNotFoundError{Entity: a.meta.Name, Relation: name}
	}
	if rel.Kind != RelationManyToMany {
		return Relation{}, &NotManyToManyError{Entity: a.meta.Name, Relation: name}
	}
	return rel, nil
}

// Raw runs a raw statement on the accessor's resolved executor and scans the
// rows into the entity type.
func (a *Accessor[T]) Raw(ctx context.Context, query string, args ...any) ([]T, error) {
	ex, err := a.executor(ctx)
	if err != nil {
		return nil, err
	}
	var recs []T
	if err := ex.NewRaw(query, args...).Scan(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// RawQuery runs a raw statement against the named connection, resolving the
// executor ambient-first like every accessor operation, and returns the raw
// rows. Used for ad-hoc composition outside entity accessors.
func RawQuery(ctx context.Context, reg *datasource.Registry, connection, query string, args ...any) ([]map[string]any, error) {
	ex, err := datasource.ExecutorFor(ctx, reg, connection)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := ex.NewRaw(query, args...).Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
