package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"math"

	"github.com/goliatone/go-persistence-bun/fieldmap"
	"github.com/goliatone/go-persistence-bun/query"
	"github.com/goliatone/go-persistence-bun/relation"
	"github.com/goliatone/go-persistence-bun/uow"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

// Config declares everything a base repository needs up front: the schema
// descriptor, optional logical-field overrides, and the relation map.
// Relations are immutable after construction.
type Config[T any] struct {
	Table     fieldmap.Table
	Fields    map[string]string
	Relations map[string]relation.Config
	Handlers  ModelHandlers[T]
}

// BaseRepository is the generic CRUD + pagination layer over one entity
// type. T is the pointer model type (e.g. *Artist) with bun struct tags;
// the model's table alias must match the table name so builder-qualified
// predicates resolve.
type BaseRepository[T any] struct {
	db        *bun.DB
	table     fieldmap.Table
	mapper    *fieldmap.Mapper
	relations map[string]relation.Config
	handlers  ModelHandlers[T]
	entity    string
	joins     map[string]query.Join
	joinOrder []string
}

var _ Repository[any] = (*BaseRepository[any])(nil)

// NewRepository builds a BaseRepository, failing fast on configuration
// errors: a table with no identity column or no columns at all never makes
// it past construction.
func NewRepository[T any](db *bun.DB, cfg Config[T]) (*BaseRepository[T], error) {
	if err := cfg.Handlers.validate(); err != nil {
		return nil, err
	}
	if cfg.Table.ID == "" {
		return nil, ConfigError("repository: table " + cfg.Table.Name + " declares no identity column")
	}
	if !cfg.Table.HasColumn(cfg.Table.ID) {
		return nil, ConfigError("repository: identity column " + cfg.Table.ID + " is not a column of " + cfg.Table.Name)
	}

	mapper, err := fieldmap.New(cfg.Table, cfg.Fields)
	if err != nil {
		return nil, err
	}

	relations := make(map[string]relation.Config, len(cfg.Relations))
	for name, rel := range cfg.Relations {
		relations[name] = rel
	}

	return &BaseRepository[T]{
		db:        db,
		table:     cfg.Table,
		mapper:    mapper,
		relations: relations,
		handlers:  cfg.Handlers,
		entity:    cfg.Table.Name,
		joins:     map[string]query.Join{},
	}, nil
}

// Mapper exposes the field mapper so extensions can register nested fields.
func (r *BaseRepository[T]) Mapper() *fieldmap.Mapper {
	return r.mapper
}

// Table returns the schema descriptor the repository was built with.
func (r *BaseRepository[T]) Table() fieldmap.Table {
	return r.table
}

// Handlers returns the model handlers.
func (r *BaseRepository[T]) Handlers() ModelHandlers[T] {
	return r.handlers
}

// RegisterJoinSource makes a join available to filter/sort paths under the
// given prefix. Registering the same prefix twice is a no-op.
func (r *BaseRepository[T]) RegisterJoinSource(prefix string, j query.Join) {
	if _, ok := r.joins[prefix]; ok {
		return
	}
	r.joins[prefix] = j
	r.joinOrder = append(r.joinOrder, prefix)
}

// conn re-checks the ambient transaction on every call; the handle must
// never be captured across calls.
func (r *BaseRepository[T]) conn(ctx context.Context) bun.IDB {
	return uow.Conn(ctx, r.db)
}

func (r *BaseRepository[T]) builder() *query.Builder {
	b := query.NewBuilder(r.mapper)
	for _, prefix := range r.joinOrder {
		b.RegisterJoin(prefix, r.joins[prefix])
	}
	return b
}

func firstOption(opts []*QueryOptions) *QueryOptions {
	for _, o := range opts {
		if o != nil {
			return o
		}
	}
	return nil
}

// applyOptions runs the filter and sort passes through one builder, then
// applies the joins those passes required. Join application has to come
// after both passes so the deduplicated set is complete.
func (r *BaseRepository[T]) applyOptions(q *bun.SelectQuery, opts *QueryOptions) *bun.SelectQuery {
	if opts == nil {
		return q
	}
	b := r.builder()

	where, args, hasWhere := "", []any(nil), false
	if opts.Filter != nil {
		where, args, hasWhere = b.BuildWhere(opts.Filter)
	}
	orders := b.BuildOrderBy(opts.Sort)

	for _, j := range b.RequiredJoins() {
		q = q.Join("LEFT JOIN ? AS ? ON "+j.On, bun.Ident(j.Table), bun.Ident(j.Alias))
	}
	if hasWhere {
		q = q.Where(where, args...)
	}
	for _, o := range orders {
		q = q.OrderExpr(o)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q
}

// applyFilter applies just a filter tree, for count/exists/bulk mutations.
func (r *BaseRepository[T]) applyFilter(q *bun.SelectQuery, filter query.Filter) *bun.SelectQuery {
	if filter == nil {
		return q
	}
	b := r.builder()
	where, args, ok := b.BuildWhere(filter)
	if !ok {
		return q
	}
	for _, j := range b.RequiredJoins() {
		q = q.Join("LEFT JOIN ? AS ? ON "+j.On, bun.Ident(j.Table), bun.Ident(j.Alias))
	}
	return q.Where(where, args...)
}

// FindByID resolves a single entity by identity. Not-found is a reported,
// distinguishable error since the identifier was supplied explicitly.
func (r *BaseRepository[T]) FindByID(ctx context.Context, id uuid.UUID, opts ...*QueryOptions) (T, error) {
	var zero T
	record := r.handlers.NewRecord()
	opt := firstOption(opts)

	q := r.conn(ctx).NewSelect().
		Model(record).
		Where("?.? = ?", bun.Ident(r.table.Name), bun.Ident(r.table.ID), id)
	q = r.applyOptions(q, opt)

	if err := q.Scan(ctx); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return zero, NotFound(r.entity, id.String())
		}
		return zero, err
	}
	if err := r.attachRelations(ctx, []T{record}, opt); err != nil {
		return zero, err
	}
	return record, nil
}

// FindOne returns the first match or the zero value; absence is a normal,
// silent outcome.
func (r *BaseRepository[T]) FindOne(ctx context.Context, opts ...*QueryOptions) (T, error) {
	var zero T
	record := r.handlers.NewRecord()
	opt := firstOption(opts)

	q := r.applyOptions(r.conn(ctx).NewSelect().Model(record), opt).Limit(1)
	if err := q.Scan(ctx); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return zero, nil
		}
		return zero, err
	}
	if err := r.attachRelations(ctx, []T{record}, opt); err != nil {
		return zero, err
	}
	return record, nil
}

// FindMany returns all matches; an empty list is a normal outcome.
func (r *BaseRepository[T]) FindMany(ctx context.Context, opts ...*QueryOptions) ([]T, error) {
	var records []T
	opt := firstOption(opts)

	q := r.applyOptions(r.conn(ctx).NewSelect().Model(&records), opt)
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	if err := r.attachRelations(ctx, records, opt); err != nil {
		return nil, err
	}
	return records, nil
}

// Paginate fetches one page plus the total count. The two queries run
// concurrently against the same predicate unless a transaction is bound,
// in which case they run sequentially on the single handle.
func (r *BaseRepository[T]) Paginate(ctx context.Context, req PageRequest, opts ...*QueryOptions) (Page[T], error) {
	opt := firstOption(opts)
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	pageOpt := &QueryOptions{Limit: limit, Offset: (page - 1) * limit}
	var filter query.Filter
	if opt != nil {
		pageOpt.Filter = opt.Filter
		pageOpt.Sort = opt.Sort
		pageOpt.With = opt.With
		pageOpt.Locale = opt.Locale
		pageOpt.IncludeAllTranslations = opt.IncludeAllTranslations
		filter = opt.Filter
	}

	var records []T
	var total int

	if uow.InTransaction(ctx) {
		var err error
		if records, err = r.FindMany(ctx, pageOpt); err != nil {
			return Page[T]{}, err
		}
		if total, err = r.Count(ctx, filter); err != nil {
			return Page[T]{}, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			records, err = r.FindMany(gctx, pageOpt)
			return err
		})
		g.Go(func() error {
			var err error
			total, err = r.Count(gctx, filter)
			return err
		})
		if err := g.Wait(); err != nil {
			return Page[T]{}, err
		}
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Page[T]{
		Data:       records,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}, nil
}

// Create inserts the record, assigning a fresh id when none is set, and
// returns the persisted row so generated columns are reflected back.
func (r *BaseRepository[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	if r.handlers.GetID(record) == uuid.Nil {
		r.handlers.SetID(record, uuid.New())
	}
	_, err := r.conn(ctx).NewInsert().Model(record).Returning("*").Exec(ctx)
	if err != nil {
		return zero, err
	}
	return record, nil
}

// CreateMany inserts all records in one statement.
func (r *BaseRepository[T]) CreateMany(ctx context.Context, records []T) ([]T, error) {
	if len(records) == 0 {
		return records, nil
	}
	for _, record := range records {
		if r.handlers.GetID(record) == uuid.Nil {
			r.handlers.SetID(record, uuid.New())
		}
	}
	_, err := r.conn(ctx).NewInsert().Model(&records).Returning("*").Exec(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Save persists a fully-formed entity. Same insert path as Create.
func (r *BaseRepository[T]) Save(ctx context.Context, record T) (T, error) {
	return r.Create(ctx, record)
}

// Update applies a partial update by id. Keys that do not resolve to a
// column are dropped; not-found is a reported error.
func (r *BaseRepository[T]) Update(ctx context.Context, id uuid.UUID, data map[string]any) (T, error) {
	var zero T

	q := r.conn(ctx).NewUpdate().Table(r.table.Name)
	assigned := 0
	for field, value := range data {
		column, ok := r.mapper.Column(field)
		if !ok {
			continue
		}
		q = q.Set("? = ?", bun.Ident(column), value)
		assigned++
	}
	if assigned == 0 {
		return r.FindByID(ctx, id)
	}

	res, err := q.Where("? = ?", bun.Ident(r.table.ID), id).Exec(ctx)
	if err != nil {
		return zero, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return zero, NotFound(r.entity, id.String())
	}
	return r.FindByID(ctx, id)
}

// UpdateEntity writes the full record back by identity.
func (r *BaseRepository[T]) UpdateEntity(ctx context.Context, record T) (T, error) {
	var zero T
	id := r.handlers.GetID(record)

	res, err := r.conn(ctx).NewUpdate().
		Model(record).
		Where("? = ?", bun.Ident(r.table.ID), id).
		Exec(ctx)
	if err != nil {
		return zero, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return zero, NotFound(r.entity, id.String())
	}
	return r.FindByID(ctx, id)
}

// UpdateMany applies a partial update to every row matching the filter and
// returns the affected row count.
func (r *BaseRepository[T]) UpdateMany(ctx context.Context, filter query.Filter, data map[string]any) (int64, error) {
	q := r.conn(ctx).NewUpdate().Table(r.table.Name)
	assigned := 0
	for field, value := range data {
		column, ok := r.mapper.Column(field)
		if !ok {
			continue
		}
		q = q.Set("? = ?", bun.Ident(column), value)
		assigned++
	}
	if assigned == 0 {
		return 0, nil
	}

	// UPDATE cannot carry the joins dotted paths need, so those conditions
	// are stripped rather than emitted against an unjoined alias.
	if filter != nil {
		b := r.builder()
		if where, args, ok := b.BuildWhere(query.StripNested(filter)); ok {
			q = q.Where(where, args...)
		}
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes the row by identity (hard delete); not-found is reported.
func (r *BaseRepository[T]) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn(ctx).NewDelete().
		Table(r.table.Name).
		Where("? = ?", bun.Ident(r.table.ID), id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return NotFound(r.entity, id.String())
	}
	return nil
}

// DeleteMany removes every row matching the filter and returns the count.
// Dotted-path conditions are stripped like in UpdateMany.
func (r *BaseRepository[T]) DeleteMany(ctx context.Context, filter query.Filter) (int64, error) {
	q := r.conn(ctx).NewDelete().Table(r.table.Name)
	if filter != nil {
		b := r.builder()
		if where, args, ok := b.BuildWhere(query.StripNested(filter)); ok {
			q = q.Where(where, args...)
		}
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Exists reports whether any row matches the filter.
func (r *BaseRepository[T]) Exists(ctx context.Context, filter query.Filter) (bool, error) {
	var records []T
	q := r.applyFilter(r.conn(ctx).NewSelect().Model(&records), filter)
	return q.Exists(ctx)
}

// Count returns the number of rows matching the filter.
func (r *BaseRepository[T]) Count(ctx context.Context, filter query.Filter) (int, error) {
	var records []T
	q := r.applyFilter(r.conn(ctx).NewSelect().Model(&records), filter)
	return q.Count(ctx)
}

// attachRelations loads every relation named in With for the whole batch.
// Unknown names are silently ignored, a documented leniency.
func (r *BaseRepository[T]) attachRelations(ctx context.Context, records []T, opt *QueryOptions) error {
	if opt == nil || len(opt.With) == 0 || len(records) == 0 {
		return nil
	}

	loader := relation.NewLoader(r.conn(ctx))
	parents := make([]any, len(records))
	for i, record := range records {
		parents[i] = record
	}
	parentID := func(p any) uuid.UUID { return r.handlers.GetID(p.(T)) }

	for _, name := range opt.With {
		cfg, ok := r.relations[name]
		if !ok {
			continue
		}
		if err := loader.LoadBatch(ctx, cfg, parents, parentID); err != nil {
			return err
		}
	}
	return nil
}
