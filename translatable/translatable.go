// Package translatable extends the base repository with a parallel
// translation table: locale resolution with fallback, translation
// attachment for single and batch results, and upsert-by-locale semantics.
// Translation is optional decoration; an entity with no translation in any
// candidate locale is a normal outcome, never an error.
package translatable

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"

	"github.com/goliatone/go-persistence-bun/fieldmap"
	"github.com/goliatone/go-persistence-bun/query"
	"github.com/goliatone/go-persistence-bun/repository"
	"github.com/goliatone/go-persistence-bun/uow"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

// JoinPrefix is the field-path prefix under which translation columns are
// registered ("translation.name" filters and sorts).
const JoinPrefix = "translation"

// TranslationHandlers supplies the per-translation accessors: identity,
// owning entity key, and locale.
type TranslationHandlers[TR any] struct {
	NewRecord   func() TR
	GetID       func(TR) uuid.UUID
	SetID       func(TR, uuid.UUID)
	EntityID    func(TR) uuid.UUID
	SetEntityID func(TR, uuid.UUID)
	Locale      func(TR) string
}

func (h TranslationHandlers[TR]) validate() error {
	if h.NewRecord == nil || h.GetID == nil || h.SetID == nil || h.EntityID == nil || h.SetEntityID == nil || h.Locale == nil {
		return repository.ConfigError("translatable: TranslationHandlers is incomplete")
	}
	return nil
}

// Config extends the base repository config with the translation table
// descriptor and attachment callbacks.
type Config[T, TR any] struct {
	repository.Config[T]

	// TranslationTable is the side table keyed by (entity key, locale).
	TranslationTable fieldmap.Table

	// EntityKey is the translation-table column referencing the entity.
	EntityKey string

	// LocaleColumn names the locale discriminator column.
	LocaleColumn string

	// DefaultLocale is the fallback when neither options nor context carry
	// a locale, and the second candidate when the requested locale has no
	// translation row.
	DefaultLocale string

	TranslationHandlers TranslationHandlers[TR]

	// Attach decorates an entity with its resolved translation (nil when
	// no candidate locale matched).
	Attach func(T, TR)

	// AttachAll decorates an entity with its full translation set, used
	// when IncludeAllTranslations is requested.
	AttachAll func(T, []TR)
}

// Contract is the translatable repository surface; the cached decorator
// depends on this rather than the concrete type.
type Contract[T, TR any] interface {
	repository.Repository[T]
	CurrentLocale(ctx context.Context) string
	FindByIDWithTranslation(ctx context.Context, id uuid.UUID, locale string) (T, error)
	FindByIDWithTranslations(ctx context.Context, id uuid.UUID) (T, error)
	LoadTranslation(ctx context.Context, entityID uuid.UUID, locale string) (TR, error)
	LoadTranslations(ctx context.Context, entityID uuid.UUID) ([]TR, error)
	LoadTranslationWithFallback(ctx context.Context, entityID uuid.UUID, locale string) (TR, error)
	SaveTranslations(ctx context.Context, entityID uuid.UUID, translations []TR) error
	UpdateTranslations(ctx context.Context, entityID uuid.UUID, translations []TR) error
	UpsertTranslations(ctx context.Context, entityID uuid.UUID, translations []TR) error
	DeleteTranslation(ctx context.Context, entityID uuid.UUID, locale string) error
	CreateWithTranslations(ctx context.Context, record T, translations []TR) (T, error)
	UpdateWithTranslations(ctx context.Context, record T, translations []TR) (T, error)
}

// Repository layers translation handling over a BaseRepository. Read
// methods are shadowed to attach the locale-resolved translation after the
// base fetch.
type Repository[T, TR any] struct {
	*repository.BaseRepository[T]

	db            *bun.DB
	ttable        fieldmap.Table
	entityKey     string
	localeColumn  string
	defaultLocale string
	handlers      TranslationHandlers[TR]
	attach        func(T, TR)
	attachAll     func(T, []TR)

	registerFields sync.Once
}

var _ Contract[any, any] = (*Repository[any, any])(nil)

// New builds a translatable repository, failing fast when the translation
// table descriptor is incomplete.
func New[T, TR any](db *bun.DB, cfg Config[T, TR]) (*Repository[T, TR], error) {
	if err := cfg.TranslationHandlers.validate(); err != nil {
		return nil, err
	}
	if cfg.EntityKey == "" || !cfg.TranslationTable.HasColumn(cfg.EntityKey) {
		return nil, repository.ConfigError("translatable: entity key column " + cfg.EntityKey + " is not a column of " + cfg.TranslationTable.Name)
	}
	if cfg.LocaleColumn == "" || !cfg.TranslationTable.HasColumn(cfg.LocaleColumn) {
		return nil, repository.ConfigError("translatable: locale column " + cfg.LocaleColumn + " is not a column of " + cfg.TranslationTable.Name)
	}
	if cfg.DefaultLocale == "" {
		return nil, repository.ConfigError("translatable: default locale is required")
	}
	if cfg.Attach == nil || cfg.AttachAll == nil {
		return nil, repository.ConfigError("translatable: Attach and AttachAll callbacks are required")
	}

	base, err := repository.NewRepository(db, cfg.Config)
	if err != nil {
		return nil, err
	}

	return &Repository[T, TR]{
		BaseRepository: base,
		db:             db,
		ttable:         cfg.TranslationTable,
		entityKey:      cfg.EntityKey,
		localeColumn:   cfg.LocaleColumn,
		defaultLocale:  cfg.DefaultLocale,
		handlers:       cfg.TranslationHandlers,
		attach:         cfg.Attach,
		attachAll:      cfg.AttachAll,
	}, nil
}

// DefaultLocale returns the configured fallback locale.
func (r *Repository[T, TR]) DefaultLocale() string {
	return r.defaultLocale
}

// CurrentLocale resolves the ambient request locale, falling back to the
// configured default when no context locale is bound.
func (r *Repository[T, TR]) CurrentLocale(ctx context.Context) string {
	if locale, ok := LocaleFromContext(ctx); ok {
		return locale
	}
	return r.defaultLocale
}

// ensureTranslationFields registers the translation table's columns and
// join into the field mapper once, so "translation.<attr>" filter/sort
// paths resolve on any read.
func (r *Repository[T, TR]) ensureTranslationFields() {
	r.registerFields.Do(func() {
		r.Mapper().RegisterTableColumns(JoinPrefix, r.ttable)
		base := r.Table()
		r.RegisterJoinSource(JoinPrefix, query.Join{
			Table: r.ttable.Name,
			Alias: JoinPrefix,
			On:    JoinPrefix + "." + r.entityKey + " = " + base.Name + "." + base.ID,
		})
	})
}

func (r *Repository[T, TR]) conn(ctx context.Context) bun.IDB {
	return uow.Conn(ctx, r.db)
}

// resolveLocale picks the effective locale: explicit option, then context,
// then default.
func (r *Repository[T, TR]) resolveLocale(ctx context.Context, opt *repository.QueryOptions) string {
	if opt != nil && opt.Locale != "" {
		return opt.Locale
	}
	return r.CurrentLocale(ctx)
}

// FindByID fetches the entity and attaches its resolved translation.
func (r *Repository[T, TR]) FindByID(ctx context.Context, id uuid.UUID, opts ...*repository.QueryOptions) (T, error) {
	r.ensureTranslationFields()
	var zero T
	record, err := r.BaseRepository.FindByID(ctx, id, opts...)
	if err != nil {
		return zero, err
	}
	if err := r.AttachTranslation(ctx, record, first(opts)); err != nil {
		return zero, err
	}
	return record, nil
}

// FindOne fetches the first match and attaches its resolved translation.
func (r *Repository[T, TR]) FindOne(ctx context.Context, opts ...*repository.QueryOptions) (T, error) {
	r.ensureTranslationFields()
	var zero T
	record, err := r.BaseRepository.FindOne(ctx, opts...)
	if err != nil {
		return zero, err
	}
	if isZero(record) {
		return record, nil
	}
	if err := r.AttachTranslation(ctx, record, first(opts)); err != nil {
		return zero, err
	}
	return record, nil
}

// FindMany fetches all matches and attaches translations across the batch.
func (r *Repository[T, TR]) FindMany(ctx context.Context, opts ...*repository.QueryOptions) ([]T, error) {
	r.ensureTranslationFields()
	records, err := r.BaseRepository.FindMany(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := r.AttachTranslations(ctx, records, first(opts)); err != nil {
		return nil, err
	}
	return records, nil
}

// Paginate fetches one page and attaches translations to it.
func (r *Repository[T, TR]) Paginate(ctx context.Context, req repository.PageRequest, opts ...*repository.QueryOptions) (repository.Page[T], error) {
	r.ensureTranslationFields()
	page, err := r.BaseRepository.Paginate(ctx, req, opts...)
	if err != nil {
		return repository.Page[T]{}, err
	}
	if err := r.AttachTranslations(ctx, page.Data, first(opts)); err != nil {
		return repository.Page[T]{}, err
	}
	return page, nil
}

// FindByIDWithTranslation fetches the entity with the translation resolved
// for an explicit locale (fallback applies).
func (r *Repository[T, TR]) FindByIDWithTranslation(ctx context.Context, id uuid.UUID, locale string) (T, error) {
	return r.FindByID(ctx, id, &repository.QueryOptions{Locale: locale})
}

// FindByIDWithTranslations fetches the entity with its full translation set
// attached in addition to the resolved one.
func (r *Repository[T, TR]) FindByIDWithTranslations(ctx context.Context, id uuid.UUID) (T, error) {
	return r.FindByID(ctx, id, &repository.QueryOptions{IncludeAllTranslations: true})
}

// LoadTranslation fetches the single translation row for (entity, locale).
// Absence returns the zero value, not an error.
func (r *Repository[T, TR]) LoadTranslation(ctx context.Context, entityID uuid.UUID, locale string) (TR, error) {
	var zero TR
	if locale == "" {
		locale = r.CurrentLocale(ctx)
	}
	record := r.handlers.NewRecord()
	err := r.conn(ctx).NewSelect().
		Model(record).
		Where("? = ?", bun.Ident(r.entityKey), entityID).
		Where("? = ?", bun.Ident(r.localeColumn), locale).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return zero, nil
		}
		return zero, err
	}
	return record, nil
}

// LoadTranslations fetches every locale's translation row for the entity.
func (r *Repository[T, TR]) LoadTranslations(ctx context.Context, entityID uuid.UUID) ([]TR, error) {
	var records []TR
	err := r.conn(ctx).NewSelect().
		Model(&records).
		Where("? = ?", bun.Ident(r.entityKey), entityID).
		OrderExpr("? ASC", bun.Ident(r.localeColumn)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// LoadTranslationWithFallback tries the requested (or current) locale, then
// the default locale. A miss on both means the entity carries no
// translation; that is not an error.
func (r *Repository[T, TR]) LoadTranslationWithFallback(ctx context.Context, entityID uuid.UUID, locale string) (TR, error) {
	if locale == "" {
		locale = r.CurrentLocale(ctx)
	}
	record, err := r.LoadTranslation(ctx, entityID, locale)
	if err != nil {
		return record, err
	}
	if !isZero(record) || locale == r.defaultLocale {
		return record, nil
	}
	return r.LoadTranslation(ctx, entityID, r.defaultLocale)
}

// AttachTranslation decorates one already-fetched entity.
func (r *Repository[T, TR]) AttachTranslation(ctx context.Context, record T, opt *repository.QueryOptions) error {
	locale := r.resolveLocale(ctx, opt)
	entityID := r.Handlers().GetID(record)

	tr, err := r.LoadTranslationWithFallback(ctx, entityID, locale)
	if err != nil {
		return err
	}
	r.attach(record, tr)

	if opt != nil && opt.IncludeAllTranslations {
		all, err := r.LoadTranslations(ctx, entityID)
		if err != nil {
			return err
		}
		r.attachAll(record, all)
	}
	return nil
}

// AttachTranslations decorates a batch in one pass via concurrent
// per-entity fetches. Inside a transaction the fetches run sequentially on
// the single bound handle.
func (r *Repository[T, TR]) AttachTranslations(ctx context.Context, records []T, opt *repository.QueryOptions) error {
	if len(records) == 0 {
		return nil
	}
	if uow.InTransaction(ctx) {
		for _, record := range records {
			if err := r.AttachTranslation(ctx, record, opt); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, record := range records {
		record := record
		g.Go(func() error {
			return r.AttachTranslation(gctx, record, opt)
		})
	}
	return g.Wait()
}

// SaveTranslations inserts the given translation rows for the entity.
func (r *Repository[T, TR]) SaveTranslations(ctx context.Context, entityID uuid.UUID, translations []TR) error {
	if len(translations) == 0 {
		return nil
	}
	for _, tr := range translations {
		if r.handlers.GetID(tr) == uuid.Nil {
			r.handlers.SetID(tr, uuid.New())
		}
		r.handlers.SetEntityID(tr, entityID)
	}
	_, err := r.conn(ctx).NewInsert().Model(&translations).Exec(ctx)
	return err
}

// UpdateTranslations replaces the entity's translation set wholesale:
// delete then reinsert, inside one transaction.
func (r *Repository[T, TR]) UpdateTranslations(ctx context.Context, entityID uuid.UUID, translations []TR) error {
	return uow.RunInTransaction(ctx, r.db, func(ctx context.Context) error {
		_, err := r.conn(ctx).NewDelete().
			Table(r.ttable.Name).
			Where("? = ?", bun.Ident(r.entityKey), entityID).
			Exec(ctx)
		if err != nil {
			return err
		}
		return r.SaveTranslations(ctx, entityID, translations)
	})
}

// UpsertTranslations inserts or updates each translation row atomically on
// the (entity key, locale) uniqueness, one statement per row. No
// check-then-act window: concurrent upserts of the same locale serialize in
// the store.
func (r *Repository[T, TR]) UpsertTranslations(ctx context.Context, entityID uuid.UUID, translations []TR) error {
	if len(translations) == 0 {
		return nil
	}
	for _, tr := range translations {
		if r.handlers.GetID(tr) == uuid.Nil {
			r.handlers.SetID(tr, uuid.New())
		}
		r.handlers.SetEntityID(tr, entityID)

		q := r.conn(ctx).NewInsert().
			Model(tr).
			On("CONFLICT (?, ?) DO UPDATE", bun.Ident(r.entityKey), bun.Ident(r.localeColumn))
		for _, column := range r.ttable.Columns {
			if column == r.ttable.ID || column == r.entityKey || column == r.localeColumn {
				continue
			}
			q = q.Set("? = EXCLUDED.?", bun.Ident(column), bun.Ident(column))
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTranslation removes one locale's translation row.
func (r *Repository[T, TR]) DeleteTranslation(ctx context.Context, entityID uuid.UUID, locale string) error {
	_, err := r.conn(ctx).NewDelete().
		Table(r.ttable.Name).
		Where("? = ?", bun.Ident(r.entityKey), entityID).
		Where("? = ?", bun.Ident(r.localeColumn), locale).
		Exec(ctx)
	return err
}

// Delete removes the entity and cascades its translation rows in one
// transaction.
func (r *Repository[T, TR]) Delete(ctx context.Context, id uuid.UUID) error {
	return uow.RunInTransaction(ctx, r.db, func(ctx context.Context) error {
		_, err := r.conn(ctx).NewDelete().
			Table(r.ttable.Name).
			Where("? = ?", bun.Ident(r.entityKey), id).
			Exec(ctx)
		if err != nil {
			return err
		}
		return r.BaseRepository.Delete(ctx, id)
	})
}

// CreateWithTranslations saves the entity, then its translations, then
// re-reads the full composite, all inside one transaction.
func (r *Repository[T, TR]) CreateWithTranslations(ctx context.Context, record T, translations []TR) (T, error) {
	var zero T
	var created T
	err := uow.RunInTransaction(ctx, r.db, func(ctx context.Context) error {
		var err error
		created, err = r.BaseRepository.Create(ctx, record)
		if err != nil {
			return err
		}
		if err := r.SaveTranslations(ctx, r.Handlers().GetID(created), translations); err != nil {
			return err
		}
		created, err = r.FindByID(ctx, r.Handlers().GetID(created), &repository.QueryOptions{IncludeAllTranslations: true})
		return err
	})
	if err != nil {
		return zero, err
	}
	return created, nil
}

// UpdateWithTranslations writes the entity, upserts its translations, and
// re-reads the composite inside one transaction.
func (r *Repository[T, TR]) UpdateWithTranslations(ctx context.Context, record T, translations []TR) (T, error) {
	var zero T
	var updated T
	err := uow.RunInTransaction(ctx, r.db, func(ctx context.Context) error {
		var err error
		updated, err = r.BaseRepository.UpdateEntity(ctx, record)
		if err != nil {
			return err
		}
		id := r.Handlers().GetID(updated)
		if err := r.UpsertTranslations(ctx, id, translations); err != nil {
			return err
		}
		updated, err = r.FindByID(ctx, id, &repository.QueryOptions{IncludeAllTranslations: true})
		return err
	})
	if err != nil {
		return zero, err
	}
	return updated, nil
}

func first(opts []*repository.QueryOptions) *repository.QueryOptions {
	for _, o := range opts {
		if o != nil {
			return o
		}
	}
	return nil
}

// isZero reports whether a pointer-typed record is nil.
func isZero[V any](v V) bool {
	return any(v) == any(*new(V))
}
