package relation

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Loader executes declared relations against the store, for a single parent
// or for a batch of parents in one query per relation (no N+1).
type Loader struct {
	db bun.IDB
}

// NewLoader builds a Loader over the given connection or transaction handle.
func NewLoader(db bun.IDB) *Loader {
	return &Loader{db: db}
}

// Load attaches one relation to a single parent. An unknown relation kind is
// a programming error and panics; a missing related row is a normal outcome
// (nil / empty attachment).
func (l *Loader) Load(ctx context.Context, cfg Config, parent any, parentID uuid.UUID) error {
	switch cfg.Kind {
	case ManyToOneKind:
		key, ok := cfg.ownerKeyOf(parent)
		if !ok {
			// Null foreign key: no related entity, no query.
			cfg.attachOne(parent, nil)
			return nil
		}
		return l.loadSingle(ctx, cfg, parent, cfg.References, key)
	case OneToOneKind:
		return l.loadSingle(ctx, cfg, parent, cfg.ForeignKey, parentID)
	case OneToManyKind:
		dest := cfg.newSlice()
		err := l.db.NewSelect().
			Model(dest).
			Where("? = ?", bun.Ident(cfg.ForeignKey), parentID).
			Scan(ctx)
		if err != nil {
			return err
		}
		cfg.attachMany(parent, cfg.elems(dest))
		return nil
	case ManyToManyKind:
		groups, err := l.loadManyToMany(ctx, cfg, []uuid.UUID{parentID})
		if err != nil {
			return err
		}
		cfg.attachMany(parent, groups[parentID])
		return nil
	default:
		panic("relation: unsupported kind " + cfg.Kind.String())
	}
}

// LoadBatch attaches one relation to every parent in the batch, issuing one
// query (two for many-to-many) regardless of batch size. Parents with no
// matches get an empty list or nil attachment, never a missing entry.
func (l *Loader) LoadBatch(ctx context.Context, cfg Config, parents []any, parentID func(any) uuid.UUID) error {
	if len(parents) == 0 {
		return nil
	}

	switch cfg.Kind {
	case OneToManyKind, OneToOneKind:
		ids := make([]uuid.UUID, len(parents))
		for i, p := range parents {
			ids[i] = parentID(p)
		}
		dest := cfg.newSlice()
		err := l.db.NewSelect().
			Model(dest).
			Where("? IN (?)", bun.Ident(cfg.ForeignKey), bun.In(ids)).
			Scan(ctx)
		if err != nil {
			return err
		}
		groups := map[uuid.UUID][]any{}
		for _, child := range cfg.elems(dest) {
			key := cfg.fkOf(child)
			groups[key] = append(groups[key], child)
		}
		for _, p := range parents {
			children := groups[parentID(p)]
			if cfg.Kind == OneToOneKind {
				if len(children) > 0 {
					cfg.attachOne(p, children[0])
				} else {
					cfg.attachOne(p, nil)
				}
				continue
			}
			if children == nil {
				children = []any{}
			}
			cfg.attachMany(p, children)
		}
		return nil

	case ManyToOneKind:
		keys := make([]uuid.UUID, 0, len(parents))
		seen := map[uuid.UUID]struct{}{}
		for _, p := range parents {
			key, ok := cfg.ownerKeyOf(p)
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		byID := map[uuid.UUID]any{}
		if len(keys) > 0 {
			dest := cfg.newSlice()
			err := l.db.NewSelect().
				Model(dest).
				Where("? IN (?)", bun.Ident(cfg.References), bun.In(keys)).
				Scan(ctx)
			if err != nil {
				return err
			}
			for _, child := range cfg.elems(dest) {
				byID[cfg.idOf(child)] = child
			}
		}
		for _, p := range parents {
			key, ok := cfg.ownerKeyOf(p)
			if !ok {
				cfg.attachOne(p, nil)
				continue
			}
			child, found := byID[key]
			if !found {
				cfg.attachOne(p, nil)
				continue
			}
			cfg.attachOne(p, child)
		}
		return nil

	case ManyToManyKind:
		ids := make([]uuid.UUID, len(parents))
		for i, p := range parents {
			ids[i] = parentID(p)
		}
		groups, err := l.loadManyToMany(ctx, cfg, ids)
		if err != nil {
			return err
		}
		for _, p := range parents {
			children := groups[parentID(p)]
			if children == nil {
				children = []any{}
			}
			cfg.attachMany(p, children)
		}
		return nil

	default:
		panic("relation: unsupported kind " + cfg.Kind.String())
	}
}

func (l *Loader) loadSingle(ctx context.Context, cfg Config, parent any, column string, key uuid.UUID) error {
	dest := cfg.newSlice()
	err := l.db.NewSelect().
		Model(dest).
		Where("? = ?", bun.Ident(column), key).
		Limit(1).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	children := cfg.elems(dest)
	if len(children) == 0 {
		cfg.attachOne(parent, nil)
		return nil
	}
	cfg.attachOne(parent, children[0])
	return nil
}

// joinRow is the two-key projection of a many-to-many link table.
type joinRow struct {
	ParentID  uuid.UUID `bun:"parent_id"`
	RelatedID uuid.UUID `bun:"related_id"`
}

// loadManyToMany resolves related rows through the join table in two passes:
// link rows for the parent batch, then the related rows those links name.
// Grouping happens in memory so one pair of queries serves any batch size.
func (l *Loader) loadManyToMany(ctx context.Context, cfg Config, parentIDs []uuid.UUID) (map[uuid.UUID][]any, error) {
	var links []joinRow
	err := l.db.NewSelect().
		Table(cfg.Join.Name).
		ColumnExpr("? AS parent_id, ? AS related_id", bun.Ident(cfg.Join.ForeignKey), bun.Ident(cfg.Join.RelatedKey)).
		Where("? IN (?)", bun.Ident(cfg.Join.ForeignKey), bun.In(parentIDs)).
		Scan(ctx, &links)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return map[uuid.UUID][]any{}, nil
	}

	relatedIDs := make([]uuid.UUID, 0, len(links))
	seen := map[uuid.UUID]struct{}{}
	for _, link := range links {
		if _, dup := seen[link.RelatedID]; dup {
			continue
		}
		seen[link.RelatedID] = struct{}{}
		relatedIDs = append(relatedIDs, link.RelatedID)
	}

	dest := cfg.newSlice()
	err = l.db.NewSelect().
		Model(dest).
		Where("? IN (?)", bun.Ident(cfg.References), bun.In(relatedIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	byID := map[uuid.UUID]any{}
	for _, child := range cfg.elems(dest) {
		byID[cfg.idOf(child)] = child
	}

	groups := map[uuid.UUID][]any{}
	for _, link := range links {
		if child, ok := byID[link.RelatedID]; ok {
			groups[link.ParentID] = append(groups[link.ParentID], child)
		}
	}
	return groups, nil
}
