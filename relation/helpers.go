package relation

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Batch helpers for callers that load relations outside a repository's
// declared relation map. Each issues one query (two for many-to-many) for
// the whole parent batch and returns a complete map: parents with no
// matches are present with an empty list or zero value, so callers never
// need a presence check.

// LoadOneToManyBatch loads children holding foreignKey for all parent ids.
func LoadOneToManyBatch[E any](ctx context.Context, db bun.IDB, foreignKey string, parentIDs []uuid.UUID, fkOf func(E) uuid.UUID) (map[uuid.UUID][]E, error) {
	out := make(map[uuid.UUID][]E, len(parentIDs))
	for _, id := range parentIDs {
		out[id] = []E{}
	}
	if len(parentIDs) == 0 {
		return out, nil
	}

	var rows []E
	err := db.NewSelect().
		Model(&rows).
		Where("? IN (?)", bun.Ident(foreignKey), bun.In(parentIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		key := fkOf(row)
		out[key] = append(out[key], row)
	}
	return out, nil
}

// LoadOneToOneBatch loads at most one child per parent id; parents without
// a child map to the zero value of E (nil for pointer types).
func LoadOneToOneBatch[E any](ctx context.Context, db bun.IDB, foreignKey string, parentIDs []uuid.UUID, fkOf func(E) uuid.UUID) (map[uuid.UUID]E, error) {
	out := make(map[uuid.UUID]E, len(parentIDs))
	for _, id := range parentIDs {
		var zero E
		out[id] = zero
	}
	if len(parentIDs) == 0 {
		return out, nil
	}

	var rows []E
	err := db.NewSelect().
		Model(&rows).
		Where("? IN (?)", bun.Ident(foreignKey), bun.In(parentIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[fkOf(row)] = row
	}
	return out, nil
}

// LoadManyToOneBatch resolves related rows for a batch of foreign-key
// values, keyed by the referenced column. Keys with no match map to the
// zero value of E.
func LoadManyToOneBatch[E any](ctx context.Context, db bun.IDB, references string, keys []uuid.UUID, idOf func(E) uuid.UUID) (map[uuid.UUID]E, error) {
	out := make(map[uuid.UUID]E, len(keys))
	for _, key := range keys {
		var zero E
		out[key] = zero
	}
	if len(keys) == 0 {
		return out, nil
	}

	var rows []E
	err := db.NewSelect().
		Model(&rows).
		Where("? IN (?)", bun.Ident(references), bun.In(keys)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[idOf(row)] = row
	}
	return out, nil
}

// LoadManyToManyBatch resolves related rows through a join table for all
// parent ids at once.
func LoadManyToManyBatch[E any](ctx context.Context, db bun.IDB, join JoinTable, references string, parentIDs []uuid.UUID, idOf func(E) uuid.UUID) (map[uuid.UUID][]E, error) {
	out := make(map[uuid.UUID][]E, len(parentIDs))
	for _, id := range parentIDs {
		out[id] = []E{}
	}
	if len(parentIDs) == 0 {
		return out, nil
	}

	var links []joinRow
	err := db.NewSelect().
		Table(join.Name).
		ColumnExpr("? AS parent_id, ? AS related_id", bun.Ident(join.ForeignKey), bun.Ident(join.RelatedKey)).
		Where("? IN (?)", bun.Ident(join.ForeignKey), bun.In(parentIDs)).
		Scan(ctx, &links)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return out, nil
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

	var rows []E
	err = db.NewSelect().
		Model(&rows).
		Where("? IN (?)", bun.Ident(references), bun.In(relatedIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]E, len(rows))
	for _, row := range rows {
		byID[idOf(row)] = row
	}
	for _, link := range links {
		if row, ok := byID[link.RelatedID]; ok {
			out[link.ParentID] = append(out[link.ParentID], row)
		}
	}
	return out, nil
}
