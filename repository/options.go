package repository

import (
	"github.com/goliatone/go-persistence-bun/query"
)

// QueryOptions is the one shape every read path accepts.
//
// Leniency, kept on purpose: filter/sort fields that do not map to a column
// and relation names in With that were never declared are silently ignored
// rather than erroring. Calling code depends on search endpoints degrading
// instead of failing on a stray field name.
type QueryOptions struct {
	Filter query.Filter
	Sort   []query.SortField
	Limit  int
	Offset int

	// With names declared relations to eagerly attach.
	With []string

	// Locale overrides the ambient locale for translatable reads.
	Locale string

	// IncludeAllTranslations attaches the full translation set in addition
	// to the resolved one.
	IncludeAllTranslations bool
}

// PageRequest addresses one page of a paginated read. Page is 1-based.
type PageRequest struct {
	Page  int
	Limit int
}

// DefaultPageLimit applies when a PageRequest carries no limit.
const DefaultPageLimit = 25

// Page is one page of results plus the pagination envelope.
type Page[T any] struct {
	Data       []T
	Total      int
	Page       int
	Limit      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}
