package query

import (
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-persistence-bun/fieldmap"
	"github.com/uptrace/bun"
)

// Join is one required join clause, deduplicated by alias.
type Join struct {
	Table string
	Alias string
	// On is the raw join condition ("tr.artist_id = artists.id").
	On string
}

// Builder turns Filter/Sort input expressed over logical fields into a
// predicate fragment, an ordering list, and the set of joins those two
// passes turned out to need. One builder instance serves filter, sort, and
// relation concerns for a single statement; it is not safe for reuse across
// statements because the accumulated join set is statement-scoped.
type Builder struct {
	mapper    *fieldmap.Mapper
	sources   map[string]Join
	required  map[string]Join
	joinOrder []string
}

// NewBuilder builds a Builder over the given field mapper.
func NewBuilder(mapper *fieldmap.Mapper) *Builder {
	return &Builder{
		mapper:   mapper,
		sources:  map[string]Join{},
		required: map[string]Join{},
	}
}

// RegisterJoin makes a join available under a field-path prefix. The join is
// only emitted by RequiredJoins once a filter or sort actually touches a
// field under that prefix. Registering the same prefix twice is a no-op.
func (b *Builder) RegisterJoin(prefix string, j Join) {
	if _, ok := b.sources[prefix]; ok {
		return
	}
	b.sources[prefix] = j
}

// RequiredJoins returns the deduplicated join set accumulated by BuildWhere
// and BuildOrderBy, in first-use order.
func (b *Builder) RequiredJoins() []Join {
	joins := make([]Join, 0, len(b.joinOrder))
	for _, alias := range b.joinOrder {
		joins = append(joins, b.required[alias])
	}
	return joins
}

// BuildWhere translates a filter tree into a SQL fragment plus args for the
// store's placeholder substitution. ok is false when the whole tree resolved
// to "no predicate" (empty groups, unmapped fields, malformed values).
func (b *Builder) BuildWhere(f Filter) (string, []any, bool) {
	switch v := f.(type) {
	case nil:
		return "", nil, false
	case Condition:
		return b.buildCondition(v)
	case Group:
		return b.buildGroup(v)
	default:
		return "", nil, false
	}
}

// buildGroup folds children with the group's boolean operator, dropping
// children that resolved to no predicate. Zero survivors contribute nothing;
// exactly one survivor is hoisted without wrapping.
func (b *Builder) buildGroup(g Group) (string, []any, bool) {
	bool_ := g.Bool
	if bool_ != BoolOr {
		bool_ = BoolAnd
	}

	var fragments []string
	var args []any
	for _, child := range g.Filters {
		frag, childArgs, ok := b.BuildWhere(child)
		if !ok {
			continue
		}
		fragments = append(fragments, frag)
		args = append(args, childArgs...)
	}

	switch len(fragments) {
	case 0:
		return "", nil, false
	case 1:
		return fragments[0], args, true
	default:
		for i, frag := range fragments {
			fragments[i] = "(" + frag + ")"
		}
		return strings.Join(fragments, " "+string(bool_)+" "), args, true
	}
}

func (b *Builder) buildCondition(c Condition) (string, []any, bool) {
	column, ok := b.resolveColumn(c.Field)
	if !ok {
		return "", nil, false
	}
	return applyOperator(column, c.Op, c.Value)
}

// BuildOrderBy resolves each sort entry to an ordering expression. Entries
// over unresolvable fields are skipped; nested fields register their join
// the same way filters do.
func (b *Builder) BuildOrderBy(sort []SortField) []string {
	var clauses []string
	for _, s := range sort {
		column, ok := b.resolveColumn(s.Field)
		if !ok {
			continue
		}
		dir := s.Dir
		if dir != Desc {
			dir = Asc
		}
		clause := column + " " + string(dir)
		if s.Nulls != NullsDefault {
			clause += " " + string(s.Nulls)
		}
		clauses = append(clauses, clause)
	}
	return clauses
}

// resolveColumn maps a logical field to a qualified physical column,
// registering the owning join for dotted paths.
func (b *Builder) resolveColumn(field string) (string, bool) {
	if prefix, _, ok := strings.Cut(field, "."); ok {
		nf, found := b.mapper.Nested(field)
		if !found {
			return "", false
		}
		src, found := b.sources[prefix]
		if !found {
			return "", false
		}
		b.requireJoin(src)
		return src.Alias + "." + nf.Column, true
	}

	column, ok := b.mapper.Column(field)
	if !ok {
		return "", false
	}
	return b.mapper.Table() + "." + column, true
}

func (b *Builder) requireJoin(j Join) {
	if _, ok := b.required[j.Alias]; ok {
		return
	}
	b.required[j.Alias] = j
	b.joinOrder = append(b.joinOrder, j.Alias)
}

// applyOperator is the fixed operator table. Each operator validates its
// value shape and yields no predicate on a mismatch, so malformed filters
// degrade instead of failing the whole query.
func applyOperator(column string, op Operator, value any) (string, []any, bool) {
	switch op {
	case OpEq:
		if value == nil {
			return column + " IS NULL", nil, true
		}
		return column + " = ?", []any{normalizeValue(value)}, true
	case OpNe:
		if value == nil {
			return column + " IS NOT NULL", nil, true
		}
		return column + " != ?", []any{normalizeValue(value)}, true
	case OpGt, OpGte, OpLt, OpLte:
		if value == nil {
			return "", nil, false
		}
		return column + " " + comparison(op) + " ?", []any{normalizeValue(value)}, true
	case OpIn, OpNotIn:
		values, ok := valueSlice(value)
		if !ok || len(values) == 0 {
			return "", nil, false
		}
		kw := "IN"
		if op == OpNotIn {
			kw = "NOT IN"
		}
		return column + " " + kw + " (?)", []any{bun.In(values)}, true
	case OpLike, OpILike:
		pattern, ok := value.(string)
		if !ok || pattern == "" {
			return "", nil, false
		}
		kw := "LIKE"
		if op == OpILike {
			kw = "ILIKE"
		}
		return column + " " + kw + " ?", []any{pattern}, true
	case OpIsNull:
		return column + " IS NULL", nil, true
	case OpIsNotNull:
		return column + " IS NOT NULL", nil, true
	case OpBetween:
		values, ok := valueSlice(value)
		if !ok || len(values) != 2 {
			return "", nil, false
		}
		return column + " BETWEEN ? AND ?", []any{normalizeValue(values[0]), normalizeValue(values[1])}, true
	case OpContains:
		if value == nil {
			return "", nil, false
		}
		return column + " @> ?", []any{value}, true
	case OpOverlaps:
		if value == nil {
			return "", nil, false
		}
		return column + " && ?", []any{value}, true
	default:
		return "", nil, false
	}
}

func comparison(op Operator) string {
	switch op {
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	default:
		return "<="
	}
}

// normalizeValue coerces ISO-8601 strings to time.Time so date-valued
// filters accept either representation.
func normalizeValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return v
}

// valueSlice unpacks slice/array values of any element type.
func valueSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
