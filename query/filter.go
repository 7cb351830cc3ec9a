package query

import "strings"

// Operator enumerates the comparison operators the builder knows how to
// translate. Anything else yields no predicate.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNe        Operator = "ne"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpLike      Operator = "like"
	OpILike     Operator = "ilike"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
	OpBetween   Operator = "between"
	OpContains  Operator = "contains"
	OpOverlaps  Operator = "overlaps"
)

// BoolOperator combines the children of a Group.
type BoolOperator string

const (
	BoolAnd BoolOperator = "AND"
	BoolOr  BoolOperator = "OR"
)

// Filter is either a Condition or a Group.
type Filter interface {
	isFilter()
}

// Condition is a single (field, operator, value) predicate over a logical
// field name. Fields may be dotted paths ("translation.name") when the
// target column lives on a joined table.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

func (Condition) isFilter() {}

// Group combines child filters with AND or OR, recursively. An empty group
// has no predicate effect.
type Group struct {
	Bool    BoolOperator
	Filters []Filter
}

func (Group) isFilter() {}

// Where builds a single condition.
func Where(field string, op Operator, value any) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// And groups filters with AND.
func And(filters ...Filter) Group {
	return Group{Bool: BoolAnd, Filters: filters}
}

// Or groups filters with OR.
func Or(filters ...Filter) Group {
	return Group{Bool: BoolOr, Filters: filters}
}

// StripNested drops every condition over a dotted field path, keeping the
// group structure. UPDATE and DELETE statements cannot carry the joins those
// paths resolve through, so bulk mutations filter on local columns only;
// the dropped conditions degrade silently, the same way unmapped fields do.
func StripNested(f Filter) Filter {
	switch v := f.(type) {
	case Condition:
		if strings.Contains(v.Field, ".") {
			return nil
		}
		return v
	case Group:
		kept := make([]Filter, 0, len(v.Filters))
		for _, child := range v.Filters {
			if c := StripNested(child); c != nil {
				kept = append(kept, c)
			}
		}
		return Group{Bool: v.Bool, Filters: kept}
	default:
		return nil
	}
}

// Direction orders a sort field ascending or descending.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// NullOrder controls explicit NULLS FIRST/LAST placement.
type NullOrder string

const (
	NullsDefault NullOrder = ""
	NullsFirst   NullOrder = "NULLS FIRST"
	NullsLast    NullOrder = "NULLS LAST"
)

// SortField is one entry of a sort list; list order is tie-break order.
type SortField struct {
	Field string
	Dir   Direction
	Nulls NullOrder
}

// SortBy builds an ascending sort entry.
func SortBy(field string) SortField {
	return SortField{Field: field, Dir: Asc}
}

// SortByDesc builds a descending sort entry.
func SortByDesc(field string) SortField {
	return SortField{Field: field, Dir: Desc}
}
